// Package dispatch implements Agrama's request dispatcher: a
// line-delimited JSON-RPC 2.0 server over stdio that multiplexes
// concurrent agents onto the primitive engine, enforcing validation,
// identity, response ordering, and back-pressure.
package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/agrama/agrama/internal/primitives"
	"github.com/agrama/agrama/internal/types"
)

// maxLineBytes is the hard cap on one input line. A line of exactly
// this length is accepted; one byte more is rejected, and the
// connection continues.
const maxLineBytes = 8 * 1024 * 1024

// Protocol version advertised during initialize.
const protocolVersion = "2024-11-05"

const (
	serverName    = "agrama"
	serverVersion = "0.1.0"
)

// JSON-RPC 2.0 envelope types.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// Config configures a Dispatcher.
type Config struct {
	Engine         *primitives.Engine
	MaxConcurrency int           // default: hardware threads, clamped to [2, 32]
	MaxQueue       int           // default 1024
	CallTimeout    time.Duration // default 5s
	Logger         *log.Logger   // default: stderr
}

// agentRecord is the identity the dispatcher assigns on the first
// initialize call of this stdio connection. A single stdio transport
// carries exactly one logical agent connection, so there is one record
// per process lifetime; a new initialize cycle replaces it with a
// fresh session id.
type agentRecord struct {
	id        string
	sessionID string
	name      string
	version   string
}

type pendingWrite struct {
	data []byte // nil means "skip" (notification, no response due)
}

// Dispatcher reads JSON-RPC requests from stdin, fans them out to a
// bounded worker pool running against the Primitive Engine, and writes
// responses back to stdout in the order their requests were received.
type Dispatcher struct {
	engine *primitives.Engine
	logger *log.Logger

	callTimeout time.Duration
	workSem     *semaphore.Weighted
	queueSem    *semaphore.Weighted

	outMu sync.Mutex
	out   io.Writer

	seqMu     sync.Mutex
	nextSeq   uint64
	writeNext uint64
	pending   map[uint64]pendingWrite

	identMu sync.RWMutex
	agent   *agentRecord

	consecutiveWriteFailures atomic.Int32
	fatal                    atomic.Bool
}

// New constructs a Dispatcher. An unset worker ceiling derives from the
// hardware thread count clamped to [2, 32]; queue depth defaults to
// 1024 and the per-call timeout to 5s.
func New(cfg Config) *Dispatcher {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
		if maxConcurrency < 2 {
			maxConcurrency = 2
		} else if maxConcurrency > 32 {
			maxConcurrency = 32
		}
	}
	maxQueue := cfg.MaxQueue
	if maxQueue <= 0 {
		maxQueue = 1024
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	return &Dispatcher{
		engine:      cfg.Engine,
		logger:      logger,
		callTimeout: timeout,
		workSem:     semaphore.NewWeighted(int64(maxConcurrency)),
		queueSem:    semaphore.NewWeighted(int64(maxQueue)),
		pending:     make(map[uint64]pendingWrite),
	}
}

// Serve runs the read-dispatch-write loop until r reaches EOF, ctx is
// cancelled, or a fatal error (three consecutive WriteFailed outcomes,
// or any StorageCorrupt) occurs. It returns the process exit code the
// caller should use: 0 on clean EOF, 1 on a read error, 2 on a fatal
// storage condition.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) int {
	d.out = w

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	reader := bufio.NewReaderSize(r, 64*1024)

	readLoop := func() error {
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				d.handleLine(gctx, g, strings.TrimRight(line, "\r\n"))
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if d.fatal.Load() {
				return nil
			}
		}
	}

	g.Go(readLoop)
	err := g.Wait()

	if d.fatal.Load() {
		return 2
	}
	if err != nil {
		fmt.Fprintf(ioErrWriter(d.logger), "dispatcher: read error: %v\n", err)
		return 1
	}
	return 0
}

func ioErrWriter(l *log.Logger) io.Writer {
	if l == nil {
		return io.Discard
	}
	return l.Writer()
}

// handleLine admits one line into the bounded queue and, on admission,
// spawns a worker goroutine to process it; on queue overflow it
// synthesizes a Busy response immediately, preserving the line's
// ordering slot.
func (d *Dispatcher) handleLine(ctx context.Context, g *errgroup.Group, line string) {
	if line == "" {
		return
	}

	seq := d.nextSequence()

	if len(line) > maxLineBytes {
		d.deliver(seq, d.marshalResponse(response{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32600, Message: "invalid request", Data: "line exceeds maximum size"},
		}))
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		d.deliver(seq, d.marshalResponse(response{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "parse error", Data: err.Error()},
		}))
		return
	}
	if env.JSONRPC != "2.0" || env.Method == "" {
		d.deliver(seq, d.marshalResponse(response{
			JSONRPC: "2.0", ID: env.ID,
			Error: &rpcError{Code: -32600, Message: "invalid request"},
		}))
		return
	}

	isNotification := env.ID == nil

	if !d.queueSem.TryAcquire(1) {
		if isNotification {
			d.deliver(seq, nil)
			return
		}
		d.deliver(seq, d.marshalResponse(response{
			JSONRPC: "2.0", ID: env.ID,
			Error: &rpcError{Code: -32020, Message: "busy", Data: "dispatch queue full"},
		}))
		return
	}

	g.Go(func() error {
		defer d.queueSem.Release(1)

		if err := d.workSem.Acquire(ctx, 1); err != nil {
			d.deliver(seq, nil)
			return nil
		}
		defer d.workSem.Release(1)

		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		result, rpcErr := d.handle(callCtx, env)
		if rpcErr != nil {
			agentID, _ := d.currentIdentity()
			d.logger.Printf("request=%v agent=%s error %d: %s", env.ID, agentID, rpcErr.Code, rpcErr.Message)
		}

		if isNotification {
			d.deliver(seq, nil)
			return nil
		}

		resp := response{JSONRPC: "2.0", ID: env.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		d.deliver(seq, d.marshalResponse(resp))
		return nil
	})
}

func (d *Dispatcher) marshalResponse(resp response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(response{
			JSONRPC: "2.0", ID: resp.ID,
			Error: &rpcError{Code: -32603, Message: "internal error", Data: "failed to encode response"},
		})
	}
	return append(data, '\n')
}

func (d *Dispatcher) nextSequence() uint64 {
	d.seqMu.Lock()
	defer d.seqMu.Unlock()
	seq := d.nextSeq
	d.nextSeq++
	return seq
}

// deliver stores a completed line's output (or a skip marker for
// notifications) and flushes every consecutive ready entry, so
// responses always appear in the order their requests were received
// even though calls execute concurrently.
func (d *Dispatcher) deliver(seq uint64, data []byte) {
	d.seqMu.Lock()
	d.pending[seq] = pendingWrite{data: data}
	var toWrite [][]byte
	for {
		pw, ok := d.pending[d.writeNext]
		if !ok {
			break
		}
		delete(d.pending, d.writeNext)
		d.writeNext++
		if pw.data != nil {
			toWrite = append(toWrite, pw.data)
		}
	}
	d.seqMu.Unlock()

	for _, b := range toWrite {
		d.writeOut(b)
	}
}

func (d *Dispatcher) writeOut(b []byte) {
	d.outMu.Lock()
	_, err := d.out.Write(b)
	d.outMu.Unlock()
	if err != nil {
		d.logger.Printf("write error: %v", err)
	}
}

func (d *Dispatcher) currentIdentity() (agentID, sessionID string) {
	d.identMu.RLock()
	defer d.identMu.RUnlock()
	if d.agent == nil {
		return "anonymous", ""
	}
	return d.agent.id, d.agent.sessionID
}

func (d *Dispatcher) assignIdentity(name, version string) *agentRecord {
	d.identMu.Lock()
	defer d.identMu.Unlock()
	if name == "" {
		name = "agent"
	}
	rec := &agentRecord{
		id:        fmt.Sprintf("%s-%s", name, uuid.New().String()[:8]),
		sessionID: uuid.New().String(),
		name:      name,
		version:   version,
	}
	d.agent = rec
	return rec
}

// noteOutcome feeds the dispatcher's fatal-exit rule: three consecutive
// WriteFailed outcomes trip a clean-drain exit with code 2; a single
// StorageCorrupt trips it immediately.
func (d *Dispatcher) noteOutcome(err error) {
	e, ok := err.(*types.Error)
	if !ok {
		d.consecutiveWriteFailures.Store(0)
		return
	}
	switch e.Kind {
	case types.KindStorageCorrupt:
		d.fatal.Store(true)
	case types.KindWriteFailed:
		if d.consecutiveWriteFailures.Add(1) >= 3 {
			d.fatal.Store(true)
		}
	default:
		d.consecutiveWriteFailures.Store(0)
	}
}
