package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/agrama/agrama/internal/types"
)

// logRecord is the on-disk shape of one append-log entry: one UTF-8
// JSON object per line, no header.
type logRecord struct {
	Version   int            `json:"version"`
	Key       string         `json:"key"`
	Value     []byte         `json:"value"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"`
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// appendLog is a single append-only file plus a best-effort watcher that
// detects out-of-band truncation while the process is running.
type appendLog struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	offset int64

	corrupt  atomic.Bool
	watcher  *fsnotify.Watcher
	watchErr error
}

func openAppendLog(path string) (*appendLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, types.NewError(types.KindWriteFailed, "open log %q: %v", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, types.NewError(types.KindWriteFailed, "stat log %q: %v", path, err)
	}

	l := &appendLog{f: f, w: bufio.NewWriter(f), offset: info.Size()}

	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(path); err == nil {
			l.watcher = watcher
			go l.watchLoop()
		} else {
			watcher.Close()
		}
	}

	return l, nil
}

// watchLoop flags the log corrupt if the file shrinks below the last
// offset we wrote — a sign of an out-of-band truncation. It is a safety
// net; the authoritative check is the startup replay in Replay.
func (l *appendLog) watchLoop() {
	for event := range l.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Remove) == 0 {
			continue
		}
		// Stat under the same lock Append holds while writing, so the
		// size and the offset describe the same moment.
		l.mu.Lock()
		info, err := os.Stat(l.f.Name())
		lastKnown := l.offset
		l.mu.Unlock()
		if err != nil {
			continue
		}
		if info.Size() < lastKnown {
			l.corrupt.Store(true)
			log.Printf("agrama: log %s shrank from %d to %d bytes; flagging StorageCorrupt", l.f.Name(), lastKnown, info.Size())
		}
	}
}

// Append durably writes rec, retrying transient I/O failures with
// exponential backoff before surfacing WriteFailed.
func (l *appendLog) Append(rec logRecord) error {
	if l.corrupt.Load() {
		return types.NewError(types.KindStorageCorrupt, "append log is flagged corrupt")
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return types.NewError(types.KindWriteFailed, "encode record: %v", err)
	}
	encoded = append(encoded, '\n')

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxElapsedTime = 200 * time.Millisecond

	writeOnce := func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, err := l.w.Write(encoded); err != nil {
			return err // retryable: backoff will retry
		}
		if err := l.w.Flush(); err != nil {
			return err
		}
		if err := l.f.Sync(); err != nil {
			return err
		}
		l.offset += int64(len(encoded))
		return nil
	}

	if err := backoff.Retry(writeOnce, bo); err != nil {
		return types.NewError(types.KindWriteFailed, "append log: %v", err)
	}
	return nil
}

// Replay reads every complete record from the start of the log. A
// partial trailing record (e.g. from a crash mid-write) is ignored and
// truncated away here, so the next Append starts on a clean line
// boundary.
func (l *appendLog) Replay() ([]logRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return nil, types.NewError(types.KindStorageCorrupt, "seek log: %v", err)
	}

	var records []logRecord
	scanner := bufio.NewScanner(l.f)
	scanner.Buffer(make([]byte, 0, 64*1024), types.MaxValueBytes*2)

	var goodOffset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Partial/corrupt trailing record, e.g. from a crash
			// mid-write: stop here, truncate below.
			break
		}
		records = append(records, rec)
		goodOffset += int64(len(line)) + 1
	}

	if err := scanner.Err(); err != nil {
		return nil, types.NewError(types.KindStorageCorrupt, "scan log: %v", err)
	}

	if goodOffset != l.offset {
		if err := l.f.Truncate(goodOffset); err != nil {
			return nil, types.NewError(types.KindStorageCorrupt, "truncate log: %v", err)
		}
		l.offset = goodOffset
	}
	if _, err := l.f.Seek(0, io.SeekEnd); err != nil {
		return nil, types.NewError(types.KindStorageCorrupt, "seek log end: %v", err)
	}
	l.w = bufio.NewWriter(l.f)

	return records, nil
}

// Close flushes buffered writes and releases the watcher.
func (l *appendLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		l.watcher.Close()
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush log: %w", err)
	}
	return l.f.Close()
}
