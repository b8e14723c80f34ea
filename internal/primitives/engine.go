// Package primitives implements Agrama's primitive engine: the registry
// of five primitives (store, retrieve, search, link, transform), each a
// (validator, executor, metadata) triple run under a per-call arena with
// elapsed-time statistics.
package primitives

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrama/agrama/internal/graph"
	"github.com/agrama/agrama/internal/hybrid"
	"github.com/agrama/agrama/internal/lexical"
	"github.com/agrama/agrama/internal/pool"
	"github.com/agrama/agrama/internal/store"
	"github.com/agrama/agrama/internal/transform"
	"github.com/agrama/agrama/internal/types"
	"github.com/agrama/agrama/internal/vector"
)

const (
	meterName  = "github.com/agrama/agrama/internal/primitives"
	tracerName = meterName
)

// CallContext is threaded through a primitive's validator and executor:
// identity, cancellation, the read snapshot, and the per-call arena.
type CallContext struct {
	Ctx       context.Context
	AgentID   string
	SessionID string
	Arena     *pool.Arena
	Snap      store.Snapshot
}

// Validator checks an argument map's shape. It runs before any mutation
// or expensive work.
type Validator func(args map[string]any) error

// Executor performs the primitive's effect and returns its result.
type Executor func(cc *CallContext, args map[string]any) (any, error)

type descriptor struct {
	name        string
	description string
	schema      map[string]any
	validate    Validator
	execute     Executor
}

// Descriptor is the public, read-only view of a registered primitive,
// used by primitives/list and primitives/describe.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Engine wires the five primitives to the storage, index, and transform
// layers and owns the per-primitive statistics and result cache.
type Engine struct {
	store      *store.Store
	lexical    *lexical.Index
	vector     *vector.Index
	graph      *graph.Graph
	hybrid     *hybrid.Engine
	transforms *transform.Registry
	cache      *pool.ResultCache
	bufPool    *pool.ObjectPool[[]byte]
	valPool    *pool.ObjectPool[map[string]any]
	dim        int
	when       *timeParser

	descriptors map[string]*descriptor
	stats       map[string]*stat

	meter  metric.Meter
	tracer trace.Tracer
}

// Config bundles the already-constructed component layers an Engine
// wires together.
type Config struct {
	Store       *store.Store
	Lexical     *lexical.Index
	Vector      *vector.Index
	Graph       *graph.Graph
	Hybrid      *hybrid.Engine
	Transforms  *transform.Registry
	CacheSize   int
	PoolSize    int
	Dim         int
}

// NewEngine constructs the Primitive Engine and registers the five
// built-in primitives.
func NewEngine(cfg Config) *Engine {
	if cfg.Transforms == nil {
		cfg.Transforms = transform.NewRegistry()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 64
	}
	e := &Engine{
		store:      cfg.Store,
		lexical:    cfg.Lexical,
		vector:     cfg.Vector,
		graph:      cfg.Graph,
		hybrid:     cfg.Hybrid,
		transforms: cfg.Transforms,
		cache:      pool.NewResultCache(cfg.CacheSize),
		bufPool: pool.NewObjectPool(cfg.PoolSize, func() *[]byte {
			b := make([]byte, 0, 4096)
			return &b
		}),
		valPool: pool.NewObjectPool(cfg.PoolSize, func() *map[string]any {
			m := make(map[string]any)
			return &m
		}),
		dim:         cfg.Dim,
		when:        newTimeParser(),
		descriptors: make(map[string]*descriptor),
		stats:       make(map[string]*stat),
		meter:       otel.GetMeterProvider().Meter(meterName),
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
	}

	e.registerStore()
	e.registerRetrieve()
	e.registerSearch()
	e.registerLink()
	e.registerTransform()

	e.transforms.Register("merge_items", e.mergeItems)

	return e
}

func (e *Engine) register(d descriptor) {
	histo, _ := e.meter.Float64Histogram(
		"agrama.primitive.elapsed_seconds",
		metric.WithDescription("primitive call elapsed time, tagged by primitive name"),
	)
	e.descriptors[d.name] = &d
	e.stats[d.name] = newStat(histo, d.name)
}

// Descriptors lists every registered primitive (primitives/list).
func (e *Engine) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(e.descriptors))
	for _, d := range e.descriptors {
		out = append(out, Descriptor{Name: d.name, Description: d.description, InputSchema: d.schema})
	}
	return out
}

// Describe returns one primitive's descriptor plus its live statistics,
// for agents introspecting call costs.
func (e *Engine) Describe(name string) (Descriptor, Snapshot, error) {
	d, ok := e.descriptors[name]
	if !ok {
		return Descriptor{}, Snapshot{}, types.NewError(types.KindUnknownOperation, "unknown primitive %q", name)
	}
	return Descriptor{Name: d.name, Description: d.description, InputSchema: d.schema}, e.stats[name].snapshot(), nil
}

// Call runs one primitive invocation through validation, execution, and
// statistics recording. Nothing is committed when validation or
// execution fails.
func (e *Engine) Call(ctx context.Context, name, agentID, sessionID string, args map[string]any) (any, error) {
	d, ok := e.descriptors[name]
	if !ok {
		return nil, types.NewError(types.KindUnknownOperation, "unknown primitive %q", name)
	}
	st := e.stats[name]

	ctx, span := e.tracer.Start(ctx, "primitive."+name)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.KindCancelled, "call cancelled before validation")
	}

	start := time.Now()
	defer func() {
		st.record(ctx, time.Since(start).Seconds())
	}()

	if err := d.validate(args); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.KindCancelled, "call cancelled after validation")
	}

	arena := pool.NewArena(e.bufPool, e.valPool)
	defer arena.Release()

	cc := &CallContext{
		Ctx: ctx, AgentID: agentID, SessionID: sessionID,
		Arena: arena, Snap: e.store.Snapshot(),
	}
	return d.execute(cc, args)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func mapArg(args map[string]any, key string) map[string]any {
	v, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

func floatArg(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return def
}

func embeddingArg(args map[string]any, key string) ([]float32, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, false, types.NewError(types.KindInvalidInput, "%s must be an array of numbers", key)
	}
	out := make([]float32, len(raw))
	for i, e := range raw {
		f, ok := e.(float64)
		if !ok {
			return nil, false, types.NewError(types.KindInvalidInput, "%s[%d] is not a number", key, i)
		}
		out[i] = float32(f)
	}
	return out, true, nil
}
