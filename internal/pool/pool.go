// Package pool implements Agrama's memory substrate: fixed-size object
// pools, per-call arenas, and an optional mutation-invalidated result
// cache shared by the components above it.
package pool

import (
	"sync"
	"sync/atomic"
)

// ObjectPool is a sync.Pool fronted by an atomic capacity counter.
// sync.Pool alone has no notion of a fixed capacity and may evict
// everything at the next GC regardless of how much was Put, so Get's
// fallback to direct allocation would be unobservable without the
// counter: Get only routes through the underlying sync.Pool while the
// counter says an object is likely parked there, and Put only feeds it
// while under the configured capacity.
type ObjectPool[T any] struct {
	inner    sync.Pool
	capacity int32
	parked   atomic.Int32
}

// NewObjectPool creates a pool with the given capacity. zero constructs
// a fresh T when nothing is parked.
func NewObjectPool[T any](capacity int, zero func() *T) *ObjectPool[T] {
	return &ObjectPool[T]{
		inner:    sync.Pool{New: func() any { return zero() }},
		capacity: int32(capacity),
	}
}

// Get removes a parked object if the counter indicates one is
// available, or allocates a new one directly otherwise.
func (p *ObjectPool[T]) Get() *T {
	if p.parked.Load() <= 0 {
		return p.inner.New().(*T)
	}
	p.parked.Add(-1)
	return p.inner.Get().(*T)
}

// Put parks an object for reuse, unless the pool is already at
// capacity, in which case the object is dropped for the garbage
// collector to reclaim.
func (p *ObjectPool[T]) Put(v *T) {
	if p.parked.Load() >= p.capacity {
		return
	}
	p.inner.Put(v)
	p.parked.Add(1)
}

// Len reports how many objects the pool currently believes are parked.
// sync.Pool gives no exact accounting, so this is the Put/Get delta
// rather than a guaranteed live count.
func (p *ObjectPool[T]) Len() int {
	n := p.parked.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
