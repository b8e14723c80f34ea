package pool

import "sync"

// Arena is a per-request (or per-primitive-call) scratch allocator:
// every byte slice and JSON scratch value it hands out is released in
// one shot on Release. Nothing handed out by an arena may outlive the
// request it was created for.
//
// Arena itself does not attempt manual memory management (Go has no
// region allocator in the standard library); it tracks everything it
// handed out so Release can return each buffer to the owning pool,
// which is the GC-friendly equivalent of freeing a region in one step.
type Arena struct {
	buffers *ObjectPool[[]byte]
	values  *ObjectPool[map[string]any]

	mu        sync.Mutex
	outBufs   [][]byte
	outValues []map[string]any
	released  bool
}

// NewArena creates an arena backed by the given buffer and value
// object pools.
func NewArena(buffers *ObjectPool[[]byte], values *ObjectPool[map[string]any]) *Arena {
	return &Arena{buffers: buffers, values: values}
}

// Buffer hands out a scratch byte slice of at least the requested
// capacity, tracked for release.
func (a *Arena) Buffer(capacity int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf := a.buffers.Get()
	if cap(*buf) < capacity {
		*buf = make([]byte, 0, capacity)
	} else {
		*buf = (*buf)[:0]
	}
	a.outBufs = append(a.outBufs, *buf)
	return *buf
}

// Value hands out a scratch map used to build a JSON response object,
// tracked for release.
func (a *Arena) Value() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.values.Get()
	for k := range *v {
		delete(*v, k)
	}
	a.outValues = append(a.outValues, *v)
	return *v
}

// Release returns every buffer and value handed out by this arena back
// to their pools. Safe to call once; subsequent calls are no-ops.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	for _, b := range a.outBufs {
		bb := b
		a.buffers.Put(&bb)
	}
	for _, v := range a.outValues {
		vv := v
		a.values.Put(&vv)
	}
	a.outBufs = nil
	a.outValues = nil
}
