package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPoolReuseAndFallback(t *testing.T) {
	allocs := 0
	p := NewObjectPool(2, func() *[]byte {
		allocs++
		b := make([]byte, 0, 16)
		return &b
	})

	a := p.Get()
	b := p.Get()
	assert.Equal(t, 2, allocs)

	p.Put(a)
	p.Put(b)
	assert.Equal(t, 2, p.Len())

	// Reuse from the free-list, no new allocation.
	_ = p.Get()
	assert.Equal(t, 2, allocs)

	// Exhaust the free-list, fall back to direct allocation.
	_ = p.Get()
	_ = p.Get()
	assert.Equal(t, 3, allocs)
}

func TestObjectPoolPutBeyondCapacityDrops(t *testing.T) {
	p := NewObjectPool(1, func() *[]byte {
		b := make([]byte, 0)
		return &b
	})
	a, b := p.Get(), p.Get()
	p.Put(a)
	p.Put(b) // dropped, pool already at capacity 1
	assert.Equal(t, 1, p.Len())
}

func TestArenaReleaseReturnsBuffersToPool(t *testing.T) {
	bufPool := NewObjectPool(4, func() *[]byte {
		b := make([]byte, 0, 64)
		return &b
	})
	valPool := NewObjectPool(4, func() *map[string]any {
		m := make(map[string]any)
		return &m
	})

	arena := NewArena(bufPool, valPool)
	buf := arena.Buffer(32)
	require.GreaterOrEqual(t, cap(buf), 32)

	v := arena.Value()
	v["key"] = "value"

	assert.Equal(t, 0, bufPool.Len())
	arena.Release()
	assert.Equal(t, 1, bufPool.Len())
	assert.Equal(t, 1, valPool.Len())

	// Second release is a no-op, does not double-return.
	arena.Release()
	assert.Equal(t, 1, bufPool.Len())
}

func TestResultCacheEvictionAndInvalidate(t *testing.T) {
	c := NewResultCache(2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	c.Invalidate()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestResultCacheZeroCapacityDisablesCaching(t *testing.T) {
	c := NewResultCache(0)
	c.Put("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
