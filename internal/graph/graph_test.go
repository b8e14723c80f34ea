package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrama/agrama/internal/types"
)

func TestLinkAndNeighbors(t *testing.T) {
	g := NewGraph()
	g.Link("a", "b", "calls", 1, nil, 100)
	g.Link("a", "c", "imports", 1, nil, 100)

	all, err := g.Neighbors("a", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	calls, err := g.Neighbors("a", "calls")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "b", calls[0].Target)
}

func TestLinkUpsertReplacesWeight(t *testing.T) {
	g := NewGraph()
	g.Link("a", "b", "calls", 1, nil, 100)
	g.Link("a", "b", "calls", 5, nil, 200)

	neighbors, err := g.Neighbors("a", "calls")
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 5.0, neighbors[0].Weight)
}

func TestNeighborsUnknownKey(t *testing.T) {
	g := NewGraph()
	_, err := g.Neighbors("ghost", "")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindUnknownKey))
}

func TestRegisterWithNoEdgesIsKnown(t *testing.T) {
	g := NewGraph()
	g.Register("solo")
	assert.True(t, g.Known("solo"))
	neighbors, err := g.Neighbors("solo", "")
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestShortestPathsMultiSource(t *testing.T) {
	g := NewGraph()
	g.Link("a", "b", "rel", 1, nil, 1)
	g.Link("b", "c", "rel", 1, nil, 1)
	g.Link("x", "c", "rel", 1, nil, 1)

	dist, err := g.ShortestPaths(context.Background(), []string{"a", "x"}, Forward, 10, 1024)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dist["a"])
	assert.Equal(t, 0.0, dist["x"])
	assert.Equal(t, 1.0, dist["b"])
	// c is reachable both via a->b->c (dist 2) and x->c (dist 1); best wins.
	assert.Equal(t, 1.0, dist["c"])
}

func TestShortestPathsRespectsMaxHops(t *testing.T) {
	g := NewGraph()
	g.Link("a", "b", "rel", 1, nil, 1)
	g.Link("b", "c", "rel", 1, nil, 1)
	g.Link("c", "d", "rel", 1, nil, 1)

	dist, err := g.ShortestPaths(context.Background(), []string{"a"}, Forward, 1, 1024)
	require.NoError(t, err)
	assert.Contains(t, dist, "b")
	assert.NotContains(t, dist, "c")
	assert.NotContains(t, dist, "d")
}

func TestShortestPathsReverseDirection(t *testing.T) {
	g := NewGraph()
	g.Link("a", "b", "rel", 1, nil, 1)

	dist, err := g.ShortestPaths(context.Background(), []string{"b"}, Reverse, 10, 1024)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dist["b"])
	assert.Equal(t, 1.0, dist["a"])
}

func TestShortestPathsUnknownSource(t *testing.T) {
	g := NewGraph()
	g.Register("a")
	_, err := g.ShortestPaths(context.Background(), []string{"ghost"}, Forward, 10, 1024)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindUnknownKey))
}

func TestShortestPathsMaxFrontierTerminatesEarly(t *testing.T) {
	g := NewGraph()
	g.Link("a", "b", "rel", 1, nil, 1)
	g.Link("b", "c", "rel", 1, nil, 1)
	g.Link("c", "d", "rel", 1, nil, 1)

	dist, err := g.ShortestPaths(context.Background(), []string{"a"}, Forward, 10, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(dist), 2)
}
