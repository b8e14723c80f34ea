package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeCamelSnakeAndLength(t *testing.T) {
	toks := Tokenize("calculateDistance calculate_area a I readFile")
	assert.Contains(t, toks, "calculate")
	assert.Contains(t, toks, "distance")
	assert.Contains(t, toks, "area")
	assert.Contains(t, toks, "read")
	assert.Contains(t, toks, "file")
	// length-1 tokens are dropped
	assert.NotContains(t, toks, "a")
	assert.NotContains(t, toks, "i")
}

func TestLexicalSearchRanksMatchesAboveNonMatches(t *testing.T) {
	ix := NewIndex()
	ix.Index("f1", "def calculateDistance(a, b): return abs(a-b)", "function", 100, 1)
	ix.Index("f2", "def calculateArea(w, h): return w*h", "function", 200, 1)
	ix.Index("f3", "def readFile(path): return open(path).read()", "function", 300, 1)

	results := ix.Search("calculate", 3)
	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}

	assert.Contains(t, keys, "f1")
	assert.Contains(t, keys, "f2")
	assert.NotContains(t, keys, "f3")
}

func TestFieldWeightOrdersFunctionsAboveComments(t *testing.T) {
	ix := NewIndex()
	ix.Index("fn", "widget widget widget", "function", 100, 1)
	ix.Index("cm", "widget widget widget", "comment", 100, 1)

	results := ix.Search("widget", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "fn", results[0].Key)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestTieBreakByRecencyThenKey(t *testing.T) {
	ix := NewIndex()
	ix.Index("b", "widget", "comment", 50, 1)
	ix.Index("a", "widget", "comment", 50, 1)
	ix.Index("c", "widget", "comment", 100, 1)

	results := ix.Search("widget", 3)
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].Key) // most recent first
	// next two tie on score and createdAt; lexicographically smaller key wins
	assert.Equal(t, "a", results[1].Key)
	assert.Equal(t, "b", results[2].Key)
}

func TestRemoveExcludesFromSearchAndDocFrequency(t *testing.T) {
	ix := NewIndex()
	ix.Index("a", "widget gadget", "note", 1, 1)
	ix.Index("b", "widget", "note", 2, 1)
	require.Equal(t, 2, ix.DocFrequency("widget"))

	ix.Remove("a")
	assert.Equal(t, 1, ix.DocFrequency("widget"))

	results := ix.Search("widget", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Key)
}

func TestRepeatedSearchesDoNotLeakScratchState(t *testing.T) {
	ix := NewIndex()
	ix.Index("a", "widget gadget", "note", 1, 1)
	ix.Index("b", "widget", "note", 2, 1)

	first := ix.Search("widget", 5)
	second := ix.Search("gadget", 5)
	third := ix.Search("widget", 5)

	require.Len(t, second, 1)
	assert.Equal(t, "a", second[0].Key)
	assert.Equal(t, first, third)
}

func TestEmptyQueryReturnsEmptyNotError(t *testing.T) {
	ix := NewIndex()
	ix.Index("a", "widget", "note", 1, 1)
	assert.Empty(t, ix.Search("", 5))
}
