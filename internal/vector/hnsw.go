// Package vector implements Agrama's HNSW approximate nearest-neighbor
// index over fixed-dimension embeddings.
package vector

import (
	"container/heap"
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"

	"github.com/agrama/agrama/internal/pool"
	"github.com/agrama/agrama/internal/types"
)

// Graph construction and search parameters.
const (
	DefaultM              = 16
	DefaultM0             = 32
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50
)

type node struct {
	key    string
	vector []float32
	layers [][]string // layers[l] = neighbor keys at layer l
}

// stripeCount is the number of mutexes neighbor-list mutations are
// striped over, keyed by a hash of the node key, so concurrent inserts
// touching different nodes do not contend on one graph-wide lock.
const stripeCount = 32

// Index is an HNSW graph over embeddings of a fixed dimension.
type Index struct {
	dim            int
	m              int
	m0             int
	efConstruction int

	mu         sync.RWMutex // guards entryPoint, topLayer, and the nodes map itself
	stripes    [stripeCount]sync.Mutex
	nodes      map[string]*node
	entryPoint string
	topLayer   int

	rngMu sync.Mutex
	rng   *rand.Rand

	efSearch int

	// scratch recycles each beam search's visited set and frontier/result
	// heaps, whose sizes are bounded by the search width.
	scratch *pool.ObjectPool[searchScratch]
}

type searchScratch struct {
	visited   map[string]bool
	toExplore closeHeap
	results   farHeap
}

// NewIndex creates an empty HNSW index for vectors of the given
// dimension. The seed fixes layer assignment, so two indexes built from
// the same insertion sequence have identical structure.
func NewIndex(dim int, seed int64) *Index {
	return &Index{
		dim:            dim,
		m:              DefaultM,
		m0:             DefaultM0,
		efConstruction: DefaultEfConstruction,
		nodes:          make(map[string]*node),
		topLayer:       -1,
		rng:            rand.New(rand.NewSource(seed)),
		efSearch:       DefaultEfSearch,
		scratch: pool.NewObjectPool(8, func() *searchScratch {
			return &searchScratch{visited: make(map[string]bool)}
		}),
	}
}

// SetEfSearch overrides the runtime-configurable default search width.
func (ix *Index) SetEfSearch(ef int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.efSearch = ef
}

func (ix *Index) stripeFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &ix.stripes[h.Sum32()%stripeCount]
}

// randomLevel draws a layer assignment: floor(-ln(U(0,1)) / ln(M)).
func (ix *Index) randomLevel() int {
	ix.rngMu.Lock()
	defer ix.rngMu.Unlock()
	u := ix.rng.Float64()
	for u == 0 {
		u = ix.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) / math.Log(float64(ix.m))))
}

func (ix *Index) capForLayer(layer int) int {
	if layer == 0 {
		return ix.m0
	}
	return ix.m
}

// Insert adds or replaces the vector for key.
func (ix *Index) Insert(ctx context.Context, key string, vector []float32) error {
	if len(vector) != ix.dim {
		return types.NewError(types.KindDimensionMismatch, "expected dimension %d, got %d", ix.dim, len(vector))
	}
	stored := append([]float32(nil), vector...)

	ix.mu.Lock()
	if existing, ok := ix.nodes[key]; ok {
		// Re-insertion: drop old edges, reinsert fresh (simplest
		// correct behavior; avoids stale neighbor lists pointing at a
		// node whose vector moved).
		ix.removeEdgesLocked(existing)
		delete(ix.nodes, key)
		if ix.entryPoint == key {
			// Re-enter through the remaining node with the highest layer,
			// so the new node is not searched and linked from itself.
			ix.entryPoint, ix.topLayer = "", -1
			for k, other := range ix.nodes {
				top := len(other.layers) - 1
				if top > ix.topLayer || (top == ix.topLayer && k < ix.entryPoint) {
					ix.entryPoint, ix.topLayer = k, top
				}
			}
		}
	}
	level := ix.randomLevel()
	n := &node{key: key, vector: stored, layers: make([][]string, level+1)}
	ix.nodes[key] = n

	if ix.entryPoint == "" {
		ix.entryPoint = key
		ix.topLayer = level
		ix.mu.Unlock()
		return nil
	}

	entry := ix.entryPoint
	topLayer := ix.topLayer
	ix.mu.Unlock()

	cancel := func() bool { return ctx.Err() != nil }

	current := entry
	for lc := topLayer; lc > level; lc-- {
		if err := ctx.Err(); err != nil {
			return types.NewError(types.KindCancelled, "insert cancelled")
		}
		best := ix.searchLayer(stored, current, lc, 1, cancel)
		if len(best) > 0 {
			current = best[0].key
		}
	}

	for lc := min(level, topLayer); lc >= 0; lc-- {
		if err := ctx.Err(); err != nil {
			return types.NewError(types.KindCancelled, "insert cancelled")
		}
		candidates := ix.searchLayer(stored, current, lc, ix.efConstruction, cancel)
		selected := ix.selectNeighbors(stored, candidates, ix.capForLayer(lc))

		ix.setNeighbors(key, lc, selected)
		for _, nb := range selected {
			ix.connect(nb.key, key, lc)
		}
		if len(candidates) > 0 {
			current = candidates[0].key
		}
	}

	if level > topLayer {
		ix.mu.Lock()
		ix.entryPoint = key
		ix.topLayer = level
		ix.mu.Unlock()
	}

	return nil
}

// removeEdgesLocked strips n's key from every neighbor's adjacency list.
// Caller holds ix.mu.
func (ix *Index) removeEdgesLocked(n *node) {
	for lc, neighbors := range n.layers {
		for _, nb := range neighbors {
			other, ok := ix.nodes[nb]
			if !ok || lc >= len(other.layers) {
				continue
			}
			other.layers[lc] = removeKey(other.layers[lc], n.key)
		}
	}
}

func removeKey(s []string, key string) []string {
	out := s[:0]
	for _, v := range s {
		if v != key {
			out = append(out, v)
		}
	}
	return out
}

// setNeighbors replaces key's neighbor list at layer lc.
func (ix *Index) setNeighbors(key string, lc int, neighbors []candidate) {
	stripe := ix.stripeFor(key)
	stripe.Lock()
	defer stripe.Unlock()

	ix.mu.RLock()
	n := ix.nodes[key]
	ix.mu.RUnlock()
	if n == nil {
		return
	}
	list := make([]string, len(neighbors))
	for i, c := range neighbors {
		list[i] = c.key
	}
	n.layers[lc] = list
}

// connect adds `from` to `to`'s neighbor list at layer lc, pruning back
// to the layer cap with the same diversity heuristic, so every
// connection is stored reciprocally on both sides.
func (ix *Index) connect(to, from string, lc int) {
	stripe := ix.stripeFor(to)
	stripe.Lock()
	defer stripe.Unlock()

	ix.mu.RLock()
	toNode := ix.nodes[to]
	fromNode := ix.nodes[from]
	ix.mu.RUnlock()
	if toNode == nil || fromNode == nil || lc >= len(toNode.layers) {
		return
	}

	for _, existing := range toNode.layers[lc] {
		if existing == from {
			return
		}
	}
	toNode.layers[lc] = append(toNode.layers[lc], from)

	layerCap := ix.capForLayer(lc)
	if len(toNode.layers[lc]) <= layerCap {
		return
	}

	cands := make([]candidate, 0, len(toNode.layers[lc]))
	for _, key := range toNode.layers[lc] {
		other := ix.nodes[key]
		if other == nil {
			continue
		}
		cands = append(cands, candidate{key: key, dist: cosineDistance(toNode.vector, other.vector)})
	}
	pruned := ix.selectNeighbors(toNode.vector, cands, layerCap)
	list := make([]string, len(pruned))
	for i, c := range pruned {
		list[i] = c.key
	}
	toNode.layers[lc] = list
}

// selectNeighbors implements the diversity-preserving pruning heuristic:
// candidates are considered in increasing distance to q; a candidate c
// is kept unless some already-kept neighbor is strictly closer to c
// than c is to q.
func (ix *Index) selectNeighbors(q []float32, candidates []candidate, maxNeighbors int) []candidate {
	sorted := append([]candidate(nil), candidates...)
	sortCandidates(sorted)

	var selected []candidate
	for _, c := range sorted {
		if len(selected) >= maxNeighbors {
			break
		}
		keep := true
		cNode := ix.nodes[c.key]
		if cNode == nil {
			continue
		}
		for _, r := range selected {
			rNode := ix.nodes[r.key]
			if rNode == nil {
				continue
			}
			if cosineDistance(cNode.vector, rNode.vector) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		}
	}
	return selected
}

func sortCandidates(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// searchLayer runs beam search of the given width at one layer,
// returning candidates sorted by ascending distance. cancel, if
// non-nil, is checked periodically so long beam searches can be
// interrupted.
func (ix *Index) searchLayer(q []float32, entry string, layer, ef int, cancel func() bool) []candidate {
	ix.mu.RLock()
	entryNode := ix.nodes[entry]
	ix.mu.RUnlock()
	if entryNode == nil {
		return nil
	}

	sc := ix.scratch.Get()
	defer ix.scratch.Put(sc)
	for k := range sc.visited {
		delete(sc.visited, k)
	}
	sc.toExplore = sc.toExplore[:0]
	sc.results = sc.results[:0]

	visited := sc.visited
	visited[entry] = true
	d0 := cosineDistance(q, entryNode.vector)

	toExplore := &sc.toExplore
	*toExplore = append(*toExplore, candidate{key: entry, dist: d0})
	heap.Init(toExplore)
	results := &sc.results
	*results = append(*results, candidate{key: entry, dist: d0})
	heap.Init(results)

	steps := 0
	for toExplore.Len() > 0 {
		steps++
		if cancel != nil && steps%64 == 0 && cancel() {
			break
		}

		c := heap.Pop(toExplore).(candidate)
		worst := (*results)[0].dist
		if c.dist > worst && results.Len() >= ef {
			break
		}

		ix.mu.RLock()
		cNode := ix.nodes[c.key]
		ix.mu.RUnlock()
		if cNode == nil || layer >= len(cNode.layers) {
			continue
		}

		for _, nbKey := range cNode.layers[layer] {
			if visited[nbKey] {
				continue
			}
			visited[nbKey] = true

			ix.mu.RLock()
			nbNode := ix.nodes[nbKey]
			ix.mu.RUnlock()
			if nbNode == nil {
				continue
			}
			d := cosineDistance(q, nbNode.vector)

			worst = (*results)[0].dist
			if results.Len() < ef || d < worst {
				heap.Push(toExplore, candidate{key: nbKey, dist: d})
				heap.Push(results, candidate{key: nbKey, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// Result is one nearest-neighbor search hit.
type Result struct {
	Key      string
	Distance float64
}

// Search returns the top-k nearest neighbors to query by cosine
// distance, using a beam of width ef at layer 0. An empty index returns
// an empty result, not an error.
func (ix *Index) Search(ctx context.Context, query []float32, k, ef int) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, types.NewError(types.KindDimensionMismatch, "expected dimension %d, got %d", ix.dim, len(query))
	}
	if ef <= 0 {
		ef = ix.efSearch
	}

	ix.mu.RLock()
	entry := ix.entryPoint
	topLayer := ix.topLayer
	ix.mu.RUnlock()
	if entry == "" {
		return nil, nil
	}

	cancel := func() bool { return ctx.Err() != nil }

	current := entry
	for lc := topLayer; lc > 0; lc-- {
		if ctx.Err() != nil {
			return nil, types.NewError(types.KindCancelled, "search cancelled")
		}
		best := ix.searchLayer(query, current, lc, 1, cancel)
		if len(best) > 0 {
			current = best[0].key
		}
	}

	candidates := ix.searchLayer(query, current, 0, ef, cancel)
	if k < len(candidates) {
		candidates = candidates[:k]
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{Key: c.key, Distance: c.dist}
	}
	return out, nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
