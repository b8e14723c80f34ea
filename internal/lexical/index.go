package lexical

import (
	"container/heap"
	"math"
	"sync"

	"github.com/agrama/agrama/internal/pool"
)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// Field weights by inferred document type: code definitions score
// higher than prose for the same term frequency.
var fieldWeights = map[string]float64{
	"function": 3.0,
	"method":   3.0,
	"type":     2.5,
	"struct":   2.5,
	"variable": 2.0,
	"comment":  1.0,
}

const defaultFieldWeight = 1.0

func fieldWeight(docType string) float64 {
	if w, ok := fieldWeights[docType]; ok {
		return w
	}
	return defaultFieldWeight
}

type posting struct {
	termFreq       int
	versionAtIndex int
}

type docEntry struct {
	key         string
	length      int
	fieldWeight float64
	createdAt   int64
	removed     bool
}

// Index is an inverted index over tokenized documents, scored with BM25.
type Index struct {
	mu sync.RWMutex

	// term -> key -> posting
	postings map[string]map[string]*posting
	docs     map[string]*docEntry

	totalLength int64
	activeDocs  int

	// scorePool recycles the per-query accumulation map that postings
	// for a multi-term query intersect into.
	scorePool *pool.ObjectPool[map[string]float64]
}

// NewIndex creates an empty lexical index.
func NewIndex() *Index {
	return &Index{
		postings: make(map[string]map[string]*posting),
		docs:     make(map[string]*docEntry),
		scorePool: pool.NewObjectPool(8, func() *map[string]float64 {
			m := make(map[string]float64)
			return &m
		}),
	}
}

// Index tokenizes text and (re)indexes it under key. docType selects the
// field weight and createdAt feeds the tie-break rule.
func (ix *Index) Index(key, text, docType string, createdAt int64, version int) {
	tokens := Tokenize(text)

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(key)

	entry := &docEntry{key: key, length: len(tokens), fieldWeight: fieldWeight(docType), createdAt: createdAt}
	ix.docs[key] = entry
	ix.totalLength += int64(len(tokens))
	ix.activeDocs++

	for term, freq := range tf {
		m, ok := ix.postings[term]
		if !ok {
			m = make(map[string]*posting)
			ix.postings[term] = m
		}
		m[key] = &posting{termFreq: freq, versionAtIndex: version}
	}
}

// Remove drops key's postings from the index.
func (ix *Index) Remove(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(key)
}

func (ix *Index) removeLocked(key string) {
	entry, ok := ix.docs[key]
	if !ok || entry.removed {
		return
	}
	entry.removed = true
	ix.totalLength -= int64(entry.length)
	ix.activeDocs--
	for term, m := range ix.postings {
		if _, ok := m[key]; ok {
			delete(m, key)
			if len(m) == 0 {
				delete(ix.postings, term)
			}
		}
	}
	delete(ix.docs, key)
}

// Compact is a no-op: Remove already deletes postings eagerly under the
// write lock, since the lock is cheap to hold for the whole index
// mutation. It exists for callers that batch removals and defer
// compaction explicitly.
func (ix *Index) Compact() {}

// DocFrequency returns the number of active documents containing term.
func (ix *Index) DocFrequency(term string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.postings[term])
}

// Scored is one BM25 search result.
type Scored struct {
	Key       string
	Score     float64
	CreatedAt int64
}

// Search returns the top-k documents for query, ranked by BM25 score,
// using a bounded min-heap so only k candidates are ever retained.
func (ix *Index) Search(query string, k int) []Scored {
	if k <= 0 || query == "" {
		return nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := float64(ix.activeDocs)
	if n == 0 {
		return nil
	}
	avgLen := float64(ix.totalLength) / n

	scoresPtr := ix.scorePool.Get()
	scores := *scoresPtr
	for k := range scores {
		delete(scores, k)
	}
	defer ix.scorePool.Put(scoresPtr)

	for _, term := range terms {
		m, ok := ix.postings[term]
		if !ok {
			continue
		}
		df := float64(len(m))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for key, p := range m {
			doc := ix.docs[key]
			if doc == nil || doc.removed {
				continue
			}
			tf := float64(p.termFreq)
			denom := tf + k1*(1-b+b*(float64(doc.length)/avgLen))
			contribution := idf * (tf * (k1 + 1)) / denom
			scores[key] += contribution * doc.fieldWeight
		}
	}

	h := &scoreHeap{}
	heap.Init(h)
	for key, score := range scores {
		doc := ix.docs[key]
		cand := Scored{Key: key, Score: score, CreatedAt: doc.createdAt}
		if h.Len() < k {
			heap.Push(h, cand)
			continue
		}
		if less((*h)[0], cand) {
			heap.Pop(h)
			heap.Push(h, cand)
		}
	}

	out := make([]Scored, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Scored)
	}
	return out
}

// less defines the heap's ordering: worst candidate first, so the root
// is always the one evicted when a better candidate arrives. "Worst"
// means lower score, then older CreatedAt, then lexicographically later
// key: higher score wins, ties broken by more recent CreatedAt, then
// key ascending.
func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.Key > b.Key
}

type scoreHeap []Scored

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *scoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
