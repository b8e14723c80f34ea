package vector

// candidate pairs a node key with its distance to the query during beam
// search.
type candidate struct {
	key  string
	dist float64
}

// closeHeap is a min-heap ordered by distance ascending — used as the
// beam search's exploration frontier (closest unvisited candidate next).
type closeHeap []candidate

func (h closeHeap) Len() int           { return len(h) }
func (h closeHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h closeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *closeHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *closeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// farHeap is a max-heap ordered by distance descending — used to hold
// the current best ef results, with the worst of them always at the
// root so it can be evicted cheaply when a closer candidate is found.
type farHeap []candidate

func (h farHeap) Len() int           { return len(h) }
func (h farHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h farHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *farHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
