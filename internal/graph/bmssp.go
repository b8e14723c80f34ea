package graph

import (
	"container/heap"
	"context"

	"github.com/agrama/agrama/internal/types"
)

// pqItem is one entry in the BMSSP frontier priority queue.
type pqItem struct {
	key  string
	dist float64
	hops int
}

// frontierQueue is a min-heap ordered by distance, tie-broken by the
// smaller target key so traversal order is deterministic.
type frontierQueue []pqItem

func (q frontierQueue) Len() int { return len(q) }
func (q frontierQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].key < q[j].key
}
func (q frontierQueue) Swap(i, j int)     { q[i], q[j] = q[j], q[i] }
func (q *frontierQueue) Push(x any)       { *q = append(*q, x.(pqItem)) }
func (q *frontierQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ShortestPaths runs bounded multi-source Dijkstra relaxation from
// sources, bounded by max_hops (edges from any source) and max_frontier
// (distinct keys ever pushed onto the queue), returning the best-known
// distance to every reached key.
//
// Returns UnknownKey if any source was never registered or linked.
// Stops early, returning distances found so far, once max_frontier keys
// have entered the queue or the context is cancelled.
func (g *Graph) ShortestPaths(ctx context.Context, sources []string, dir Direction, maxHops, maxFrontier int) (map[string]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, s := range sources {
		if !g.known[s] {
			return nil, types.NewError(types.KindUnknownKey, "unknown key %q", s)
		}
	}

	dist := make(map[string]float64)
	popped := make(map[string]bool)
	seen := make(map[string]bool)

	pq := &frontierQueue{}
	heap.Init(pq)
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		dist[s] = 0
		heap.Push(pq, pqItem{key: s, dist: 0, hops: 0})
		if len(seen) >= maxFrontier {
			break
		}
	}

	steps := 0
	for pq.Len() > 0 {
		steps++
		if steps%64 == 0 && ctx.Err() != nil {
			break
		}

		item := heap.Pop(pq).(pqItem)
		if popped[item.key] {
			continue
		}
		popped[item.key] = true

		if item.hops >= maxHops {
			continue
		}

		for _, e := range g.adjacency(item.key, dir) {
			if popped[e.target] {
				continue
			}
			nd := item.dist + e.weight
			if cur, ok := dist[e.target]; !ok || nd < cur {
				if !seen[e.target] {
					if len(seen) >= maxFrontier {
						continue
					}
					seen[e.target] = true
				}
				dist[e.target] = nd
				heap.Push(pq, pqItem{key: e.target, dist: nd, hops: item.hops + 1})
			}
		}

		if len(seen) >= maxFrontier {
			// Frontier cap reached: stop and return the best-known
			// distances found so far.
			break
		}
	}

	return dist, nil
}
