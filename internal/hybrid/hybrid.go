// Package hybrid implements Agrama's Hybrid Query Engine: a linear
// combination of lexical, vector, and graph-proximity scores over a
// shared candidate set.
package hybrid

import (
	"context"
	"math"
	"sort"

	"github.com/agrama/agrama/internal/graph"
	"github.com/agrama/agrama/internal/lexical"
	"github.com/agrama/agrama/internal/types"
	"github.com/agrama/agrama/internal/vector"
)

// CreatedAtLookup resolves a candidate key's creation timestamp, used
// only for the final tie-break: most recent created_at wins, then key.
type CreatedAtLookup func(key string) (int64, bool)

// Engine merges the three retrieval components behind one query.
type Engine struct {
	Lexical *lexical.Index
	Vector  *vector.Index
	Graph   *graph.Graph
	Now     CreatedAtLookup
}

// NewEngine wires the three component indexes into a hybrid engine.
func NewEngine(lex *lexical.Index, vec *vector.Index, g *graph.Graph, now CreatedAtLookup) *Engine {
	return &Engine{Lexical: lex, Vector: vec, Graph: g, Now: now}
}

// Query describes one hybrid search request.
type Query struct {
	Text         string
	Embedding    []float32
	Seeds        []string
	Alpha        float64
	Beta         float64
	Gamma        float64
	K            int
	Threshold    float64
	HasThreshold bool
}

// ComponentScores records the per-source contributions behind a hit's
// final score, returned to callers that ask for them.
type ComponentScores struct {
	Lexical float64
	Vector  float64
	Graph   float64
}

// Hit is one ranked hybrid search result.
type Hit struct {
	Key       string
	Score     float64
	Scores    ComponentScores
	CreatedAt int64
}

const graphMaxHops = 3
const graphMaxFrontier = 1024

// Search runs each component the query provides input for, normalizes
// the scores, and returns up to Query.K hits sorted by descending
// combined score.
func (e *Engine) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.K <= 0 {
		q.K = 10
	}
	candidateCap := max(4*q.K, 256)

	lexScores := make(map[string]float64)
	var lexKeys []string
	if q.Text != "" && e.Lexical != nil {
		results := e.Lexical.Search(q.Text, q.K*4)
		maxScore := 0.0
		for _, r := range results {
			if r.Score > maxScore {
				maxScore = r.Score
			}
		}
		for _, r := range results {
			norm := 0.0
			if maxScore > 0 {
				norm = r.Score / maxScore
			}
			lexScores[r.Key] = norm
			lexKeys = append(lexKeys, r.Key)
		}
	}

	vecScores := make(map[string]float64)
	var vecKeys []string
	if len(q.Embedding) > 0 && e.Vector != nil {
		ef := max(50, 4*q.K)
		results, err := e.Vector.Search(ctx, q.Embedding, q.K*4, ef)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			s := 1 - r.Distance
			if s < 0 {
				s = 0
			} else if s > 1 {
				s = 1
			}
			vecScores[r.Key] = s
			vecKeys = append(vecKeys, r.Key)
		}
	}

	graphScores := make(map[string]float64)
	if e.Graph != nil {
		seedSet := make(map[string]bool)
		for _, s := range q.Seeds {
			seedSet[s] = true
		}
		for _, k := range lexKeys {
			seedSet[k] = true
		}
		for _, k := range vecKeys {
			seedSet[k] = true
		}
		var seeds []string
		for k := range seedSet {
			if e.Graph.Known(k) {
				seeds = append(seeds, k)
			}
		}
		if len(seeds) > 0 {
			dist, err := e.Graph.ShortestPaths(ctx, seeds, graph.Bidirectional, graphMaxHops, graphMaxFrontier)
			if err != nil {
				return nil, err
			}
			for k, d := range dist {
				graphScores[k] = math.Exp(-d)
			}
		}
	}

	union := make(map[string]bool)
	for k := range lexScores {
		union[k] = true
	}
	for k := range vecScores {
		union[k] = true
	}
	for k := range graphScores {
		union[k] = true
	}

	if len(union) > candidateCap {
		union = capByBestSingleScore(union, lexScores, vecScores, graphScores, candidateCap)
	}

	hits := make([]Hit, 0, len(union))
	for k := range union {
		sl := lexScores[k]
		sv := vecScores[k]
		sg := graphScores[k]
		score := q.Alpha*sl + q.Beta*sv + q.Gamma*sg
		if q.HasThreshold && score < q.Threshold {
			continue
		}
		createdAt := int64(0)
		if e.Now != nil {
			createdAt, _ = e.Now(k)
		}
		hits = append(hits, Hit{
			Key:       k,
			Score:     score,
			Scores:    ComponentScores{Lexical: sl, Vector: sv, Graph: sg},
			CreatedAt: createdAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].CreatedAt != hits[j].CreatedAt {
			return hits[i].CreatedAt > hits[j].CreatedAt
		}
		return hits[i].Key < hits[j].Key
	})

	if len(hits) > q.K {
		hits = hits[:q.K]
	}
	return hits, nil
}

// capByBestSingleScore retains the candidateCap keys with the highest
// single-source score across the three components.
func capByBestSingleScore(union map[string]bool, lex, vec, g map[string]float64, cap int) map[string]bool {
	type scored struct {
		key   string
		score float64
	}
	all := make([]scored, 0, len(union))
	for k := range union {
		best := lex[k]
		if vec[k] > best {
			best = vec[k]
		}
		if g[k] > best {
			best = g[k]
		}
		all = append(all, scored{key: k, score: best})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > cap {
		all = all[:cap]
	}
	out := make(map[string]bool, len(all))
	for _, s := range all {
		out[s.key] = true
	}
	return out
}

// ValidateCoefficients checks that alpha+beta+gamma equals 1 with each
// coefficient in [0, 1].
func ValidateCoefficients(alpha, beta, gamma float64) error {
	const eps = 1e-6
	for _, c := range []float64{alpha, beta, gamma} {
		if c < 0 || c > 1 {
			return types.NewError(types.KindInvalidInput, "coefficients must each be in [0, 1]")
		}
	}
	if math.Abs(alpha+beta+gamma-1) > eps {
		return types.NewError(types.KindInvalidInput, "coefficients must sum to 1, got %f", alpha+beta+gamma)
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
