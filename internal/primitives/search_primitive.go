package primitives

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/agrama/agrama/internal/graph"
	"github.com/agrama/agrama/internal/hybrid"
	"github.com/agrama/agrama/internal/types"
)

var searchSchema = map[string]any{
	"type":     "object",
	"required": []string{"mode"},
	"properties": map[string]any{
		"query":           map[string]any{"type": "string"},
		"query_embedding": map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
		"mode":            map[string]any{"type": "string", "enum": []string{"lexical", "semantic", "graph", "hybrid"}},
		"options": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"k":         map[string]any{"type": "integer"},
				"alpha":     map[string]any{"type": "number"},
				"beta":      map[string]any{"type": "number"},
				"gamma":     map[string]any{"type": "number"},
				"seeds":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"threshold": map[string]any{"type": "number"},
				"direction": map[string]any{"type": "string", "enum": []string{"forward", "reverse", "bidirectional"}},
			},
		},
	},
}

var searchModes = map[string]bool{"lexical": true, "semantic": true, "graph": true, "hybrid": true}

func validateSearch(args map[string]any) error {
	mode, ok := stringArg(args, "mode")
	if !ok || !searchModes[mode] {
		return types.NewFieldError(types.KindInvalidInput, "mode", "must be one of lexical, semantic, graph, hybrid")
	}
	if v, present := args["query"]; present {
		if _, ok := v.(string); !ok {
			return types.NewFieldError(types.KindInvalidInput, "query", "must be a string")
		}
	}
	var embedding []any
	if v, present := args["query_embedding"]; present && v != nil {
		arr, ok := v.([]any)
		if !ok {
			return types.NewFieldError(types.KindInvalidInput, "query_embedding", "must be an array of numbers")
		}
		embedding = arr
	}
	if mode == "semantic" && embedding == nil {
		return types.NewFieldError(types.KindInvalidInput, "query_embedding", "required for semantic mode")
	}
	if options, present := args["options"]; present && options != nil {
		opts, ok := options.(map[string]any)
		if !ok {
			return types.NewFieldError(types.KindInvalidInput, "options", "must be an object")
		}
		if mode == "graph" {
			seeds, ok := opts["seeds"].([]any)
			if !ok || len(seeds) == 0 {
				return types.NewFieldError(types.KindInvalidInput, "options.seeds", "required and non-empty for graph mode")
			}
		}
	} else if mode == "graph" {
		return types.NewFieldError(types.KindInvalidInput, "options.seeds", "required and non-empty for graph mode")
	}
	return nil
}

func (e *Engine) registerSearch() {
	e.register(descriptor{
		name:        "search",
		description: "Retrieve keys by lexical, semantic, graph-proximity, or hybrid scoring.",
		schema:      searchSchema,
		validate:    validateSearch,
		execute:     e.executeSearch,
	})
}

type searchHit struct {
	Key             string                  `json:"key"`
	Score           float64                 `json:"score"`
	ComponentScores *hybrid.ComponentScores `json:"component_scores,omitempty"`
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseDirection(s string) graph.Direction {
	switch s {
	case "reverse":
		return graph.Reverse
	case "bidirectional":
		return graph.Bidirectional
	default:
		return graph.Forward
	}
}

func (e *Engine) executeSearch(cc *CallContext, args map[string]any) (any, error) {
	mode, _ := stringArg(args, "mode")
	query, _ := stringArg(args, "query")
	embedding, hasEmbedding, err := embeddingArg(args, "query_embedding")
	if err != nil {
		return nil, err
	}
	if hasEmbedding && e.dim > 0 && len(embedding) != e.dim {
		return nil, types.NewFieldError(types.KindDimensionMismatch, "query_embedding", "expected dimension %d, got %d", e.dim, len(embedding))
	}

	options := mapArg(args, "options")
	k := intArg(options, "k", 10)
	threshold := floatArg(options, "threshold", 0)
	_, hasThreshold := options["threshold"]

	cacheKey := ""
	if raw, err := json.Marshal(args); err == nil {
		buf := cc.Arena.Buffer(len(mode) + 1 + len(raw))
		buf = append(buf, mode...)
		buf = append(buf, '|')
		buf = append(buf, raw...)
		cacheKey = string(buf)
	}
	if cacheKey != "" {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	var hits []searchHit

	switch mode {
	case "lexical":
		if query == "" {
			hits = nil
			break
		}
		results := e.lexical.Search(query, k)
		hits = make([]searchHit, len(results))
		for i, r := range results {
			hits[i] = searchHit{Key: r.Key, Score: r.Score}
		}
	case "semantic":
		ef := intArg(options, "ef", max(50, 4*k))
		results, err := e.vector.Search(cc.Ctx, embedding, k, ef)
		if err != nil {
			return nil, err
		}
		hits = make([]searchHit, len(results))
		for i, r := range results {
			hits[i] = searchHit{Key: r.Key, Score: 1 - r.Distance}
		}
	case "graph":
		seeds := stringSlice(options["seeds"])
		dirStr, _ := stringArg(options, "direction")
		dir := parseDirection(dirStr)
		maxHops := intArg(options, "max_hops", 3)
		maxFrontier := intArg(options, "max_frontier", 1024)
		dist, err := e.graph.ShortestPaths(cc.Ctx, seeds, dir, maxHops, maxFrontier)
		if err != nil {
			return nil, err
		}
		hits = make([]searchHit, 0, len(dist))
		for key, d := range dist {
			hits = append(hits, searchHit{Key: key, Score: math.Exp(-d)})
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].Key < hits[j].Key
		})
		if len(hits) > k {
			hits = hits[:k]
		}
	case "hybrid":
		seeds := stringSlice(options["seeds"])
		alpha := floatArg(options, "alpha", 1.0/3)
		beta := floatArg(options, "beta", 1.0/3)
		gamma := floatArg(options, "gamma", 1.0/3)
		if err := hybrid.ValidateCoefficients(alpha, beta, gamma); err != nil {
			return nil, err
		}
		q := hybrid.Query{
			Text: query, Embedding: embedding, Seeds: seeds,
			Alpha: alpha, Beta: beta, Gamma: gamma, K: k,
			Threshold: threshold, HasThreshold: hasThreshold,
		}
		results, err := e.hybrid.Search(cc.Ctx, q)
		if err != nil {
			return nil, err
		}
		hits = make([]searchHit, len(results))
		for i, r := range results {
			scores := r.Scores
			hits[i] = searchHit{Key: r.Key, Score: r.Score, ComponentScores: &scores}
		}
	}

	if hasThreshold && mode != "hybrid" {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= threshold {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	result := map[string]any{"results": hits}
	if cacheKey != "" {
		e.cache.Put(cacheKey, result)
	}
	return result, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
