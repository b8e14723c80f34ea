package primitives

import (
	"strings"
	"time"

	"github.com/agrama/agrama/internal/types"
)

var storeSchema = map[string]any{
	"type":     "object",
	"required": []string{"key", "value"},
	"properties": map[string]any{
		"key":       map[string]any{"type": "string"},
		"value":     map[string]any{"type": "string"},
		"metadata":  map[string]any{"type": "object"},
		"embedding": map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
	},
}

func validateStore(args map[string]any) error {
	key, ok := stringArg(args, "key")
	if !ok || key == "" {
		return types.NewFieldError(types.KindInvalidInput, "key", "must be a non-empty string")
	}
	if _, ok := stringArg(args, "value"); !ok {
		return types.NewFieldError(types.KindInvalidInput, "value", "must be a string")
	}
	if v, present := args["metadata"]; present && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return types.NewFieldError(types.KindInvalidInput, "metadata", "must be an object")
		}
	}
	if v, present := args["embedding"]; present && v != nil {
		if _, ok := v.([]any); !ok {
			return types.NewFieldError(types.KindInvalidInput, "embedding", "must be an array of numbers")
		}
	}
	return nil
}

// inferDocType resolves the BM25 field weight class for a document.
// metadata.type wins when present; otherwise a handful of common key
// suffixes give a reasonable default, falling back to unweighted.
func inferDocType(key string, metadata map[string]any) string {
	if metadata != nil {
		if t, ok := metadata["type"].(string); ok && t != "" {
			return t
		}
	}
	switch {
	case strings.HasSuffix(key, "_test.go"), strings.HasSuffix(key, ".md"), strings.HasSuffix(key, ".txt"):
		return "comment"
	default:
		return ""
	}
}

func (e *Engine) registerStore() {
	e.register(descriptor{
		name:        "store",
		description: "Append a new version of a key-addressed artifact, indexing it for lexical and (optionally) semantic retrieval.",
		schema:      storeSchema,
		validate:    validateStore,
		execute:     e.executeStore,
	})
}

func (e *Engine) executeStore(cc *CallContext, args map[string]any) (any, error) {
	key, _ := stringArg(args, "key")
	value, _ := stringArg(args, "value")
	metadata := mapArg(args, "metadata")

	embedding, hasEmbedding, err := embeddingArg(args, "embedding")
	if err != nil {
		return nil, err
	}
	if hasEmbedding && e.dim > 0 && len(embedding) != e.dim {
		return nil, types.NewFieldError(types.KindDimensionMismatch, "embedding", "expected dimension %d, got %d", e.dim, len(embedding))
	}

	// Arena scratch is safe here: store.Put copies the metadata map before
	// keeping it, so nothing holds this map once the call returns.
	enriched := cc.Arena.Value()
	for k, v := range metadata {
		enriched[k] = v
	}
	enriched["agent_id"] = cc.AgentID
	enriched["session_id"] = cc.SessionID
	enriched["timestamp"] = time.Now().UnixNano()
	enriched["provenance"] = "store"

	var embForStore []float32
	if hasEmbedding {
		embForStore = embedding
	}

	version, err := e.store.Put(key, []byte(value), enriched, cc.AgentID, cc.SessionID, embForStore)
	if err != nil {
		return nil, err
	}

	item, err := e.store.GetAtVersion(key, version)
	if err != nil {
		return nil, err
	}

	docType := inferDocType(key, enriched)
	e.lexical.Index(key, value, docType, item.CreatedAt, version)

	indexedVector := false
	if hasEmbedding {
		if err := e.vector.Insert(cc.Ctx, key, embedding); err != nil {
			return nil, err
		}
		indexedVector = true
	}

	e.graph.Register(key)
	e.cache.Invalidate()

	return map[string]any{
		"key":     key,
		"version": version,
		"indexed": map[string]any{
			"lexical": true,
			"vector":  indexedVector,
		},
	}, nil
}
