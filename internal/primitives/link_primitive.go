package primitives

import (
	"time"

	"github.com/agrama/agrama/internal/types"
)

var linkSchema = map[string]any{
	"type":     "object",
	"required": []string{"source", "target", "relation"},
	"properties": map[string]any{
		"source":   map[string]any{"type": "string"},
		"target":   map[string]any{"type": "string"},
		"relation": map[string]any{"type": "string"},
		"weight":   map[string]any{"type": "number"},
		"metadata": map[string]any{"type": "object"},
	},
}

func validateLink(args map[string]any) error {
	for _, field := range []string{"source", "target", "relation"} {
		v, ok := stringArg(args, field)
		if !ok || v == "" {
			return types.NewFieldError(types.KindInvalidInput, field, "must be a non-empty string")
		}
	}
	if v, present := args["weight"]; present {
		if _, ok := v.(float64); !ok {
			return types.NewFieldError(types.KindInvalidInput, "weight", "must be a number")
		}
	}
	if v, present := args["metadata"]; present && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return types.NewFieldError(types.KindInvalidInput, "metadata", "must be an object")
		}
	}
	return nil
}

func (e *Engine) registerLink() {
	e.register(descriptor{
		name:        "link",
		description: "Upsert a directed, typed edge between two existing keys.",
		schema:      linkSchema,
		validate:    validateLink,
		execute:     e.executeLink,
	})
}

func (e *Engine) executeLink(cc *CallContext, args map[string]any) (any, error) {
	source, _ := stringArg(args, "source")
	target, _ := stringArg(args, "target")
	relation, _ := stringArg(args, "relation")
	weight := floatArg(args, "weight", 1.0)
	metadata := mapArg(args, "metadata")

	if !e.store.Exists(source) {
		return nil, types.NewFieldError(types.KindUnknownKey, "source", "key %q not found", source)
	}
	if !e.store.Exists(target) {
		return nil, types.NewFieldError(types.KindUnknownKey, "target", "key %q not found", target)
	}

	createdAt := time.Now().UnixNano()
	e.graph.Link(source, target, relation, weight, metadata, createdAt)
	e.cache.Invalidate()

	return map[string]any{
		"source":     source,
		"target":     target,
		"relation":   relation,
		"created_at": createdAt,
	}, nil
}
