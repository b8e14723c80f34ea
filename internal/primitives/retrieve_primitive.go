package primitives

import (
	"time"

	"github.com/agrama/agrama/internal/types"
)

var retrieveSchema = map[string]any{
	"type":     "object",
	"required": []string{"key"},
	"properties": map[string]any{
		"key":             map[string]any{"type": "string"},
		"include_history": map[string]any{"type": "boolean"},
		"history_limit":   map[string]any{"type": "integer"},
		"at_version":      map[string]any{"type": "integer"},
		"since":           map[string]any{"description": "nanosecond timestamp or human-relative phrase, lower bound for include_history"},
	},
}

func validateRetrieve(args map[string]any) error {
	key, ok := stringArg(args, "key")
	if !ok || key == "" {
		return types.NewFieldError(types.KindInvalidInput, "key", "must be a non-empty string")
	}
	if v, present := args["include_history"]; present {
		if _, ok := v.(bool); !ok {
			return types.NewFieldError(types.KindInvalidInput, "include_history", "must be a boolean")
		}
	}
	if v, present := args["history_limit"]; present {
		if _, ok := v.(float64); !ok {
			return types.NewFieldError(types.KindInvalidInput, "history_limit", "must be an integer")
		}
	}
	if v, present := args["at_version"]; present {
		if _, ok := v.(float64); !ok {
			return types.NewFieldError(types.KindInvalidInput, "at_version", "must be an integer")
		}
	}
	return nil
}

func (e *Engine) registerRetrieve() {
	e.register(descriptor{
		name:        "retrieve",
		description: "Fetch a key's current value, an exact version, or its version history.",
		schema:      retrieveSchema,
		validate:    validateRetrieve,
		execute:     e.executeRetrieve,
	})
}

func itemResult(it *types.Item) map[string]any {
	return map[string]any{
		"value":      string(it.Value),
		"metadata":   it.Metadata,
		"version":    it.Version,
		"created_at": it.CreatedAt,
	}
}

func (e *Engine) executeRetrieve(cc *CallContext, args map[string]any) (any, error) {
	key, _ := stringArg(args, "key")

	// Reads go through the call's snapshot so a concurrent Put does not
	// change what this request observes mid-flight.
	var item *types.Item
	var err error
	if v, ok := args["at_version"]; ok {
		item, err = e.store.GetAtVersion(key, int(v.(float64)))
	} else {
		item, err = e.store.GetSnapshot(key, cc.Snap)
	}
	if err != nil {
		return nil, err
	}

	result := itemResult(item)

	if include, _ := args["include_history"].(bool); include {
		limit := intArg(args, "history_limit", 10)
		var since int64
		if v, ok := args["since"]; ok {
			since, err = e.when.Parse(v, time.Now())
			if err != nil {
				return nil, err
			}
		}
		hist := e.store.History(key, limit, since)
		entries := make([]map[string]any, len(hist))
		for i, h := range hist {
			entries[i] = itemResult(h)
		}
		result["history"] = entries
	}

	return result, nil
}
