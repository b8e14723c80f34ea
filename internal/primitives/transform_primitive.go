package primitives

import (
	"time"

	"github.com/agrama/agrama/internal/transform"
	"github.com/agrama/agrama/internal/types"
)

var transformSchema = map[string]any{
	"type":     "object",
	"required": []string{"operation"},
	"properties": map[string]any{
		"operation":  map[string]any{"type": "string"},
		"input":      map[string]any{},
		"parameters": map[string]any{"type": "object"},
	},
}

func validateTransform(args map[string]any) error {
	op, ok := stringArg(args, "operation")
	if !ok || op == "" {
		return types.NewFieldError(types.KindInvalidInput, "operation", "must be a non-empty string")
	}
	if v, present := args["parameters"]; present && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return types.NewFieldError(types.KindInvalidInput, "parameters", "must be an object")
		}
	}
	return nil
}

func (e *Engine) registerTransform() {
	e.register(descriptor{
		name:        "transform",
		description: "Run a registered deterministic operation over input data.",
		schema:      transformSchema,
		validate:    validateTransform,
		execute:     e.executeTransform,
	})
}

func (e *Engine) executeTransform(cc *CallContext, args map[string]any) (any, error) {
	op, _ := stringArg(args, "operation")
	input := args["input"]
	parameters := mapArg(args, "parameters")

	start := time.Now()
	output, err := e.transforms.Run(op, input, parameters)
	elapsed := time.Since(start).Nanoseconds()
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"operation":  op,
		"output":     output,
		"elapsed_ns": elapsed,
	}, nil
}

// mergeItems implements the merge_items built-in: fetches each named
// key's current value out of the store and combines them by the
// requested strategy.
func (e *Engine) mergeItems(input any, parameters map[string]any) (any, error) {
	rawKeys, ok := input.([]any)
	if !ok {
		return nil, types.NewError(types.KindInvalidInput, "merge_items input must be an array of keys")
	}
	strategyStr, _ := parameters["strategy"].(string)
	if strategyStr == "" {
		return nil, types.NewFieldError(types.KindInvalidInput, "parameters.strategy", "required")
	}

	items := make([]transform.MergeItem, 0, len(rawKeys))
	for _, rk := range rawKeys {
		key, ok := rk.(string)
		if !ok {
			return nil, types.NewError(types.KindInvalidInput, "merge_items input entries must be strings")
		}
		item, err := e.store.Get(key)
		if err != nil {
			return nil, types.NewError(types.KindOperationFailed, "merge_items: %v", err)
		}
		items = append(items, transform.MergeItem{
			Key: key, Value: string(item.Value), CreatedAt: item.CreatedAt,
		})
	}

	return transform.MergeValues(items, transform.MergeStrategy(strategyStr))
}
