// Package transform implements Agrama's transform operation registry: a
// string-keyed set of deterministic text/data operations invoked by the
// transform primitive.
package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agrama/agrama/internal/types"
)

// Func runs one registered operation against input and parameters,
// returning a JSON-serializable output.
type Func func(input any, parameters map[string]any) (any, error)

// Registry is a string-keyed set of TRANSFORM operations.
type Registry struct {
	ops map[string]Func
}

// NewRegistry builds a registry preloaded with the built-in operations.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]Func)}
	r.Register("parse_functions", parseFunctions)
	r.Register("extract_imports", extractImports)
	r.Register("generate_summary", generateSummary)
	r.Register("compress_text", compressText)
	r.Register("merge_items", mergeItemsUnimplemented)
	r.Register("diff_summary", diffSummary)
	return r
}

// Register adds or replaces a named operation. Callers may register
// additional operations beyond the built-in set.
func (r *Registry) Register(name string, fn Func) {
	r.ops[name] = fn
}

// Names returns the registered operation names, sorted for stable
// listing.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run dispatches to the named operation. Returns UnknownOperation if no
// such operation is registered.
func (r *Registry) Run(name string, input any, parameters map[string]any) (any, error) {
	fn, ok := r.ops[name]
	if !ok {
		return nil, types.NewError(types.KindUnknownOperation, "unknown transform operation %q", name)
	}
	out, err := fn(input, parameters)
	if err != nil {
		if types.IsKind(err, types.KindInvalidInput) || types.IsKind(err, types.KindOperationFailed) {
			return nil, err
		}
		return nil, types.NewError(types.KindOperationFailed, "%s: %v", name, err)
	}
	return out, nil
}

func asString(input any) (string, error) {
	s, ok := input.(string)
	if !ok {
		return "", types.NewError(types.KindInvalidInput, "expected string input")
	}
	return s, nil
}

// FunctionSpan is one parsed function/method declaration.
type FunctionSpan struct {
	Name     string `json:"name"`
	Span     [2]int `json:"span"`
	Language string `json:"language"`
}

var funcKeywords = []struct {
	language string
	keyword  string
}{
	{"go", "func"},
	{"python", "def"},
	{"javascript", "function"},
	{"rust", "fn"},
	{"java", "public"},
}

// parseFunctions extracts function/method declarations from source text
// using keyword-anchored scanning, since the input's source language is
// not declared up front and may vary line by line in mixed snippets.
func parseFunctions(input any, _ map[string]any) (any, error) {
	src, err := asString(input)
	if err != nil {
		return nil, err
	}
	var spans []FunctionSpan
	offset := 0
	for _, line := range strings.Split(src, "\n") {
		lineStart := offset
		offset += len(line) + 1
		trimmed := strings.TrimSpace(line)
		for _, kw := range funcKeywords {
			if name, ok := matchFunctionKeyword(trimmed, kw.keyword); ok {
				start := lineStart + strings.Index(line, trimmed)
				spans = append(spans, FunctionSpan{
					Name:     name,
					Span:     [2]int{start, start + len(trimmed)},
					Language: kw.language,
				})
				break
			}
		}
	}
	return spans, nil
}

func matchFunctionKeyword(line, keyword string) (string, bool) {
	if !strings.HasPrefix(line, keyword+" ") {
		return "", false
	}
	rest := strings.TrimSpace(line[len(keyword):])
	name := rest
	for i, r := range rest {
		if r == '(' || r == ' ' || r == ':' {
			name = rest[:i]
			break
		}
	}
	name = strings.TrimSpace(strings.TrimPrefix(name, "*"))
	if name == "" {
		return "", false
	}
	return name, true
}

var importPrefixes = []string{"import ", "from ", "require(", "require ", "use ", "#include"}

// extractImports returns module/package references parsed from source
// text.
func extractImports(input any, _ map[string]any) (any, error) {
	src, err := asString(input)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range importPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				refs = append(refs, trimmed)
				break
			}
		}
	}
	return refs, nil
}

// generateSummary returns the first paragraph of input text, truncated
// to max_chars characters (default 280).
func generateSummary(input any, parameters map[string]any) (any, error) {
	src, err := asString(input)
	if err != nil {
		return nil, err
	}
	n := 280
	if v, ok := parameters["max_chars"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			n = int(f)
		}
	}
	paragraph := src
	if idx := strings.Index(src, "\n\n"); idx >= 0 {
		paragraph = src[:idx]
	}
	paragraph = strings.TrimSpace(paragraph)
	runes := []rune(paragraph)
	if len(runes) > n {
		paragraph = string(runes[:n])
	}
	return paragraph, nil
}

// compressText returns a whitespace-collapsed version of input text.
func compressText(input any, _ map[string]any) (any, error) {
	src, err := asString(input)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(src)
	return strings.Join(fields, " "), nil
}

// mergeItemsUnimplemented is a placeholder that primitives.Engine
// replaces with a store-backed implementation at construction time,
// since merging requires reading current values out of the store.
func mergeItemsUnimplemented(_ any, _ map[string]any) (any, error) {
	return nil, types.NewError(types.KindOperationFailed, "merge_items not wired to a store")
}

// MergeStrategy names the deterministic combination strategy for
// merge_items.
type MergeStrategy string

const (
	MergeConcatenate MergeStrategy = "concatenate"
	MergeUnion       MergeStrategy = "union"
	MergeLatestWins  MergeStrategy = "latest-wins"
)

// MergeItem is one input to MergeValues: a key's current value and its
// creation timestamp (needed for latest-wins).
type MergeItem struct {
	Key       string
	Value     string
	CreatedAt int64
}

// MergeValues implements the three merge_items strategies over already
// fetched items, decoupled from storage access so it can be unit tested
// without a live store.
func MergeValues(items []MergeItem, strategy MergeStrategy) (string, error) {
	switch strategy {
	case MergeConcatenate:
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = it.Value
		}
		return strings.Join(parts, "\n"), nil
	case MergeUnion:
		seen := make(map[string]bool)
		var out []string
		for _, it := range items {
			for _, line := range strings.Split(it.Value, "\n") {
				if line == "" || seen[line] {
					continue
				}
				seen[line] = true
				out = append(out, line)
			}
		}
		return strings.Join(out, "\n"), nil
	case MergeLatestWins:
		if len(items) == 0 {
			return "", nil
		}
		best := items[0]
		for _, it := range items[1:] {
			if it.CreatedAt > best.CreatedAt {
				best = it
			}
		}
		return best.Value, nil
	default:
		return "", types.NewError(types.KindInvalidInput, "unknown merge strategy %q", strategy)
	}
}

// diffSummary reports a line-level added/removed count between two
// texts supplied as parameters.before and parameters.after — a
// supplemental operation useful for TRANSFORM-class change summaries
// that the built-in set does not otherwise cover.
func diffSummary(_ any, parameters map[string]any) (any, error) {
	before, _ := parameters["before"].(string)
	after, _ := parameters["after"].(string)

	beforeLines := make(map[string]int)
	for _, l := range strings.Split(before, "\n") {
		beforeLines[l]++
	}
	afterLines := make(map[string]int)
	for _, l := range strings.Split(after, "\n") {
		afterLines[l]++
	}

	added, removed := 0, 0
	for l, n := range afterLines {
		if beforeLines[l] < n {
			added += n - beforeLines[l]
		}
	}
	for l, n := range beforeLines {
		if afterLines[l] < n {
			removed += n - afterLines[l]
		}
	}
	return fmt.Sprintf("+%d -%d", added, removed), nil
}
