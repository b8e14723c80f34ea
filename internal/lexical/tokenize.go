// Package lexical implements Agrama's code-aware BM25 inverted index.
package lexical

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase terms. Input is first split on
// non-alphanumeric boundaries, then each resulting token is further split
// on camelCase transitions and underscores. Tokens of length 1 are
// dropped.
func Tokenize(text string) []string {
	var out []string
	for _, word := range splitNonAlphanumeric(text) {
		for _, piece := range splitIdentifier(word) {
			piece = strings.ToLower(piece)
			if len(piece) <= 1 {
				continue
			}
			out = append(out, piece)
		}
	}
	return out
}

func splitNonAlphanumeric(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitIdentifier splits on underscores (snake_case) and on case
// transitions (camelCase, PascalCase, and an UPPER-to-Title boundary like
// "HTTPServer" -> "HTTP", "Server").
func splitIdentifier(word string) []string {
	var parts []string
	for _, seg := range strings.Split(word, "_") {
		parts = append(parts, splitCamelCase(seg)...)
	}
	return parts
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			// camelCase -> "camel", "Case"
			boundary = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// "HTTPServer" -> "HTTP", "Server"
			boundary = true
		case unicode.IsLetter(prev) != unicode.IsLetter(cur):
			// letter/digit transition, e.g. "foo2bar" -> "foo", "2", "bar"
			boundary = true
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}
