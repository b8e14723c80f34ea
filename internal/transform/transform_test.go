package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrama/agrama/internal/types"
)

func TestParseFunctionsAcrossLanguages(t *testing.T) {
	src := "func Foo(a int) int {\n\treturn a\n}\n\ndef bar(x):\n    return x\n\nfunction baz() {}\n"
	out, err := parseFunctions(src, nil)
	require.NoError(t, err)
	spans := out.([]FunctionSpan)

	names := make(map[string]string)
	for _, s := range spans {
		names[s.Name] = s.Language
	}
	assert.Equal(t, "go", names["Foo"])
	assert.Equal(t, "python", names["bar"])
	assert.Equal(t, "javascript", names["baz"])
}

func TestExtractImports(t *testing.T) {
	src := "import \"fmt\"\nimport \"os\"\n\nfunc main() {}\n"
	out, err := extractImports(src, nil)
	require.NoError(t, err)
	refs := out.([]string)
	assert.Len(t, refs, 2)
}

func TestGenerateSummaryTruncatesToFirstParagraph(t *testing.T) {
	src := "First paragraph text here.\n\nSecond paragraph should not appear."
	out, err := generateSummary(src, nil)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph text here.", out)
}

func TestGenerateSummaryRespectsMaxChars(t *testing.T) {
	out, err := generateSummary("abcdefghij", map[string]any{"max_chars": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, "abcd", out)
}

func TestCompressTextCollapsesWhitespace(t *testing.T) {
	out, err := compressText("  hello   world  \n\tfoo ", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world foo", out)
}

func TestMergeValuesStrategies(t *testing.T) {
	items := []MergeItem{
		{Key: "a", Value: "line1\nline2", CreatedAt: 100},
		{Key: "b", Value: "line2\nline3", CreatedAt: 200},
	}

	concat, err := MergeValues(items, MergeConcatenate)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline2\nline3", concat)

	union, err := MergeValues(items, MergeUnion)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3", union)

	latest, err := MergeValues(items, MergeLatestWins)
	require.NoError(t, err)
	assert.Equal(t, "line2\nline3", latest)

	_, err = MergeValues(items, "bogus")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInvalidInput))
}

func TestRegistryUnknownOperation(t *testing.T) {
	r := NewRegistry()
	_, err := r.Run("does_not_exist", "x", nil)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindUnknownOperation))
}

func TestRegistryInvalidInputPropagates(t *testing.T) {
	r := NewRegistry()
	_, err := r.Run("compress_text", 42, nil)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInvalidInput))
}

func TestDiffSummaryCountsAddedAndRemoved(t *testing.T) {
	out, err := diffSummary(nil, map[string]any{
		"before": "a\nb\nc",
		"after":  "a\nc\nd",
	})
	require.NoError(t, err)
	assert.Equal(t, "+1 -1", out)
}
