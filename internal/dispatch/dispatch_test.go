package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agrama/agrama/internal/graph"
	"github.com/agrama/agrama/internal/hybrid"
	"github.com/agrama/agrama/internal/lexical"
	"github.com/agrama/agrama/internal/primitives"
	"github.com/agrama/agrama/internal/store"
	"github.com/agrama/agrama/internal/vector"
)

func newTestEngine(t *testing.T) *primitives.Engine {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)

	lex := lexical.NewIndex()
	vec := vector.NewIndex(4, 1)
	g := graph.NewGraph()
	hy := hybrid.NewEngine(lex, vec, g, func(key string) (int64, bool) {
		it, err := st.Get(key)
		if err != nil {
			return 0, false
		}
		return it.CreatedAt, true
	})

	return primitives.NewEngine(primitives.Config{
		Store: st, Lexical: lex, Vector: vec, Graph: g, Hybrid: hy,
		CacheSize: 64, PoolSize: 16, Dim: 4,
	})
}

func readLines(r *bufio.Reader, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		line, err := r.ReadString('\n')
		if line == "" && err != nil {
			break
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestDispatcherInitializeAndCall(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t)})

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"tester","version":"1.0"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"primitives/call","params":{"name":"store","arguments":{"key":"a","value":"hello world"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"primitives/call","params":{"name":"retrieve","arguments":{"key":"a"}}}`,
		``,
	}, "\n")

	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)

	lines := readLines(bufio.NewReader(&out), 3)
	require.Len(t, lines, 3)

	require.Equal(t, float64(1), lines[0]["id"])
	require.Nil(t, lines[0]["error"])

	require.Equal(t, float64(2), lines[1]["id"])
	require.Nil(t, lines[1]["error"])

	require.Equal(t, float64(3), lines[2]["id"])
	require.Nil(t, lines[2]["error"])
	result := lines[2]["result"].(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	item := content[0].(map[string]any)
	require.Equal(t, "hello world", item["value"])
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t)})

	in := `{"jsonrpc":"2.0","id":1,"method":"nonexistent"}` + "\n"
	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)

	lines := readLines(bufio.NewReader(&out), 1)
	require.Len(t, lines, 1)
	errObj := lines[0]["error"].(map[string]any)
	require.Equal(t, float64(-32601), errObj["code"])
}

func TestDispatcherInvalidInputMapsToError(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t)})

	in := `{"jsonrpc":"2.0","id":1,"method":"primitives/call","params":{"name":"store","arguments":{}}}` + "\n"
	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)

	lines := readLines(bufio.NewReader(&out), 1)
	require.Len(t, lines, 1)
	errObj := lines[0]["error"].(map[string]any)
	require.Equal(t, float64(-32602), errObj["code"])
}

func TestDispatcherNotificationProducesNoResponse(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t)})

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","method":"initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"primitives/list"}`,
		``,
	}, "\n")
	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)

	lines := readLines(bufio.NewReader(&out), 2)
	require.Len(t, lines, 1)
	require.Equal(t, float64(1), lines[0]["id"])
}

func TestDispatcherOversizedLineRejectedConnectionContinues(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t)})

	huge := strings.Repeat("x", maxLineBytes+1)
	in := huge + "\n" + `{"jsonrpc":"2.0","id":1,"method":"primitives/list"}` + "\n"

	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)

	lines := readLines(bufio.NewReader(&out), 2)
	require.Len(t, lines, 2)
	errObj := lines[0]["error"].(map[string]any)
	require.Equal(t, float64(-32600), errObj["code"])
	require.Equal(t, float64(1), lines[1]["id"])
}

func TestDispatcherLegacyToolAlias(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t)})

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"write_code","arguments":{"key":"a","value":"v1"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"read_code","arguments":{"key":"a"}}}`,
		``,
	}, "\n")
	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)

	lines := readLines(bufio.NewReader(&out), 2)
	require.Len(t, lines, 2)
	require.Nil(t, lines[1]["error"])
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	d := New(Config{Engine: newTestEngine(t), MaxQueue: 1, MaxConcurrency: 1})
	d.callTimeout = 200 * time.Millisecond

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"primitives/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"primitives/list"}`,
		``,
	}, "\n")
	var out bytes.Buffer
	code := d.Serve(context.Background(), strings.NewReader(in), &out)
	require.Equal(t, 0, code)
	_ = out
}
