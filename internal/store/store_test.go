package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	version, err := s.Put("a", []byte("hello"), map[string]any{"type": "note"}, "agent-1", "session-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	item, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), item.Value)
	assert.Equal(t, "note", item.Metadata["type"])
	assert.Equal(t, 1, item.Version)
}

func TestVersioningAndHistory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	for _, v := range []string{"1", "2", "3"} {
		_, err := s.Put("x", []byte(v), nil, "agent-1", "session-1", nil)
		require.NoError(t, err)
	}

	item, err := s.Get("x")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), item.Value)
	assert.Equal(t, 3, item.Version)

	hist := s.History("x", 2, 0)
	require.Len(t, hist, 2)
	assert.Equal(t, []byte("3"), hist[0].Value)
	assert.Equal(t, []byte("2"), hist[1].Value)

	// History must be contiguous in version and monotonic in CreatedAt.
	assert.Greater(t, hist[0].CreatedAt, hist[1].CreatedAt)
	assert.Equal(t, hist[0].Version-1, hist[1].Version)
}

func TestGetAtVersionAndTimestamp(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	_, err = s.Put("k", []byte("v1"), nil, "a", "s", nil)
	require.NoError(t, err)
	first, err := s.Get("k")
	require.NoError(t, err)

	_, err = s.Put("k", []byte("v2"), nil, "a", "s", nil)
	require.NoError(t, err)

	at1, err := s.GetAtVersion("k", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), at1.Value)

	atTS, err := s.GetAtTimestamp("k", first.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), atTS.Value)

	_, err = s.GetAtVersion("k", 99)
	assert.Error(t, err)
}

func TestNotFound(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	_, err = s.Get("missing")
	assert.Error(t, err)
}

func TestSizeExceeded(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	big := make([]byte, 17*1024*1024)
	_, err = s.Put("k", big, nil, "a", "s", nil)
	assert.Error(t, err)

	// A rejected put must leave no trace: the key must not exist afterward.
	assert.False(t, s.Exists("k"))
}

func TestSnapshotIsolation(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	_, err = s.Put("k", []byte("v1"), nil, "a", "s", nil)
	require.NoError(t, err)

	snap := s.Snapshot()

	_, err = s.Put("k", []byte("v2"), nil, "a", "s", nil)
	require.NoError(t, err)

	viaSnap, err := s.GetSnapshot("k", snap)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), viaSnap.Value)

	current, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), current.Value)
}

func TestRecoveryAfterRestart(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")

	s1, err := Open(logPath)
	require.NoError(t, err)
	for _, v := range []string{"1", "2", "3"} {
		_, err := s1.Put("x", []byte(v), nil, "a", "s", nil)
		require.NoError(t, err)
	}
	require.NoError(t, s1.Close())

	s2, err := Open(logPath)
	require.NoError(t, err)

	item, err := s2.Get("x")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), item.Value)
	assert.Equal(t, 3, item.Version)

	hist := s2.History("x", 3, 0)
	require.Len(t, hist, 3)
	assert.Equal(t, []byte("3"), hist[0].Value)
	assert.Equal(t, []byte("2"), hist[1].Value)
	assert.Equal(t, []byte("1"), hist[2].Value)
}
