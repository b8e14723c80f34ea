package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agrama/agrama/internal/config"
)

func TestReconcileMetaWritesOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	cfg := &config.Config{LogPath: logPath}

	require.NoError(t, reconcileMeta(cfg))
	require.Equal(t, 768, cfg.EmbeddingDimensions)
	require.Equal(t, config.DefaultHNSWSeed, cfg.HNSWSeed)

	data, err := os.ReadFile(metaPath(logPath))
	require.NoError(t, err)
	require.Contains(t, string(data), "768")
}

func TestReconcileMetaAdoptsExistingValues(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(metaPath(logPath), []byte(`{"embedding_dimensions":256,"hnsw_seed":9}`), 0o644))

	cfg := &config.Config{LogPath: logPath}
	require.NoError(t, reconcileMeta(cfg))
	require.Equal(t, 256, cfg.EmbeddingDimensions)
	require.Equal(t, int64(9), cfg.HNSWSeed)
}

func TestReconcileMetaRejectsFlagMismatch(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(metaPath(logPath), []byte(`{"embedding_dimensions":256,"hnsw_seed":9}`), 0o644))

	cfg := &config.Config{LogPath: logPath, EmbeddingDimensions: 768}
	require.Error(t, reconcileMeta(cfg))
}

func TestReconcileMetaInMemoryStoreUsesDefaults(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, reconcileMeta(cfg))
	require.Equal(t, 768, cfg.EmbeddingDimensions)
	require.Equal(t, config.DefaultHNSWSeed, cfg.HNSWSeed)
}
