package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	require.Equal(t, "", cfg.LogPath)
	require.Equal(t, 0, cfg.EmbeddingDimensions)
	require.Equal(t, DefaultMaxConcurrency, cfg.MaxConcurrency)
	require.Equal(t, int64(0), cfg.HNSWSeed)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-path", "", "")
	flags.Int("embedding-dimensions", 0, "")
	flags.Int("max-concurrency", 0, "")
	flags.Int64("hnsw-seed", 0, "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{
		"--log-path=/tmp/x/log",
		"--embedding-dimensions=256",
		"--max-concurrency=8",
		"--hnsw-seed=7",
		"--log-level=debug",
	}))

	cfg, err := Load(flags, "")
	require.NoError(t, err)
	require.Equal(t, "/tmp/x/log", cfg.LogPath)
	require.Equal(t, 256, cfg.EmbeddingDimensions)
	require.Equal(t, 8, cfg.MaxConcurrency)
	require.Equal(t, int64(7), cfg.HNSWSeed)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadTOMLOverridesDefaultButNotFlags(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "agrama.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
log_path = "/var/agrama/log"
embedding_dimensions = 512
max_concurrency = 16
hnsw_seed = 42
`), 0o644))

	cfg, err := Load(nil, tomlPath)
	require.NoError(t, err)
	require.Equal(t, "/var/agrama/log", cfg.LogPath)
	require.Equal(t, 512, cfg.EmbeddingDimensions)
	require.Equal(t, 16, cfg.MaxConcurrency)
	require.Equal(t, int64(42), cfg.HNSWSeed)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("embedding-dimensions", 0, "")
	require.NoError(t, flags.Parse([]string{"--embedding-dimensions=999"}))
	cfg2, err := Load(flags, tomlPath)
	require.NoError(t, err)
	require.Equal(t, 999, cfg2.EmbeddingDimensions)
	require.Equal(t, "/var/agrama/log", cfg2.LogPath)
}

func TestLoadMissingTOMLIsNotAnError(t *testing.T) {
	cfg, err := Load(nil, filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{EmbeddingDimensions: 0, LogLevel: "info"}
	require.Error(t, cfg.Validate())

	cfg = &Config{EmbeddingDimensions: 768, LogLevel: "verbose"}
	require.Error(t, cfg.Validate())

	cfg = &Config{EmbeddingDimensions: 768, LogLevel: "warn"}
	require.NoError(t, cfg.Validate())
}
