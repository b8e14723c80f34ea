package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agrama/agrama/internal/config"
	"github.com/agrama/agrama/internal/types"
)

// metaFile is the persisted record of the embedding dimension and HNSW
// seed a log directory was built with. It is read on startup; a
// mismatch against explicitly configured flags is fatal, since an index
// rebuilt with different parameters would silently diverge from the
// recorded one.
type metaFile struct {
	EmbeddingDimensions int   `json:"embedding_dimensions"`
	HNSWSeed            int64 `json:"hnsw_seed"`
}

func metaPath(logPath string) string {
	return filepath.Join(filepath.Dir(logPath), "meta")
}

// reconcileMeta reads the meta file sitting next to cfg.LogPath, if any.
// When it exists, its values win over zero-value (unset) config fields
// and a fatal error is returned on a genuine mismatch against explicitly
// configured values. When it doesn't exist, it is written from the
// resolved config so future restarts recover the same parameters.
func reconcileMeta(cfg *config.Config) error {
	if cfg.LogPath == "" {
		if cfg.EmbeddingDimensions <= 0 {
			cfg.EmbeddingDimensions = types.DefaultEmbeddingDimension
		}
		if cfg.HNSWSeed == 0 {
			cfg.HNSWSeed = config.DefaultHNSWSeed
		}
		return nil
	}

	path := metaPath(cfg.LogPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if cfg.EmbeddingDimensions <= 0 {
			cfg.EmbeddingDimensions = types.DefaultEmbeddingDimension
		}
		if cfg.HNSWSeed == 0 {
			cfg.HNSWSeed = config.DefaultHNSWSeed
		}
		return writeMeta(path, cfg)
	}

	var mf metaFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.EmbeddingDimensions > 0 && cfg.EmbeddingDimensions != mf.EmbeddingDimensions {
		return fmt.Errorf("embedding-dimensions flag %d does not match recorded meta %d at %s",
			cfg.EmbeddingDimensions, mf.EmbeddingDimensions, path)
	}
	if cfg.HNSWSeed != 0 && cfg.HNSWSeed != mf.HNSWSeed {
		return fmt.Errorf("hnsw-seed flag %d does not match recorded meta %d at %s",
			cfg.HNSWSeed, mf.HNSWSeed, path)
	}

	cfg.EmbeddingDimensions = mf.EmbeddingDimensions
	cfg.HNSWSeed = mf.HNSWSeed
	return nil
}

func writeMeta(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(metaFile{
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		HNSWSeed:            cfg.HNSWSeed,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
