// Package config resolves Agrama's startup configuration: CLI flags,
// environment variables, and an optional project-local TOML override
// file, in that order of precedence.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agrama/agrama/internal/types"
)

// Config is the fully resolved set of startup parameters for `agrama serve`.
type Config struct {
	LogPath             string `mapstructure:"log-path"`
	EmbeddingDimensions int    `mapstructure:"embedding-dimensions"`
	MaxConcurrency      int    `mapstructure:"max-concurrency"`
	HNSWSeed            int64  `mapstructure:"hnsw-seed"`
	LogLevel            string `mapstructure:"log-level"`
}

// fileOverrides is the shape of the optional agrama.toml local override
// file. Flags and environment variables always win over it.
type fileOverrides struct {
	LogPath             string `toml:"log_path"`
	EmbeddingDimensions int    `toml:"embedding_dimensions"`
	MaxConcurrency      int    `toml:"max_concurrency"`
	HNSWSeed            int64  `toml:"hnsw_seed"`
}

const (
	DefaultMaxConcurrency       = 0 // 0 means "derive from hardware threads" at startup
	DefaultHNSWSeed       int64 = 1
)

// Load resolves configuration from, in increasing precedence: an optional
// agrama.toml in the working directory, AGRAMA_DB_PATH / AGRAMA_LOG_LEVEL
// environment variables, and explicit command-line flags already bound to
// flags.
func Load(flags *pflag.FlagSet, tomlPath string) (*Config, error) {
	v := viper.New()
	v.SetDefault("log-path", "")
	// embedding-dimensions and hnsw-seed deliberately default to 0
	// ("unset") here rather than to types.DefaultEmbeddingDimension /
	// DefaultHNSWSeed: cmd/agrama's meta reconciliation needs to tell
	// "the user passed a flag" apart from "nothing was configured" so it
	// can apply the persisted meta file's values on restart instead of
	// always treating the compiled-in default as an explicit override.
	v.SetDefault("embedding-dimensions", 0)
	v.SetDefault("max-concurrency", DefaultMaxConcurrency)
	v.SetDefault("hnsw-seed", 0)
	v.SetDefault("log-level", "info")

	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			var fo fileOverrides
			if _, err := toml.DecodeFile(tomlPath, &fo); err != nil {
				return nil, types.NewError(types.KindInvalidInput, "parse %s: %v", tomlPath, err)
			}
			if fo.LogPath != "" {
				v.SetDefault("log-path", fo.LogPath)
			}
			if fo.EmbeddingDimensions > 0 {
				v.SetDefault("embedding-dimensions", fo.EmbeddingDimensions)
			}
			if fo.MaxConcurrency > 0 {
				v.SetDefault("max-concurrency", fo.MaxConcurrency)
			}
			if fo.HNSWSeed != 0 {
				v.SetDefault("hnsw-seed", fo.HNSWSeed)
			}
		}
	}

	v.SetEnvPrefix("AGRAMA")
	_ = v.BindEnv("log-level", "AGRAMA_LOG_LEVEL")
	_ = v.BindEnv("log-path", "AGRAMA_DB_PATH")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		LogPath:             v.GetString("log-path"),
		EmbeddingDimensions: v.GetInt("embedding-dimensions"),
		MaxConcurrency:      v.GetInt("max-concurrency"),
		HNSWSeed:            v.GetInt64("hnsw-seed"),
		LogLevel:            v.GetString("log-level"),
	}
	return cfg, nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports InvalidInput for out-of-range or malformed values.
func (c *Config) Validate() error {
	if c.EmbeddingDimensions <= 0 {
		return types.NewFieldError(types.KindInvalidInput, "embedding-dimensions", "must be positive")
	}
	if !validLogLevels[c.LogLevel] {
		return types.NewFieldError(types.KindInvalidInput, "log-level", "must be one of debug, info, warn, error")
	}
	return nil
}
