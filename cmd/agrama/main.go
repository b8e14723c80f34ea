// Command agrama runs the Agrama temporal knowledge-graph daemon: a
// JSON-RPC-over-stdio server fronting the five-primitive execution
// engine, structured around a single `serve` subcommand.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agrama/agrama/internal/config"
	"github.com/agrama/agrama/internal/dispatch"
	"github.com/agrama/agrama/internal/graph"
	"github.com/agrama/agrama/internal/hybrid"
	"github.com/agrama/agrama/internal/lexical"
	"github.com/agrama/agrama/internal/primitives"
	"github.com/agrama/agrama/internal/store"
	"github.com/agrama/agrama/internal/telemetry"
	"github.com/agrama/agrama/internal/vector"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agrama",
		Short: "Agrama temporal knowledge-graph daemon",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		logPath        string
		embeddingDims  int
		maxConcurrency int
		hnswSeed       int64
		tomlPath       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the primitive engine as a JSON-RPC-over-stdio server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), tomlPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if err := reconcileMeta(cfg); err != nil {
				return fmt.Errorf("meta reconciliation: %w", err)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := log.New(os.Stderr, "agrama: ", log.LstdFlags|log.Lmicroseconds)

			code, err := run(cfg, logger)
			if err != nil {
				logger.Printf("fatal: %v", err)
			}
			os.Exit(code)
			return nil
		},
	}

	cmd.Flags().StringVar(&logPath, "log-path", "", "append-log file path (empty keeps state in-memory only)")
	cmd.Flags().IntVar(&embeddingDims, "embedding-dimensions", 0, "fixed embedding dimension (0 uses default/meta)")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "concurrent call ceiling (0 derives from defaults)")
	cmd.Flags().Int64Var(&hnswSeed, "hnsw-seed", 0, "deterministic seed for the vector index's random layer assignment")
	cmd.Flags().StringVar(&tomlPath, "config", "agrama.toml", "optional TOML config file")

	return cmd
}

// run wires storage, the index layers, the primitive engine, and the
// dispatcher together and blocks on Serve until EOF or a fatal error.
// The returned int is the process exit code: 0 clean EOF, 1 startup
// failure, 2 fatal runtime condition.
func run(cfg *config.Config, logger *log.Logger) (int, error) {
	// Telemetry must install before the primitive engine captures the
	// global providers. Diagnostics go to stderr only; stdout carries
	// nothing but JSON-RPC responses.
	otelShutdown, err := telemetry.Setup(telemetry.Config{
		Enabled: os.Getenv("AGRAMA_OTEL_STDOUT") == "1",
		Writer:  os.Stderr,
	})
	if err != nil {
		return 1, fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shCancel()
		if err := otelShutdown(shCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	st, err := store.Open(cfg.LogPath)
	if err != nil {
		return 1, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	lex := lexical.NewIndex()
	for _, key := range st.Keys() {
		it, err := st.Get(key)
		if err != nil {
			continue
		}
		docType, _ := it.Metadata["type"].(string)
		lex.Index(key, string(it.Value), docType, it.CreatedAt, it.Version)
	}

	vec := vector.NewIndex(cfg.EmbeddingDimensions, cfg.HNSWSeed)
	for _, key := range st.Keys() {
		it, err := st.Get(key)
		if err != nil || len(it.Embedding) == 0 {
			continue
		}
		_ = vec.Insert(context.Background(), key, it.Embedding)
	}

	g := graph.NewGraph()
	for _, key := range st.Keys() {
		g.Register(key)
	}

	hy := hybrid.NewEngine(lex, vec, g, func(key string) (int64, bool) {
		it, err := st.Get(key)
		if err != nil {
			return 0, false
		}
		return it.CreatedAt, true
	})

	engine := primitives.NewEngine(primitives.Config{
		Store: st, Lexical: lex, Vector: vec, Graph: g, Hybrid: hy,
		CacheSize: 1024, PoolSize: 256, Dim: cfg.EmbeddingDimensions,
	})

	d := dispatch.New(dispatch.Config{
		Engine:         engine,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Printf("serving: log=%q dims=%d seed=%d", cfg.LogPath, cfg.EmbeddingDimensions, cfg.HNSWSeed)
	code := d.Serve(ctx, os.Stdin, os.Stdout)
	return code, nil
}
