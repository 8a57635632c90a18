package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeloom/codeloom/internal/config"
	"github.com/codeloom/codeloom/internal/corpus"
	"github.com/codeloom/codeloom/internal/embed"
	"github.com/codeloom/codeloom/internal/fuzzy"
	"github.com/codeloom/codeloom/internal/graph"
	"github.com/codeloom/codeloom/internal/index"
	"github.com/codeloom/codeloom/internal/logging"
	"github.com/codeloom/codeloom/internal/store"
	"github.com/codeloom/codeloom/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		resume  bool
		force   bool
		backend string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, chunks code and documents, generates embeddings, and
builds both the fuzzy (BM25) and vector indices used by search.

Use --resume to continue from a previous interrupted indexing run.
Use --force to clear existing index data and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if force && resume {
				return fmt.Errorf("--force and --resume are mutually exclusive")
			}
			if backend != "" {
				_ = os.Setenv("CODELOOM_EMBEDDER", backend)
			}

			return runIndexWithResume(ctx, cmd, path, false, resume, force)
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from previous checkpoint if available")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), mlx, ollama, or static")

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

func newIndexInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show index statistics for the current project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			metadataPath := filepath.Join(root, ".codeloom", "metadata.db")
			metadata, err := store.NewSQLiteStore(metadataPath)
			if err != nil {
				return fmt.Errorf("no index found at %s: %w", metadataPath, err)
			}
			defer func() { _ = metadata.Close() }()

			checkpoint, err := metadata.LoadIndexCheckpoint(cmd.Context())
			if err != nil || checkpoint == nil {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "index complete, no pending checkpoint")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "checkpoint: stage=%s embedded=%d/%d model=%s\n",
				checkpoint.Stage, checkpoint.EmbeddedCount, checkpoint.Total, checkpoint.EmbedderModel)
			return err
		},
	}
}

func runIndexWithResume(ctx context.Context, cmd *cobra.Command, path string, offline, resume, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".codeloom")
	metadataPath := filepath.Join(dataDir, "metadata.db")

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared existing index data, starting fresh...\n")
		return runIndexWithOptions(ctx, cmd, path, offline, 0, "")
	}

	resumeFromChunk := 0
	checkpointEmbedderModel := ""

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := os.Stat(metadataPath); err == nil {
		loadCtx, loadCancel := context.WithTimeout(ctx, 3*time.Second)
		metadata, err := store.NewSQLiteStore(metadataPath)
		if err == nil {
			checkpoint, loadErr := metadata.LoadIndexCheckpoint(loadCtx)
			if loadErr != nil {
				slog.Warn("checkpoint_load_timeout", slog.String("error", loadErr.Error()))
			}
			if checkpoint != nil {
				if resume {
					slog.Info("checkpoint_found",
						slog.String("stage", checkpoint.Stage),
						slog.Int("embedded", checkpoint.EmbeddedCount),
						slog.Int("total", checkpoint.Total))
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resuming from checkpoint: %d/%d chunks embedded\n",
						checkpoint.EmbeddedCount, checkpoint.Total)
					resumeFromChunk = checkpoint.EmbeddedCount
					checkpointEmbedderModel = checkpoint.EmbedderModel
				} else {
					pct := 0
					if checkpoint.Total > 0 {
						pct = checkpoint.EmbeddedCount * 100 / checkpoint.Total
					}
					_ = metadata.Close()
					loadCancel()
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(),
						"Warning: previous indexing was incomplete (stopped at %d%%).\n"+
							"Use --resume to continue, or --force to start fresh.\n", pct)
					return fmt.Errorf("incomplete checkpoint found, use --resume to continue")
				}
			}
			_ = metadata.Close()
		}
		loadCancel()
	}

	return runIndexWithOptions(ctx, cmd, path, offline, resumeFromChunk, checkpointEmbedderModel)
}

func runIndexWithOptions(ctx context.Context, cmd *cobra.Command, path string, offline bool, resumeFromCheckpoint int, checkpointEmbedderModel string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	renderer := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout()))
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := filepath.Join(root, ".codeloom")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to create fuzzy index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	thermalCfg := embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
	var interBatchDelay time.Duration
	if cfg.Embeddings.InterBatchDelay != "" {
		if delay, parseErr := time.ParseDuration(cfg.Embeddings.InterBatchDelay); parseErr == nil && delay > 0 {
			thermalCfg.InterBatchDelay = delay
			interBatchDelay = delay
		}
	}
	embed.SetThermalConfig(thermalCfg)
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder768()
	} else {
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageScanning,
			Message: fmt.Sprintf("Connecting to %s embedder...", provider),
		})

		embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
		embedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		embedCancel()
		if err != nil {
			return fmt.Errorf("embedder initialization failed: %w", err)
		}
	}
	defer func() { _ = embedder.Close() }()

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()

	corpusStore, err := corpus.Open(filepath.Join(dataDir, "corpus.db"))
	if err != nil {
		slog.Warn("corpus store unavailable, context/context_pack lose chunk re-fetch", slog.String("error", err.Error()))
		corpusStore = nil
	}
	if corpusStore != nil {
		defer func() { _ = corpusStore.Close() }()
	}

	codeGraph := graph.New()
	if err := codeGraph.Load(filepath.Join(dataDir, "graph.json")); err != nil {
		slog.Warn("code graph snapshot failed to load, rebuilding from scratch", slog.String("error", err.Error()))
	}

	fuzzyIndex := fuzzy.New()
	if err := fuzzyIndex.Load(filepath.Join(dataDir, "fuzzy.db")); err != nil {
		slog.Warn("fuzzy index snapshot failed to load, rebuilding from scratch", slog.String("error", err.Error()))
	}

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Metadata: metadata,
		BM25:     bm25,
		Vector:   vector,
		Embedder: embedder,
		Corpus:   corpusStore,
		Graph:    codeGraph,
		Fuzzy:    fuzzyIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to create index runner: %w", err)
	}

	_, err = runner.Run(ctx, index.RunnerConfig{
		RootDir:              root,
		DataDir:              dataDir,
		Offline:              offline,
		ResumeFromCheckpoint: resumeFromCheckpoint,
		CheckpointModel:      checkpointEmbedderModel,
		InterBatchDelay:      interBatchDelay,
	})
	return err
}

// clearIndexData removes index-related files from the data directory,
// keeping the project config (which lives at the project root, not here).
func clearIndexData(dataDir string) error {
	indexFiles := []string{
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-shm"),
		filepath.Join(dataDir, "metadata.db-wal"),
		filepath.Join(dataDir, "corpus.db"),
		filepath.Join(dataDir, "corpus.db-shm"),
		filepath.Join(dataDir, "corpus.db-wal"),
		filepath.Join(dataDir, "graph.json"),
		filepath.Join(dataDir, "fuzzy.db"),
	}
	for _, f := range indexFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	for _, dir := range []string{"bm25", "vector"} {
		if err := os.RemoveAll(filepath.Join(dataDir, dir)); err != nil {
			return err
		}
	}
	return nil
}
