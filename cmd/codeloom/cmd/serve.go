package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/codeloom/codeloom/internal/chunk"
	"github.com/codeloom/codeloom/internal/config"
	"github.com/codeloom/codeloom/internal/corpus"
	"github.com/codeloom/codeloom/internal/embed"
	"github.com/codeloom/codeloom/internal/fuzzy"
	"github.com/codeloom/codeloom/internal/graph"
	"github.com/codeloom/codeloom/internal/index"
	"github.com/codeloom/codeloom/internal/logging"
	"github.com/codeloom/codeloom/internal/mcp"
	"github.com/codeloom/codeloom/internal/scanner"
	"github.com/codeloom/codeloom/internal/search"
	"github.com/codeloom/codeloom/internal/store"
	"github.com/codeloom/codeloom/internal/telemetry"
	"github.com/codeloom/codeloom/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		port      int
		session   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server over stdio (or, in future, another transport),
exposing the indexed project to AI coding assistants.

An index must already exist (run 'codeloom index' first, or just run
'codeloom' with no subcommand to index-then-serve in one step).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport == "stdio" {
				if err := verifyStdinForMCP(); err != nil {
					return err
				}
			}
			return runServeWithSession(cmd.Context(), transport, port, session)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve over (stdio)")
	cmd.Flags().IntVar(&port, "port", 0, "Port for network transports (unused by stdio)")
	cmd.Flags().StringVar(&session, "session", "", "Named session to resume on connect")

	return cmd
}

// runServe starts the MCP server for the project rooted at the current
// directory. Called both from the 'serve' subcommand and from the
// zero-config smart-default path in root.go.
func runServe(ctx context.Context, transport string, port int) error {
	return runServeWithSession(ctx, transport, port, "")
}

func runServeWithSession(ctx context.Context, transport string, port int, session string) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".codeloom")

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("no index found, run 'codeloom index' first: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to open fuzzy index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embedder, err := newServeEmbedder(ctx, cfg)
	if err != nil {
		slog.Warn("embedder unavailable, search falls back to keyword-only", slog.String("error", err.Error()))
	}
	if embedder != nil {
		defer func() { _ = embedder.Close() }()
	}

	dimensions := 768
	if embedder != nil {
		dimensions = embedder.Dimensions()
	}
	vectorCfg := store.DefaultVectorStoreConfig(dimensions)
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()

	corpusStore, codeGraph, fuzzyIndex := openDerivedIndices(dataDir)
	if corpusStore != nil {
		defer func() { _ = corpusStore.Close() }()
	}

	queryMetrics := telemetry.NewQueryMetrics(nil)
	defer func() { _ = queryMetrics.Close() }()

	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.DefaultConfig(),
		search.WithClassifier(search.NewCachedClassifier()),
		search.WithFuzzyIndex(fuzzyIndex),
		search.WithMetrics(queryMetrics))
	if err != nil {
		return fmt.Errorf("failed to build search engine: %w", err)
	}

	server, err := mcp.NewServer(engine, metadata, embedder, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() { _ = server.Close() }()

	server.SetHalo(codeGraph)
	server.SetMetrics(queryMetrics)

	if cfg.Server.MetricsPort > 0 {
		startMetricsServer(ctx, cfg.Server.MetricsPort, queryMetrics)
	}

	// The file watcher keeps the index fresh for long-lived serve sessions,
	// but must never hold up the MCP handshake: it starts in the background
	// with its own bounded timeout, and a slow or failed watcher just means
	// the project falls back to picking up changes on the next manual index.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	startFileWatcher(watchCtx, root, dataDir, cfg, engine, metadata, corpusStore, codeGraph, fuzzyIndex)

	slog.Info("serving", slog.String("root", root), slog.String("transport", transport), slog.String("session", session))
	return server.Serve(ctx, transport, portAddr(port))
}

func portAddr(port int) string {
	if port == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", port)
}

func newServeEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	if os.Getenv("CODELOOM_EMBEDDER") == "static" {
		return embed.NewStaticEmbedder768(), nil
	}
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
}

// watcherStartupTimeout reads CODELOOM_WATCHER_STARTUP_TIMEOUT, defaulting to
// 2s, to bound how long startFileWatcher waits for the watcher to come up
// before giving up and letting serve continue without live reindexing.
func watcherStartupTimeout() time.Duration {
	if v := os.Getenv("CODELOOM_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 2 * time.Second
}

// openDerivedIndices opens the chunk-content, code-relationship and
// symbol-lookup stores the halo assembler and fuzzy retrieval depend on,
// restoring whatever snapshot a prior 'codeloom index' or serve session left
// behind. Each is independently optional: a failure to open or load one is
// logged and that store is left nil, degrading the dependent feature rather
// than failing the whole serve command.
func openDerivedIndices(dataDir string) (*corpus.Store, *graph.Graph, *fuzzy.Index) {
	corpusStore, err := corpus.Open(filepath.Join(dataDir, "corpus.db"))
	if err != nil {
		slog.Warn("corpus store unavailable, context/context_pack lose chunk re-fetch", slog.String("error", err.Error()))
		corpusStore = nil
	}

	codeGraph := graph.New()
	if err := codeGraph.Load(filepath.Join(dataDir, "graph.json")); err != nil {
		slog.Warn("code graph snapshot failed to load, starting empty", slog.String("error", err.Error()))
	}

	fuzzyIndex := fuzzy.New()
	if err := fuzzyIndex.Load(filepath.Join(dataDir, "fuzzy.db")); err != nil {
		slog.Warn("fuzzy index snapshot failed to load, starting empty", slog.String("error", err.Error()))
	}

	return corpusStore, codeGraph, fuzzyIndex
}

// startMetricsServer serves the Prometheus /metrics and /healthz endpoints
// on loopback at port, independent of the MCP transport. It runs in its own
// goroutine and shuts down when ctx is cancelled; a bind failure is logged
// and otherwise ignored since metrics are an operability aid, not a
// correctness requirement for serving the MCP protocol itself.
func startMetricsServer(ctx context.Context, port int, queryMetrics *telemetry.QueryMetrics) {
	collector := telemetry.NewMetricsCollector(queryMetrics)
	handler := telemetry.NewMetricsRouter(collector, time.Now())
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server failed to start", slog.Int("port", port), slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func startFileWatcher(ctx context.Context, root, dataDir string, cfg *config.Config, engine *search.Engine, metadata store.MetadataStore, corpusStore *corpus.Store, codeGraph *graph.Graph, fuzzyIndex *fuzzy.Index) {
	started := make(chan struct{})
	go func() {
		hw, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
		if err != nil {
			slog.Warn("file watcher unavailable", slog.String("error", err.Error()))
			close(started)
			return
		}
		if err := hw.Start(ctx, root); err != nil {
			slog.Warn("file watcher failed to start", slog.String("error", err.Error()))
			close(started)
			return
		}
		close(started)
		defer func() { _ = hw.Stop() }()

		sc, err := scanner.New()
		if err != nil {
			slog.Warn("gitignore reconciliation disabled", slog.String("error", err.Error()))
		}
		coord := index.NewCoordinator(index.CoordinatorConfig{
			RootPath:        root,
			DataDir:         dataDir,
			Engine:          engine,
			Metadata:        metadata,
			CodeChunker:     chunk.NewCodeChunker(),
			MDChunker:       chunk.NewMarkdownChunker(),
			Scanner:         sc,
			ExcludePatterns: cfg.Paths.Exclude,
			Corpus:          corpusStore,
			Graph:           codeGraph,
			Fuzzy:           fuzzyIndex,
		})
		if err := coord.ReconcileOnStartup(ctx); err != nil {
			slog.Warn("startup reconciliation failed", slog.String("error", err.Error()))
		}

		// The graph and fuzzy index only mutate in memory as events arrive;
		// persist them on the way out so the next serve or index run resumes
		// from here instead of rebuilding from an empty snapshot.
		defer saveDerivedIndices(dataDir, codeGraph, fuzzyIndex)

		for {
			select {
			case <-ctx.Done():
				return
			case events, ok := <-hw.Events():
				if !ok {
					return
				}
				if err := coord.HandleEvents(ctx, events); err != nil {
					slog.Warn("failed to apply file events", slog.String("error", err.Error()))
				}
			case err, ok := <-hw.Errors():
				if !ok {
					continue
				}
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	select {
	case <-started:
	case <-time.After(watcherStartupTimeout()):
		slog.Warn("file watcher startup timed out, continuing without live reindex")
	}
}

// saveDerivedIndices snapshots the code graph and fuzzy index to dataDir so
// a later serve or index run resumes from here rather than from empty.
// Either store may be nil when it failed to open; Save on a nil receiver is
// never called since both are always constructed by openDerivedIndices.
func saveDerivedIndices(dataDir string, codeGraph *graph.Graph, fuzzyIndex *fuzzy.Index) {
	if codeGraph != nil {
		if err := codeGraph.Save(filepath.Join(dataDir, "graph.json")); err != nil {
			slog.Warn("failed to persist code graph", slog.String("error", err.Error()))
		}
	}
	if fuzzyIndex != nil {
		if err := fuzzyIndex.Save(filepath.Join(dataDir, "fuzzy.db")); err != nil {
			slog.Warn("failed to persist fuzzy index", slog.String("error", err.Error()))
		}
	}
}

// verifyStdinForMCP checks that stdin isn't an interactive terminal: the MCP
// stdio transport expects a client process piping JSON-RPC in, not a human
// typing at a prompt.
func verifyStdinForMCP() error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal; codeloom serve expects an MCP client piping JSON-RPC over stdio")
	}
	return nil
}
