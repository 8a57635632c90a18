package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeloom/codeloom/internal/corpus"
	"github.com/codeloom/codeloom/internal/cursor"
	"github.com/codeloom/codeloom/internal/embed"
	"github.com/codeloom/codeloom/internal/fuzzy"
	"github.com/codeloom/codeloom/internal/graph"
	"github.com/codeloom/codeloom/internal/session"
	"github.com/codeloom/codeloom/internal/store"
)

// Embedder is the Embedding Backend (module §4.4) interface the daemon
// depends on, aliased from internal/embed so callers never need to import
// both packages just to pass a daemon an embedder.
type Embedder = embed.Embedder

// projectState holds the warm, in-memory engine table for one project root:
// the Corpus Store, Code Graph, Cursor Store and (once indexed) the Vector
// and Fuzzy indices. The daemon keeps one of these per loaded project and
// evicts by LRU when MaxProjects is exceeded.
type projectState struct {
	rootPath string
	loadedAt time.Time
	lastUsed time.Time

	corpus  *corpus.Store
	graph   *graph.Graph
	fuzzy   *fuzzy.Index
	cursors *cursor.Store

	// vector and metadata are the teacher's HNSW/SQLite persistence
	// interfaces, kept so CompactionManager can operate on a loaded
	// project's vector index without the daemon knowing HNSW internals.
	vector   store.VectorStore
	metadata store.MetadataStore
}

// Close releases every engine held by the project state. Safe to call on a
// zero-value projectState (e.g. one constructed directly in tests).
func (s *projectState) Close() error {
	var errs []string
	if s.corpus != nil {
		if err := s.corpus.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if s.metadata != nil {
		if err := s.metadata.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing project %s: %s", s.rootPath, strings.Join(errs, "; "))
	}
	return nil
}

// Daemon is the single long-lived process that owns every loaded project's
// engine table (spec §4.13). Session proxies connect over the Unix socket
// in Config.SocketPath and forward tool calls; the daemon serialises writes
// per project and allows concurrent reads.
type Daemon struct {
	cfg        Config
	embedder   Embedder
	server     *Server
	pidFile    *PIDFile
	compaction *CompactionManager

	mu       sync.RWMutex
	projects map[string]*projectState
	started  time.Time
}

// DaemonOption configures optional Daemon dependencies at construction time.
type DaemonOption func(*Daemon)

// WithEmbedder installs the Embedding Backend the daemon uses for semantic
// search. Tests substitute a mock to avoid depending on a running Ollama.
func WithEmbedder(e Embedder) DaemonOption {
	return func(d *Daemon) {
		d.embedder = e
	}
}

// NewDaemon validates cfg and constructs a Daemon. It does not start
// listening; call Start for that.
func NewDaemon(cfg Config, opts ...DaemonOption) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		pidFile:  NewPIDFile(cfg.PIDPath),
		projects: make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start brings up the PID file and Unix socket server and blocks until ctx
// is cancelled. Stale sockets and PID files from a previous, crashed
// daemon are cleaned up rather than treated as a conflict.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}

	if d.pidFile.IsRunning() {
		return fmt.Errorf("daemon already running (pid file %s)", d.cfg.PIDPath)
	}
	_ = d.pidFile.Remove()
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	server, err := NewServer(d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.SetHandler(d)
	d.server = server

	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	if d.compaction != nil {
		d.compaction.Start(ctx)
		defer d.compaction.Stop()
	}

	defer d.cleanup()

	return server.ListenAndServe(ctx)
}

// HandleSearch implements RequestHandler. It loads (or reuses) the target
// project's engine table and runs a query against its Corpus Store.
//
// Hybrid ranking (BM25 + vector, RRF-fused per spec §4.9) is performed by
// the Hybrid Retriever; until that component is wired in, the daemon falls
// back to a direct corpus scan so the socket contract (and its "no index
// found" failure mode) is exercised end to end.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	state, err := d.getOrLoadProject(params.RootPath)
	if err != nil {
		return nil, err
	}

	d.touchProject(params.RootPath)
	if d.compaction != nil {
		d.compaction.InterruptCompaction(params.RootPath)
		d.compaction.OnSearchComplete(params.RootPath)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := scanCorpus(ctx, state.corpus, params.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// getOrLoadProject returns the warm engine table for rootPath, opening it
// from disk on first use. A project with no Corpus Store on disk yet is
// reported as "no index found" rather than silently created, so clients
// can distinguish "not indexed" from "empty index".
func (d *Daemon) getOrLoadProject(rootPath string) (*projectState, error) {
	d.mu.RLock()
	state, ok := d.projects[rootPath]
	d.mu.RUnlock()
	if ok {
		return state, nil
	}

	indexDir := projectIndexDir(rootPath)
	corpusPath := filepath.Join(indexDir, "corpus.db")
	if _, err := os.Stat(corpusPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no index found for %s (run index first)", rootPath)
	}

	cstore, err := corpus.Open(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus store: %w", err)
	}

	projGraph := graph.New()
	if err := projGraph.Load(filepath.Join(indexDir, "graph.json")); err != nil {
		return nil, fmt.Errorf("failed to load code graph: %w", err)
	}
	projFuzzy := fuzzy.New()
	if err := projFuzzy.Load(filepath.Join(indexDir, "fuzzy.db")); err != nil {
		return nil, fmt.Errorf("failed to load fuzzy index: %w", err)
	}

	now := time.Now()
	state = &projectState{
		rootPath: rootPath,
		loadedAt: now,
		lastUsed: now,
		corpus:   cstore,
		graph:    projGraph,
		fuzzy:    projFuzzy,
		cursors:  cursor.New(cursorSigningKey(rootPath)),
	}

	d.mu.Lock()
	d.projects[rootPath] = state
	d.mu.Unlock()

	d.evictLRU()
	return state, nil
}

// projectIndexDir is the per-project directory the Backend Daemon reads
// engine files from, keyed by the same root fingerprint the Session
// Registry uses so CLI-indexed and daemon-served projects agree on layout.
func projectIndexDir(rootPath string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".codeloom", "projects", session.RootFingerprint(rootPath))
}

// cursorSigningKey derives a per-project HMAC key for the Cursor Store so
// tokens minted for one project's root can never resolve against another's.
func cursorSigningKey(rootPath string) []byte {
	fp := session.RootFingerprint(rootPath)
	return []byte(fp + fp) // fingerprint is 12 hex chars; double it for key length
}

// touchProject refreshes a loaded project's LRU timestamp.
func (d *Daemon) touchProject(rootPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state, ok := d.projects[rootPath]; ok {
		state.lastUsed = time.Now()
	}
}

// evictLRU drops the least-recently-used project once the loaded set
// reaches cfg.MaxProjects, keeping the daemon's memory footprint bounded
// regardless of how many distinct projects a long session visits.
func (d *Daemon) evictLRU() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.projects) < d.cfg.MaxProjects || len(d.projects) == 0 {
		return
	}

	var oldestPath string
	var oldestUsed time.Time
	for path, state := range d.projects {
		if oldestPath == "" || state.lastUsed.Before(oldestUsed) {
			oldestPath = path
			oldestUsed = state.lastUsed
		}
	}

	if state, ok := d.projects[oldestPath]; ok {
		_ = state.Close()
	}
	delete(d.projects, oldestPath)
}

// GetStatus implements RequestHandler.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		ProjectsLoaded: len(d.projects),
	}

	if d.embedder == nil {
		status.EmbedderType = "unavailable"
		status.EmbedderStatus = "unavailable"
	} else {
		status.EmbedderType = d.embedder.ModelName()
		status.EmbedderStatus = "ready"
	}

	return status
}

// cleanup closes every loaded project and drops the embedder, releasing
// all resources the daemon held while serving. Called once Start's
// ListenAndServe returns.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, state := range d.projects {
		_ = state.Close()
		delete(d.projects, path)
	}
	d.projects = make(map[string]*projectState)

	if d.embedder != nil {
		_ = d.embedder.Close()
		d.embedder = nil
	}
}

// scanCorpus is the interim retrieval path described on HandleSearch: a
// direct substring scan over every chunk in the Corpus Store, ranked by
// occurrence count. It is replaced by the Hybrid Retriever's BM25+vector
// fusion once the Fuzzy and Vector indices are wired into the daemon.
func scanCorpus(ctx context.Context, cstore *corpus.Store, query string, limit int) ([]SearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	var results []SearchResult
	for _, path := range cstore.Paths() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		chunks, err := cstore.ChunksByPath(ctx, path)
		if err != nil {
			continue
		}
		for _, c := range chunks {
			count := strings.Count(strings.ToLower(c.Content), query)
			if count == 0 {
				continue
			}
			results = append(results, SearchResult{
				FilePath:  c.FilePath,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Score:     float64(count),
				Content:   c.Content,
				Language:  c.Language,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
