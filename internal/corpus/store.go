package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, matches the teacher's store package

	"github.com/codeloom/codeloom/internal/chunk"
	amerrors "github.com/codeloom/codeloom/internal/errors"
)

// Store is the sqlite-backed Corpus Store. One Store per project; the
// Indexer is its only writer, readers (retrieval, graph, packer) may call
// concurrently.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	files map[string]*FileDescriptor // in-memory mirror for fast mtime checks
}

// Open creates or attaches to the sqlite database at path, following the
// teacher's pragma set for single-writer WAL access (BUG-064 in the
// teacher's history: concurrent readers without WAL deadlocked).
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if info, err := os.Stat(path); err == nil && info.Size() == 0 {
			_ = os.Remove(path)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err).WithDetail("component", "corpus")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, amerrors.Wrap(amerrors.CodeInternal, err).WithDetail("pragma", p)
		}
	}

	s := &Store{db: db, path: path, files: make(map[string]*FileDescriptor)}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadFileIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	language TEXT NOT NULL,
	mtime_unix INTEGER NOT NULL,
	size INTEGER NOT NULL,
	content_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	kind TEXT NOT NULL,
	language TEXT NOT NULL,
	qualified_name TEXT,
	parent_scope TEXT,
	content_hash TEXT NOT NULL,
	data TEXT NOT NULL,
	stored_at_unix INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
CREATE INDEX IF NOT EXISTS idx_chunks_qualified_name ON chunks(qualified_name);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return amerrors.Wrap(amerrors.CodeInternal, err).WithDetail("component", "corpus_schema")
	}
	return nil
}

func (s *Store) loadFileIndex() error {
	rows, err := s.db.Query(`SELECT path, language, mtime_unix, size, content_hash FROM files`)
	if err != nil {
		return amerrors.Wrap(amerrors.CodeInternal, err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var fd FileDescriptor
		var mtimeUnix int64
		if err := rows.Scan(&fd.Path, &fd.Language, &mtimeUnix, &fd.Size, &fd.ContentHash); err != nil {
			return amerrors.Wrap(amerrors.CodeInternal, err)
		}
		fd.MTime = time.Unix(mtimeUnix, 0)
		s.files[fd.Path] = &fd
	}
	return rows.Err()
}

// Describe returns the stored FileDescriptor for path, used by the
// Indexer to decide whether a scanned file needs re-chunking.
func (s *Store) Describe(path string) (*FileDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fd, ok := s.files[path]
	return fd, ok
}

// Unchanged reports whether the on-disk file at path still matches the
// Corpus's recorded mtime, size, and content hash — the fast path the
// Watcher & Indexer use to skip re-chunking.
func (s *Store) Unchanged(path string, mtime time.Time, size int64, contentHash string) bool {
	fd, ok := s.Describe(path)
	if !ok {
		return false
	}
	return fd.Size == size && fd.ContentHash == contentHash && !fd.MTime.Before(mtime) && !fd.MTime.After(mtime)
}

// PutFile upserts a file's chunks in one transaction: replace the file
// row, delete its previous chunk rows, and insert the new ones. This is
// the Corpus's "grown/mutated only by the Indexer" write path.
func (s *Store) PutFile(ctx context.Context, fd FileDescriptor, chunks []chunk.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.Wrap(amerrors.CodeInternal, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files (path, language, mtime_unix, size, content_hash) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET language=excluded.language, mtime_unix=excluded.mtime_unix,
		   size=excluded.size, content_hash=excluded.content_hash`,
		fd.Path, fd.Language, fd.MTime.Unix(), fd.Size, fd.ContentHash); err != nil {
		return amerrors.Wrap(amerrors.CodeInternal, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, fd.Path); err != nil {
		return amerrors.Wrap(amerrors.CodeInternal, err)
	}

	chunkIDs := make([]string, 0, len(chunks))
	now := time.Now().Unix()
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return amerrors.Wrap(amerrors.CodeInternal, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, path, start_line, end_line, kind, language, qualified_name, parent_scope, content_hash, data, stored_at_unix)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, fd.Path, c.StartLine, c.EndLine, string(c.Kind), c.Language, c.QualifiedName, c.ParentScope, c.ContentHash, data, now); err != nil {
			return amerrors.Wrap(amerrors.CodeInternal, err)
		}
		chunkIDs = append(chunkIDs, c.ID)
	}

	if err := tx.Commit(); err != nil {
		return amerrors.Wrap(amerrors.CodeInternal, err)
	}

	fd.ChunkIDs = chunkIDs
	s.mu.Lock()
	s.files[fd.Path] = &fd
	s.mu.Unlock()
	return nil
}

// PurgeFile removes a file and every chunk id it owns in one transaction —
// the "deleted files purge their chunk ids from all derived indices in one
// transactional batch" invariant (spec.md §3). Returns the purged chunk ids
// so callers can cascade the purge into the Fuzzy/Vector/Graph indices.
func (s *Store) PurgeFile(ctx context.Context, path string) ([]string, error) {
	s.mu.RLock()
	fd, ok := s.files[path]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	purged := append([]string(nil), fd.ChunkIDs...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}

	s.mu.Lock()
	delete(s.files, path)
	s.mu.Unlock()
	return purged, nil
}

// GetChunk fetches one chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE id = ?`, id)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, amerrors.New(amerrors.CodeIndexMissing, fmt.Sprintf("chunk %q not found", id))
		}
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	var c chunk.Chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	return &c, nil
}

// GetChunks batch-fetches chunks by id, skipping any that no longer exist
// rather than failing the whole batch — callers (halo assembly, packer)
// treat a missing id as "already purged" and move on.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	out := make([]*chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetChunk(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ChunksByPath returns every chunk currently stored for path, ordered by
// start line — the Corpus's "chunks are non-overlapping and ordered"
// invariant surfaced to callers.
func (s *Store) ChunksByPath(ctx context.Context, path string) ([]*chunk.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM chunks WHERE path = ? ORDER BY start_line ASC`, path)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	defer rows.Close()

	var out []*chunk.Chunk
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, amerrors.Wrap(amerrors.CodeInternal, err)
		}
		var c chunk.Chunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, amerrors.Wrap(amerrors.CodeInternal, err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Paths returns every file path currently tracked by the Corpus.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	return out
}

// FileCount and ChunkCount back the freshness controller's and daemon's
// health snapshots.
func (s *Store) FileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
