// Package corpus implements the Corpus Store: the per-project chunk
// database keyed by (path, start_line, end_line), with file-level mtime
// snapshots that let the Indexer skip unchanged files on incremental
// rebuilds.
package corpus

import (
	"time"

	"github.com/codeloom/codeloom/internal/chunk"
)

// FileDescriptor is the Corpus's per-file bookkeeping record (spec.md §3).
// Invariant: Chunks are non-overlapping and ordered by StartLine; changing
// any chunk's content changes ContentHash.
type FileDescriptor struct {
	Path        string
	Language    string
	MTime       time.Time
	Size        int64
	ContentHash string
	ChunkIDs    []string
}

// ChunkRecord is a stored Chunk plus the bookkeeping the Corpus needs to
// answer path/scope queries without re-parsing the source file.
type ChunkRecord struct {
	Chunk     chunk.Chunk
	StoredAt  time.Time
}
