package index

import (
	"context"
	"log/slog"

	"github.com/codeloom/codeloom/internal/chunk"
	"github.com/codeloom/codeloom/internal/corpus"
	"github.com/codeloom/codeloom/internal/fuzzy"
	"github.com/codeloom/codeloom/internal/graph"
)

// populateDerivedIndices feeds the Corpus Store, Code Graph and Fuzzy Index
// from one file's chunk batch, shared between the incremental Coordinator
// and the bulk Runner so both indexing paths keep halo assembly and fuzzy
// lookup populated. All three stores are optional: a nil store is simply
// skipped. A write failure is logged, never fatal — these are secondary to
// the search engine's BM25/vector indices.
func populateDerivedIndices(ctx context.Context, corpusStore *corpus.Store, g *graph.Graph, fz *fuzzy.Index, fd corpus.FileDescriptor, chunks []*chunk.Chunk) {
	if corpusStore != nil {
		flat := make([]chunk.Chunk, len(chunks))
		for i, ch := range chunks {
			flat[i] = *ch
		}
		if err := corpusStore.PutFile(ctx, fd, flat); err != nil {
			slog.Warn("failed to update corpus store", slog.String("path", fd.Path), slog.String("error", err.Error()))
		}
	}

	if g != nil {
		populateGraph(g, fd.Path, chunks)
	}

	if fz != nil {
		for _, ch := range chunks {
			symbol := ""
			if s := ch.PrimarySymbol(); s != nil {
				symbol = s.Name
			}
			fz.Add(ch.ID, fd.Path, symbol, ch.QualifiedName)
		}
	}
}

// fileGraphNodeID names the synthetic node representing a whole file, the
// Code Graph's anchor for the "file contains chunk" relationship.
func fileGraphNodeID(path string) string {
	return "file:" + path
}

// populateGraph adds one node per chunk plus a synthetic file node, wired
// together by Contains edges, and Defines edges between a chunk and any
// sibling chunk whose qualified name matches its parent scope.
func populateGraph(g *graph.Graph, relPath string, chunks []*chunk.Chunk) {
	fileNode := fileGraphNodeID(relPath)
	g.AddNode(&graph.Node{ChunkID: fileNode, FilePath: relPath, Kind: chunk.KindModule, Synthetic: true})

	byQualifiedName := make(map[string]string, len(chunks))
	for _, ch := range chunks {
		if ch.QualifiedName != "" {
			byQualifiedName[ch.QualifiedName] = ch.ID
		}
	}

	for _, ch := range chunks {
		symbol := ""
		if s := ch.PrimarySymbol(); s != nil {
			symbol = s.Name
		}
		g.AddNode(&graph.Node{ChunkID: ch.ID, FilePath: relPath, Kind: ch.Kind, Symbol: symbol})
		g.AddEdge(fileNode, ch.ID, graph.EdgeContains)

		if ch.ParentScope != "" {
			if parentID, ok := byQualifiedName[ch.ParentScope]; ok {
				g.AddEdge(parentID, ch.ID, graph.EdgeDefines)
			}
		}
	}
}

// purgeFileFromDerivedIndices cascades a file removal into the Corpus
// Store, Code Graph and Fuzzy Index. fallbackIDs is the chunk id set
// already known to the caller (e.g. from metadata), used when the Corpus
// isn't configured, or no longer has a record for the path, so Graph/Fuzzy
// still get purged.
func purgeFileFromDerivedIndices(ctx context.Context, corpusStore *corpus.Store, g *graph.Graph, fz *fuzzy.Index, relPath string, fallbackIDs []string) {
	purged := fallbackIDs
	if corpusStore != nil {
		ids, err := corpusStore.PurgeFile(ctx, relPath)
		if err != nil {
			slog.Warn("failed to purge corpus store", slog.String("path", relPath), slog.String("error", err.Error()))
		} else if len(ids) > 0 {
			purged = ids
		}
	}

	if g != nil {
		g.RemoveChunk(fileGraphNodeID(relPath))
		for _, id := range purged {
			g.RemoveChunk(id)
		}
	}

	if fz != nil {
		for _, id := range purged {
			fz.Remove(id)
		}
	}
}
