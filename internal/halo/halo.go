// Package halo implements the Halo Assembler: it expands primary retrieval
// hits into related chunks reached by a bounded BFS over the Code Graph.
package halo

import (
	"context"
	"sort"
	"strings"

	"github.com/codeloom/codeloom/internal/chunk"
	"github.com/codeloom/codeloom/internal/graph"
)

// RelatedMode gates which BFS-discovered chunks survive into a halo.
type RelatedMode string

const (
	ModeFocus   RelatedMode = "focus"   // only related chunks overlapping the query
	ModeExplore RelatedMode = "explore" // everything reachable within the caps
)

// Options configures one assembly pass.
type Options struct {
	MaxDepth     int
	MaxPerPrimary int
	Mode         RelatedMode
	QueryTokens  []string // used by ModeFocus to test overlap
	EdgeWeights  map[graph.EdgeLabel]float64
}

// DefaultOptions mirrors spec.md §4.6's "typically 1-2" depth guidance.
func DefaultOptions() Options {
	return Options{
		MaxDepth:      2,
		MaxPerPrimary: 5,
		Mode:          ModeExplore,
		EdgeWeights:   graph.DefaultEdgeWeights(),
	}
}

// Related is one chunk pulled into a primary hit's halo.
type Related struct {
	ChunkID      string
	Relationship []graph.EdgeLabel
	Distance     int
	Weight       float64
}

// ChunkFetcher resolves a chunk id to its stored chunk, needed for the
// focus-mode overlap test and for the Context Packer downstream.
type ChunkFetcher interface {
	GetChunk(ctx context.Context, id string) (*chunk.Chunk, error)
}

// Assemble computes the halo for one primary hit.
func Assemble(ctx context.Context, g *graph.Graph, fetcher ChunkFetcher, primaryChunkID string, opts Options) ([]Related, error) {
	hops := g.BFS([]string{primaryChunkID}, graph.BFSOptions{MaxDepth: opts.MaxDepth})

	candidates := make([]Related, 0, len(hops))
	for _, h := range hops {
		if h.Node.ChunkID == primaryChunkID {
			continue
		}
		if opts.Mode == ModeFocus {
			c, err := fetcher.GetChunk(ctx, h.Node.ChunkID)
			if err != nil || !overlapsQuery(c, opts.QueryTokens) {
				continue
			}
		}
		candidates = append(candidates, Related{
			ChunkID:      h.Node.ChunkID,
			Relationship: h.Relationship,
			Distance:     h.Distance,
			Weight:       relationshipWeight(h.Relationship, opts.EdgeWeights),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		if candidates[i].Weight != candidates[j].Weight {
			return candidates[i].Weight > candidates[j].Weight
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if opts.MaxPerPrimary > 0 && len(candidates) > opts.MaxPerPrimary {
		candidates = candidates[:opts.MaxPerPrimary]
	}
	return candidates, nil
}

// relationshipWeight multiplies each hop's edge weight along the chain so a
// long chain of weak edges ranks below a short chain of strong ones.
func relationshipWeight(chain []graph.EdgeLabel, weights map[graph.EdgeLabel]float64) float64 {
	if len(weights) == 0 {
		weights = graph.DefaultEdgeWeights()
	}
	w := 1.0
	for _, label := range chain {
		if lw, ok := weights[label]; ok {
			w *= lw
		} else {
			w *= 0.5
		}
	}
	return w
}

func overlapsQuery(c *chunk.Chunk, tokens []string) bool {
	if c == nil || len(tokens) == 0 {
		return false
	}
	haystack := strings.ToLower(c.FilePath + " " + c.QualifiedName + " " + c.Content)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
