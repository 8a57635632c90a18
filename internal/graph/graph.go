// Package graph implements the Code Graph: a directed, labelled multigraph
// over chunk ids. It backs the Halo Assembler's bounded BFS traversal and is
// mutated only by the Indexer; readers take a lock-protected snapshot view.
package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/dominikbraun/graph"

	"github.com/codeloom/codeloom/internal/chunk"
)

// EdgeLabel is one member of the fixed relationship vocabulary chunks can
// carry between each other.
type EdgeLabel string

const (
	EdgeContains     EdgeLabel = "contains"
	EdgeDefines      EdgeLabel = "defines"
	EdgeImports      EdgeLabel = "imports"
	EdgeCalls        EdgeLabel = "calls"
	EdgeReferences   EdgeLabel = "references"
	EdgeReads        EdgeLabel = "reads"
	EdgeWrites       EdgeLabel = "writes"
	EdgeTests        EdgeLabel = "tests"
	EdgeUsesContract EdgeLabel = "uses_contract"
)

// DefaultEdgeWeights gives the Halo Assembler's BFS a sensible default
// traversal priority: structural edges outrank looser reference edges.
func DefaultEdgeWeights() map[EdgeLabel]float64 {
	return map[EdgeLabel]float64{
		EdgeContains:     1.0,
		EdgeDefines:      1.0,
		EdgeCalls:        0.9,
		EdgeTests:        0.8,
		EdgeUsesContract: 0.8,
		EdgeImports:      0.6,
		EdgeReferences:   0.5,
		EdgeReads:        0.4,
		EdgeWrites:       0.4,
	}
}

// Node is one graph vertex: almost always a real chunk, occasionally a
// synthetic node (contract/boundary) introduced by the meaning engine.
type Node struct {
	ChunkID   string
	FilePath  string
	Kind      chunk.Kind
	Symbol    string
	Synthetic bool
}

// Edge is a labelled, directed relationship between two chunk ids.
type Edge struct {
	From  string
	To    string
	Label EdgeLabel
}

// Graph is the Code Graph. Safe for concurrent readers; writers (the
// Indexer) must hold the same project-scoped lock the rest of the pipeline
// uses, since AddEdge/RemoveChunk are not internally serialised against
// each other beyond the mutex here.
type Graph struct {
	mu sync.RWMutex
	g  graph.Graph[string, *Node]

	// outEdges/inEdges mirror the underlying graph.Graph's adjacency data
	// with the edge label attached, since dominikbraun/graph's generic
	// Edge[K] carries only a Properties map, not a typed label.
	outEdges map[string][]Edge
	inEdges  map[string][]Edge
}

// New creates an empty Code Graph.
func New() *Graph {
	return &Graph{
		g:        graph.New(func(n *Node) string { return n.ChunkID }, graph.Directed()),
		outEdges: make(map[string][]Edge),
		inEdges:  make(map[string][]Edge),
	}
}

// AddNode inserts or replaces the vertex for a chunk. Invariant (spec.md §3
// Graph Node): one node per chunk.
func (g *Graph) AddNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// dominikbraun/graph's AddVertex errors on a duplicate key; since
	// reindexing a changed file re-adds its chunk nodes, remove-then-add
	// keeps the vertex's Node payload current without leaking an error.
	_ = g.g.RemoveVertex(n.ChunkID)
	_ = g.g.AddVertex(n)
}

// AddEdge adds a labelled directed edge. Both endpoints must already exist
// as nodes; a missing endpoint is silently ignored (the invariant that
// "edges reference only live chunk ids" is enforced by the Indexer calling
// AddNode before AddEdge, never by this package rejecting calls).
func (g *Graph) AddEdge(from, to string, label EdgeLabel) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.g.AddEdge(from, to, graph.EdgeAttribute("label", string(label))); err != nil {
		return
	}
	e := Edge{From: from, To: to, Label: label}
	g.outEdges[from] = append(g.outEdges[from], e)
	g.inEdges[to] = append(g.inEdges[to], e)
}

// RemoveChunk purges a chunk's node and every edge touching it — the
// transactional-purge invariant the Indexer relies on when a file is
// deleted.
func (g *Graph) RemoveChunk(chunkID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, e := range g.outEdges[chunkID] {
		_ = g.g.RemoveEdge(e.From, e.To)
	}
	for _, e := range g.inEdges[chunkID] {
		_ = g.g.RemoveEdge(e.From, e.To)
	}
	delete(g.outEdges, chunkID)
	delete(g.inEdges, chunkID)

	for id, edges := range g.outEdges {
		g.outEdges[id] = filterEdges(edges, chunkID)
	}
	for id, edges := range g.inEdges {
		g.inEdges[id] = filterEdges(edges, chunkID)
	}

	_ = g.g.RemoveVertex(chunkID)
}

func filterEdges(edges []Edge, excludeChunkID string) []Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.From != excludeChunkID && e.To != excludeChunkID {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether a node exists for chunkID.
func (g *Graph) Has(chunkID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := g.g.Vertex(chunkID)
	return err == nil
}

// Node returns the node payload for chunkID, if present.
func (g *Graph) Node(chunkID string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.g.Vertex(chunkID)
	if err != nil {
		return nil, false
	}
	return n, true
}

// Out returns the outgoing edges from chunkID, for callers that need their
// own traversal (the meaning engine's anchor graph, mostly).
func (g *Graph) Out(chunkID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.outEdges[chunkID]))
	copy(out, g.outEdges[chunkID])
	return out
}

// In returns the incoming edges to chunkID.
func (g *Graph) In(chunkID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	in := make([]Edge, len(g.inEdges[chunkID]))
	copy(in, g.inEdges[chunkID])
	return in
}

// Order returns the number of nodes in the graph.
func (g *Graph) Order() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, _ := g.g.Order()
	return n
}

// Size returns the number of edges in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, _ := g.g.Size()
	return n
}

// persisted is the on-disk snapshot written by Save/Load: enough to
// reconstruct every node and edge without depending on dominikbraun/graph's
// own (un)marshalling.
type persisted struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// Save writes a snapshot of the graph to path using temp-then-rename, the
// same atomicity the rest of the persisted indices use.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	var nodes []*Node
	adjacency, _ := g.g.AdjacencyMap()
	for id := range adjacency {
		if n, err := g.g.Vertex(id); err == nil {
			nodes = append(nodes, n)
		}
	}
	var edges []Edge
	for _, es := range g.outEdges {
		edges = append(edges, es...)
	}
	g.mu.RUnlock()

	data, err := json.Marshal(persisted{Nodes: nodes, Edges: edges})
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".graph-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the graph's contents with the snapshot persisted at path.
// A missing file is not an error: a fresh project has no graph.json yet.
func (g *Graph) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	g.mu.Lock()
	g.g = graph.New(func(n *Node) string { return n.ChunkID }, graph.Directed())
	g.outEdges = make(map[string][]Edge)
	g.inEdges = make(map[string][]Edge)
	g.mu.Unlock()

	for _, n := range p.Nodes {
		g.AddNode(n)
	}
	for _, e := range p.Edges {
		g.AddEdge(e.From, e.To, e.Label)
	}
	return nil
}
