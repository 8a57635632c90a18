package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/codeloom/codeloom/internal/errors"
	"github.com/codeloom/codeloom/internal/meaning"
	"github.com/codeloom/codeloom/internal/search"
)

// explain/impact/trace are specified against the Code Graph (spec.md
// §4.6): a symbol's callers/callees, the blast radius of changing it, and
// the path between two symbols. The Indexer populates s.halo's structural
// edges (a file Contains its chunks, a chunk Defines its nested symbols)
// but chunk extraction never walks call/import/reference relationships
// into graph.AddEdge calls, so these three tools still run as search-based
// proxies: "impact" and "trace" reason from textual/symbol-name
// co-occurrence via the Hybrid Retriever rather than true Calls/References
// graph traversal. Each result is labeled so a caller can tell the
// difference from a graph-backed answer.

type symbolRefOutput struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Symbol    string  `json:"symbol,omitempty"`
	Score     float64 `json:"score"`
}

// --- explain: what is this symbol and where does it live ---

type ExplainInput struct {
	Symbol string `json:"symbol" jsonschema:"symbol or identifier name to explain"`
}

type ExplainOutput struct {
	Symbol string            `json:"symbol"`
	Defs   []symbolRefOutput `json:"definitions"`
	Method string            `json:"method"`
}

func (s *Server) mcpExplainHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExplainInput) (*mcp.CallToolResult, ExplainOutput, error) {
	if input.Symbol == "" {
		return nil, ExplainOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "symbol is required"))
	}
	results, err := s.engine.Search(ctx, input.Symbol, search.SearchOptions{Limit: 5, Filter: "code"})
	if err != nil {
		return nil, ExplainOutput{}, MapError(err)
	}
	return nil, ExplainOutput{Symbol: input.Symbol, Defs: toSymbolRefs(results), Method: "search_proxy"}, nil
}

// --- impact: what else might be affected by changing this symbol ---

type ImpactInput struct {
	Symbol string `json:"symbol" jsonschema:"symbol or identifier name to assess the blast radius of"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum related sites returned, default 20"`
}

type ImpactOutput struct {
	Symbol string            `json:"symbol"`
	Sites  []symbolRefOutput `json:"sites"`
	Method string            `json:"method"`
}

func (s *Server) mcpImpactHandler(ctx context.Context, _ *mcp.CallToolRequest, input ImpactInput) (*mcp.CallToolResult, ImpactOutput, error) {
	if input.Symbol == "" {
		return nil, ImpactOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "symbol is required"))
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	results, err := s.engine.Search(ctx, input.Symbol, search.SearchOptions{Limit: limit})
	if err != nil {
		return nil, ImpactOutput{}, MapError(err)
	}
	return nil, ImpactOutput{Symbol: input.Symbol, Sites: toSymbolRefs(results), Method: "search_proxy"}, nil
}

// --- trace: candidate path between two symbols ---

type TraceInput struct {
	From string `json:"from" jsonschema:"starting symbol or identifier"`
	To   string `json:"to" jsonschema:"target symbol or identifier"`
}

type TraceOutput struct {
	From   []symbolRefOutput `json:"from_sites"`
	To     []symbolRefOutput `json:"to_sites"`
	Method string            `json:"method"`
}

func (s *Server) mcpTraceHandler(ctx context.Context, _ *mcp.CallToolRequest, input TraceInput) (*mcp.CallToolResult, TraceOutput, error) {
	if input.From == "" || input.To == "" {
		return nil, TraceOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "from and to are both required"))
	}
	fromResults, err := s.engine.Search(ctx, input.From, search.SearchOptions{Limit: 5})
	if err != nil {
		return nil, TraceOutput{}, MapError(err)
	}
	toResults, err := s.engine.Search(ctx, input.To, search.SearchOptions{Limit: 5})
	if err != nil {
		return nil, TraceOutput{}, MapError(err)
	}
	return nil, TraceOutput{From: toSymbolRefs(fromResults), To: toSymbolRefs(toResults), Method: "search_proxy"}, nil
}

// --- overview: project-level summary, the MCP-facing counterpart to
// index_status plus the Meaning Engine's structure map. ---

type OverviewInput struct{}

type OverviewOutput struct {
	Project ProjectInfo `json:"project"`
	Map     mapOutput   `json:"map"`
	NBA     []string    `json:"next_best_actions"`
}

func (s *Server) mcpOverviewHandler(_ context.Context, _ *mcp.CallToolRequest, _ OverviewInput) (*mcp.CallToolResult, OverviewOutput, error) {
	detector := NewProjectDetector(s.rootPath, s.logger)
	root, _, _, err := s.resolveScopedPath("")
	if err != nil {
		return nil, OverviewOutput{}, MapError(err)
	}
	in, serr := scanRepoForMeaning(root, "")
	if serr != nil {
		return nil, OverviewOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, serr))
	}
	pack := toCognitivePackOutput(meaning.BuildPack(meaning.Run(in), meaning.PackOptions{MaxEvidencePerSection: 5}))
	return nil, OverviewOutput{Project: *detector.Detect(), Map: pack.Map, NBA: pack.NBA}, nil
}

func toSymbolRefs(results []*search.SearchResult) []symbolRefOutput {
	out := make([]symbolRefOutput, 0, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		symbol := ""
		if len(r.Chunk.Symbols) > 0 && r.Chunk.Symbols[0] != nil {
			symbol = r.Chunk.Symbols[0].Name
		}
		out = append(out, symbolRefOutput{
			FilePath: r.Chunk.FilePath, StartLine: r.Chunk.StartLine, EndLine: r.Chunk.EndLine,
			Symbol: symbol, Score: r.Score,
		})
	}
	return out
}
