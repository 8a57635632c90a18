package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/codeloom/codeloom/internal/errors"
	"github.com/codeloom/codeloom/internal/session"
)

// cursorKey derives the per-project HMAC key the Cursor Store signs this
// server's continuation tokens with, mirroring the daemon's per-project
// key derivation so a cursor minted by one never validates against another
// project's root.
func cursorKey(rootPath string) []byte {
	fp := session.RootFingerprint(rootPath)
	return []byte(fp + fp)
}

// toolFunc is the uniform shape every tool handler is reduced to for the
// registry: take untyped JSON-ish args, return an untyped result. CallTool
// and the batch tool both dispatch through this single table instead of
// each maintaining their own switch over tool names.
type toolFunc func(ctx context.Context, args map[string]any) (any, error)

// wrapTool adapts one of the typed MCP SDK handlers (the same function
// passed to mcp.AddTool) into a toolFunc by round-tripping args through
// JSON into the handler's input type.
func wrapTool[In any, Out any](h func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error)) toolFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in In
		if args != nil {
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, amerrors.Wrap(amerrors.CodeInvalidRequest, err)
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, amerrors.Wrap(amerrors.CodeInvalidRequest, err)
			}
		}
		_, out, err := h(ctx, nil, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// buildToolRegistry constructs the name -> toolFunc table for every
// registered tool. Called once from NewServer after registerTools.
func (s *Server) buildToolRegistry() {
	s.toolRegistry = map[string]toolFunc{
		"search":                wrapTool(s.mcpSearchHandler),
		"search_code":           wrapTool(s.mcpSearchCodeHandler),
		"search_docs":           wrapTool(s.mcpSearchDocsHandler),
		"index_status":          wrapTool(s.mcpIndexStatusHandler),
		"capabilities":          wrapTool(s.mcpCapabilitiesHandler),
		"help":                  wrapTool(s.mcpHelpHandler),
		"tree":                  wrapTool(s.mcpTreeHandler),
		"map":                   wrapTool(s.mcpTreeHandler),
		"ls":                    wrapTool(s.mcpLsHandler),
		"cat":                   wrapTool(s.mcpCatHandler),
		"rg":                    wrapTool(s.mcpRgHandler),
		"text_search":           wrapTool(s.mcpTextSearchHandler),
		"doctor":                wrapTool(s.mcpDoctorHandler),
		"context":               wrapTool(s.mcpContextHandler),
		"context_pack":          wrapTool(s.mcpContextPackHandler),
		"task_pack":             wrapTool(s.mcpTaskPackHandler),
		"read_pack":             wrapTool(s.mcpReadPackHandler),
		"repo_onboarding_pack":  wrapTool(s.mcpRepoOnboardingPackHandler),
		"atlas_pack":            wrapTool(s.mcpAtlasPackHandler),
		"worktree_pack":         wrapTool(s.mcpWorktreePackHandler),
		"meaning_pack":          wrapTool(s.mcpMeaningPackHandler),
		"meaning_focus":         wrapTool(s.mcpMeaningFocusHandler),
		"evidence_fetch":        wrapTool(s.mcpEvidenceFetchHandler),
		"root_get":              wrapTool(s.mcpRootGetHandler),
		"root_set":              wrapTool(s.mcpRootSetHandler),
		"explain":               wrapTool(s.mcpExplainHandler),
		"impact":                wrapTool(s.mcpImpactHandler),
		"trace":                 wrapTool(s.mcpTraceHandler),
		"overview":              wrapTool(s.mcpOverviewHandler),
		"notebook_pack":         wrapTool(s.mcpNotebookPackHandler),
		"notebook_edit":         wrapTool(s.mcpNotebookEditHandler),
		"runbook_pack":          wrapTool(s.mcpRunbookPackHandler),
	}
	// batch dispatches through this same table, so it's wired in last,
	// once every other entry already exists.
	s.toolRegistry["batch"] = func(ctx context.Context, args map[string]any) (any, error) {
		return s.handleBatch(ctx, args)
	}
}

// BatchCall is one sub-invocation inside a batch tool call.
type BatchCall struct {
	Tool  string         `json:"tool" jsonschema:"name of the tool to invoke"`
	Input map[string]any `json:"input,omitempty" jsonschema:"arguments for that tool"`
}

type BatchInput struct {
	Calls []BatchCall `json:"calls" jsonschema:"sub-calls to run, each naming a tool and its input"`
}

// BatchResult is one sub-call's outcome; exactly one of Result/Error is set.
type BatchResult struct {
	Tool   string      `json:"tool"`
	Result any         `json:"result,omitempty"`
	Error  *MCPError   `json:"error,omitempty"`
}

type BatchOutput struct {
	Results []BatchResult `json:"results"`
}

func (s *Server) mcpBatchHandler(ctx context.Context, _ *mcp.CallToolRequest, input BatchInput) (*mcp.CallToolResult, BatchOutput, error) {
	out, err := s.handleBatch(ctx, map[string]any{"calls": input.Calls})
	if err != nil {
		return nil, BatchOutput{}, MapError(err)
	}
	return nil, out.(BatchOutput), nil
}

// handleBatch runs every sub-call against the shared tool registry. A
// sub-call that fails does not abort the batch — its slot carries the
// mapped error instead, so a caller gets partial results rather than an
// all-or-nothing failure.
func (s *Server) handleBatch(ctx context.Context, args map[string]any) (any, error) {
	var input BatchInput
	if calls, ok := args["calls"]; ok {
		raw, err := json.Marshal(calls)
		if err != nil {
			return nil, amerrors.Wrap(amerrors.CodeInvalidRequest, err)
		}
		if err := json.Unmarshal(raw, &input.Calls); err != nil {
			return nil, amerrors.Wrap(amerrors.CodeInvalidRequest, err)
		}
	}
	if len(input.Calls) == 0 {
		return nil, amerrors.New(amerrors.CodeInvalidRequest, "calls must be non-empty")
	}
	if len(input.Calls) > 20 {
		return nil, amerrors.New(amerrors.CodeInvalidRequest, "batch accepts at most 20 sub-calls")
	}

	out := BatchOutput{Results: make([]BatchResult, 0, len(input.Calls))}
	for _, call := range input.Calls {
		fn, ok := s.toolRegistry[call.Tool]
		if !ok {
			out.Results = append(out.Results, BatchResult{Tool: call.Tool, Error: MapError(amerrors.New(amerrors.CodeInvalidRequest, "unknown tool: "+call.Tool))})
			continue
		}
		res, err := fn(ctx, call.Input)
		if err != nil {
			out.Results = append(out.Results, BatchResult{Tool: call.Tool, Error: MapError(err)})
			continue
		}
		out.Results = append(out.Results, BatchResult{Tool: call.Tool, Result: res})
	}
	return out, nil
}
