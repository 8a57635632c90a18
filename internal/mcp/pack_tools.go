package mcp

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeloom/codeloom/internal/chunk"
	"github.com/codeloom/codeloom/internal/cursor"
	amerrors "github.com/codeloom/codeloom/internal/errors"
	"github.com/codeloom/codeloom/internal/halo"
	"github.com/codeloom/codeloom/internal/packer"
	"github.com/codeloom/codeloom/internal/search"
	"github.com/codeloom/codeloom/internal/session"
	"github.com/codeloom/codeloom/internal/store"
	"github.com/codeloom/codeloom/internal/worktree"
)

// cursorTTL bounds every minted continuation cursor's lifetime.
const cursorTTL = 30 * time.Minute

// storeChunkFetcher adapts store.MetadataStore (keyed on store.Chunk) to
// halo.ChunkFetcher (keyed on chunk.Chunk), so the Halo Assembler doesn't
// need to know which persistence layer backs a given server.
type storeChunkFetcher struct {
	metadata store.MetadataStore
}

func (f storeChunkFetcher) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	c, err := f.metadata.GetChunk(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return storeChunkToChunk(c), nil
}

func storeChunkToChunk(c *store.Chunk) *chunk.Chunk {
	return &chunk.Chunk{
		ID:          c.ID,
		FilePath:    c.FilePath,
		Content:     c.Content,
		RawContent:  c.RawContent,
		Context:     c.Context,
		ContentType: chunk.ContentType(c.ContentType),
		Language:    c.Language,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Metadata:    c.Metadata,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// buildPackItems runs the Hybrid Retriever, then enriches the top results
// with their Halo Assembler neighbourhood so the Context Packer has both
// the primary hits and their related chunks to serialise.
func (s *Server) buildPackItems(ctx context.Context, query string, opts search.SearchOptions, haloOpts halo.Options) ([]packer.Item, error) {
	results, err := s.engine.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	fetcher := storeChunkFetcher{metadata: s.metadata}

	items := make([]packer.Item, 0, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		related, herr := halo.Assemble(ctx, s.halo, fetcher, r.Chunk.ID, haloOpts)
		if herr != nil {
			related = nil
		}
		items = append(items, packer.Item{
			Chunk:   storeChunkToChunk(r.Chunk),
			Related: related,
			Score:   r.Score,
		})
	}
	return items, nil
}

type packedItemOutput struct {
	ChunkID     string `json:"chunk_id"`
	Text        string `json:"text"`
	HaloDropped bool   `json:"halo_dropped,omitempty"`
	DocTrimmed  bool   `json:"doc_trimmed,omitempty"`
}

type packResultOutput struct {
	Items        []packedItemOutput `json:"items"`
	TotalChars   int                `json:"total_chars"`
	DroppedItems int                `json:"dropped_items"`
	Truncated    bool               `json:"truncated"`
	NextCursor   string             `json:"next_cursor,omitempty"`
}

func toPackResultOutput(res packer.Result, nextCursor string) packResultOutput {
	out := packResultOutput{TotalChars: res.TotalChars, DroppedItems: res.DroppedItems, Truncated: res.Truncated, NextCursor: nextCursor}
	for _, it := range res.Items {
		out.Items = append(out.Items, packedItemOutput{ChunkID: it.ChunkID, Text: it.Text, HaloDropped: it.HaloDropped, DocTrimmed: it.DocTrimmed})
	}
	return out
}

func packMode(mode string) packer.ResponseMode {
	switch mode {
	case "minimal":
		return packer.ModeMinimal
	case "full":
		return packer.ModeFull
	default:
		return packer.ModeFacts
	}
}

// --- context: a single-shot, uncursored primary-hit-plus-halo snapshot ---

type ContextInput struct {
	Query    string `json:"query" jsonschema:"what to look for"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"character budget, default 4000"`
}

func (s *Server) mcpContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input ContextInput) (*mcp.CallToolResult, packResultOutput, error) {
	if input.Query == "" {
		return nil, packResultOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "query is required"))
	}
	maxChars := input.MaxChars
	if maxChars <= 0 {
		maxChars = 4000
	}
	items, err := s.buildPackItems(ctx, input.Query, search.SearchOptions{Limit: 5}, halo.DefaultOptions())
	if err != nil {
		return nil, packResultOutput{}, MapError(err)
	}
	res := packer.Pack(packer.Request{Items: items, MaxChars: maxChars, Mode: packer.ModeFacts})
	return nil, toPackResultOutput(res, ""), nil
}

// contextPackCursorState is the opaque state a context_pack/task_pack
// cursor carries: which page of the ranked result set to resume from.
type contextPackCursorState struct {
	Query  string `json:"query"`
	Offset int    `json:"offset"`
}

// --- context_pack: the cursorable, budget-bound counterpart to context ---

type ContextPackInput struct {
	Query    string `json:"query" jsonschema:"what to look for"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"character budget, default 8000"`
	Mode     string `json:"response_mode,omitempty" jsonschema:"minimal, facts, or full; default facts"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum primary hits considered, default 20"`
	Cursor   string `json:"cursor,omitempty" jsonschema:"continuation cursor from a prior truncated call"`
}

func (s *Server) mcpContextPackHandler(ctx context.Context, _ *mcp.CallToolRequest, input ContextPackInput) (*mcp.CallToolResult, packResultOutput, error) {
	return s.packFromQuery(ctx, input.Query, input.MaxChars, input.Mode, input.Limit, input.Cursor, 8000)
}

// --- task_pack: the same pipeline at the "full" response mode a longer
// working task needs, with a larger default budget. ---

type TaskPackInput struct {
	Task     string `json:"task" jsonschema:"description of the task to gather context for"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"character budget, default 16000"`
	Cursor   string `json:"cursor,omitempty" jsonschema:"continuation cursor from a prior truncated call"`
}

func (s *Server) mcpTaskPackHandler(ctx context.Context, _ *mcp.CallToolRequest, input TaskPackInput) (*mcp.CallToolResult, packResultOutput, error) {
	return s.packFromQuery(ctx, input.Task, input.MaxChars, "full", 30, input.Cursor, 16000)
}

func (s *Server) packFromQuery(ctx context.Context, query string, maxChars int, mode string, limit int, cursorTok string, defaultBudget int) (*mcp.CallToolResult, packResultOutput, error) {
	if query == "" {
		return nil, packResultOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "query is required"))
	}
	if maxChars <= 0 {
		maxChars = defaultBudget
	}
	if limit <= 0 {
		limit = 20
	}

	offset := 0
	fingerprint := "pack:" + query + "|" + string(packMode(mode)) + "|" + strconv.Itoa(limit) + "|" + strconv.Itoa(maxChars)
	if cursorTok != "" {
		var state contextPackCursorState
		if cerr := s.cur.Resolve(cursorTok, fingerprint, &state); cerr != nil {
			return nil, packResultOutput{}, MapError(cerr)
		}
		offset = state.Offset
	}

	items, err := s.buildPackItems(ctx, query, search.SearchOptions{Limit: limit}, halo.DefaultOptions())
	if err != nil {
		return nil, packResultOutput{}, MapError(err)
	}
	if offset >= len(items) {
		items = nil
	} else {
		items = items[offset:]
	}

	res := packer.Pack(packer.Request{Items: items, MaxChars: maxChars, Mode: packMode(mode)})

	var nextCursor string
	if res.Truncated && offset+len(res.Items) < len(items)+offset {
		next := offset + len(res.Items)
		tok, merr := s.cur.Mint(cursor.EncodingInline, fingerprint, contextPackCursorState{Query: query, Offset: next}, cursorTTL)
		if merr == nil {
			nextCursor = tok
		}
	}
	return nil, toPackResultOutput(res, nextCursor), nil
}

// --- read_pack: a bounded, cursorable raw read of one file ---

type ReadPackInput struct {
	Path         string `json:"path" jsonschema:"file to read, relative to the session root"`
	MaxChars     int    `json:"max_chars,omitempty" jsonschema:"character budget, default 8000"`
	Cursor       string `json:"cursor,omitempty" jsonschema:"continuation cursor from a prior truncated call"`
	AllowSecrets bool   `json:"allow_secrets,omitempty"`
}

type readPackCursorState struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
}

type ReadPackOutput struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func (s *Server) mcpReadPackHandler(_ context.Context, _ *mcp.CallToolRequest, input ReadPackInput) (*mcp.CallToolResult, ReadPackOutput, error) {
	path := input.Path
	startLine := 1
	fingerprint := "read:" + path
	if input.Cursor != "" {
		var state readPackCursorState
		if cerr := s.cur.Resolve(input.Cursor, fingerprint, &state); cerr != nil {
			return nil, ReadPackOutput{}, MapError(cerr)
		}
		path = state.Path
		startLine = state.StartLine
		fingerprint = "read:" + path
	}
	if path == "" {
		return nil, ReadPackOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "path is required"))
	}

	_, abs, rel, err := s.resolveScopedPath(path)
	if err != nil {
		return nil, ReadPackOutput{}, MapError(err)
	}
	if serr := guardSecret(rel, input.AllowSecrets); serr != nil {
		return nil, ReadPackOutput{}, MapError(serr)
	}

	data, rerr := os.ReadFile(abs)
	if rerr != nil {
		return nil, ReadPackOutput{}, MapError(amerrors.Wrap(amerrors.CodeInvalidRequest, rerr).WithDetail("path", rel))
	}
	lines := strings.Split(string(data), "\n")
	maxChars := input.MaxChars
	if maxChars <= 0 {
		maxChars = 8000
	}
	if startLine < 1 {
		startLine = 1
	}
	if startLine > len(lines) {
		return nil, ReadPackOutput{Path: rel, StartLine: startLine, EndLine: startLine - 1}, nil
	}

	var b strings.Builder
	endLine := startLine
	for i := startLine - 1; i < len(lines); i++ {
		line := lines[i] + "\n"
		if b.Len()+len(line) > maxChars && b.Len() > 0 {
			break
		}
		b.WriteString(line)
		endLine = i + 1
	}

	out := ReadPackOutput{Path: rel, Content: b.String(), StartLine: startLine, EndLine: endLine}
	if endLine < len(lines) {
		out.Truncated = true
		tok, merr := s.cur.Mint(cursor.EncodingInline, "read:"+rel, readPackCursorState{Path: rel, StartLine: endLine + 1}, cursorTTL)
		if merr == nil {
			out.NextCursor = tok
		}
	}
	return nil, out, nil
}

// --- evidence_fetch: resolve a list of chunk ids to their raw content ---

type EvidenceFetchInput struct {
	ChunkIDs []string `json:"chunk_ids" jsonschema:"chunk ids to fetch, as returned in a pack's evidence or items"`
}

type EvidenceChunk struct {
	ChunkID   string `json:"chunk_id"`
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

type EvidenceFetchOutput struct {
	Chunks []EvidenceChunk `json:"chunks"`
	Missing []string       `json:"missing,omitempty"`
}

func (s *Server) mcpEvidenceFetchHandler(ctx context.Context, _ *mcp.CallToolRequest, input EvidenceFetchInput) (*mcp.CallToolResult, EvidenceFetchOutput, error) {
	var out EvidenceFetchOutput
	for _, id := range input.ChunkIDs {
		c, err := s.metadata.GetChunk(ctx, id)
		if err != nil || c == nil {
			out.Missing = append(out.Missing, id)
			continue
		}
		out.Chunks = append(out.Chunks, EvidenceChunk{ChunkID: c.ID, FilePath: c.FilePath, StartLine: c.StartLine, EndLine: c.EndLine, Content: c.Content})
	}
	return nil, out, nil
}

// --- root_get / root_set ---

type RootGetInput struct{}

type RootOutput struct {
	Root        string `json:"root"`
	Fingerprint string `json:"fingerprint"`
}

func (s *Server) mcpRootGetHandler(_ context.Context, _ *mcp.CallToolRequest, _ RootGetInput) (*mcp.CallToolResult, RootOutput, error) {
	root, _, err := s.sessionReg.Resolve(s.connID, "")
	if err != nil {
		return nil, RootOutput{}, MapError(amerrors.New(amerrors.CodeRootUnresolved, err.Error()))
	}
	return nil, RootOutput{Root: root, Fingerprint: session.RootFingerprint(root)}, nil
}

type RootSetInput struct {
	Path string `json:"path" jsonschema:"absolute path to make the session root"`
}

func (s *Server) mcpRootSetHandler(_ context.Context, _ *mcp.CallToolRequest, input RootSetInput) (*mcp.CallToolResult, RootOutput, error) {
	if input.Path == "" {
		return nil, RootOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "path is required"))
	}
	root, _, err := s.sessionReg.Resolve(s.connID, input.Path)
	if err != nil {
		return nil, RootOutput{}, MapError(amerrors.New(amerrors.CodeRootUnresolved, err.Error()))
	}
	return nil, RootOutput{Root: root, Fingerprint: session.RootFingerprint(root)}, nil
}

// --- notebook_pack / notebook_edit ---

type NotebookPackInput struct{}

type NotebookEntryOutput struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

type NotebookPackOutput struct {
	Entries []NotebookEntryOutput `json:"entries"`
}

func (s *Server) mcpNotebookPackHandler(_ context.Context, _ *mcp.CallToolRequest, _ NotebookPackInput) (*mcp.CallToolResult, NotebookPackOutput, error) {
	entries := s.sessionReg.Notebook(s.connID).Pack()
	out := NotebookPackOutput{}
	for _, e := range entries {
		out.Entries = append(out.Entries, NotebookEntryOutput{Key: e.Key, Value: e.Value, UpdatedAt: e.UpdatedAt.Format(time.RFC3339)})
	}
	return nil, out, nil
}

type NotebookEditInput struct {
	Key    string `json:"key" jsonschema:"entry key to upsert or delete"`
	Value  string `json:"value,omitempty" jsonschema:"entry value; omit together with delete=true to remove the entry"`
	Delete bool   `json:"delete,omitempty" jsonschema:"remove this key instead of upserting it"`
}

func (s *Server) mcpNotebookEditHandler(_ context.Context, _ *mcp.CallToolRequest, input NotebookEditInput) (*mcp.CallToolResult, NotebookPackOutput, error) {
	if input.Key == "" {
		return nil, NotebookPackOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "key is required"))
	}
	nb := s.sessionReg.Notebook(s.connID)
	if input.Delete {
		nb.Delete(input.Key)
	} else {
		nb.Edit(input.Key, input.Value)
	}
	entries := nb.Pack()
	out := NotebookPackOutput{}
	for _, e := range entries {
		out.Entries = append(out.Entries, NotebookEntryOutput{Key: e.Key, Value: e.Value, UpdatedAt: e.UpdatedAt.Format(time.RFC3339)})
	}
	return nil, out, nil
}

// --- worktree_pack ---

type WorktreePackInput struct {
	Base string `json:"base,omitempty" jsonschema:"base branch to compute ahead/behind against, default main"`
}

type WorktreeEntryOutput struct {
	Branch       string   `json:"branch"`
	HeadSHA      string   `json:"head_sha"`
	Dirty        bool     `json:"dirty"`
	TouchedAreas []string `json:"touched_areas,omitempty"`
	Ahead        int      `json:"ahead"`
	Behind       int      `json:"behind"`
	Tags         []string `json:"tags,omitempty"`
	Detached     bool     `json:"detached"`
}

type WorktreePackOutput struct {
	Entries []WorktreeEntryOutput `json:"entries"`
}

func (s *Server) mcpWorktreePackHandler(_ context.Context, _ *mcp.CallToolRequest, input WorktreePackInput) (*mcp.CallToolResult, WorktreePackOutput, error) {
	base := input.Base
	if base == "" {
		base = "main"
	}
	entries, err := worktree.List(s.rootPath, base, isArtifactPath)
	if err != nil {
		return nil, WorktreePackOutput{}, MapError(err)
	}
	out := WorktreePackOutput{}
	for _, e := range entries {
		tags := make([]string, 0, len(e.Tags))
		for _, t := range e.Tags {
			tags = append(tags, string(t))
		}
		out.Entries = append(out.Entries, WorktreeEntryOutput{
			Branch: e.Branch, HeadSHA: e.HeadSHA, Dirty: e.Dirty,
			TouchedAreas: e.TouchedAreas, Ahead: e.Ahead, Behind: e.Behind,
			Tags: tags, Detached: e.Detached,
		})
	}
	return nil, out, nil
}
