package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/codeloom/codeloom/internal/errors"
	"github.com/codeloom/codeloom/internal/freshness"
)

// defaultArtifactDirs are always skipped when walking a tree — they carry
// no navigational signal and would dwarf the real source tree.
var defaultArtifactDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, ".cache": true,
}

// isArtifactPath reports whether relPath falls under one of the skipped
// artifact directories — the Worktree Lens's ArtifactFilter callback.
func isArtifactPath(relPath string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if defaultArtifactDirs[seg] {
			return true
		}
	}
	return false
}

// resolveScopedPath binds a (possibly empty) relative path argument to the
// connection's session root, refusing to resolve outside of it.
func (s *Server) resolveScopedPath(relArg string) (root, abs, rel string, err error) {
	root, hint, rerr := s.sessionReg.Resolve(s.connID, relArg)
	if rerr != nil {
		return "", "", "", amerrors.New(amerrors.CodeRootUnresolved, rerr.Error()).
			WithHint("call root_set with an explicit path")
	}

	target := root
	if hint != "" {
		target = filepath.Join(root, hint)
	}
	target = filepath.Clean(target)

	rp, rerr := filepath.Rel(root, target)
	if rerr != nil || strings.HasPrefix(rp, "..") {
		return "", "", "", amerrors.New(amerrors.CodePathDenied, "path escapes the session root").
			WithDetail("path", relArg)
	}
	return root, target, filepath.ToSlash(rp), nil
}

// guardSecret returns a path_denied error unless allowSecrets is set and
// relPath matches a denied secret pattern.
func guardSecret(relPath string, allowSecrets bool) error {
	if allowSecrets || !isSecretPath(relPath) {
		return nil
	}
	return amerrors.New(amerrors.CodePathDenied, fmt.Sprintf("refusing to read %s: looks like %s", relPath, secretPathName(relPath))).
		WithDetail("path", relPath)
}

// --- capabilities ---

type CapabilitiesInput struct{}

type CapabilitiesOutput struct {
	Tools            []ToolInfo `json:"tools"`
	SemanticSearch   bool       `json:"semantic_search_available"`
	EmbedderModel    string     `json:"embedder_model,omitempty"`
	ResponseModes    []string   `json:"response_modes"`
	CursorEncodings  []string   `json:"cursor_encodings"`
}

func (s *Server) mcpCapabilitiesHandler(_ context.Context, _ *mcp.CallToolRequest, _ CapabilitiesInput) (*mcp.CallToolResult, CapabilitiesOutput, error) {
	out := CapabilitiesOutput{
		Tools:           s.ListTools(),
		SemanticSearch:  s.embedder != nil && s.embedder.Available(context.Background()),
		ResponseModes:   []string{"minimal", "facts", "full"},
		CursorEncodings: []string{"inline", "alias"},
	}
	if s.embedder != nil {
		out.EmbedderModel = s.embedder.ModelName()
	}
	return nil, out, nil
}

// --- help ---

type HelpInput struct {
	Tool string `json:"tool,omitempty" jsonschema:"return detail for a single tool name instead of the full inventory"`
}

type HelpOutput struct {
	Tools []ToolInfo `json:"tools"`
}

func (s *Server) mcpHelpHandler(_ context.Context, _ *mcp.CallToolRequest, input HelpInput) (*mcp.CallToolResult, HelpOutput, error) {
	all := s.ListTools()
	if input.Tool == "" {
		return nil, HelpOutput{Tools: all}, nil
	}
	for _, t := range all {
		if t.Name == input.Tool {
			return nil, HelpOutput{Tools: []ToolInfo{t}}, nil
		}
	}
	return nil, HelpOutput{}, amerrors.New(amerrors.CodeInvalidRequest, "unknown tool name: "+input.Tool)
}

// --- tree / map ---

type TreeInput struct {
	Path     string `json:"path,omitempty" jsonschema:"directory to enumerate, relative to the session root"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"maximum recursion depth, default 4"`
}

type TreeEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Depth int    `json:"depth"`
}

type TreeOutput struct {
	Root    string      `json:"root"`
	Entries []TreeEntry `json:"entries"`
}

func (s *Server) mcpTreeHandler(_ context.Context, _ *mcp.CallToolRequest, input TreeInput) (*mcp.CallToolResult, TreeOutput, error) {
	root, abs, _, err := s.resolveScopedPath(input.Path)
	if err != nil {
		return nil, TreeOutput{}, MapError(err)
	}
	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 4
	}

	var entries []TreeEntry
	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(abs, p)
		if rel == "." {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(rel), "/") + 1
		if d.IsDir() && defaultArtifactDirs[d.Name()] {
			return filepath.SkipDir
		}
		if depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, TreeEntry{Path: filepath.ToSlash(rel), IsDir: d.IsDir(), Depth: depth})
		return nil
	})
	if walkErr != nil {
		return nil, TreeOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, walkErr))
	}
	return nil, TreeOutput{Root: root, Entries: entries}, nil
}

// --- ls ---

type LsInput struct {
	Path string `json:"path,omitempty" jsonschema:"directory to list, relative to the session root"`
}

type LsEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

type LsOutput struct {
	Path    string    `json:"path"`
	Entries []LsEntry `json:"entries"`
}

func (s *Server) mcpLsHandler(_ context.Context, _ *mcp.CallToolRequest, input LsInput) (*mcp.CallToolResult, LsOutput, error) {
	_, abs, rel, err := s.resolveScopedPath(input.Path)
	if err != nil {
		return nil, LsOutput{}, MapError(err)
	}
	items, rerr := os.ReadDir(abs)
	if rerr != nil {
		return nil, LsOutput{}, MapError(amerrors.Wrap(amerrors.CodeInvalidRequest, rerr).WithDetail("path", rel))
	}
	out := LsOutput{Path: rel}
	for _, it := range items {
		if it.IsDir() && defaultArtifactDirs[it.Name()] {
			continue
		}
		entry := LsEntry{Name: it.Name(), IsDir: it.IsDir()}
		if info, ierr := it.Info(); ierr == nil && !it.IsDir() {
			entry.Size = info.Size()
		}
		out.Entries = append(out.Entries, entry)
	}
	return nil, out, nil
}

// --- cat ---

type CatInput struct {
	Path         string `json:"path" jsonschema:"file to read, relative to the session root"`
	StartLine    int    `json:"start_line,omitempty" jsonschema:"1-indexed first line to include, default 1"`
	EndLine      int    `json:"end_line,omitempty" jsonschema:"1-indexed last line to include, default end of file"`
	AllowSecrets bool   `json:"allow_secrets,omitempty" jsonschema:"bypass the secret-file refusal for this call"`
}

type CatOutput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (s *Server) mcpCatHandler(_ context.Context, _ *mcp.CallToolRequest, input CatInput) (*mcp.CallToolResult, CatOutput, error) {
	if input.Path == "" {
		return nil, CatOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "path is required"))
	}
	_, abs, rel, err := s.resolveScopedPath(input.Path)
	if err != nil {
		return nil, CatOutput{}, MapError(err)
	}
	if serr := guardSecret(rel, input.AllowSecrets); serr != nil {
		return nil, CatOutput{}, MapError(serr)
	}

	data, rerr := os.ReadFile(abs)
	if rerr != nil {
		return nil, CatOutput{}, MapError(amerrors.Wrap(amerrors.CodeInvalidRequest, rerr).WithDetail("path", rel))
	}
	lines := strings.Split(string(data), "\n")
	start := input.StartLine
	if start <= 0 {
		start = 1
	}
	end := input.EndLine
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}
	selected := lines[start-1 : end]
	return nil, CatOutput{Path: rel, Content: strings.Join(selected, "\n"), StartLine: start, EndLine: end}, nil
}

// --- rg / text_search ---

type RgInput struct {
	Pattern      string   `json:"pattern" jsonschema:"regular expression to search for"`
	Path         string   `json:"path,omitempty" jsonschema:"directory to search under, relative to the session root"`
	Scope        []string `json:"scope,omitempty" jsonschema:"restrict to these path prefixes"`
	MaxResults   int      `json:"max_results,omitempty" jsonschema:"maximum number of matches, default 200"`
	AllowSecrets bool     `json:"allow_secrets,omitempty"`
}

type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type RgOutput struct {
	Matches   []GrepMatch `json:"matches"`
	Truncated bool        `json:"truncated"`
}

func (s *Server) mcpRgHandler(_ context.Context, _ *mcp.CallToolRequest, input RgInput) (*mcp.CallToolResult, RgOutput, error) {
	re, rerr := regexp.Compile(input.Pattern)
	if rerr != nil {
		return nil, RgOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "invalid pattern: "+rerr.Error()))
	}
	return s.grepWalk(input.Path, input.Scope, input.MaxResults, input.AllowSecrets, re.MatchString)
}

type TextSearchInput struct {
	Query        string   `json:"query" jsonschema:"literal substring to search for (case-insensitive)"`
	Path         string   `json:"path,omitempty" jsonschema:"directory to search under, relative to the session root"`
	Scope        []string `json:"scope,omitempty" jsonschema:"restrict to these path prefixes"`
	MaxResults   int      `json:"max_results,omitempty" jsonschema:"maximum number of matches, default 200"`
	AllowSecrets bool     `json:"allow_secrets,omitempty"`
}

func (s *Server) mcpTextSearchHandler(_ context.Context, _ *mcp.CallToolRequest, input TextSearchInput) (*mcp.CallToolResult, RgOutput, error) {
	needle := strings.ToLower(input.Query)
	match := func(line string) bool { return strings.Contains(strings.ToLower(line), needle) }
	out, err := s.grepWalk(input.Path, input.Scope, input.MaxResults, input.AllowSecrets, match)
	return nil, out, err
}

// grepWalk is the shared line-scanning loop behind rg and text_search: they
// differ only in how a line is matched.
func (s *Server) grepWalk(pathArg string, scope []string, maxResults int, allowSecrets bool, match func(string) bool) (*mcp.CallToolResult, RgOutput, error) {
	_, abs, _, err := s.resolveScopedPath(pathArg)
	if err != nil {
		return nil, RgOutput{}, MapError(err)
	}
	if maxResults <= 0 {
		maxResults = 200
	}

	var out RgOutput
	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil || len(out.Matches) >= maxResults {
			return nil
		}
		if d.IsDir() {
			if defaultArtifactDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(abs, p)
		rel = filepath.ToSlash(rel)
		if len(scope) > 0 && !withinAnyScope(rel, scope) {
			return nil
		}
		if isSecretPath(rel) && !allowSecrets {
			return nil
		}
		f, ferr := os.Open(p)
		if ferr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if len(out.Matches) >= maxResults {
				out.Truncated = true
				break
			}
			line := scanner.Text()
			if match(line) {
				out.Matches = append(out.Matches, GrepMatch{Path: rel, Line: lineNo, Text: strings.TrimSpace(line)})
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, RgOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, walkErr))
	}
	return nil, out, nil
}

func withinAnyScope(relPath string, scopes []string) bool {
	for _, sc := range scopes {
		if strings.HasPrefix(relPath, strings.TrimPrefix(sc, "/")) {
			return true
		}
	}
	return false
}

// --- doctor ---

type DoctorInput struct{}

type DoctorOutput struct {
	Project       ProjectInfo `json:"project"`
	EmbedderReady bool        `json:"embedder_ready"`
	EmbedderModel string      `json:"embedder_model,omitempty"`
	IndexedFiles  int         `json:"indexed_files"`
	IndexedChunks int         `json:"indexed_chunks"`
	GitClean      bool        `json:"git_clean"`
	GitHeadSHA    string      `json:"git_head_sha,omitempty"`
	Warnings      []string    `json:"warnings,omitempty"`
}

func (s *Server) mcpDoctorHandler(ctx context.Context, _ *mcp.CallToolRequest, _ DoctorInput) (*mcp.CallToolResult, DoctorOutput, error) {
	detector := NewProjectDetector(s.rootPath, s.logger)
	out := DoctorOutput{Project: *detector.Detect()}

	if s.embedder != nil {
		out.EmbedderModel = s.embedder.ModelName()
		out.EmbedderReady = s.embedder.Available(ctx)
		if !out.EmbedderReady {
			out.Warnings = append(out.Warnings, "embedder configured but unavailable; semantic search will fall back to fuzzy-only")
		}
	} else {
		out.Warnings = append(out.Warnings, "no embedder configured; semantic search is disabled")
	}

	if stats := s.engine.Stats(); stats != nil {
		if stats.BM25Stats != nil {
			out.IndexedFiles = stats.BM25Stats.DocumentCount
		}
		out.IndexedChunks = stats.VectorCount
		if out.IndexedChunks == 0 {
			out.Warnings = append(out.Warnings, "index is empty; run indexing before searching")
		}
	}

	if wm, werr := freshness.CurrentGitWatermark(s.rootPath); werr == nil {
		out.GitClean = !wm.Dirty
		out.GitHeadSHA = wm.HeadSHA
		if wm.Dirty {
			out.Warnings = append(out.Warnings, "working tree has uncommitted changes; search results may not reflect them until reindexed")
		}
	}

	return nil, out, nil
}
