package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/codeloom/codeloom/internal/errors"
	"github.com/codeloom/codeloom/internal/meaning"
)

// scanRepoForMeaning walks root, building the Meaning Engine's Input: a
// FileInfo per source file plus raw bytes for whichever canonical docs are
// present. Artifact directories are skipped the same way fs_tools skips
// them for tree/ls, so the Meaning Engine never sees vendored noise.
func scanRepoForMeaning(root string, scopePrefix string) (meaning.Input, error) {
	var in meaning.Input
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if defaultArtifactDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if scopePrefix != "" && !strings.HasPrefix(rel, scopePrefix) {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		in.Files = append(in.Files, meaning.FileInfo{
			Path:     rel,
			Language: languageForExt(filepath.Ext(rel)),
			Size:     info.Size(),
		})
		if isCanonDocName(filepath.Base(rel)) {
			data, rerr := os.ReadFile(p)
			if rerr == nil {
				in.CanonDocs = append(in.CanonDocs, meaning.CanonDoc{Path: rel, Content: data})
			}
		}
		return nil
	})
	return in, walkErr
}

var canonDocNames = map[string]bool{
	"README.md": true, "AGENTS.md": true, "PHILOSOPHY.md": true, "ARCHITECTURE.md": true,
}

func isCanonDocName(base string) bool { return canonDocNames[base] }

func languageForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".md":
		return "markdown"
	default:
		return ""
	}
}

// cognitivePackOutput is the wire shape every meaning-backed tool returns;
// the underlying CognitivePack is the same, only the scope used to build
// it differs per tool.
type cognitivePackOutput struct {
	Anchors    []claimOutput `json:"anchors"`
	Canon      []claimOutput `json:"canon"`
	Boundaries []claimOutput `json:"boundaries"`
	Outputs    []claimOutput `json:"outputs"`
	Map        mapOutput     `json:"map"`
	NBA        []string      `json:"next_best_actions"`
	Truncated  bool          `json:"truncated"`
}

type mapOutput struct {
	TopModules  []string `json:"top_modules"`
	Entrypoints []string `json:"entrypoints"`
}

type claimOutput struct {
	Title      string           `json:"title"`
	Summary    string           `json:"summary"`
	Confidence float64          `json:"confidence"`
	Steps      []string         `json:"steps,omitempty"`
	Evidence   []evidenceOutput `json:"evidence,omitempty"`
}

type evidenceOutput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Snippet   string `json:"snippet"`
}

func toCognitivePackOutput(p meaning.CognitivePack) cognitivePackOutput {
	return cognitivePackOutput{
		Anchors:    toClaimOutputs(p.Anchors),
		Canon:      toClaimOutputs(p.Canon),
		Boundaries: toClaimOutputs(p.Boundaries),
		Outputs:    toClaimOutputs(p.Outputs),
		Map:        mapOutput{TopModules: p.Map.TopModules, Entrypoints: p.Map.Entrypoints},
		NBA:        p.NBA,
		Truncated:  p.Truncated,
	}
}

func toClaimOutputs(claims []meaning.Claim) []claimOutput {
	out := make([]claimOutput, 0, len(claims))
	for _, c := range claims {
		ev := make([]evidenceOutput, 0, len(c.Evidence))
		for _, e := range c.Evidence {
			ev = append(ev, evidenceOutput{Path: e.Path, StartLine: e.StartLine, EndLine: e.EndLine, Snippet: e.Snippet})
		}
		out = append(out, claimOutput{Title: c.Title, Summary: c.Summary, Confidence: c.Confidence, Steps: c.Steps, Evidence: ev})
	}
	return out
}

// --- meaning_pack: the full Cognitive Pack ---

type MeaningPackInput struct {
	Path string `json:"path,omitempty" jsonschema:"scope the pack to files under this prefix, relative to the session root"`
}

func (s *Server) mcpMeaningPackHandler(_ context.Context, _ *mcp.CallToolRequest, input MeaningPackInput) (*mcp.CallToolResult, cognitivePackOutput, error) {
	root, _, rel, err := s.resolveScopedPath(input.Path)
	if err != nil {
		return nil, cognitivePackOutput{}, MapError(err)
	}
	in, serr := scanRepoForMeaning(root, rel)
	if serr != nil {
		return nil, cognitivePackOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, serr))
	}
	pack := meaning.BuildPack(meaning.Run(in), meaning.PackOptions{MaxEvidencePerSection: 5})
	return nil, toCognitivePackOutput(pack), nil
}

// --- meaning_focus: the same engine, narrowed to a single subtree — the
// "tell me about this part of the repo" counterpart to meaning_pack's
// whole-repo view. ---

type MeaningFocusInput struct {
	Path string `json:"path" jsonschema:"subtree to focus the Meaning Engine on, relative to the session root"`
}

func (s *Server) mcpMeaningFocusHandler(_ context.Context, _ *mcp.CallToolRequest, input MeaningFocusInput) (*mcp.CallToolResult, cognitivePackOutput, error) {
	if input.Path == "" {
		return nil, cognitivePackOutput{}, MapError(amerrors.New(amerrors.CodeInvalidRequest, "path is required"))
	}
	root, _, rel, err := s.resolveScopedPath(input.Path)
	if err != nil {
		return nil, cognitivePackOutput{}, MapError(err)
	}
	in, serr := scanRepoForMeaning(root, rel)
	if serr != nil {
		return nil, cognitivePackOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, serr))
	}
	pack := meaning.BuildPack(meaning.Run(in), meaning.PackOptions{MaxEvidencePerSection: 3})
	return nil, toCognitivePackOutput(pack), nil
}

// --- repo_onboarding_pack: the first-read subset — start-here anchors and
// the structure map only, trimmed for a reader who has never seen the
// repo before. ---

type RepoOnboardingPackInput struct{}

type RepoOnboardingOutput struct {
	StartHere []claimOutput `json:"start_here"`
	Map       mapOutput     `json:"map"`
	NBA       []string      `json:"next_best_actions"`
}

func (s *Server) mcpRepoOnboardingPackHandler(_ context.Context, _ *mcp.CallToolRequest, _ RepoOnboardingPackInput) (*mcp.CallToolResult, RepoOnboardingOutput, error) {
	root, _, _, err := s.resolveScopedPath("")
	if err != nil {
		return nil, RepoOnboardingOutput{}, MapError(err)
	}
	in, serr := scanRepoForMeaning(root, "")
	if serr != nil {
		return nil, RepoOnboardingOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, serr))
	}
	pack := meaning.BuildPack(meaning.Run(in), meaning.PackOptions{MaxEvidencePerSection: 5})
	out := toCognitivePackOutput(pack)
	return nil, RepoOnboardingOutput{StartHere: out.Anchors, Map: out.Map, NBA: out.NBA}, nil
}

// --- atlas_pack: the whole-repo structural view — top modules and every
// canon/howto anchor, without the evidence trimming meaning_pack applies,
// for a caller that wants the full map rather than a reading-order pack. ---

type AtlasPackInput struct{}

type AtlasOutput struct {
	Map        mapOutput     `json:"map"`
	Canon      []claimOutput `json:"canon"`
	Boundaries []claimOutput `json:"boundaries"`
}

func (s *Server) mcpAtlasPackHandler(_ context.Context, _ *mcp.CallToolRequest, _ AtlasPackInput) (*mcp.CallToolResult, AtlasOutput, error) {
	root, _, _, err := s.resolveScopedPath("")
	if err != nil {
		return nil, AtlasOutput{}, MapError(err)
	}
	in, serr := scanRepoForMeaning(root, "")
	if serr != nil {
		return nil, AtlasOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, serr))
	}
	pack := meaning.BuildPack(meaning.Run(in), meaning.PackOptions{MaxEvidencePerSection: 10})
	out := toCognitivePackOutput(pack)
	return nil, AtlasOutput{Map: out.Map, Canon: out.Canon, Boundaries: out.Boundaries}, nil
}

// --- runbook_pack: the How-To-Run lens's boundary claims alone — the
// build/run/test/serve commands a caller needs to operate the repo. ---

type RunbookPackInput struct{}

type RunbookOutput struct {
	Boundaries []claimOutput `json:"boundaries"`
}

func (s *Server) mcpRunbookPackHandler(_ context.Context, _ *mcp.CallToolRequest, _ RunbookPackInput) (*mcp.CallToolResult, RunbookOutput, error) {
	root, _, _, err := s.resolveScopedPath("")
	if err != nil {
		return nil, RunbookOutput{}, MapError(err)
	}
	in, serr := scanRepoForMeaning(root, "")
	if serr != nil {
		return nil, RunbookOutput{}, MapError(amerrors.Wrap(amerrors.CodeInternal, serr))
	}
	claims := meaning.RunHowToRunLens(in.Files)
	return nil, RunbookOutput{Boundaries: toClaimOutputs(claims)}, nil
}
