package freshness

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5"

	amerrors "github.com/codeloom/codeloom/internal/errors"
)

// StalePolicy is the caller-supplied handling instruction for a stale index.
type StalePolicy string

const (
	PolicyAuto StalePolicy = "auto"
	PolicyWarn StalePolicy = "warn"
	PolicyFail StalePolicy = "fail"
)

// CurrentSchemaVersion is the oldest index schema version this engine can
// still read; an index built by an older version is unconditionally stale.
const CurrentSchemaVersion = 2

// ReindexFunc performs a bounded incremental reindex and reports whether it
// completed before the deadline. Wired by the Indexer; the controller
// never reindexes directly.
type ReindexFunc func(ctx context.Context) error

// Request is one staleness decision's input.
type Request struct {
	Policy             StalePolicy
	MaxReindexMs       int
	ProjectWatermark   Watermark // live, just computed
	IndexWatermark     Watermark // recorded at last index build
	NeedSemantic       bool
	RepoPath           string
	Reindex            ReindexFunc
}

// ReindexOutcome records what the controller attempted, for IndexState.
type ReindexOutcome struct {
	Attempted  bool
	Succeeded  bool
	DurationMs int64
}

// Decision is the controller's verdict.
type Decision struct {
	Stale      bool
	Reason     string // "filesystem_changed", "git_changed", "schema_outdated", ""
	Action     string // "serve", "warn", "reindex", "fail"
	Reindex    ReindexOutcome
	Hint       string
	Degraded   bool // true when auto-reindex timed out and the caller should fall back to fuzzy/filesystem
}

// Decide implements spec.md §4.8's fixed policy table.
func Decide(ctx context.Context, req Request) (*Decision, error) {
	stale, reason := isStale(req.ProjectWatermark, req.IndexWatermark, req.RepoPath)

	if !stale {
		return &Decision{Stale: false, Action: "serve"}, nil
	}

	if !req.NeedSemantic {
		return &Decision{Stale: true, Reason: reason, Action: "serve"}, nil
	}

	switch req.Policy {
	case PolicyFail:
		return nil, amerrors.New(amerrors.CodeIndexStale, "index is stale and stale_policy=fail").
			WithDetail("reason", reason).
			WithHint("reindex or retry with stale_policy=warn")

	case PolicyWarn:
		return &Decision{
			Stale:  true,
			Reason: reason,
			Action: "warn",
			Hint:   "serving from a stale index: " + reason,
		}, nil

	case PolicyAuto:
		return decideAuto(ctx, req, reason)

	default:
		return nil, amerrors.New(amerrors.CodeInvalidRequest, "unknown stale_policy").WithDetail("policy", string(req.Policy))
	}
}

func decideAuto(ctx context.Context, req Request, reason string) (*Decision, error) {
	if req.Reindex == nil {
		return &Decision{
			Stale: true, Reason: reason, Action: "reindex",
			Reindex: ReindexOutcome{Attempted: false},
			Degraded: req.NeedSemantic,
			Hint:     "no reindex function wired; degrading to filesystem/fuzzy strategies",
		}, nil
	}

	budget := time.Duration(req.MaxReindexMs) * time.Millisecond
	if budget <= 0 {
		budget = 5 * time.Second
	}
	reindexCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	err := req.Reindex(reindexCtx)
	duration := time.Since(start)

	outcome := ReindexOutcome{Attempted: true, Succeeded: err == nil, DurationMs: duration.Milliseconds()}

	if err != nil {
		return &Decision{
			Stale: true, Reason: reason, Action: "reindex",
			Reindex:  outcome,
			Degraded: true,
			Hint:     "reindex did not complete within max_reindex_ms; serving from filesystem/fuzzy strategies",
		}, nil
	}

	return &Decision{
		Stale: true, Reason: reason, Action: "reindex",
		Reindex: outcome,
		Hint:    "index refreshed before serving",
	}, nil
}

func isStale(project, index Watermark, repoPath string) (bool, string) {
	if project.SchemaVersion != 0 && project.SchemaVersion > index.SchemaVersion {
		return true, "schema_outdated"
	}
	if index.SchemaVersion != 0 && index.SchemaVersion < CurrentSchemaVersion {
		return true, "schema_outdated"
	}
	if project.Git != nil || index.Git != nil {
		if !project.Git.Equal(index.Git) {
			return true, "git_changed"
		}
		if index.Git != nil && repoPath != "" && historyRewritten(repoPath, index.Git.HeadSHA) {
			return true, "git_changed"
		}
		return false, ""
	}
	if !project.Filesystem.Equal(index.Filesystem) {
		return true, "filesystem_changed"
	}
	return false, ""
}

// historyRewritten reports whether the index watermark's HEAD commit no
// longer exists in the repository's history — a force-push or rebase case
// where comparing raw SHAs as "changed" undersells how stale the index is.
func historyRewritten(repoPath string, indexSHA string) bool {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false
	}
	ok, _ := resolveRef(repo, indexSHA)
	return !ok
}
