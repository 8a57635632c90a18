// Package freshness implements the Freshness Controller: watermark
// comparison between a project's current state and its index, and the
// stale_policy decision (serve, warn, reindex, fail closed).
package freshness

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitWatermark captures the repository state relevant to staleness: the
// commit the index was built against, and whether the worktree carried
// uncommitted changes at that time.
type GitWatermark struct {
	HeadSHA string
	Dirty   bool
}

// FilesystemWatermark is the fallback watermark for projects without git
// (or when a fast check is preferred over a full git status walk).
type FilesystemWatermark struct {
	FileCount   int
	TotalSize   int64
	NewestMTime int64 // unix seconds
}

// Watermark is the project state snapshot stored alongside an index.
// Exactly one of Git/Filesystem is meaningful depending on how the
// project was indexed; both are retained so a degrade path can fall back.
type Watermark struct {
	Git        *GitWatermark
	Filesystem *FilesystemWatermark
	SchemaVersion int
}

// CurrentGitWatermark computes the live git watermark for repoPath. Returns
// an error only when repoPath isn't a git repository at all — callers
// should fall back to a filesystem watermark in that case.
func CurrentGitWatermark(repoPath string) (*GitWatermark, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("computing worktree status: %w", err)
	}

	return &GitWatermark{
		HeadSHA: head.Hash().String(),
		Dirty:   !status.IsClean(),
	}, nil
}

// Equal compares two git watermarks for the staleness check in spec.md
// §4.8: "an index is stale if the project watermark differs".
func (w *GitWatermark) Equal(other *GitWatermark) bool {
	if w == nil || other == nil {
		return w == other
	}
	return w.HeadSHA == other.HeadSHA && w.Dirty == other.Dirty
}

// Equal compares two filesystem watermarks.
func (w *FilesystemWatermark) Equal(other *FilesystemWatermark) bool {
	if w == nil || other == nil {
		return w == other
	}
	return w.FileCount == other.FileCount && w.TotalSize == other.TotalSize && w.NewestMTime == other.NewestMTime
}

// resolveRef is a small helper kept for callers that want to confirm a
// watermark's HEAD still exists (e.g. after a force-push rewrote history).
func resolveRef(repo *git.Repository, sha string) (bool, error) {
	_, err := repo.ResolveRevision(plumbing.Revision(sha))
	if err != nil {
		return false, nil
	}
	return true, nil
}
