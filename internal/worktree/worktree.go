// Package worktree implements the Worktree Lens: enumerates branches and
// reports dirty paths, touched areas, and ahead/behind counts against a
// base branch.
package worktree

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	amerrors "github.com/codeloom/codeloom/internal/errors"
)

// Tag is one of the compact stable tags spec.md §4.10 requires.
type Tag string

const (
	TagSyncBase          Tag = "sync_base"
	TagAheadOfBase       Tag = "ahead_of_base"
	TagUncommittedChanges Tag = "uncommitted_changes"
	TagDetachedHead      Tag = "detached_head"
)

// Entry is one branch's worktree summary.
type Entry struct {
	Branch       string
	HeadSHA      string
	Dirty        bool
	DirtyPaths   []string // artifact paths already suppressed by the caller's ignore matcher
	TouchedAreas []string // zones inferred from dirty/diff paths: interfaces, ci, core, docs
	Ahead        int
	Behind       int
	LastCommit   time.Time
	Tags         []Tag
	Detached     bool
}

// ArtifactFilter reports whether a path should be suppressed from dirty
// path listings (build outputs, vendor trees, etc.) — supplied by the
// caller so this package doesn't hardcode ignore rules.
type ArtifactFilter func(path string) bool

// List enumerates every local branch in repoPath, ranked dirty → most
// recent activity → path (spec.md §4.10). base is the branch ahead/behind
// is computed against (typically the default branch); when base can't be
// resolved, Ahead/Behind are left at zero rather than erroring the whole
// listing.
func List(repoPath, base string, suppress ArtifactFilter) ([]Entry, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInvalidRequest, err).WithDetail("path", repoPath)
	}

	baseHash, baseErr := resolveBranch(repo, base)

	var entries []Entry
	refs, err := repo.Branches()
	if err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		e, err := buildEntry(repo, ref, baseHash, baseErr == nil, base, suppress)
		if err != nil {
			return nil // skip a branch we can't summarise rather than failing the whole lens
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, amerrors.Wrap(amerrors.CodeInternal, err)
	}

	head, err := repo.Head()
	if err == nil && head.Name() == plumbing.HEAD {
		entries = append(entries, Entry{
			Branch:   "HEAD",
			HeadSHA:  head.Hash().String(),
			Detached: true,
			Tags:     []Tag{TagDetachedHead},
		})
	}

	sortEntries(entries)
	return entries, nil
}

func resolveBranch(repo *git.Repository, name string) (plumbing.Hash, error) {
	if name == "" {
		return plumbing.ZeroHash, fmt.Errorf("no base branch given")
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}

func buildEntry(repo *git.Repository, ref *plumbing.Reference, baseHash plumbing.Hash, haveBase bool, base string, suppress ArtifactFilter) (Entry, error) {
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		Branch:     ref.Name().Short(),
		HeadSHA:    ref.Hash().String(),
		LastCommit: commit.Author.When,
	}

	if haveBase && e.Branch != base {
		ahead, behind, err := aheadBehind(repo, ref.Hash(), baseHash)
		if err == nil {
			e.Ahead, e.Behind = ahead, behind
			if ahead > 0 {
				e.Tags = append(e.Tags, TagAheadOfBase)
			}
			if ahead == 0 && behind == 0 {
				e.Tags = append(e.Tags, TagSyncBase)
			}
		}
	}

	dirty, paths, err := uncommittedChanges(repo, ref, suppress)
	if err == nil && dirty {
		e.Dirty = true
		e.DirtyPaths = paths
		e.TouchedAreas = touchedAreas(paths)
		e.Tags = append(e.Tags, TagUncommittedChanges)
	}

	return e, nil
}

// aheadBehind walks both commit histories from their common merge base and
// counts commits unique to each side — a simplified two-pointer diff over
// the parent chain, sufficient for typical feature-branch depths.
func aheadBehind(repo *git.Repository, branchHash, baseHash plumbing.Hash) (ahead, behind int, err error) {
	if branchHash == baseHash {
		return 0, 0, nil
	}

	branchCommits, err := commitSet(repo, branchHash, 500)
	if err != nil {
		return 0, 0, err
	}
	baseCommits, err := commitSet(repo, baseHash, 500)
	if err != nil {
		return 0, 0, err
	}

	for h := range branchCommits {
		if _, inBase := baseCommits[h]; !inBase {
			ahead++
		}
	}
	for h := range baseCommits {
		if _, inBranch := branchCommits[h]; !inBranch {
			behind++
		}
	}
	return ahead, behind, nil
}

func commitSet(repo *git.Repository, start plumbing.Hash, maxDepth int) (map[plumbing.Hash]struct{}, error) {
	set := make(map[plumbing.Hash]struct{})
	iter, err := repo.Log(&git.LogOptions{From: start})
	if err != nil {
		return nil, err
	}
	n := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if n >= maxDepth {
			return fmt.Errorf("stop")
		}
		set[c.Hash] = struct{}{}
		n++
		return nil
	})
	if err != nil && n < maxDepth {
		return nil, err
	}
	return set, nil
}

func uncommittedChanges(repo *git.Repository, ref *plumbing.Reference, suppress ArtifactFilter) (bool, []string, error) {
	head, err := repo.Head()
	if err != nil || head.Hash() != ref.Hash() {
		// go-git exposes worktree status only for the checked-out HEAD;
		// non-checked-out branches report clean (nothing to compare against).
		return false, nil, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, nil, err
	}
	if status.IsClean() {
		return false, nil, nil
	}

	var paths []string
	for path := range status {
		if suppress != nil && suppress(path) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return len(paths) > 0, paths, nil
}

// touchedAreas classifies dirty paths into the zones spec.md §4.10 names.
func touchedAreas(paths []string) []string {
	zones := map[string]bool{}
	for _, p := range paths {
		switch {
		case strings.Contains(p, "interfaces") || strings.HasSuffix(p, ".proto") || strings.Contains(p, "openapi"):
			zones["interfaces"] = true
		case strings.Contains(p, ".github/workflows") || strings.Contains(p, "ci/"):
			zones["ci"] = true
		case strings.HasPrefix(p, "docs/") || strings.HasSuffix(p, ".md"):
			zones["docs"] = true
		default:
			zones["core"] = true
		}
	}
	out := make([]string, 0, len(zones))
	for z := range zones {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Dirty != entries[j].Dirty {
			return entries[i].Dirty
		}
		if !entries[i].LastCommit.Equal(entries[j].LastCommit) {
			return entries[i].LastCommit.After(entries[j].LastCommit)
		}
		return entries[i].Branch < entries[j].Branch
	})
}
