package worktree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTouchedAreas_ClassifiesKnownZones(t *testing.T) {
	areas := touchedAreas([]string{"api/openapi.yaml", ".github/workflows/ci.yml", "docs/readme.md", "internal/foo.go"})
	assert.Contains(t, areas, "interfaces")
	assert.Contains(t, areas, "ci")
	assert.Contains(t, areas, "docs")
	assert.Contains(t, areas, "core")
}

func TestTouchedAreas_EmptyInputReturnsNoZones(t *testing.T) {
	areas := touchedAreas(nil)
	assert.Empty(t, areas)
}

func TestSortEntries_DirtyFirst(t *testing.T) {
	entries := []Entry{
		{Branch: "b", Dirty: false},
		{Branch: "a", Dirty: true},
	}
	sortEntries(entries)
	assert.Equal(t, "a", entries[0].Branch)
}

func TestSortEntries_StableByBranchNameWhenTied(t *testing.T) {
	entries := []Entry{
		{Branch: "zeta"},
		{Branch: "alpha"},
	}
	sortEntries(entries)
	assert.Equal(t, "alpha", entries[0].Branch)
}

func TestList_NonGitPathReturnsError(t *testing.T) {
	_, err := List(t.TempDir(), "main", nil)
	assert.Error(t, err)
}
