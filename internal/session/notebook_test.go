package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotebook_EditAndPack(t *testing.T) {
	nb := NewNotebook(10)
	nb.Edit("finding-1", "auth uses JWT")
	nb.Edit("finding-2", "db is sqlite")

	entries := nb.Pack()
	require.Len(t, entries, 2)
	assert.Equal(t, "finding-1", entries[0].Key)
	assert.Equal(t, "finding-2", entries[1].Key)
}

func TestNotebook_EditOverwritesExistingKey(t *testing.T) {
	nb := NewNotebook(10)
	nb.Edit("k", "v1")
	nb.Edit("k", "v2")

	entries := nb.Pack()
	require.Len(t, entries, 1)
	assert.Equal(t, "v2", entries[0].Value)
}

func TestNotebook_EvictsOldestAtCapacity(t *testing.T) {
	nb := NewNotebook(2)
	nb.Edit("a", "1")
	nb.Edit("b", "2")
	nb.Edit("c", "3")

	entries := nb.Pack()
	require.Len(t, entries, 2)
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.NotContains(t, keys, "a", "oldest entry should have been evicted")
	assert.Contains(t, keys, "b")
	assert.Contains(t, keys, "c")
}

func TestNotebook_Delete(t *testing.T) {
	nb := NewNotebook(10)
	nb.Edit("a", "1")
	nb.Edit("b", "2")
	nb.Delete("a")

	assert.Equal(t, 1, nb.Len())
	entries := nb.Pack()
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Key)
}

func TestNotebook_DeleteNonexistentIsNoop(t *testing.T) {
	nb := NewNotebook(10)
	nb.Edit("a", "1")
	nb.Delete("missing")
	assert.Equal(t, 1, nb.Len())
}

func TestNotebook_UpdatingExistingKeyDoesNotEvict(t *testing.T) {
	nb := NewNotebook(2)
	nb.Edit("a", "1")
	nb.Edit("b", "2")
	nb.Edit("a", "1-updated")

	assert.Equal(t, 2, nb.Len())
	entries := nb.Pack()
	for _, e := range entries {
		if e.Key == "a" {
			assert.Equal(t, "1-updated", e.Value)
		}
	}
}
