// Package fuzzy implements the Fuzzy Index: a substring and typo-tolerant
// lookup over the triple (path, symbol, qualified_name) tagged with the
// owning chunk id. It is deliberately not a BM25/keyword-relevance engine —
// there is no term frequency, no stemming, no stop words — it answers "what
// looks like this string" with a fixed tie-break order, the way a human
// scanning a symbol list would.
package fuzzy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// matchKind ranks how an entry matched a query; higher is better. The order
// mirrors the mandated tie-break: exact-case > case-insensitive-exact >
// prefix > substring > typo, with chunk id as the final tie-break.
type matchKind int

const (
	matchNone matchKind = iota
	matchTypo
	matchSubstring
	matchPrefix
	matchExactFold
	matchExactCase
)

// maxTypoDistance bounds the edit-distance ranking so a query doesn't fuzzy
// match arbitrarily distant strings — two edits covers common typos
// (transposition, single insert/delete/substitute pairs) without turning
// every query into a full scan match.
const maxTypoDistance = 2

// Entry is one (path, symbol, qualified_name) record tagged with its
// owning chunk id, the indexing unit the Fuzzy Index is keyed on.
type Entry struct {
	ChunkID       string
	Path          string
	Symbol        string
	QualifiedName string
}

// Result is a ranked hit: the chunk id and a score in (0,1], higher is a
// better match. Score is derived from match kind, not used for fusion
// weighting directly — RRF only needs the rank order Query returns.
type Result struct {
	ChunkID string
	Score   float64
}

// Index is the Fuzzy Index. Safe for concurrent readers; Add/Remove take
// the same write lock as every other mutation, since the Indexer is the
// only writer and always serialises per project.
type Index struct {
	mu      sync.RWMutex
	entries map[string][]Entry // chunk id -> its entries (usually one, occasionally more)
}

// New creates an empty Fuzzy Index.
func New() *Index {
	return &Index{entries: make(map[string][]Entry)}
}

// Add indexes path/symbol/qualifiedName under chunkID, replacing whatever
// was previously indexed for that chunk id (the Indexer re-adds on every
// re-chunk of a modified file).
func (idx *Index) Add(chunkID, path, symbol, qualifiedName string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry := Entry{ChunkID: chunkID, Path: path, Symbol: symbol, QualifiedName: qualifiedName}
	idx.entries[chunkID] = []Entry{entry}
}

// Remove purges every entry tagged with chunkID — the Fuzzy Index's half
// of the "deleted files purge their chunk ids from all derived indices"
// invariant.
func (idx *Index) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, chunkID)
}

// Len reports how many chunk ids currently carry an entry.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Query returns the top-k (chunk_id, score) matches for query, ranked by
// the fixed tie-break: exact-case > case-insensitive-exact > prefix >
// substring > typo; chunk id breaks remaining ties for stable ordering.
func (idx *Index) Query(query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		chunkID string
		kind    matchKind
	}

	best := make(map[string]matchKind)
	for chunkID, entries := range idx.entries {
		for _, e := range entries {
			for _, field := range []string{e.Path, e.Symbol, e.QualifiedName} {
				if field == "" {
					continue
				}
				k := classify(query, field)
				if k > best[chunkID] {
					best[chunkID] = k
				}
			}
		}
	}

	ranked := make([]scored, 0, len(best))
	for chunkID, kind := range best {
		if kind == matchNone {
			continue
		}
		ranked = append(ranked, scored{chunkID: chunkID, kind: kind})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].kind != ranked[j].kind {
			return ranked[i].kind > ranked[j].kind
		}
		return ranked[i].chunkID < ranked[j].chunkID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Result, len(ranked))
	for i, r := range ranked {
		out[i] = Result{ChunkID: r.chunkID, Score: scoreFor(r.kind)}
	}
	return out
}

// classify scores a single field against query using the mandated
// precedence, falling back to bounded edit-distance typo tolerance when
// nothing more specific matches.
func classify(query, field string) matchKind {
	if query == field {
		return matchExactCase
	}

	lowerQuery := strings.ToLower(query)
	lowerField := strings.ToLower(field)

	if lowerQuery == lowerField {
		return matchExactFold
	}
	if strings.HasPrefix(lowerField, lowerQuery) {
		return matchPrefix
	}
	if strings.Contains(lowerField, lowerQuery) {
		return matchSubstring
	}
	if boundedLevenshtein(lowerQuery, lowerField, maxTypoDistance) <= maxTypoDistance {
		return matchTypo
	}
	return matchNone
}

// scoreFor maps a match kind onto a (0,1] score; only the relative order
// matters for fusion, but a caller may want a rough confidence number too.
func scoreFor(k matchKind) float64 {
	switch k {
	case matchExactCase:
		return 1.0
	case matchExactFold:
		return 0.9
	case matchPrefix:
		return 0.75
	case matchSubstring:
		return 0.55
	case matchTypo:
		return 0.35
	default:
		return 0
	}
}

// boundedLevenshtein computes edit distance, short-circuiting once it's
// clear the result will exceed max — a full matrix on a long field string
// against a short query is wasted work once the bound is already blown.
func boundedLevenshtein(a, b string, max int) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if abs(len(a)-len(b)) > max {
		return max + 1
	}

	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// persisted is the on-disk representation written by Save/Load.
type persisted struct {
	Entries []Entry `json:"entries"`
}

// Save writes the index to path using temp-then-rename, matching the
// atomicity the rest of the persisted indices (corpus, vector segments,
// graph) use for crash-safe writes.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	all := make([]Entry, 0, len(idx.entries))
	for _, entries := range idx.entries {
		all = append(all, entries...)
	}
	idx.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ChunkID < all[j].ChunkID })

	data, err := json.Marshal(persisted{Entries: all})
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".fuzzy-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the index's contents with the entries persisted at path.
// A missing file is not an error: a fresh project has no fuzzy.db yet.
func (idx *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string][]Entry, len(p.Entries))
	for _, e := range p.Entries {
		idx.entries[e.ChunkID] = append(idx.entries[e.ChunkID], e)
	}
	return nil
}
