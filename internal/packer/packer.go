// Package packer implements the Context Packer: it serialises primary hits
// plus their halos into a bounded textual artifact, honouring a hard
// character budget with deterministic truncation. It reports truncation but
// mints no continuation cursors; internal/cursor does that.
package packer

import (
	"strconv"
	"strings"

	"github.com/codeloom/codeloom/internal/chunk"
	"github.com/codeloom/codeloom/internal/halo"
)

// ResponseMode controls how much diagnostic scaffolding is emitted
// alongside the packed items (spec.md §4.7).
type ResponseMode string

const (
	ModeMinimal ResponseMode = "minimal"
	ModeFacts   ResponseMode = "facts"
	ModeFull    ResponseMode = "full"
)

// Item is one primary hit plus its assembled halo, already in rank order.
type Item struct {
	Chunk   *chunk.Chunk
	Related []halo.Related
	Score   float64
}

// Request is one packing call's input.
type Request struct {
	Items        []Item
	MaxChars     int
	Mode         ResponseMode
	IndexState   map[string]string // coverage hints for facts/full modes
}

// PackedItem is the serialised form of one Item, possibly shrunk.
type PackedItem struct {
	ChunkID       string
	Text          string
	HaloDropped   bool // halo was cut to make the item fit
	DocTrimmed    bool // docstring was trimmed to make the item fit
}

// Result is the packer's output.
type Result struct {
	Items        []PackedItem
	TotalChars   int
	DroppedItems int
	Truncated    bool
	Diagnostics  map[string]string
}

// Pack serialises req.Items in rank order under the req.MaxChars budget.
// Items are included whole or skipped — never partially emitted — per
// spec.md §4.7's "never emits partial content that breaks structural
// framing" guarantee. When an item doesn't fit as-is, the shrinker runs in
// order: cut halo, then trim docstring, then give up and skip.
func Pack(req Request) Result {
	res := Result{Diagnostics: map[string]string{}}
	budget := req.MaxChars
	if budget <= 0 {
		budget = 1
	}

	for _, item := range req.Items {
		packed, size, fits := tryFit(item, budget-res.TotalChars, req.Mode)
		if !fits {
			res.DroppedItems++
			res.Truncated = true
			continue
		}
		res.Items = append(res.Items, packed)
		res.TotalChars += size
	}

	if req.Mode != ModeMinimal {
		res.Diagnostics["items_packed"] = strconv.Itoa(len(res.Items))
		res.Diagnostics["items_dropped"] = strconv.Itoa(res.DroppedItems)
		for k, v := range req.IndexState {
			res.Diagnostics[k] = v
		}
	}
	return res
}

// tryFit attempts, in shrinker order, to serialise item within remaining
// chars: full text, then halo-cut, then docstring-trimmed. Returns the
// first (largest) variant that fits, or false if even the trimmed one overflows.
func tryFit(item Item, remaining int, mode ResponseMode) (PackedItem, int, bool) {
	if remaining <= 0 {
		return PackedItem{}, 0, false
	}

	full := render(item, mode, true, false)
	if len(full) <= remaining {
		return PackedItem{ChunkID: item.Chunk.ID, Text: full}, len(full), true
	}

	noHalo := render(item, mode, false, false)
	if len(noHalo) <= remaining {
		return PackedItem{ChunkID: item.Chunk.ID, Text: noHalo, HaloDropped: true}, len(noHalo), true
	}

	trimmed := render(item, mode, false, true)
	if len(trimmed) <= remaining {
		return PackedItem{ChunkID: item.Chunk.ID, Text: trimmed, HaloDropped: true, DocTrimmed: true}, len(trimmed), true
	}

	return PackedItem{}, 0, false
}

func render(item Item, mode ResponseMode, includeHalo, trimDoc bool) string {
	var b strings.Builder
	b.WriteString(item.Chunk.FilePath)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(item.Chunk.StartLine))
	b.WriteString("-")
	b.WriteString(strconv.Itoa(item.Chunk.EndLine))
	b.WriteString("\n")

	content := item.Chunk.Content
	if trimDoc {
		content = stripLeadingDocstring(content)
	}
	b.WriteString(content)

	if includeHalo && mode != ModeMinimal {
		for _, r := range item.Related {
			b.WriteString("\n  related: ")
			b.WriteString(r.ChunkID)
		}
	}
	return b.String()
}

func stripLeadingDocstring(content string) string {
	lines := strings.Split(content, "\n")
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "*") {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return content
	}
	return strings.Join(lines[i:], "\n")
}

