package meaning

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// canonDocNames are the files the Canon Lens treats as candidate canonical
// documentation, in priority order.
var canonDocNames = []string{"README.md", "AGENTS.md", "PHILOSOPHY.md", "ARCHITECTURE.md"}

// CanonDoc is one candidate canonical document's raw bytes, keyed by its
// repo-relative path.
type CanonDoc struct {
	Path    string
	Content []byte
}

var sequenceArrow = "→"

// RunCanonLens scans canonical docs for heading-anchored spans and an
// optional sequence-like step chain (spec.md §4.9 #2). Emits at most one
// anchor(kind=canon) per doc and at most one canon_step chain overall.
func RunCanonLens(docs []CanonDoc) []Claim {
	var claims []Claim
	var stepClaim *Claim

	for _, name := range canonDocNames {
		for _, doc := range docs {
			if !strings.EqualFold(lastSegment(doc.Path), name) {
				continue
			}
			headings := parseHeadings(doc)
			if len(headings) == 0 {
				continue
			}
			claims = append(claims, Claim{
				Kind:       ClaimAnchor,
				AnchorKind: AnchorCanon,
				Title:      headings[0].text,
				Summary:    "canonical documentation: " + doc.Path,
				Confidence: 0.8,
				Evidence: []Evidence{{
					Path: doc.Path, StartLine: headings[0].line, EndLine: headings[0].line,
					Snippet: headings[0].raw,
				}},
			})

			if stepClaim == nil {
				if steps := detectStepChain(doc); len(steps) > 0 {
					stepClaim = &Claim{
						Kind:       ClaimCanonStep,
						Title:      "sequence in " + doc.Path,
						Steps:      steps,
						Confidence: 0.6,
						Evidence:   []Evidence{{Path: doc.Path}},
					}
				}
			}
		}
	}

	if stepClaim != nil {
		claims = append(claims, *stepClaim)
	}
	return claims
}

type heading struct {
	text string
	line int
	raw  string
}

func parseHeadings(doc CanonDoc) []heading {
	md := goldmark.New()
	reader := text.NewReader(doc.Content)
	root := md.Parser().Parse(reader)

	var out []heading
	lineStarts := computeLineStarts(doc.Content)

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		for c := h.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(doc.Content))
			}
		}
		line := 1
		if lines := h.Lines(); lines.Len() > 0 {
			seg := lines.At(0)
			line = lineForOffset(lineStarts, seg.Start)
		}
		out = append(out, heading{text: buf.String(), line: line, raw: buf.String()})
		return ast.WalkContinue, nil
	})
	return out
}

func computeLineStarts(content []byte) []int {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForOffset(starts []int, offset int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// detectStepChain looks for a numbered list or arrow-chained sequence,
// the "sequence-like structure" spec.md §4.9 names.
func detectStepChain(doc CanonDoc) []string {
	scanner := bufio.NewScanner(bytes.NewReader(doc.Content))
	var steps []string
	n := 1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, itoaDot(n)):
			steps = append(steps, strings.TrimPrefix(line, itoaDot(n)))
			n++
		case strings.Contains(line, sequenceArrow):
			parts := strings.Split(line, sequenceArrow)
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					steps = append(steps, p)
				}
			}
		}
	}
	return steps
}

func itoaDot(n int) string {
	return strconv.Itoa(n) + "."
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
