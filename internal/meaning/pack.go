package meaning

import "strconv"

// PackOptions bounds the serialized Cognitive Pack's total evidence
// snippet volume. Unlike the Context Packer's byte budget, this is a
// claim-count budget: the pack is a fixed handful of sections, not a
// ranked list of retrieval items.
type PackOptions struct {
	MaxEvidencePerSection int
}

func defaultPackOptions() PackOptions {
	return PackOptions{MaxEvidencePerSection: 5}
}

// BuildPack serializes an Anchor Graph into the fixed-section-order
// Cognitive Pack (spec.md §4.9: S ANCHORS, S CANON, S BOUNDARIES,
// S OUTPUTS, S MAP, S EVIDENCE, NBA). S ANCHORS, S CANON and NBA are never
// dropped under budget pressure — only their evidence lists are trimmed.
func BuildPack(graph AnchorGraph, opts PackOptions) CognitivePack {
	if opts.MaxEvidencePerSection <= 0 {
		opts = defaultPackOptions()
	}

	byKind := map[AnchorNodeKind][]Claim{}
	for _, n := range graph.Nodes {
		byKind[n.Kind] = n.Claims
	}

	anchors, t1 := trimEvidence(startHereAnchors(byKind), opts.MaxEvidencePerSection)
	canon, t2 := trimEvidence(byKind[NodeCanon], opts.MaxEvidencePerSection)
	boundaries, t3 := trimEvidence(byKind[NodeHowToRun], opts.MaxEvidencePerSection)
	outputs, t4 := trimEvidence(byKind[NodeOutputs], opts.MaxEvidencePerSection)

	pack := CognitivePack{
		Anchors:    anchors,
		Canon:      canon,
		Boundaries: boundaries,
		Outputs:    outputs,
		Map:        buildMapSection(byKind[NodeCore]),
		NBA:        buildNBA(byKind),
		Truncated:  t1 || t2 || t3 || t4,
	}
	pack.Evidence = collectEvidence(pack)
	return pack
}

func startHereAnchors(byKind map[AnchorNodeKind][]Claim) []Claim {
	anchors := append([]Claim{}, byKind[NodeStartHere]...)
	anchors = append(anchors, byKind[NodeInterfaces]...)
	if len(anchors) > 7 {
		anchors = anchors[:7]
	}
	return anchors
}

func buildMapSection(coreClaims []Claim) MapSection {
	var m MapSection
	for _, c := range coreClaims {
		if c.AnchorKind == AnchorSkeleton {
			for _, e := range c.Evidence {
				m.Entrypoints = append(m.Entrypoints, e.Path)
			}
			if c.Summary != "" {
				m.TopModules = splitSummary(c.Summary)
			}
		}
	}
	return m
}

func splitSummary(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			if part := trimSpace(s[start:i]); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := trimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// buildNBA derives the reader's next best action: run the repo if a
// HowToRun claim exists, else read canon, else inspect the skeleton.
// Never empty — a pack with zero claims still tells the reader to look.
func buildNBA(byKind map[AnchorNodeKind][]Claim) []string {
	if claims := byKind[NodeHowToRun]; len(claims) > 0 {
		return []string{"run: " + claims[0].Summary}
	}
	if claims := byKind[NodeCanon]; len(claims) > 0 {
		return []string{"read: " + claims[0].Title}
	}
	if claims := byKind[NodeCore]; len(claims) > 0 {
		return []string{"inspect: " + claims[0].Summary}
	}
	return []string{"no anchors found — inspect the repo root manually"}
}

func trimEvidence(claims []Claim, max int) ([]Claim, bool) {
	out := make([]Claim, len(claims))
	copy(out, claims)
	truncated := false
	for i := range out {
		if len(out[i].Evidence) > max {
			out[i].Evidence = out[i].Evidence[:max]
			truncated = true
		}
	}
	return out, truncated
}

// collectEvidence flattens every section's evidence into the referenced-
// first S EVIDENCE list, in section order, de-duplicated by path+line.
func collectEvidence(pack CognitivePack) []Evidence {
	seen := map[string]bool{}
	var out []Evidence
	add := func(claims []Claim) {
		for _, c := range claims {
			for _, e := range c.Evidence {
				key := e.Path + ":" + strconv.Itoa(e.StartLine)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, e)
			}
		}
	}
	add(pack.Anchors)
	add(pack.Canon)
	add(pack.Boundaries)
	add(pack.Outputs)
	return out
}
