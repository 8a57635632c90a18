package meaning

import "testing"

func TestBuildPack_SectionOrderAndNeverDropped(t *testing.T) {
	graph := Run(Input{
		Files: []FileInfo{{Path: "README.md"}, {Path: "Makefile"}, {Path: "cmd/main.go"}},
		CanonDocs: []CanonDoc{
			{Path: "README.md", Content: []byte("# Project\n\n1. build\n2. run\n")},
		},
	})
	pack := BuildPack(graph, defaultPackOptions())

	if len(pack.Anchors) == 0 {
		t.Error("S ANCHORS must never be empty when a StartHere claim exists")
	}
	if len(pack.Canon) == 0 {
		t.Error("S CANON must never be dropped when canon claims exist")
	}
	if len(pack.NBA) == 0 {
		t.Error("NBA must never be empty")
	}
}

func TestBuildPack_EmptyGraphStillProducesNBA(t *testing.T) {
	pack := BuildPack(AnchorGraph{}, defaultPackOptions())
	if len(pack.NBA) == 0 {
		t.Fatal("expected a fallback NBA even for an empty graph")
	}
	if pack.NBA[0] != "no anchors found — inspect the repo root manually" {
		t.Fatalf("unexpected fallback NBA: %v", pack.NBA)
	}
}

func TestBuildPack_TrimsEvidenceBeyondMax(t *testing.T) {
	claims := []Claim{{
		Kind:       ClaimAnchor,
		AnchorKind: AnchorCanon,
		Title:      "many evidence items",
		Evidence: []Evidence{
			{Path: "a.go", StartLine: 1}, {Path: "b.go", StartLine: 2},
			{Path: "c.go", StartLine: 3}, {Path: "d.go", StartLine: 4},
		},
	}}
	graph := AnchorGraph{Nodes: []AnchorNode{{Kind: NodeCanon, Claims: claims}}}
	pack := BuildPack(graph, PackOptions{MaxEvidencePerSection: 2})

	if len(pack.Canon) != 1 || len(pack.Canon[0].Evidence) != 2 {
		t.Fatalf("expected evidence trimmed to 2, got %+v", pack.Canon)
	}
	if !pack.Truncated {
		t.Error("expected Truncated=true when evidence was trimmed")
	}
}

func TestBuildPack_NBAPrefersHowToRunOverCanon(t *testing.T) {
	graph := AnchorGraph{Nodes: []AnchorNode{
		{Kind: NodeCanon, Claims: []Claim{{Title: "readme"}}},
		{Kind: NodeHowToRun, Claims: []Claim{{Summary: "make build"}}},
	}}
	pack := BuildPack(graph, defaultPackOptions())
	if pack.NBA[0] != "run: make build" {
		t.Fatalf("expected run NBA to take priority, got %v", pack.NBA)
	}
}

func TestSplitSummary(t *testing.T) {
	got := splitSummary("internal, cmd, pkg")
	want := []string{"internal", "cmd", "pkg"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollectEvidence_DedupesByPathAndLine(t *testing.T) {
	pack := CognitivePack{
		Anchors: []Claim{{Evidence: []Evidence{{Path: "a.go", StartLine: 1}}}},
		Canon:   []Claim{{Evidence: []Evidence{{Path: "a.go", StartLine: 1}, {Path: "b.go", StartLine: 2}}}},
	}
	ev := collectEvidence(pack)
	if len(ev) != 2 {
		t.Fatalf("expected 2 deduped evidence items, got %d: %+v", len(ev), ev)
	}
}
