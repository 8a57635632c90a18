package meaning

import (
	"path/filepath"
	"strings"
)

// howToRunSignals maps a filename/path fragment to the boundary kind it
// evidences (spec.md §4.9 #3).
var howToRunSignals = []struct {
	match string
	kind  BoundaryKind
}{
	{"Makefile", BoundaryBuild},
	{"CMakeLists.txt", BoundaryBuild},
	{"Dockerfile", BoundaryRun},
	{"docker-compose.yml", BoundaryServe},
	{"docker-compose.yaml", BoundaryServe},
	{".github/workflows/", BoundaryTest},
	{"scripts/", BoundaryRun},
}

// RunHowToRunLens parses build/run/test surfaces and emits one
// boundary+anchor pair per distinguishable surface found.
func RunHowToRunLens(files []FileInfo) []Claim {
	var claims []Claim
	seen := map[BoundaryKind]bool{}

	for _, f := range files {
		for _, sig := range howToRunSignals {
			if !matchesSignal(f.Path, sig.match) {
				continue
			}
			if seen[sig.kind] {
				continue
			}
			seen[sig.kind] = true
			claims = append(claims,
				Claim{
					Kind:         ClaimBoundary,
					BoundaryKind: sig.kind,
					Title:        string(sig.kind),
					Summary:      "surface found at " + f.Path,
					Confidence:   0.7,
					Evidence:     []Evidence{{Path: f.Path}},
				},
				Claim{
					Kind:       ClaimAnchor,
					AnchorKind: AnchorHowto,
					Title:      "how to " + string(sig.kind),
					Summary:    f.Path,
					Confidence: 0.7,
					Evidence:   []Evidence{{Path: f.Path}},
				},
			)
		}
	}
	return claims
}

func matchesSignal(path, signal string) bool {
	if strings.HasSuffix(signal, "/") {
		return strings.Contains(path, signal)
	}
	return filepath.Base(path) == signal
}
