package meaning

import "strings"

var infraSignals = []string{"k8s/", "helm/", ".tf", "kustomize/", "terraform/", "gitops/"}

// RunInfraLens detects deploy surfaces and emits at most one anchor
// pointing at the highest-signal file (spec.md §4.9 #4): the file whose
// path matches the earliest, most specific signal wins.
func RunInfraLens(files []FileInfo) []Claim {
	var best FileInfo
	bestRank := len(infraSignals)

	for _, f := range files {
		for i, sig := range infraSignals {
			if strings.Contains(f.Path, sig) && i < bestRank {
				best = f
				bestRank = i
			}
		}
	}

	if bestRank == len(infraSignals) {
		return nil
	}
	return []Claim{{
		Kind:       ClaimAnchor,
		AnchorKind: AnchorInfra,
		Title:      "deployment surface",
		Summary:    best.Path,
		Confidence: 0.65,
		Evidence:   []Evidence{{Path: best.Path}},
	}}
}
