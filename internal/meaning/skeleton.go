package meaning

import (
	"path/filepath"
	"sort"
	"strings"
)

var entrypointBasenames = map[string]bool{
	"main.go": true, "index.js": true, "index.ts": true, "__main__.py": true,
	"app.py": true, "server.go": true, "Main.java": true,
}

// RunSkeletonLens surfaces the repo's top modules and likely entrypoints
// (spec.md §4.9 #7), the last lens before Anchor Graph assembly. Top
// modules are ranked by file count, descending, ties broken by path;
// artifact/vendor directories never appear here — DetectArchetype's
// ArtifactDirs are excluded at the caller's Corpus-walk boundary, but this
// lens re-checks signals defensively since callers vary.
func RunSkeletonLens(files []FileInfo, sig ArchetypeSignals) []Claim {
	counts := map[string]int{}
	for dir, n := range sig.TopDirFileCounts {
		if artifactDirNames[dir] || dir == "." {
			continue
		}
		counts[dir] = n
	}

	type dirCount struct {
		dir string
		n   int
	}
	ranked := make([]dirCount, 0, len(counts))
	for d, n := range counts {
		ranked = append(ranked, dirCount{d, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].dir < ranked[j].dir
	})

	topModules := make([]string, 0, len(ranked))
	for _, rc := range ranked {
		topModules = append(topModules, rc.dir)
	}

	var entrypoints []Evidence
	for _, f := range files {
		if entrypointBasenames[filepath.Base(f.Path)] {
			entrypoints = append(entrypoints, Evidence{Path: f.Path})
		}
	}
	sort.Slice(entrypoints, func(i, j int) bool { return entrypoints[i].Path < entrypoints[j].Path })

	if len(topModules) == 0 && len(entrypoints) == 0 {
		return nil
	}

	summary := strings.Join(topModules, ", ")
	claim := Claim{
		Kind:       ClaimAnchor,
		AnchorKind: AnchorSkeleton,
		Title:      "code skeleton",
		Summary:    summary,
		Confidence: 0.55,
		Evidence:   entrypoints,
	}
	return []Claim{claim}
}
