package meaning

import "github.com/gobwas/glob"

// artifactPatterns are glob-compiled once at package init; each compiled
// glob is matched against the repo-relative path with '/' as the
// separator, mirroring the discovery filter's own compile-once pattern.
var artifactPatterns = compileArtifactPatterns([]string{
	"dist/**", "build/**", "node_modules/**", "vendor/**", "target/**",
	".cache/**", "coverage/**", "*.lock", "*-lock.json", "**/*.min.js",
})

func compileArtifactPatterns(patterns []string) []glob.Glob {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		compiled = append(compiled, g)
	}
	return compiled
}

// RunArtifactsLens flags generated/vendored output trees so the Anchor
// Graph can exclude them from "core" classification (spec.md §4.9 #6).
// Emits a single boundary claim summarising the matched directories
// rather than one claim per matched file.
func RunArtifactsLens(files []FileInfo) []Claim {
	seen := map[string]bool{}
	var dirs []string

	for _, f := range files {
		if !matchesAnyArtifactPattern(f.Path) {
			continue
		}
		top := topLevelDir(f.Path)
		if !seen[top] {
			seen[top] = true
			dirs = append(dirs, top)
		}
	}

	if len(dirs) == 0 {
		return nil
	}

	evidence := make([]Evidence, 0, len(dirs))
	for _, d := range dirs {
		evidence = append(evidence, Evidence{Path: d})
	}
	return []Claim{{
		Kind:       ClaimArtifactStore,
		Title:      "generated/vendored output",
		Summary:    "excluded from core classification",
		Confidence: 0.9,
		Evidence:   evidence,
	}}
}

func matchesAnyArtifactPattern(path string) bool {
	for _, g := range artifactPatterns {
		if g.Match(path) {
			return true
		}
	}
	return false
}
