package meaning

import (
	"path/filepath"
	"strings"
)

// FileInfo is the minimal per-file description every lens consumes —
// callers build this from the Corpus/scanner rather than the Meaning
// Engine re-walking the filesystem itself.
type FileInfo struct {
	Path     string
	Language string
	Size     int64
}

var buildManifestNames = map[string]bool{
	"go.mod": true, "package.json": true, "Cargo.toml": true,
	"pyproject.toml": true, "pom.xml": true, "build.gradle": true,
	"Gemfile": true, "composer.json": true,
}

var ciConfigPrefixes = []string{".github/workflows/", ".gitlab-ci", ".circleci/", "Jenkinsfile"}

var contractDirNames = map[string]bool{"proto": true, "contracts": true, "schemas": true, "api": true, "openapi": true}

var artifactDirNames = map[string]bool{"dist": true, "build": true, "node_modules": true, "vendor": true, "target": true, ".cache": true, "coverage": true}

// DetectArchetype computes the stable signals every other lens reads.
// Never emits a Claim — this is pure signal extraction (spec.md §4.9 #1).
func DetectArchetype(files []FileInfo) ArchetypeSignals {
	sig := ArchetypeSignals{
		TopDirFileCounts: map[string]int{},
		LanguageMix:      map[string]int{},
	}

	for _, f := range files {
		top := topLevelDir(f.Path)
		sig.TopDirFileCounts[top]++
		if f.Language != "" {
			sig.LanguageMix[f.Language]++
		}

		base := filepath.Base(f.Path)
		switch {
		case buildManifestNames[base]:
			sig.BuildManifests = append(sig.BuildManifests, f.Path)
		case strings.EqualFold(base, "CHANGELOG.md"), strings.EqualFold(base, "CHANGELOG"):
			sig.HasChangelog = true
		case strings.EqualFold(base, "README.md"), strings.EqualFold(base, "README"):
			sig.HasReadme = true
		case strings.EqualFold(base, "AGENTS.md"):
			sig.HasAgentsDoc = true
		case strings.EqualFold(base, "PHILOSOPHY.md"):
			sig.HasPhilosophyDoc = true
		}

		for _, prefix := range ciConfigPrefixes {
			if strings.Contains(f.Path, prefix) {
				sig.CIConfigs = append(sig.CIConfigs, f.Path)
				break
			}
		}

		if contractDirNames[top] {
			sig.ContractDirs = appendUnique(sig.ContractDirs, top)
		}
		if artifactDirNames[top] {
			sig.ArtifactDirs = appendUnique(sig.ArtifactDirs, top)
		}
	}

	return sig
}

func topLevelDir(path string) string {
	path = strings.TrimPrefix(path, "./")
	if idx := strings.Index(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return "."
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
