package mcp

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// secretPatterns are the filename/path globs every file-reading tool
// refuses by default (spec.md's secret-safety policy). A caller that
// genuinely needs one of these — a committed .env.example, a fixture
// private key — must pass allow_secrets=true explicitly.
var secretPatterns = []string{
	"**/.env",
	"**/.env.*",
	"*.pem",
	"*.key",
	"**/id_rsa",
	"**/id_ed25519",
	"**/id_ecdsa",
	"**/.ssh/*",
	"**/.aws/credentials",
	"**/.npmrc",
	"**/.netrc",
	"*credentials*.json",
	"*.p12",
	"*.pfx",
}

var compiledSecretGlobs = compileSecretGlobs(secretPatterns)

func compileSecretGlobs(patterns []string) []glob.Glob {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}
	return globs
}

// isSecretPath reports whether relPath (slash-separated, relative to the
// session root) matches one of the denied secret patterns.
func isSecretPath(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	base := filepath.Base(clean)
	for _, g := range compiledSecretGlobs {
		if g.Match(clean) || g.Match(base) {
			return true
		}
	}
	return false
}

// secretPathName returns a short name for the matched pattern, used in the
// path_denied error's detail so the caller knows what tripped the filter.
func secretPathName(relPath string) string {
	lower := strings.ToLower(filepath.Base(relPath))
	switch {
	case strings.HasPrefix(lower, ".env"):
		return "env file"
	case strings.HasSuffix(lower, ".pem") || strings.HasSuffix(lower, ".key"):
		return "key material"
	case strings.Contains(lower, "id_rsa") || strings.Contains(lower, "id_ed25519") || strings.Contains(lower, "id_ecdsa"):
		return "ssh private key"
	case strings.Contains(lower, "credentials"):
		return "credentials file"
	default:
		return "sensitive file"
	}
}
