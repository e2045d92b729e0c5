package parse

import (
	"path/filepath"
	"strings"
)

// DefaultSkipPatterns mirrors config.Default().Skip.Patterns; kept here too
// so callers that only need filtering don't have to import internal/config.
var DefaultSkipPatterns = []string{"node_modules", ".git", "dist", "build", ".next", "coverage", "*.lock"}

// FilterSkipped drops any path matching a skip pattern (§4.2 skip filter).
// Patterns starting with "*." compare the file extension; everything else is
// a substring match against the path.
func FilterSkipped(paths []string, patterns []string) []string {
	var out []string
	for _, p := range paths {
		if !matchesAny(p, patterns) {
			out = append(out, p)
		}
	}
	return out
}

func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "*.") {
			if filepath.Ext(path) == pattern[1:] {
				return true
			}
			continue
		}
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
