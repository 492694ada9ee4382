// Package globmatch implements the two exclusion-glob matching modes used
// by the dispatcher: full-path glob mode for patterns that look like a
// path, and segment mode for a bare name pattern that may match any path
// component.
package globmatch

import (
	"path"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"
)

// Match reports whether rel (a POSIX-style relative path, forward slashes
// only, no leading slash) matches pattern under the rules of §4.1:
//
//   - if pattern contains '/' or starts with "**", it is matched against
//     the full relative path with doublestar semantics;
//   - otherwise it is matched in segment mode: it matches if any single
//     path segment (including the final name) matches via fnmatch-style
//     globbing.
func Match(pattern, rel string) bool {
	rel = strings.TrimPrefix(filepathToSlash(rel), "/")
	if strings.Contains(pattern, "/") || strings.HasPrefix(pattern, "**") {
		ok, _ := doublestar.Match(pattern, rel)
		return ok
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" {
			continue
		}
		if ok, _ := path.Match(pattern, seg); ok {
			return true
		}
	}
	return false
}

// AnyMatch reports whether rel matches any of patterns.
func AnyMatch(patterns []string, rel string) bool {
	for _, p := range patterns {
		if Match(p, rel) {
			return true
		}
	}
	return false
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
