package crawler

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns keep link expansion on the pages that describe
// the business rather than its content feed.
var defaultExcludePatterns = []string{
	"/blog/*",
	"/news/*",
	"/press/*",
	"/careers/*",
	"/tag/*",
	"/category/*",
	"/wp-content/*",
	"/privacy*",
	"/terms*",
	"/login*",
	"/cart*",
}

// PathMatcher filters URLs by glob-style path patterns. A pattern like
// "/blog/*" also matches deeper paths such as "/blog/2024/post".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher, falling back to the default
// exclusion list when no patterns are given.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether a URL's path matches any exclude pattern.
// Unparseable URLs are excluded outright.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	urlPath := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented is path.Match extended so that a trailing "/*" matches
// any depth: "/blog/*" matches "/blog/a" and "/blog/a/b/c".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
