package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

const (
	maxServices     = 12
	maxReferences   = 20
	minParagraphLen = 40
	maxParagraphLen = 500
	maxTitleLen     = 80
)

var (
	mdLinkRe       = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)(?:\s[^)]*)?\)`)
	mdImageRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkOnlyLineRe = regexp.MustCompile(`^\[[^\]]*\]\([^)]*\)$`)
	ordinalLineRe  = regexp.MustCompile(`^\d+[.)]\s`)
	headingLineRe  = regexp.MustCompile(`^#{1,4}\s+`)
	listItemRe     = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.+)$`)

	serviceHeadingRe = regexp.MustCompile(
		`(?i)^#{1,4}\s+(?:our\s+)?(?:services|solutions|offerings|specialties|what we do|what we offer)\b`)

	assetExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".svg": true, ".webp": true, ".ico": true, ".pdf": true,
		".css": true, ".js": true, ".zip": true, ".mp4": true,
		".webm": true,
	}
)

// Extract distills crawl metadata from fetched pages. The first page is
// treated as the homepage; Source and CrawledAt are the caller's to fill.
func Extract(pages []model.CrawledPage, seedURL string) model.CrawlData {
	var data model.CrawlData
	if len(pages) == 0 {
		return data
	}

	home := pages[0]
	data.Title = cleanTitle(home.Title)
	data.Description = firstParagraph(home.Markdown)

	seen := make(map[string]bool)
	for _, p := range pages {
		for _, item := range serviceItems(p.Markdown) {
			key := strings.ToLower(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			data.Services = append(data.Services, item)
			if len(data.Services) == maxServices {
				break
			}
		}
		if len(data.Services) == maxServices {
			break
		}
	}

	data.References = outboundRefs(pages, seedURL)
	return data
}

var titleSeparators = []string{" | ", " – ", " — ", " :: ", " - "}

var genericTitleSegments = map[string]bool{
	"home":             true,
	"homepage":         true,
	"welcome":          true,
	"index":            true,
	"official site":    true,
	"official website": true,
}

// cleanTitle reduces a page title to the business name it usually leads
// with, skipping generic segments like "Home".
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	segments := []string{title}
	for _, sep := range titleSeparators {
		if strings.Contains(title, sep) {
			segments = strings.Split(title, sep)
			break
		}
	}

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || genericTitleSegments[strings.ToLower(seg)] {
			continue
		}
		return truncate(seg, maxTitleLen)
	}
	return truncate(strings.TrimSpace(segments[0]), maxTitleLen)
}

// firstParagraph returns the first run of prose long enough to describe
// the business. Headings, images, lists, and navigation lines are skipped.
func firstParagraph(markdown string) string {
	var para []string

	flush := func() string {
		if len(para) == 0 {
			return ""
		}
		joined := strings.Join(para, " ")
		para = para[:0]
		text := strings.TrimSpace(stripInlineMarkdown(joined))
		if len(text) >= minParagraphLen {
			return truncate(text, maxParagraphLen)
		}
		return ""
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || skipLine(trimmed) {
			if text := flush(); text != "" {
				return text
			}
			continue
		}
		para = append(para, trimmed)
	}
	return flush()
}

func skipLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "#"),
		strings.HasPrefix(line, "!["),
		strings.HasPrefix(line, ">"),
		strings.HasPrefix(line, "|"),
		strings.HasPrefix(line, "- "),
		strings.HasPrefix(line, "* "),
		strings.HasPrefix(line, "+ "),
		strings.HasPrefix(line, "---"),
		strings.HasPrefix(line, "==="):
		return true
	}
	return ordinalLineRe.MatchString(line) || linkOnlyLineRe.MatchString(line)
}

// serviceItems collects list items under a services-style heading. The
// section ends at the next heading.
func serviceItems(markdown string) []string {
	var items []string
	inSection := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if headingLineRe.MatchString(trimmed) {
			inSection = serviceHeadingRe.MatchString(trimmed)
			continue
		}
		if !inSection {
			continue
		}
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			item := strings.TrimSpace(stripInlineMarkdown(m[1]))
			if len(item) >= 3 && len(item) <= 80 {
				items = append(items, item)
			}
		}
	}
	return items
}

// outboundRefs gathers links pointing off the crawled site. They feed the
// notability check, so order is preserved and duplicates are dropped.
func outboundRefs(pages []model.CrawledPage, seedURL string) []string {
	seedHost := hostOf(seedURL)
	if seedHost == "" {
		return nil
	}

	var refs []string
	seen := make(map[string]bool)
	for _, p := range pages {
		for _, m := range mdLinkRe.FindAllStringSubmatch(p.Markdown, -1) {
			u, err := url.Parse(m[2])
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				continue
			}
			if sameHost(u.Host, seedHost) {
				continue
			}
			if assetExts[strings.ToLower(path.Ext(u.Path))] {
				continue
			}
			u.Fragment = ""
			key := u.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, key)
			if len(refs) == maxReferences {
				return refs
			}
		}
	}
	return refs
}

// discoverLinks finds same-site pages linked from markdown, skipping
// excluded paths and assets, capped at limit.
func discoverLinks(markdown, base string, matcher *PathMatcher, limit int) []string {
	if limit <= 0 {
		return nil
	}
	baseU, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	for _, m := range mdLinkRe.FindAllStringSubmatch(markdown, -1) {
		raw := m[2]
		if strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "tel:") ||
			strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "#") {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		ref := baseU.ResolveReference(u)
		if ref.Scheme != "http" && ref.Scheme != "https" {
			continue
		}
		if !sameHost(ref.Host, baseU.Host) {
			continue
		}
		if ref.Path == "" || ref.Path == "/" {
			continue
		}
		if assetExts[strings.ToLower(path.Ext(ref.Path))] {
			continue
		}
		ref.Fragment = ""
		key := ref.String()
		if seen[key] || matcher.IsExcluded(key) {
			continue
		}
		seen[key] = true
		links = append(links, key)
		if len(links) == limit {
			break
		}
	}
	return links
}

// stripInlineMarkdown flattens links to their text and drops images and
// emphasis markers.
func stripInlineMarkdown(s string) string {
	s = mdImageRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	return strings.NewReplacer("**", "", "__", "", "*", "", "`", "").Replace(s)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func sameHost(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") ==
		strings.TrimPrefix(strings.ToLower(b), "www.")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
