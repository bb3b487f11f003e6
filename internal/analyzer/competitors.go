package analyzer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	boldSegment   = regexp.MustCompile(`\*\*([^*]{2,60})\*\*`)
	markdownLink  = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	titleCaser    = cases.Title(language.English)
	maxCandidates = 30
)

// stopPhrases are list-entry leads that are prose, not business names.
var stopPhrases = map[string]bool{
	"here are":   true,
	"the best":   true,
	"top picks":  true,
	"in summary": true,
	"note":       true,
	"others":     true,
	"etc":        true,
}

// ExtractCompetitors collects other business names from a recommendation
// response: ranked list entries and bold names, in order of appearance,
// deduplicated by exact string, with the target business excluded.
func ExtractCompetitors(text, businessName string) []string {
	targets := nameVariants(businessName)

	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		if len(out) >= maxCandidates {
			return
		}
		name := normalizeCompetitorName(raw)
		if name == "" || seen[name] || !plausibleBusinessName(name) || mentionsTarget(name, targets) {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, line := range strings.Split(text, "\n") {
		if m := ordinalLine.FindStringSubmatch(line); m != nil {
			add(candidateFromLine(m[2]))
			continue
		}
		for _, bm := range boldSegment.FindAllStringSubmatch(line, -1) {
			add(candidateFromLine(bm[1]))
		}
	}
	return out
}

// candidateFromLine strips markdown and trims the lead of a list entry
// down to the name before any descriptive tail.
func candidateFromLine(rest string) string {
	s := markdownLink.ReplaceAllString(rest, "$1")
	s = strings.ReplaceAll(s, "**", "")
	for _, sep := range []string{":", " - ", " – ", ",", "("} {
		if idx := strings.Index(s, sep); idx > 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(s, `"'.`))
}

func normalizeCompetitorName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Shouting names come back from some models in all caps; title-case
	// them so dedup works across response styles.
	if isAllUpper(s) {
		s = titleCaser.String(strings.ToLower(s))
	}
	return s
}

func isAllUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters >= 2
}

func plausibleBusinessName(name string) bool {
	if len(name) < 2 || len(name) > 60 {
		return false
	}
	if len(strings.Fields(name)) > 6 {
		return false
	}
	if stopPhrases[strings.ToLower(name)] {
		return false
	}
	first := []rune(name)[0]
	return unicode.IsUpper(first) || unicode.IsDigit(first)
}

func mentionsTarget(name string, targets []string) bool {
	lower := strings.ToLower(name)
	for _, t := range targets {
		if lower == t || containsWord(lower, t) || containsWord(t, lower) {
			return true
		}
	}
	return false
}
