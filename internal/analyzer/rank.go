package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// ordinalLine matches list entries like "1. Acme", "2) Acme", or
// "- 3. Acme" and captures the position and the rest of the line.
var ordinalLine = regexp.MustCompile(`^\s*(?:[-*]\s*)?(\d{1,2})[.)]\s+(.+)$`)

// Ranked positions outside this window are ignored.
const (
	minRank = 1
	maxRank = 10
)

// ExtractRank returns the first list position (1-10) whose line contains
// one of the name variants, or nil when the business never appears on a
// ranked line. Variants must be lowercased.
func ExtractRank(text string, variants []string) *int {
	if len(variants) == 0 {
		return nil
	}
	for _, line := range strings.Split(text, "\n") {
		m := ordinalLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < minRank || n > maxRank {
			continue
		}
		if containsAnyWord(strings.ToLower(line), variants) {
			rank := n
			return &rank
		}
	}
	return nil
}
