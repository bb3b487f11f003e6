package analyzer

import (
	"strings"
	"unicode"
)

// MatchType describes how a business name was found in response text.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchPartial    MatchType = "partial"
	MatchContextual MatchType = "contextual"
)

// MentionMatch is the outcome of mention detection for one response.
type MentionMatch struct {
	Found      bool
	MatchType  MatchType
	Variant    string
	Confidence float64
}

// Confidence per match type. Exact full-name hits are near-certain; a
// suffix-stripped core or a contextual first-token hit carries less signal.
const (
	exactConfidence      = 0.95
	partialConfidence    = 0.75
	contextualConfidence = 0.6
)

var legalSuffixes = []string{
	"incorporated", "corporation", "company", "limited", "services",
	"solutions", "group", "inc", "llc", "ltd", "corp", "co",
}

// contextCues are business nouns that, appearing near the name's first
// token, make a loose match credible.
var contextCues = []string{
	"company", "business", "firm", "service", "services", "agency",
	"provider", "shop", "store", "restaurant", "contractor",
}

// DetectMention looks for the business name in text using exact, partial
// (legal suffix stripped), and contextual variants. Empty or whitespace
// names never match.
func DetectMention(text, businessName string) MentionMatch {
	name := strings.ToLower(strings.TrimSpace(businessName))
	if name == "" || text == "" {
		return MentionMatch{}
	}
	haystack := strings.ToLower(text)

	if containsWord(haystack, name) {
		return MentionMatch{Found: true, MatchType: MatchExact, Variant: name, Confidence: exactConfidence}
	}

	core := stripLegalSuffixes(name)
	if core != "" && core != name && containsWord(haystack, core) {
		return MentionMatch{Found: true, MatchType: MatchPartial, Variant: core, Confidence: partialConfidence}
	}

	// Contextual: the distinctive first token of the name close to a
	// business cue word in the same sentence.
	first := firstToken(core)
	if len(first) >= 4 {
		for _, sentence := range strings.FieldsFunc(haystack, isSentenceBoundary) {
			if !containsWord(sentence, first) {
				continue
			}
			for _, cue := range contextCues {
				if containsWord(sentence, cue) {
					return MentionMatch{Found: true, MatchType: MatchContextual, Variant: first, Confidence: contextualConfidence}
				}
			}
		}
	}

	return MentionMatch{}
}

// nameVariants returns the lowercase match variants for a business name,
// most specific first.
func nameVariants(businessName string) []string {
	name := strings.ToLower(strings.TrimSpace(businessName))
	if name == "" {
		return nil
	}
	variants := []string{name}
	if core := stripLegalSuffixes(name); core != "" && core != name {
		variants = append(variants, core)
	}
	return variants
}

// stripLegalSuffixes removes trailing legal-form tokens ("inc", "llc", ...)
// from an already lowercased name.
func stripLegalSuffixes(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, ",", " "))
	for len(words) > 1 {
		last := strings.TrimRight(words[len(words)-1], ".")
		matched := false
		for _, suffix := range legalSuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	return strings.Join(words, " ")
}

func firstToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isSentenceBoundary(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

// containsWord reports whether needle occurs in haystack on word
// boundaries. Both inputs must already be lowercased.
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		beforeOK := idx == 0 || !isWordRune(rune(haystack[idx-1]))
		afterOK := end == len(haystack) || !isWordRune(rune(haystack[end]))
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func containsAnyWord(haystack string, needles []string) bool {
	for _, n := range needles {
		if containsWord(haystack, n) {
			return true
		}
	}
	return false
}
