package analyzer

import (
	"strings"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// SentimentSignal is the sentiment read on one response: a label, an
// internal score in [-1, 1], evidence keywords, and a confidence that
// scales with how much signal was found.
type SentimentSignal struct {
	Label      model.Sentiment
	Score      float64
	Confidence float64
	Evidence   []string
}

var positiveKeywords = []string{
	"excellent", "great", "best", "top-rated", "highly recommended",
	"recommend", "recommended", "reliable", "trusted", "trustworthy",
	"outstanding", "renowned", "reputable", "award-winning", "popular",
	"praised", "professional", "responsive", "high quality", "well-regarded",
	"impressive", "leading", "favorite", "friendly",
}

var negativeKeywords = []string{
	"poor", "bad", "worst", "avoid", "unreliable", "scam", "fraud",
	"complaint", "complaints", "lawsuit", "overpriced", "disappointing",
	"mediocre", "subpar", "rude", "untrustworthy", "negative reviews",
	"low quality", "inconsistent", "unprofessional",
}

const (
	positiveThreshold = 0.15
	negativeThreshold = -0.15
	maxEvidence       = 8
)

// ScoreSentiment tallies lexicon hits over the whole response. No signal
// at all reads as low-confidence neutral.
func ScoreSentiment(text string) SentimentSignal {
	lower := strings.ToLower(text)

	var pos, neg int
	var evidence []string
	for _, kw := range positiveKeywords {
		if n := countWord(lower, kw); n > 0 {
			pos += n
			if len(evidence) < maxEvidence {
				evidence = append(evidence, kw)
			}
		}
	}
	for _, kw := range negativeKeywords {
		if n := countWord(lower, kw); n > 0 {
			neg += n
			if len(evidence) < maxEvidence {
				evidence = append(evidence, kw)
			}
		}
	}

	total := pos + neg
	if total == 0 {
		return SentimentSignal{Label: model.SentimentNeutral, Confidence: 0.3}
	}

	score := float64(pos-neg) / float64(total)
	label := model.SentimentNeutral
	switch {
	case score > positiveThreshold:
		label = model.SentimentPositive
	case score < negativeThreshold:
		label = model.SentimentNegative
	}

	confidence := 0.4 + 0.1*float64(total)
	if confidence > 0.95 {
		confidence = 0.95
	}

	return SentimentSignal{Label: label, Score: score, Confidence: confidence, Evidence: evidence}
}

// countWord counts word-boundary occurrences of needle in an already
// lowercased haystack.
func countWord(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	var count int
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return count
		}
		idx += start
		end := idx + len(needle)
		beforeOK := idx == 0 || !isWordRune(rune(haystack[idx-1]))
		afterOK := end == len(haystack) || !isWordRune(rune(haystack[end]))
		if beforeOK && afterOK {
			count++
		}
		start = idx + 1
	}
}
