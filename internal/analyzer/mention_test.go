package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMention_ExactName(t *testing.T) {
	t.Parallel()

	m := DetectMention("I would suggest Acme Plumbing Co for that job.", "Acme Plumbing Co")
	assert.True(t, m.Found)
	assert.Equal(t, MatchExact, m.MatchType)
	assert.InDelta(t, 0.95, m.Confidence, 0.001)
}

func TestDetectMention_CaseInsensitive(t *testing.T) {
	t.Parallel()

	m := DetectMention("ACME PLUMBING CO is well known locally.", "Acme Plumbing Co")
	assert.True(t, m.Found)
	assert.Equal(t, MatchExact, m.MatchType)
}

func TestDetectMention_PartialWithSuffixStripped(t *testing.T) {
	t.Parallel()

	m := DetectMention("Acme Plumbing has served the area for years.", "Acme Plumbing LLC")
	assert.True(t, m.Found)
	assert.Equal(t, MatchPartial, m.MatchType)
	assert.Equal(t, "acme plumbing", m.Variant)
	assert.Less(t, m.Confidence, 0.95)
}

func TestDetectMention_Contextual(t *testing.T) {
	t.Parallel()

	m := DetectMention("Locals often point to Brightway as the most dependable company in town.", "Brightway Cleaning Services")
	assert.True(t, m.Found)
	assert.Equal(t, MatchContextual, m.MatchType)
}

func TestDetectMention_EmptyNameNeverMatches(t *testing.T) {
	t.Parallel()

	assert.False(t, DetectMention("Any business text here.", "").Found)
	assert.False(t, DetectMention("Any business text here.", "   ").Found)
}

func TestDetectMention_NoFalsePositiveInsideWords(t *testing.T) {
	t.Parallel()

	// "Acme" inside "Acmeta" must not count.
	m := DetectMention("Acmeta Systems is unrelated.", "Acme")
	assert.False(t, m.Found)
}

func TestDetectMention_AbsentName(t *testing.T) {
	t.Parallel()

	m := DetectMention("There are many fine plumbers in Denver.", "Acme Plumbing Co")
	assert.False(t, m.Found)
	assert.Zero(t, m.Confidence)
}

func TestStripLegalSuffixes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"acme plumbing llc", "acme plumbing"},
		{"acme plumbing co.", "acme plumbing"},
		{"acme holdings inc", "acme holdings"},
		{"acme services group llc", "acme"},
		{"acme", "acme"},
		{"llc", "llc"}, // never strip down to nothing
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripLegalSuffixes(tt.in), "input %q", tt.in)
	}
}

func TestContainsWord_Boundaries(t *testing.T) {
	t.Parallel()

	assert.True(t, containsWord("try acme plumbing today", "acme plumbing"))
	assert.True(t, containsWord("acme.", "acme"))
	assert.True(t, containsWord("(acme)", "acme"))
	assert.False(t, containsWord("acmeplumbing", "acme"))
	assert.False(t, containsWord("macme", "acme"))
	assert.False(t, containsWord("anything", ""))
}

func TestNameVariants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"acme plumbing llc", "acme plumbing"}, nameVariants("Acme Plumbing LLC"))
	assert.Equal(t, []string{"acme"}, nameVariants("Acme"))
	assert.Nil(t, nameVariants("  "))
}
