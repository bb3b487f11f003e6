package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

func testResponse(content string) *model.Response {
	return &model.Response{
		Content:          content,
		TokensUsed:       120,
		Model:            "claude-haiku-4-5-20251001",
		ProcessingTimeMs: 850,
	}
}

func TestAnalyze_MentionedPositive(t *testing.T) {
	t.Parallel()

	a := New()
	resp := testResponse("Acme Plumbing Co is excellent and highly recommended around Denver.")
	r := a.Analyze(resp, "Acme Plumbing Co", model.PromptTypeFactual)

	assert.True(t, r.Mentioned)
	assert.Equal(t, model.SentimentPositive, r.Sentiment)
	assert.Greater(t, r.Confidence, 0.5)
	assert.LessOrEqual(t, r.Confidence, 1.0)
	assert.Equal(t, "claude-haiku-4-5-20251001", r.Model)
	assert.Equal(t, model.PromptTypeFactual, r.PromptType)
	assert.Equal(t, 120, r.TokensUsed)
	assert.True(t, r.Succeeded())
}

func TestAnalyze_NotMentionedHasZeroConfidence(t *testing.T) {
	t.Parallel()

	a := New()
	r := a.Analyze(testResponse("There are many plumbers in Denver."), "Acme Plumbing Co", model.PromptTypeOpinion)

	assert.False(t, r.Mentioned)
	assert.Zero(t, r.Confidence)
	assert.Empty(t, r.Error)
}

func TestAnalyze_RecommendationExtractsRankAndCompetitors(t *testing.T) {
	t.Parallel()

	a := New()
	resp := testResponse("1. Brightway\n2. Acme Plumbing Co\n3. Flowmasters")
	r := a.Analyze(resp, "Acme Plumbing Co", model.PromptTypeRecommendation)

	require.NotNil(t, r.RankPosition)
	assert.Equal(t, 2, *r.RankPosition)
	assert.Equal(t, []string{"Brightway", "Flowmasters"}, r.CompetitorMentions)
}

func TestAnalyze_NonRecommendationSkipsRank(t *testing.T) {
	t.Parallel()

	a := New()
	// Ordinal list present, but factual prompts never get rank or
	// competitor extraction.
	resp := testResponse("1. Acme Plumbing Co\n2. Brightway")
	r := a.Analyze(resp, "Acme Plumbing Co", model.PromptTypeFactual)

	assert.Nil(t, r.RankPosition)
	assert.Empty(t, r.CompetitorMentions)
}

func TestAnalyze_NilResponseAbsorbed(t *testing.T) {
	t.Parallel()

	a := New()
	r := a.Analyze(nil, "Acme Plumbing Co", model.PromptTypeFactual)

	assert.False(t, r.Mentioned)
	assert.Zero(t, r.Confidence)
	assert.NotEmpty(t, r.Error)
	assert.False(t, r.Succeeded())
}

func TestAnalyze_EmptyBusinessName(t *testing.T) {
	t.Parallel()

	a := New()
	r := a.Analyze(testResponse("Some text about businesses."), "", model.PromptTypeFactual)

	assert.False(t, r.Mentioned)
	assert.Zero(t, r.Confidence)
	// An empty name is a non-mention, not an analysis failure.
	assert.Empty(t, r.Error)
}

func TestAnalyze_MentionedNeutralWhenNoSentimentSignal(t *testing.T) {
	t.Parallel()

	a := New()
	r := a.Analyze(testResponse("Acme Plumbing Co operates in Denver."), "Acme Plumbing Co", model.PromptTypeFactual)

	assert.True(t, r.Mentioned)
	assert.Equal(t, model.SentimentNeutral, r.Sentiment)
	// Exact mention with weak sentiment signal still lands mid-range.
	assert.InDelta(t, 0.6*0.95+0.4*0.3, r.Confidence, 0.001)
}
