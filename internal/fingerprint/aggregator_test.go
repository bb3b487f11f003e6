package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

func rank(n int) *int { return &n }

func mentionedResult(m string, pt model.PromptType, sentiment model.Sentiment, conf float64, r *int) model.QueryResult {
	return model.QueryResult{
		Model:        m,
		PromptType:   pt,
		Mentioned:    true,
		Sentiment:    sentiment,
		Confidence:   conf,
		RankPosition: r,
		TokensUsed:   120,
	}
}

func absentResult(m string, pt model.PromptType) model.QueryResult {
	return model.QueryResult{
		Model:      m,
		PromptType: pt,
		Sentiment:  model.SentimentNeutral,
		TokensUsed: 100,
	}
}

func failedResult(m string, pt model.PromptType) model.QueryResult {
	return model.QueryResult{
		Model:      m,
		PromptType: pt,
		Sentiment:  model.SentimentNeutral,
		Error:      "rate limit exceeded",
	}
}

func TestAggregate_ZeroSuccessfulMeansZeroScore(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	results := []model.QueryResult{
		failedResult("claude-haiku-4-5-20251001", model.PromptTypeFactual),
		failedResult("gpt-4o-mini", model.PromptTypeOpinion),
		failedResult("sonar-pro", model.PromptTypeRecommendation),
	}

	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.Zero(t, analysis.VisibilityScore)
	assert.Zero(t, analysis.SuccessfulQueries)
	assert.Equal(t, 3, analysis.TotalQueries)
	assert.Zero(t, analysis.MentionRate)
	assert.Nil(t, analysis.AvgRankPosition)
}

func TestAggregate_AllPerfectScoresAtLeast90(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	var results []model.QueryResult
	for _, m := range []string{"claude-haiku-4-5-20251001", "gpt-4o-mini", "sonar-pro"} {
		for _, pt := range model.PromptTypes() {
			results = append(results, mentionedResult(m, pt, model.SentimentPositive, 0.95, rank(1)))
		}
	}
	require.Len(t, results, 9)

	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.GreaterOrEqual(t, analysis.VisibilityScore, 90.0)
	assert.LessOrEqual(t, analysis.VisibilityScore, 100.0)
	assert.InDelta(t, 1.0, analysis.MentionRate, 0.0001)
	assert.InDelta(t, 1.0, analysis.SentimentScore, 0.0001)
	require.NotNil(t, analysis.AvgRankPosition)
	assert.InDelta(t, 1.0, *analysis.AvgRankPosition, 0.0001)
}

func TestAggregate_AvgRankNilWithoutRanks(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	results := []model.QueryResult{
		mentionedResult("sonar-pro", model.PromptTypeRecommendation, model.SentimentPositive, 0.8, nil),
		mentionedResult("gpt-4o-mini", model.PromptTypeFactual, model.SentimentPositive, 0.8, nil),
	}

	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.Nil(t, analysis.AvgRankPosition)
	assert.Greater(t, analysis.VisibilityScore, 0.0)
}

func TestAggregate_AcmeScenario(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	// 3 models x 3 prompt types, all succeed. Six mention the target
	// positively with ranks [1, 2, nil, 1, 3, nil]; three miss it.
	results := []model.QueryResult{
		mentionedResult("claude-haiku-4-5-20251001", model.PromptTypeFactual, model.SentimentPositive, 0.9, rank(1)),
		mentionedResult("claude-haiku-4-5-20251001", model.PromptTypeOpinion, model.SentimentPositive, 0.9, rank(2)),
		mentionedResult("claude-haiku-4-5-20251001", model.PromptTypeRecommendation, model.SentimentPositive, 0.9, nil),
		mentionedResult("gpt-4o-mini", model.PromptTypeFactual, model.SentimentPositive, 0.9, rank(1)),
		mentionedResult("gpt-4o-mini", model.PromptTypeOpinion, model.SentimentPositive, 0.9, rank(3)),
		mentionedResult("gpt-4o-mini", model.PromptTypeRecommendation, model.SentimentPositive, 0.9, nil),
		absentResult("sonar-pro", model.PromptTypeFactual),
		absentResult("sonar-pro", model.PromptTypeOpinion),
		absentResult("sonar-pro", model.PromptTypeRecommendation),
	}
	results[2].CompetitorMentions = []string{"Brightway Plumbing", "Flowmasters Drain Co"}
	results[5].CompetitorMentions = []string{"Brightway Plumbing"}

	analysis := agg.Aggregate("Acme Co", results, 2*time.Second)

	assert.InDelta(t, 6.0/9.0, analysis.MentionRate, 0.001)
	require.NotNil(t, analysis.AvgRankPosition)
	assert.InDelta(t, 1.75, *analysis.AvgRankPosition, 0.001)
	assert.Greater(t, analysis.VisibilityScore, 0.0)
	assert.Less(t, analysis.VisibilityScore, 100.0)
	assert.Equal(t, 9, analysis.SuccessfulQueries)

	board := analysis.Leaderboard
	assert.Equal(t, 3, board.TotalRecommendationQueries)
	assert.LessOrEqual(t, len(board.Competitors), 10)
	require.NotEmpty(t, board.Competitors)
	assert.Equal(t, "Brightway Plumbing", board.Competitors[0].Name)
	assert.Equal(t, 2, board.Competitors[0].MentionCount)

	assert.Greater(t, analysis.EstimatedCost, 0.0)
	assert.NotEmpty(t, analysis.ID)
	assert.False(t, analysis.GeneratedAt.IsZero())
	assert.Equal(t, int64(2000), analysis.ProcessingTimeMs)
}

func TestAggregate_SentimentMapping(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	results := []model.QueryResult{
		mentionedResult("sonar-pro", model.PromptTypeFactual, model.SentimentPositive, 0.8, nil),
		mentionedResult("sonar-pro", model.PromptTypeOpinion, model.SentimentNeutral, 0.8, nil),
		mentionedResult("sonar-pro", model.PromptTypeRecommendation, model.SentimentNegative, 0.8, nil),
	}

	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.InDelta(t, 0.5, analysis.SentimentScore, 0.0001)
}

func TestAggregate_FloorWhenNeverMentioned(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	// Every query succeeded but the business is invisible. The score
	// must bottom out at 1, never 0, so "no data" and "invisible"
	// stay distinguishable.
	var results []model.QueryResult
	for i := 0; i < 9; i++ {
		results = append(results, absentResult("gpt-4o-mini", model.PromptTypeFactual))
	}

	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.Equal(t, 1.0, analysis.VisibilityScore)
	assert.Equal(t, 9, analysis.SuccessfulQueries)
}

func TestAggregate_EmptyResults(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	analysis := agg.Aggregate("Acme Plumbing", nil, 0)
	assert.Zero(t, analysis.VisibilityScore)
	assert.Zero(t, analysis.TotalQueries)
	assert.Zero(t, analysis.MentionRate)
	assert.Empty(t, analysis.Leaderboard.Competitors)
	assert.Zero(t, analysis.Leaderboard.TotalRecommendationQueries)
}

func TestAggregate_MixedSuccessAndFailure(t *testing.T) {
	t.Parallel()
	agg := New(DefaultWeights())

	results := []model.QueryResult{
		mentionedResult("claude-haiku-4-5-20251001", model.PromptTypeFactual, model.SentimentPositive, 0.9, nil),
		failedResult("gpt-4o-mini", model.PromptTypeOpinion),
		absentResult("sonar-pro", model.PromptTypeRecommendation),
	}

	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.Equal(t, 2, analysis.SuccessfulQueries)
	assert.InDelta(t, 1.0/3.0, analysis.MentionRate, 0.001)
	// Confidence averages over succeeded queries only.
	assert.InDelta(t, 0.45, analysis.AvgConfidence, 0.001)
	assert.Greater(t, analysis.VisibilityScore, 0.0)
}

func TestWeights_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, DefaultWeights().Validate())

	bad := Weights{MentionRate: 0.5, Sentiment: 0.5, Confidence: 0.5, RankQuality: 0.5}
	assert.Error(t, bad.Validate())

	negative := Weights{MentionRate: -0.5, Sentiment: 0.5, Confidence: 0.5, RankQuality: 0.5}
	assert.Error(t, negative.Validate())
}

func TestNew_InvalidWeightsFallBackToDefaults(t *testing.T) {
	t.Parallel()
	agg := New(Weights{})

	var results []model.QueryResult
	for i := 0; i < 9; i++ {
		results = append(results, mentionedResult("sonar-pro", model.PromptTypeRecommendation, model.SentimentPositive, 0.95, rank(1)))
	}
	analysis := agg.Aggregate("Acme Plumbing", results, time.Second)
	assert.GreaterOrEqual(t, analysis.VisibilityScore, 90.0)
}
