// Package fingerprint reduces a batch of per-query results into one
// FingerprintAnalysis: the visibility score, mention and sentiment
// rates, and the competitive leaderboard.
package fingerprint

import (
	"time"

	"github.com/google/uuid"

	"github.com/beacon-intel/aiviz-cli/internal/cost"
	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// Aggregator computes fingerprint analyses with a fixed weight set.
type Aggregator struct {
	weights Weights
}

// New creates an aggregator. Invalid weights fall back to defaults.
func New(weights Weights) *Aggregator {
	if err := weights.Validate(); err != nil {
		weights = DefaultWeights()
	}
	return &Aggregator{weights: weights}
}

// Aggregate reduces results into a FingerprintAnalysis. The score is 0
// exactly when no query succeeded; any succeeding batch scores at
// least 1.
func (a *Aggregator) Aggregate(businessName string, results []model.QueryResult, elapsed time.Duration) *model.FingerprintAnalysis {
	analysis := &model.FingerprintAnalysis{
		ID:               uuid.NewString(),
		BusinessName:     businessName,
		TotalQueries:     len(results),
		Results:          results,
		Leaderboard:      buildLeaderboard(businessName, results),
		ProcessingTimeMs: elapsed.Milliseconds(),
		GeneratedAt:      time.Now().UTC(),
	}

	var mentioned, successful int
	var confidenceSum, sentimentSum float64
	var rankSum float64
	var rankCount int

	for _, r := range results {
		analysis.TotalTokens += r.TokensUsed
		if r.Succeeded() {
			successful++
			confidenceSum += r.Confidence
		}
		if !r.Mentioned {
			continue
		}
		mentioned++
		sentimentSum += sentimentValue(r.Sentiment)
		if r.RankPosition != nil {
			rankSum += float64(*r.RankPosition)
			rankCount++
		}
	}

	analysis.SuccessfulQueries = successful
	analysis.EstimatedCost = cost.Fingerprint(results)

	if len(results) > 0 {
		analysis.MentionRate = float64(mentioned) / float64(len(results))
	}
	if mentioned > 0 {
		analysis.SentimentScore = sentimentSum / float64(mentioned)
	}
	if successful > 0 {
		analysis.AvgConfidence = confidenceSum / float64(successful)
	}
	if rankCount > 0 {
		avg := rankSum / float64(rankCount)
		analysis.AvgRankPosition = &avg
	}

	analysis.VisibilityScore = a.visibilityScore(analysis, mentioned)
	return analysis
}

// visibilityScore is the weighted composite. Two contracts are binding:
// exactly 0 when nothing succeeded, and in [1,100] otherwise.
func (a *Aggregator) visibilityScore(analysis *model.FingerprintAnalysis, mentioned int) float64 {
	if analysis.SuccessfulQueries == 0 {
		return 0
	}

	rankQuality := 0.0
	switch {
	case analysis.AvgRankPosition != nil:
		rankQuality = (11 - *analysis.AvgRankPosition) / 10
	case mentioned > 0:
		// Mentioned but never ranked reads as mid-pack.
		rankQuality = 0.5
	}

	raw := 100 * (a.weights.MentionRate*analysis.MentionRate +
		a.weights.Sentiment*analysis.SentimentScore +
		a.weights.Confidence*analysis.AvgConfidence +
		a.weights.RankQuality*rankQuality)

	if raw < 1 {
		return 1
	}
	if raw > 100 {
		return 100
	}
	return raw
}

func sentimentValue(s model.Sentiment) float64 {
	switch s {
	case model.SentimentPositive:
		return 1
	case model.SentimentNegative:
		return 0
	default:
		return 0.5
	}
}
