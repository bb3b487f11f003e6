package processor

import "github.com/beacon-intel/aiviz-cli/internal/model"

// Stats summarizes a processed batch for logging and the API surface.
// Aggregation for scoring lives in the fingerprint package; these are
// observability numbers only.
type Stats struct {
	TotalQueries  int                   `json:"total_queries"`
	Succeeded     int                   `json:"succeeded"`
	Failed        int                   `json:"failed"`
	MentionRate   float64               `json:"mention_rate"`
	AvgConfidence float64               `json:"avg_confidence"`
	TotalTokens   int                   `json:"total_tokens"`
	PerModel      map[string]ModelStats `json:"per_model"`
}

// ModelStats is the per-model slice of Stats.
type ModelStats struct {
	Queries       int     `json:"queries"`
	Succeeded     int     `json:"succeeded"`
	Mentions      int     `json:"mentions"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// ComputeStats derives batch statistics from query results.
func ComputeStats(results []model.QueryResult) Stats {
	stats := Stats{
		TotalQueries: len(results),
		PerModel:     make(map[string]ModelStats),
	}
	if len(results) == 0 {
		return stats
	}

	var mentions int
	var confidenceSum float64
	confidenceSums := make(map[string]float64)

	for _, r := range results {
		ms := stats.PerModel[r.Model]
		ms.Queries++

		if r.Succeeded() {
			stats.Succeeded++
			ms.Succeeded++
			confidenceSum += r.Confidence
			confidenceSums[r.Model] += r.Confidence
		} else {
			stats.Failed++
		}
		if r.Mentioned {
			mentions++
			ms.Mentions++
		}
		stats.TotalTokens += r.TokensUsed

		stats.PerModel[r.Model] = ms
	}

	stats.MentionRate = float64(mentions) / float64(len(results))
	if stats.Succeeded > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Succeeded)
	}
	for m, ms := range stats.PerModel {
		if ms.Succeeded > 0 {
			ms.AvgConfidence = confidenceSums[m] / float64(ms.Succeeded)
			stats.PerModel[m] = ms
		}
	}
	return stats
}
