package model

import "time"

// FingerprintAnalysis is the aggregate visibility picture for one business
// across a batch of query results.
type FingerprintAnalysis struct {
	ID                string                 `json:"id,omitempty"`
	BusinessID        string                 `json:"business_id,omitempty"`
	BusinessName      string                 `json:"business_name"`
	VisibilityScore   float64                `json:"visibility_score"`
	MentionRate       float64                `json:"mention_rate"`
	SentimentScore    float64                `json:"sentiment_score"`
	AvgConfidence     float64                `json:"avg_confidence"`
	AvgRankPosition   *float64               `json:"avg_rank_position,omitempty"`
	TotalQueries      int                    `json:"total_queries"`
	SuccessfulQueries int                    `json:"successful_queries"`
	Leaderboard       CompetitiveLeaderboard `json:"leaderboard"`
	Results           []QueryResult          `json:"results,omitempty"`
	TotalTokens       int                    `json:"total_tokens"`
	EstimatedCost     float64                `json:"estimated_cost_usd"`
	ProcessingTimeMs  int64                  `json:"processing_time_ms"`
	GeneratedAt       time.Time              `json:"generated_at"`
}

// LeaderboardTarget summarizes the tracked business inside its own
// recommendation leaderboard.
type LeaderboardTarget struct {
	Name         string   `json:"name"`
	AvgPosition  *float64 `json:"avg_position,omitempty"`
	MentionCount int      `json:"mention_count"`
}

// LeaderboardEntry is one competitor on the recommendation leaderboard.
type LeaderboardEntry struct {
	Name              string   `json:"name"`
	MentionCount      int      `json:"mention_count"`
	AvgPosition       *float64 `json:"avg_position,omitempty"`
	AppearsWithTarget bool     `json:"appears_with_target"`
}

// CompetitiveLeaderboard ranks competitors surfaced by recommendation
// queries. Competitors are capped at ten, ordered by mention count.
type CompetitiveLeaderboard struct {
	TargetBusiness             LeaderboardTarget  `json:"target_business"`
	Competitors                []LeaderboardEntry `json:"competitors"`
	TotalRecommendationQueries int                `json:"total_recommendation_queries"`
}
