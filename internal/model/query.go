package model

// PromptType classifies the intent of a visibility query.
type PromptType string

const (
	PromptTypeFactual        PromptType = "factual"
	PromptTypeOpinion        PromptType = "opinion"
	PromptTypeRecommendation PromptType = "recommendation"
)

// Valid reports whether p is one of the known prompt types.
func (p PromptType) Valid() bool {
	switch p {
	case PromptTypeFactual, PromptTypeOpinion, PromptTypeRecommendation:
		return true
	}
	return false
}

// PromptTypes lists all prompt types in matrix order.
func PromptTypes() []PromptType {
	return []PromptType{PromptTypeFactual, PromptTypeOpinion, PromptTypeRecommendation}
}

// Sentiment is the tone of a response toward the target business.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Query is a single LLM visibility probe.
type Query struct {
	Model       string     `json:"model"`
	Prompt      string     `json:"prompt"`
	PromptType  PromptType `json:"prompt_type"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
}

// Response is the raw LLM answer to a query.
type Response struct {
	Content          string `json:"content"`
	TokensUsed       int    `json:"tokens_used"`
	Model            string `json:"model"`
	Cached           bool   `json:"cached"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// QueryResult is the analyzed outcome of one query. Every query issued
// produces exactly one QueryResult; failures are carried in Error rather
// than dropped.
type QueryResult struct {
	Model              string     `json:"model"`
	PromptType         PromptType `json:"prompt_type"`
	Mentioned          bool       `json:"mentioned"`
	Sentiment          Sentiment  `json:"sentiment"`
	Confidence         float64    `json:"confidence"`
	RankPosition       *int       `json:"rank_position,omitempty"`
	CompetitorMentions []string   `json:"competitor_mentions,omitempty"`
	RawResponse        string     `json:"raw_response,omitempty"`
	TokensUsed         int        `json:"tokens_used"`
	Prompt             string     `json:"prompt"`
	ProcessingTimeMs   int64      `json:"processing_time_ms"`
	Error              string     `json:"error,omitempty"`
}

// Succeeded reports whether the query completed without a transport or
// analysis error. A successful result may still be a non-mention.
func (r QueryResult) Succeeded() bool { return r.Error == "" }
