// Package analyzer turns raw LLM responses into structured query results:
// mention detection, sentiment, rank position, and competitor extraction.
package analyzer

import (
	"fmt"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// Analyzer analyzes responses against a target business. It holds no
// mutable state and is safe for concurrent use.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze produces the QueryResult for one response. It never panics out:
// any internal failure is absorbed into a result with Mentioned false,
// Confidence 0, and the error message set. The Prompt field is left for
// the caller, which knows the originating query.
func (a *Analyzer) Analyze(resp *model.Response, businessName string, promptType model.PromptType) (result model.QueryResult) {
	result = model.QueryResult{
		PromptType: promptType,
		Sentiment:  model.SentimentNeutral,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Mentioned = false
			result.Confidence = 0
			result.RankPosition = nil
			result.CompetitorMentions = nil
			result.Error = fmt.Sprintf("analysis failed: %v", r)
		}
	}()

	if resp == nil {
		result.Error = "analysis failed: no response"
		return result
	}

	result.Model = resp.Model
	result.RawResponse = resp.Content
	result.TokensUsed = resp.TokensUsed
	result.ProcessingTimeMs = resp.ProcessingTimeMs

	mention := DetectMention(resp.Content, businessName)
	result.Mentioned = mention.Found

	sentiment := ScoreSentiment(resp.Content)
	result.Sentiment = sentiment.Label

	// Confidence blends how surely the business was found with how much
	// sentiment signal backs the read. Non-mentions carry no confidence.
	if mention.Found {
		result.Confidence = 0.6*mention.Confidence + 0.4*sentiment.Confidence
	}

	if promptType == model.PromptTypeRecommendation {
		result.RankPosition = ExtractRank(resp.Content, nameVariants(businessName))
		result.CompetitorMentions = ExtractCompetitors(resp.Content, businessName)
	}

	return result
}
