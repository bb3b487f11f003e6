// Package processor fans fingerprint queries out to the LLM gateway in
// model-grouped waves and maps every outcome through the analyzer. Its
// external contract is strict: ProcessQueries always returns exactly one
// QueryResult per input query, in input order, no matter what fails.
package processor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/analyzer"
	"github.com/beacon-intel/aiviz-cli/internal/gateway"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/prompts"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
)

const (
	defaultSubBatchSize   = 9
	defaultMaxConcurrency = 9
	defaultWavePause      = time.Second
)

// Config controls batching behavior.
type Config struct {
	// Models queried for each prompt type.
	Models []string
	// PromptTypes generated for each model.
	PromptTypes []model.PromptType
	// MaxConcurrency caps total queries in flight per wave group.
	MaxConcurrency int
	// SubBatchSize caps queries per model-grouped sub-batch.
	SubBatchSize int
	// WavePause separates consecutive wave groups.
	WavePause time.Duration
	// Temperature and MaxTokens apply to every generated query.
	Temperature *float64
	MaxTokens   int
}

// Processor coordinates query fan-out and response analysis.
type Processor struct {
	cfg      Config
	gateway  gateway.Client
	analyzer *analyzer.Analyzer
	library  *prompts.Library
	pause    func(ctx context.Context, d time.Duration) error
}

// New creates a processor. The prompt library may be nil when callers
// construct queries themselves and only use ProcessQueries.
func New(cfg Config, gw gateway.Client, an *analyzer.Analyzer, lib *prompts.Library) *Processor {
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = defaultSubBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.WavePause <= 0 {
		cfg.WavePause = defaultWavePause
	}
	if len(cfg.PromptTypes) == 0 {
		cfg.PromptTypes = model.PromptTypes()
	}
	return &Processor{
		cfg:      cfg,
		gateway:  gw,
		analyzer: an,
		library:  lib,
		pause:    sleepWithContext,
	}
}

// BuildQueries generates the (model × prompt type) query matrix for one
// business.
func (p *Processor) BuildQueries(biz model.BusinessContext) []model.Query {
	if p.library == nil {
		return nil
	}
	return p.library.Queries(biz, p.cfg.Models, p.cfg.PromptTypes, p.cfg.Temperature, p.cfg.MaxTokens)
}

// ProcessQueries runs the batch and returns exactly len(queries)
// results in input order. Failures of any scope degrade to per-query
// fallback results instead of errors.
func (p *Processor) ProcessQueries(ctx context.Context, queries []model.Query, businessName string) []model.QueryResult {
	results := make([]model.QueryResult, len(queries))
	if len(queries) == 0 {
		return results
	}

	groups := packWaveGroups(queries, p.cfg.SubBatchSize, p.cfg.MaxConcurrency)

	zap.L().Debug("processing query batch",
		zap.String("business", businessName),
		zap.Int("queries", len(queries)),
		zap.Int("wave_groups", len(groups)),
	)

	for gi, group := range groups {
		if gi > 0 && p.cfg.WavePause > 0 {
			if err := p.pause(ctx, p.cfg.WavePause); err != nil {
				p.fillFallbacks(results, flatten(groups[gi:]), err)
				return results
			}
		}

		batch := make([]model.Query, len(group))
		for i, item := range group {
			batch[i] = item.query
		}

		outcomes, err := p.gateway.QueryParallel(ctx, batch)
		if err != nil {
			p.fillFallbacks(results, group, err)
			continue
		}

		for i, item := range group {
			results[item.index] = p.resolve(item.query, outcomes[i], businessName)
		}
	}

	return results
}

func (p *Processor) resolve(q model.Query, outcome gateway.Outcome, businessName string) model.QueryResult {
	if outcome.Err != nil {
		return fallbackResult(q, outcome.Err)
	}
	result := p.analyzer.Analyze(outcome.Response, businessName, q.PromptType)
	result.Prompt = q.Prompt
	return result
}

func (p *Processor) fillFallbacks(results []model.QueryResult, items []waveItem, err error) {
	msg := resilience.SanitizeError(err)
	zap.L().Warn("query wave failed, recording fallback results",
		zap.Int("queries", len(items)),
		zap.String("error", msg),
	)
	for _, item := range items {
		results[item.index] = fallbackResult(item.query, err)
	}
}

func fallbackResult(q model.Query, err error) model.QueryResult {
	return model.QueryResult{
		Model:      q.Model,
		PromptType: q.PromptType,
		Prompt:     q.Prompt,
		Mentioned:  false,
		Sentiment:  model.SentimentNeutral,
		Confidence: 0,
		Error:      resilience.SanitizeError(err),
	}
}

// waveItem pairs a query with its position in the caller's batch so
// results land at the right index no matter how waves are packed.
type waveItem struct {
	index int
	query model.Query
}

// packWaveGroups splits the batch into model-grouped sub-batches of at
// most subBatchSize queries, then packs sub-batches into wave groups of
// at most maxConcurrency total queries. Groups run sequentially; the
// queries inside one group run concurrently.
func packWaveGroups(queries []model.Query, subBatchSize, maxConcurrency int) [][]waveItem {
	byModel := make(map[string][]waveItem)
	var modelOrder []string
	for i, q := range queries {
		if _, seen := byModel[q.Model]; !seen {
			modelOrder = append(modelOrder, q.Model)
		}
		byModel[q.Model] = append(byModel[q.Model], waveItem{index: i, query: q})
	}

	var chunks [][]waveItem
	for _, m := range modelOrder {
		items := byModel[m]
		for start := 0; start < len(items); start += subBatchSize {
			end := start + subBatchSize
			if end > len(items) {
				end = len(items)
			}
			chunks = append(chunks, items[start:end])
		}
	}

	var groups [][]waveItem
	var current []waveItem
	for _, chunk := range chunks {
		if len(current) > 0 && len(current)+len(chunk) > maxConcurrency {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, chunk...)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func flatten(groups [][]waveItem) []waveItem {
	var out []waveItem
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
