package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/analyzer"
	"github.com/beacon-intel/aiviz-cli/internal/gateway"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/prompts"
)

type fakeGateway struct {
	mu      sync.Mutex
	batches [][]model.Query
	fn      func(q model.Query) gateway.Outcome
	err     error
}

func (f *fakeGateway) Query(ctx context.Context, q model.Query) (*model.Response, error) {
	out := f.fn(q)
	return out.Response, out.Err
}

func (f *fakeGateway) QueryParallel(ctx context.Context, queries []model.Query) ([]gateway.Outcome, error) {
	f.mu.Lock()
	f.batches = append(f.batches, queries)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]gateway.Outcome, len(queries))
	for i, q := range queries {
		outcomes[i] = f.fn(q)
	}
	return outcomes, nil
}

func (f *fakeGateway) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func respOK(content string) gateway.Outcome {
	return gateway.Outcome{Response: &model.Response{
		Content:    content,
		TokensUsed: 25,
		Model:      "claude-haiku-4-5-20251001",
	}}
}

func testQueries() []model.Query {
	models := []string{"claude-haiku-4-5-20251001", "gpt-4o-mini", "sonar-pro"}
	var queries []model.Query
	for _, m := range models {
		for _, pt := range model.PromptTypes() {
			queries = append(queries, model.Query{
				Model:      m,
				Prompt:     "What do you know about Acme Plumbing? (" + string(pt) + ")",
				PromptType: pt,
			})
		}
	}
	return queries
}

func newTestProcessor(cfg Config, gw gateway.Client) *Processor {
	p := New(cfg, gw, analyzer.New(), prompts.Default())
	p.pause = func(_ context.Context, _ time.Duration) error { return nil }
	return p
}

func TestProcessQueries_AlwaysNResults(t *testing.T) {
	gw := &fakeGateway{fn: func(q model.Query) gateway.Outcome {
		return respOK("Acme Plumbing is a great choice for drain work.")
	}}
	p := newTestProcessor(Config{}, gw)

	queries := testQueries()
	results := p.ProcessQueries(context.Background(), queries, "Acme Plumbing")

	require.Len(t, results, len(queries))
	for i, r := range results {
		assert.Equal(t, queries[i].Prompt, r.Prompt, "result %d must align with input order", i)
		assert.Equal(t, queries[i].PromptType, r.PromptType)
		assert.True(t, r.Mentioned)
		assert.Empty(t, r.Error)
	}
}

func TestProcessQueries_TopLevelOutage(t *testing.T) {
	gw := &fakeGateway{
		fn:  func(model.Query) gateway.Outcome { return respOK("unused") },
		err: errors.New("total outage: connection refused"),
	}
	p := newTestProcessor(Config{}, gw)

	queries := testQueries()
	results := p.ProcessQueries(context.Background(), queries, "Acme Plumbing")

	require.Len(t, results, len(queries))
	for i, r := range results {
		assert.False(t, r.Mentioned)
		assert.Zero(t, r.Confidence)
		assert.Equal(t, model.SentimentNeutral, r.Sentiment)
		assert.Contains(t, r.Error, "total outage")
		assert.Equal(t, queries[i].Prompt, r.Prompt)
	}
}

func TestProcessQueries_PerItemFailure(t *testing.T) {
	gw := &fakeGateway{fn: func(q model.Query) gateway.Outcome {
		if strings.Contains(q.Prompt, string(model.PromptTypeOpinion)) && q.Model == "gpt-4o-mini" {
			return gateway.Outcome{Err: errors.New("rate limit exceeded")}
		}
		return respOK("Acme Plumbing handles this well.")
	}}
	p := newTestProcessor(Config{}, gw)

	queries := testQueries()
	results := p.ProcessQueries(context.Background(), queries, "Acme Plumbing")

	require.Len(t, results, len(queries))

	var failed, succeeded int
	for _, r := range results {
		if r.Error != "" {
			failed++
			assert.Equal(t, "gpt-4o-mini", r.Model)
			assert.Equal(t, model.PromptTypeOpinion, r.PromptType)
			assert.Contains(t, r.Error, "rate limit")
		} else {
			succeeded++
			assert.True(t, r.Mentioned)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 8, succeeded)
}

func TestProcessQueries_ModelGroupedWaves(t *testing.T) {
	gw := &fakeGateway{fn: func(model.Query) gateway.Outcome { return respOK("ok") }}
	p := newTestProcessor(Config{SubBatchSize: 3, MaxConcurrency: 3}, gw)

	results := p.ProcessQueries(context.Background(), testQueries(), "Acme Plumbing")
	require.Len(t, results, 9)

	assert.Equal(t, []int{3, 3, 3}, gw.batchSizes())
	for _, batch := range gw.batches {
		first := batch[0].Model
		for _, q := range batch {
			assert.Equal(t, first, q.Model, "each sub-batch holds one model")
		}
	}
}

func TestProcessQueries_PauseBetweenWaveGroups(t *testing.T) {
	gw := &fakeGateway{fn: func(model.Query) gateway.Outcome { return respOK("ok") }}
	p := New(Config{SubBatchSize: 3, MaxConcurrency: 3, WavePause: 250 * time.Millisecond}, gw, analyzer.New(), nil)

	var pauses []time.Duration
	p.pause = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	p.ProcessQueries(context.Background(), testQueries(), "Acme Plumbing")

	// Three wave groups, pauses only between them.
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, pauses)
}

func TestProcessQueries_CancelledBetweenWaves(t *testing.T) {
	gw := &fakeGateway{fn: func(model.Query) gateway.Outcome { return respOK("Acme Plumbing mentioned.") }}
	p := New(Config{SubBatchSize: 3, MaxConcurrency: 3}, gw, analyzer.New(), nil)

	cancelled := errors.New("context canceled")
	p.pause = func(_ context.Context, _ time.Duration) error {
		return cancelled
	}

	queries := testQueries()
	results := p.ProcessQueries(context.Background(), queries, "Acme Plumbing")

	require.Len(t, results, len(queries), "cancellation must not shrink the result set")

	var withError int
	for _, r := range results {
		if r.Error != "" {
			withError++
		}
	}
	// First wave completed, the remaining two waves became fallbacks.
	assert.Equal(t, 6, withError)
	assert.Equal(t, []int{3}, gw.batchSizes())
}

func TestProcessQueries_EmptyBatch(t *testing.T) {
	gw := &fakeGateway{fn: func(model.Query) gateway.Outcome { return respOK("ok") }}
	p := newTestProcessor(Config{}, gw)

	results := p.ProcessQueries(context.Background(), nil, "Acme Plumbing")
	assert.Empty(t, results)
	assert.Empty(t, gw.batchSizes())
}

func TestBuildQueries(t *testing.T) {
	cfg := Config{
		Models:    []string{"claude-haiku-4-5-20251001", "gpt-4o-mini", "sonar-pro"},
		MaxTokens: 800,
	}
	p := New(cfg, &fakeGateway{}, analyzer.New(), prompts.Default())

	biz := model.BusinessContext{
		Name:     "Acme Plumbing",
		Category: "plumber",
		Location: "Dayton, OH",
	}

	queries := p.BuildQueries(biz)
	require.Len(t, queries, 9)

	// Model-major ordering: all prompt types for one model, then the next.
	assert.Equal(t, "claude-haiku-4-5-20251001", queries[0].Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", queries[2].Model)
	assert.Equal(t, "gpt-4o-mini", queries[3].Model)
	assert.Equal(t, "sonar-pro", queries[8].Model)

	for _, q := range queries {
		assert.Contains(t, q.Prompt, "Acme Plumbing")
		assert.Equal(t, 800, q.MaxTokens)
	}
}

func TestBuildQueries_NilLibrary(t *testing.T) {
	p := New(Config{Models: []string{"sonar-pro"}}, &fakeGateway{}, analyzer.New(), nil)
	assert.Nil(t, p.BuildQueries(model.BusinessContext{Name: "Acme"}))
}

func TestPackWaveGroups(t *testing.T) {
	queries := testQueries()

	groups := packWaveGroups(queries, 3, 6)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 6)
	assert.Len(t, groups[1], 3)

	// Indexes must cover the whole input exactly once.
	seen := make(map[int]bool)
	for _, g := range groups {
		for _, item := range g {
			assert.False(t, seen[item.index])
			seen[item.index] = true
		}
	}
	assert.Len(t, seen, len(queries))
}

func TestPackWaveGroups_SingleGroup(t *testing.T) {
	groups := packWaveGroups(testQueries(), 9, 9)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 9)
}

func TestComputeStats(t *testing.T) {
	results := []model.QueryResult{
		{Model: "claude-haiku-4-5-20251001", Mentioned: true, Confidence: 0.9, TokensUsed: 100},
		{Model: "claude-haiku-4-5-20251001", Mentioned: false, Confidence: 0.0, TokensUsed: 80},
		{Model: "gpt-4o-mini", Mentioned: true, Confidence: 0.7, TokensUsed: 60},
		{Model: "gpt-4o-mini", Error: "rate limit exceeded"},
	}

	stats := ComputeStats(results)
	assert.Equal(t, 4, stats.TotalQueries)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 0.5, stats.MentionRate, 0.0001)
	assert.InDelta(t, (0.9+0.0+0.7)/3, stats.AvgConfidence, 0.0001)
	assert.Equal(t, 240, stats.TotalTokens)

	claude := stats.PerModel["claude-haiku-4-5-20251001"]
	assert.Equal(t, 2, claude.Queries)
	assert.Equal(t, 2, claude.Succeeded)
	assert.Equal(t, 1, claude.Mentions)
	assert.InDelta(t, 0.45, claude.AvgConfidence, 0.0001)

	gpt := stats.PerModel["gpt-4o-mini"]
	assert.Equal(t, 2, gpt.Queries)
	assert.Equal(t, 1, gpt.Succeeded)
	assert.InDelta(t, 0.7, gpt.AvgConfidence, 0.0001)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.TotalQueries)
	assert.Zero(t, stats.MentionRate)
	assert.Zero(t, stats.AvgConfidence)
}
