// Package gateway issues single model queries against the configured
// LLM backends. It owns response caching, per-request timeouts, rate
// limiting, and circuit breaking; retry policy comes from the
// resilience package. Fan-out across a batch is index-aligned so one
// query's failure never disturbs its siblings.
package gateway

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/beacon-intel/aiviz-cli/internal/cache"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/pkg/anthropic"
	"github.com/beacon-intel/aiviz-cli/pkg/openai"
	"github.com/beacon-intel/aiviz-cli/pkg/perplexity"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultCacheTTL  = 24 * time.Hour
	defaultMaxTokens = 1024
)

// Client is the LLM gateway surface consumed by the query processor.
type Client interface {
	Query(ctx context.Context, q model.Query) (*model.Response, error)
	QueryParallel(ctx context.Context, queries []model.Query) ([]Outcome, error)
}

// Outcome is the per-query result of QueryParallel. Exactly one of
// Response and Err is set.
type Outcome struct {
	Response *model.Response
	Err      error
}

// Config controls gateway behavior.
type Config struct {
	// Timeout bounds each individual backend request.
	Timeout time.Duration
	// CacheEnabled serves repeated (model, prompt) pairs from cache.
	CacheEnabled bool
	// CacheTTL is how long cached responses stay valid.
	CacheTTL time.Duration
	// RatePerSecond caps request rate per backend. Zero disables.
	RatePerSecond float64
	// MaxConcurrent bounds in-flight requests in QueryParallel.
	// Zero means no limit; callers size their own batches.
	MaxConcurrent int
	// Retry is the retry policy applied to each query.
	Retry resilience.RetryConfig
}

// Backends holds the provider clients. A nil client means queries
// routed to that provider fail with a configuration error.
type Backends struct {
	Anthropic  anthropic.Client
	OpenAI     openai.Client
	Perplexity perplexity.Client
}

// Gateway implements Client over the configured backends.
type Gateway struct {
	cfg      Config
	backends Backends
	cache    cache.Cache
	breakers map[backendKind]*resilience.Breaker
	limiters map[backendKind]*rate.Limiter
}

// New creates a gateway. cache may be nil when caching is disabled.
func New(cfg Config, backends Backends, responseCache cache.Cache) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Retry.MaxAttempts == 0 && len(cfg.Retry.RetryableErrors) == 0 {
		cfg.Retry = resilience.DefaultLLMRetryConfig()
	}

	g := &Gateway{
		cfg:      cfg,
		backends: backends,
		cache:    responseCache,
		breakers: make(map[backendKind]*resilience.Breaker),
		limiters: make(map[backendKind]*rate.Limiter),
	}
	for _, kind := range []backendKind{backendAnthropic, backendOpenAI, backendPerplexity} {
		g.breakers[kind] = resilience.NewBreaker(string(kind), 0, 0)
		if cfg.RatePerSecond > 0 {
			burst := int(cfg.RatePerSecond)
			if burst < 1 {
				burst = 1
			}
			g.limiters[kind] = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
		}
	}
	return g
}

// Query issues one request to the backend that serves q.Model.
// Authentication and validation failures surface immediately;
// transient failures are retried per the configured policy.
func (g *Gateway) Query(ctx context.Context, q model.Query) (*model.Response, error) {
	kind, err := backendFor(q.Model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	key := cache.Key(q.Model, q.Prompt)

	if g.cacheActive() {
		entry, ok, cerr := g.cache.Get(ctx, key)
		if cerr != nil {
			zap.L().Warn("response cache read failed",
				zap.String("model", q.Model),
				zap.String("error", resilience.SanitizeError(cerr)),
			)
		} else if ok {
			return &model.Response{
				Content:          entry.Content,
				TokensUsed:       entry.TokensUsed,
				Model:            entry.Model,
				Cached:           true,
				ProcessingTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	retryCfg := g.cfg.Retry
	retryCfg.OnRetry = resilience.RetryLogger("gateway", "query")
	errCtx := resilience.ErrorContext{
		Operation: "llm_query",
		Metadata:  map[string]any{"model": q.Model},
	}

	resp, err := resilience.DoVal(ctx, retryCfg, errCtx, func(ctx context.Context) (*model.Response, error) {
		return g.callOnce(ctx, kind, q)
	})
	if err != nil {
		return nil, err
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	if g.cacheActive() {
		entry := &cache.Entry{
			Key:        key,
			Model:      resp.Model,
			Content:    resp.Content,
			TokensUsed: resp.TokensUsed,
			CreatedAt:  time.Now().UTC(),
		}
		if cerr := g.cache.Set(ctx, key, entry, g.cfg.CacheTTL); cerr != nil {
			zap.L().Warn("response cache write failed",
				zap.String("model", q.Model),
				zap.String("error", resilience.SanitizeError(cerr)),
			)
		}
	}

	zap.L().Debug("query complete",
		zap.String("model", q.Model),
		zap.Int("tokens_used", resp.TokensUsed),
		zap.Int64("duration_ms", resp.ProcessingTimeMs),
	)
	return resp, nil
}

// QueryParallel fans queries out concurrently and resolves each one
// independently. The returned slice is index-aligned with the input
// and always the same length. The error return is reserved for
// total failures where no query was dispatched.
func (g *Gateway) QueryParallel(ctx context.Context, queries []model.Query) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "gateway: parallel query")
	}

	outcomes := make([]Outcome, len(queries))
	var eg errgroup.Group
	if g.cfg.MaxConcurrent > 0 {
		eg.SetLimit(g.cfg.MaxConcurrent)
	}

	for i, q := range queries {
		eg.Go(func() error {
			resp, err := g.Query(ctx, q)
			outcomes[i] = Outcome{Response: resp, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return outcomes, nil
}

func (g *Gateway) cacheActive() bool {
	return g.cfg.CacheEnabled && g.cache != nil
}

// callOnce is a single attempt: rate limit, breaker admission, then
// one backend request under the per-request timeout.
func (g *Gateway) callOnce(ctx context.Context, kind backendKind, q model.Query) (*model.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if lim := g.limiters[kind]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "gateway: rate limit wait")
		}
	}

	br := g.breakers[kind]
	if err := br.Allow(); err != nil {
		return nil, err
	}

	resp, err := g.dispatch(ctx, kind, q)
	br.Record(err)
	return resp, err
}
