package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/analyzer"
	"github.com/beacon-intel/aiviz-cli/internal/cache"
	"github.com/beacon-intel/aiviz-cli/internal/config"
	"github.com/beacon-intel/aiviz-cli/internal/crawler"
	"github.com/beacon-intel/aiviz-cli/internal/fingerprint"
	"github.com/beacon-intel/aiviz-cli/internal/gateway"
	"github.com/beacon-intel/aiviz-cli/internal/pipeline"
	"github.com/beacon-intel/aiviz-cli/internal/processor"
	"github.com/beacon-intel/aiviz-cli/internal/prompts"
	"github.com/beacon-intel/aiviz-cli/internal/publish"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/internal/store"
	"github.com/beacon-intel/aiviz-cli/pkg/anthropic"
	"github.com/beacon-intel/aiviz-cli/pkg/firecrawl"
	"github.com/beacon-intel/aiviz-cli/pkg/google"
	"github.com/beacon-intel/aiviz-cli/pkg/jina"
	"github.com/beacon-intel/aiviz-cli/pkg/notion"
	"github.com/beacon-intel/aiviz-cli/pkg/openai"
	"github.com/beacon-intel/aiviz-cli/pkg/perplexity"
)

// pipelineEnv holds the store, caches, and assembled pipeline shared by
// the run, batch, schedule, and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Cache    cache.Cache // may be nil when response caching is off
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		_ = pe.Cache.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "aiviz.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCache builds the LLM response cache selected by cache.backend.
func initCache(st store.Store) cache.Cache {
	if !cfg.Fingerprint.CacheEnabled {
		return nil
	}
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	case "store":
		return cache.NewStoreBacked(st)
	case "off":
		return nil
	default:
		return cache.NewMemory(5 * time.Minute)
	}
}

// initPipeline sets up the store, caches, LLM gateway, and all three
// pipeline collaborators. Callers should defer env.Close().
func initPipeline(ctx context.Context, command string) (*pipelineEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	responseCache := initCache(st)

	var backends gateway.Backends
	if cfg.Anthropic.Key != "" {
		backends.Anthropic = anthropic.NewClient(cfg.Anthropic.Key)
	}
	if cfg.OpenAI.Key != "" {
		backends.OpenAI = openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.Perplexity.Key != "" {
		backends.Perplexity = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
	}

	gw := gateway.New(gateway.Config{
		Timeout:       time.Duration(cfg.Fingerprint.QueryTimeoutSecs) * time.Second,
		CacheEnabled:  cfg.Fingerprint.CacheEnabled && responseCache != nil,
		CacheTTL:      time.Duration(cfg.Fingerprint.CacheTTLHours) * time.Hour,
		RatePerSecond: cfg.Fingerprint.RatePerSecond,
		Retry:         retryFromSettings(resilience.DefaultLLMRetryConfig(), cfg.Retry.LLM),
	}, backends, responseCache)

	library := prompts.Default()
	if cfg.Prompts.File != "" {
		library, err = prompts.LoadFile(cfg.Prompts.File)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load prompt library")
		}
	}

	temperature := cfg.Fingerprint.Temperature
	proc := processor.New(processor.Config{
		Models:         cfg.Fingerprint.Models,
		MaxConcurrency: cfg.Fingerprint.MaxConcurrency,
		SubBatchSize:   cfg.Fingerprint.SubBatchSize,
		WavePause:      time.Duration(cfg.Fingerprint.WavePauseMs) * time.Millisecond,
		Temperature:    &temperature,
		MaxTokens:      cfg.Fingerprint.MaxTokens,
	}, gw, analyzer.New(), library)

	agg := fingerprint.New(fingerprint.Weights{
		MentionRate: cfg.Fingerprint.Weights.Mention,
		Sentiment:   cfg.Fingerprint.Weights.Sentiment,
		Confidence:  cfg.Fingerprint.Weights.Confidence,
		RankQuality: cfg.Fingerprint.Weights.Rank,
	})

	cr := initCrawler()
	pub := initPublisher()

	p := pipeline.New(st, cr, pipeline.NewFingerprinter(proc, agg), pub, pipeline.Options{
		Timeout:            time.Duration(cfg.Pipeline.TimeoutSecs) * time.Second,
		Publish:            cfg.Publish.Enabled,
		Production:         cfg.Publish.Production,
		RequireFingerprint: cfg.Pipeline.RequireFingerprint,
		CrawlCacheTTL:      time.Duration(cfg.Crawl.CacheTTLHours) * time.Hour,
		CrawlRetry:         retryFromSettings(resilience.DefaultCrawlRetryConfig(), cfg.Retry.Crawl),
	}).WithProgress(pipeline.LogSink{})

	return &pipelineEnv{Store: st, Cache: responseCache, Pipeline: p}, nil
}

// initCrawler builds the fetcher chain: Firecrawl primary, Jina Reader
// fallback, plain HTTP when neither is configured.
func initCrawler() *crawler.Crawler {
	var fetchers []crawler.Fetcher
	var fc firecrawl.Client

	if cfg.Firecrawl.Key != "" {
		fc = firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		fetchers = append(fetchers, crawler.NewFirecrawlFetcher(fc))
	}
	if cfg.Jina.Key != "" {
		jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
		if cfg.Jina.SearchBaseURL != "" {
			jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		fetchers = append(fetchers, crawler.NewJinaFetcher(jina.NewClient(cfg.Jina.Key, jinaOpts...)))
	}
	if len(fetchers) == 0 {
		zap.L().Warn("no crawl API configured, falling back to plain HTTP fetches")
		fetchers = append(fetchers, crawler.NewLocalFetcher())
	}

	cr := crawler.New(crawler.Config{
		MaxPages:      cfg.Crawl.MaxPages,
		MaxConcurrent: cfg.Crawl.MaxConcurrent,
		ExcludePaths:  cfg.Crawl.ExcludePaths,
	}, fetchers...)
	if fc != nil {
		cr = cr.WithFirecrawl(fc)
	}
	return cr
}

// initPublisher builds the publish collaborator, nil when publishing is
// disabled.
func initPublisher() pipeline.Publisher {
	if !cfg.Publish.Enabled {
		return nil
	}

	var opts []publish.Option
	if cfg.Jina.Key != "" {
		opts = append(opts, publish.WithSearch(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))))
	}
	if cfg.Google.PlacesKey != "" {
		opts = append(opts, publish.WithPlaces(google.NewClient(cfg.Google.PlacesKey)))
	}

	return publish.New(publish.Config{
		StagingDatabaseID:    cfg.Notion.StagingDB,
		ProductionDatabaseID: cfg.Notion.ProductionDB,
		MinReferences:        cfg.Publish.MinReferences,
	}, notion.NewClient(cfg.Notion.Token), opts...)
}

func retryFromSettings(base resilience.RetryConfig, s config.RetrySettings) resilience.RetryConfig {
	return resilience.FromRetrySettings(base, s.MaxAttempts, s.BaseDelayMs, s.MaxDelayMs, s.Multiplier, s.RetryableErrors)
}
