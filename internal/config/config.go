package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI      OpenAIConfig      `yaml:"openai" mapstructure:"openai"`
	Perplexity  PerplexityConfig  `yaml:"perplexity" mapstructure:"perplexity"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Firecrawl   FirecrawlConfig   `yaml:"firecrawl" mapstructure:"firecrawl"`
	Google      GoogleConfig      `yaml:"google" mapstructure:"google"`
	Notion      NotionConfig      `yaml:"notion" mapstructure:"notion"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" mapstructure:"fingerprint"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Crawl       CrawlConfig       `yaml:"crawl" mapstructure:"crawl"`
	Publish     PublishConfig     `yaml:"publish" mapstructure:"publish"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" mapstructure:"scheduler"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Prompts     PromptsConfig     `yaml:"prompts" mapstructure:"prompts"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig selects the LLM response cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // memory, redis, store, off
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina Reader/Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	PlacesKey string `yaml:"places_key" mapstructure:"places_key"`
}

// NotionConfig holds knowledge-base credentials and database IDs.
type NotionConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	StagingDB    string `yaml:"staging_db" mapstructure:"staging_db"`
	ProductionDB string `yaml:"production_db" mapstructure:"production_db"`
}

// WeightsConfig holds the visibility score component weights. They must
// sum to 1.0.
type WeightsConfig struct {
	Mention    float64 `yaml:"mention" mapstructure:"mention"`
	Sentiment  float64 `yaml:"sentiment" mapstructure:"sentiment"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence"`
	Rank       float64 `yaml:"rank" mapstructure:"rank"`
}

// FingerprintConfig configures the query matrix and gateway behavior.
type FingerprintConfig struct {
	Models           []string      `yaml:"models" mapstructure:"models"`
	QueryTimeoutSecs int           `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	MaxConcurrency   int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	SubBatchSize     int           `yaml:"sub_batch_size" mapstructure:"sub_batch_size"`
	WavePauseMs      int           `yaml:"wave_pause_ms" mapstructure:"wave_pause_ms"`
	Temperature      float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens        int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	CacheEnabled     bool          `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTLHours    int           `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RatePerSecond    float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Weights          WeightsConfig `yaml:"weights" mapstructure:"weights"`
}

// RetrySettings holds one operation class's retry tuning.
type RetrySettings struct {
	MaxAttempts     int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs     int      `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs      int      `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier      float64  `yaml:"multiplier" mapstructure:"multiplier"`
	RetryableErrors []string `yaml:"retryable_errors" mapstructure:"retryable_errors"`
}

// RetryConfig holds per-operation-class retry settings. Zero values fall
// back to the resilience package defaults for that class.
type RetryConfig struct {
	LLM      RetrySettings `yaml:"llm" mapstructure:"llm"`
	Crawl    RetrySettings `yaml:"crawl" mapstructure:"crawl"`
	Database RetrySettings `yaml:"database" mapstructure:"database"`
}

// CrawlConfig configures the crawl stage.
type CrawlConfig struct {
	MaxPages      int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxConcurrent int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLHours int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	ExcludePaths  []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
}

// PublishConfig configures the entity-build and publish stages.
type PublishConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	Production    bool `yaml:"production" mapstructure:"production"`
	MinReferences int  `yaml:"min_references" mapstructure:"min_references"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	TimeoutSecs        int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequireFingerprint bool `yaml:"require_fingerprint" mapstructure:"require_fingerprint"`
}

// SchedulerConfig configures automated re-runs.
type SchedulerConfig struct {
	BatchSize     int               `yaml:"batch_size" mapstructure:"batch_size"`
	CatchMissed   bool              `yaml:"catch_missed" mapstructure:"catch_missed"`
	Cron          string            `yaml:"cron" mapstructure:"cron"`
	DLQMaxRetries int               `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
	Frequencies   map[string]string `yaml:"frequencies" mapstructure:"frequencies"` // tier -> daily|weekly|monthly|manual
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentBusinesses int `yaml:"max_concurrent_businesses" mapstructure:"max_concurrent_businesses"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures metric collection and alerting.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// PromptsConfig points at an optional prompt-template override file.
type PromptsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AIVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("fingerprint.models", []string{"claude-sonnet-4-5-20250929", "gpt-4o", "sonar-pro"})
	v.SetDefault("fingerprint.query_timeout_secs", 30)
	v.SetDefault("fingerprint.max_concurrency", 9)
	v.SetDefault("fingerprint.sub_batch_size", 9)
	v.SetDefault("fingerprint.wave_pause_ms", 1000)
	v.SetDefault("fingerprint.temperature", 0.3)
	v.SetDefault("fingerprint.max_tokens", 1024)
	v.SetDefault("fingerprint.cache_enabled", false)
	v.SetDefault("fingerprint.cache_ttl_hours", 24)
	v.SetDefault("fingerprint.weights.mention", 0.35)
	v.SetDefault("fingerprint.weights.sentiment", 0.25)
	v.SetDefault("fingerprint.weights.confidence", 0.15)
	v.SetDefault("fingerprint.weights.rank", 0.25)
	v.SetDefault("crawl.max_pages", 5)
	v.SetDefault("crawl.max_concurrent", 4)
	v.SetDefault("crawl.timeout_secs", 60)
	v.SetDefault("crawl.cache_ttl_hours", 24)
	v.SetDefault("crawl.exclude_paths", []string{"/blog/*", "/news/*", "/press/*", "/careers/*"})
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.production", false)
	v.SetDefault("publish.min_references", 3)
	v.SetDefault("pipeline.timeout_secs", 120)
	v.SetDefault("pipeline.require_fingerprint", false)
	v.SetDefault("scheduler.batch_size", 10)
	v.SetDefault("scheduler.catch_missed", false)
	v.SetDefault("scheduler.dlq_max_retries", 3)
	v.SetDefault("scheduler.frequencies", map[string]string{
		"free":       "manual",
		"starter":    "monthly",
		"growth":     "weekly",
		"enterprise": "daily",
	})
	v.SetDefault("batch.max_concurrent_businesses", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.dlq_depth_threshold", 25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command requires before it starts doing
// work, so missing credentials fail fast instead of mid-pipeline.
func (c *Config) Validate(command string) error {
	var missing []string

	switch command {
	case "run", "batch", "schedule", "serve":
		if c.Anthropic.Key == "" && c.OpenAI.Key == "" && c.Perplexity.Key == "" {
			missing = append(missing, "anthropic.key or openai.key or perplexity.key")
		}
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if c.Publish.Enabled {
		if c.Notion.Token == "" {
			missing = append(missing, "notion.token")
		}
		if !c.Publish.Production && c.Notion.StagingDB == "" {
			missing = append(missing, "notion.staging_db")
		}
		if c.Publish.Production && c.Notion.ProductionDB == "" {
			missing = append(missing, "notion.production_db")
		}
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		missing = append(missing, "cache.redis_addr")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
