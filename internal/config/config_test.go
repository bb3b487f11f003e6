package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Len(t, cfg.Fingerprint.Models, 3)
	assert.Equal(t, 30, cfg.Fingerprint.QueryTimeoutSecs)
	assert.Equal(t, 9, cfg.Fingerprint.MaxConcurrency)
	assert.Equal(t, 9, cfg.Fingerprint.SubBatchSize)
	assert.Equal(t, 1000, cfg.Fingerprint.WavePauseMs)
	assert.Equal(t, 1024, cfg.Fingerprint.MaxTokens)
	assert.False(t, cfg.Fingerprint.CacheEnabled)
	assert.Equal(t, 24, cfg.Fingerprint.CacheTTLHours)
	assert.InDelta(t, 0.35, cfg.Fingerprint.Weights.Mention, 0.001)
	assert.InDelta(t, 0.25, cfg.Fingerprint.Weights.Sentiment, 0.001)
	assert.InDelta(t, 0.15, cfg.Fingerprint.Weights.Confidence, 0.001)
	assert.InDelta(t, 0.25, cfg.Fingerprint.Weights.Rank, 0.001)
	assert.Equal(t, 5, cfg.Crawl.MaxPages)
	assert.Equal(t, 60, cfg.Crawl.TimeoutSecs)
	assert.Equal(t, 24, cfg.Crawl.CacheTTLHours)
	assert.Equal(t, 120, cfg.Pipeline.TimeoutSecs)
	assert.False(t, cfg.Pipeline.RequireFingerprint)
	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	assert.False(t, cfg.Scheduler.CatchMissed)
	assert.Equal(t, "manual", cfg.Scheduler.Frequencies["free"])
	assert.Equal(t, "daily", cfg.Scheduler.Frequencies["enterprise"])
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://api.firecrawl.dev/v2", cfg.Firecrawl.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, 3, cfg.Publish.MinReferences)
	assert.False(t, cfg.Publish.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/aiviz
log:
  level: debug
  format: console
server:
  port: 9090
fingerprint:
  models:
    - claude-sonnet-4-5-20250929
  max_concurrency: 3
scheduler:
  batch_size: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"claude-sonnet-4-5-20250929"}, cfg.Fingerprint.Models)
	assert.Equal(t, 3, cfg.Fingerprint.MaxConcurrency)
	assert.Equal(t, 25, cfg.Scheduler.BatchSize)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Crawl.MaxPages)
	assert.Equal(t, 9, cfg.Fingerprint.SubBatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AIVIZ_STORE_DRIVER", "postgres")
	t.Setenv("AIVIZ_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("AIVIZ_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidateRunRequiresAnLLMKey(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")

	cfg.Perplexity.Key = "pplx-test"
	require.NoError(t, cfg.Validate("run"))
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}

func TestValidatePublishRequiresNotion(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Publish.Enabled = true

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token")
	assert.Contains(t, err.Error(), "notion.staging_db")

	cfg.Notion.Token = "secret_test"
	cfg.Notion.StagingDB = "db-id"
	require.NoError(t, cfg.Validate("runs"))

	cfg.Publish.Production = true
	err = cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.production_db")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
