package store

import (
	"context"
	"time"

	"github.com/beacon-intel/aiviz-cli/internal/cache"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status     model.RunStatus `json:"status,omitempty"`
	URL        string          `json:"url,omitempty"`
	BusinessID string          `json:"business_id,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Status model.BusinessStatus `json:"status,omitempty"`
	Tier   model.Tier           `json:"tier,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// BusinessPatch holds optional field updates applied by UpdateBusiness.
// Nil fields are left unchanged.
type BusinessPatch struct {
	Name              *string
	Category          *string
	Location          *string
	Tier              *model.Tier
	Status            *model.BusinessStatus
	AutomationEnabled *bool
	NextCrawlAt       *time.Time
	LastCrawledAt     *time.Time
}

// FingerprintStats aggregates stored fingerprints for monitoring.
type FingerprintStats struct {
	Count         int     `json:"count"`
	AvgVisibility float64 `json:"avg_visibility"`
	TotalTokens   int     `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost_usd"`
}

// Store defines the persistence interface for the fingerprinting pipeline.
//
// Lookups keyed by a caller-supplied natural key (URL, cache key) return
// (nil, nil) on a miss; lookups by internal ID return an error when the
// record does not exist.
type Store interface {
	// Businesses
	CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error)
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	GetBusinessByURL(ctx context.Context, url string) (*model.Business, error)
	UpdateBusiness(ctx context.Context, id string, patch BusinessPatch) error
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error)
	ListDueBusinesses(ctx context.Context, cutoff time.Time, limit int) ([]model.Business, error)
	UpsertBusinesses(ctx context.Context, businesses []model.Business) (int64, error)

	// Fingerprints
	CreateFingerprint(ctx context.Context, fp *model.FingerprintAnalysis) (*model.FingerprintAnalysis, error)
	GetLatestFingerprint(ctx context.Context, businessID string) (*model.FingerprintAnalysis, error)
	ListFingerprints(ctx context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error)
	FingerprintStats(ctx context.Context, since time.Time) (*FingerprintStats, error)

	// Runs
	CreateRun(ctx context.Context, url, businessID, trigger string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.CFPResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CountRunsByStatus(ctx context.Context, since time.Time) (map[model.RunStatus]int, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name model.Stage) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Crawl jobs
	CreateCrawlJob(ctx context.Context, businessID, url string) (*model.CrawlJob, error)
	UpdateCrawlJob(ctx context.Context, id string, status model.CrawlJobStatus, errMsg string) error

	// Crawl cache
	GetCachedCrawl(ctx context.Context, businessURL string) (*model.CrawlCache, error)
	SetCachedCrawl(ctx context.Context, businessURL string, data *model.CrawlData, ttl time.Duration) error
	DeleteExpiredCrawls(ctx context.Context) (int, error)

	// Response cache
	GetCachedResponse(ctx context.Context, key string) (*cache.Entry, error)
	PutCachedResponse(ctx context.Context, entry *cache.Entry, ttl time.Duration) error
	DeleteExpiredResponses(ctx context.Context) (int, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Every Store doubles as the persistence backend of the response cache.
var _ cache.Storage = (Store)(nil)

// statusForResult maps a finished pipeline result onto the run's terminal
// status.
func statusForResult(result *model.CFPResult) model.RunStatus {
	switch {
	case result == nil || !result.Success:
		return model.RunStatusFailed
	case result.Degraded:
		return model.RunStatusDegraded
	default:
		return model.RunStatusComplete
	}
}
