package model

import "time"

// Tier is the subscription tier a business is tracked under. The tier
// determines how often scheduled fingerprinting re-runs.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierEnterprise Tier = "enterprise"
)

// BusinessStatus tracks where a business sits in its lifecycle.
type BusinessStatus string

const (
	BusinessStatusPending BusinessStatus = "pending"
	BusinessStatusActive  BusinessStatus = "active"
	BusinessStatusFailed  BusinessStatus = "failed"
)

// Business is a tracked business whose AI visibility is fingerprinted.
type Business struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	URL               string         `json:"url"`
	Category          string         `json:"category,omitempty"`
	Location          string         `json:"location,omitempty"`
	Tier              Tier           `json:"tier"`
	Status            BusinessStatus `json:"status"`
	AutomationEnabled bool           `json:"automation_enabled"`
	NextCrawlAt       *time.Time     `json:"next_crawl_at,omitempty"`
	LastCrawledAt     *time.Time     `json:"last_crawled_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// BusinessContext is the business identity handed to query building and
// analysis. Crawl is nil when no crawl data is available.
type BusinessContext struct {
	Name     string     `json:"name"`
	URL      string     `json:"url"`
	Category string     `json:"category,omitempty"`
	Location string     `json:"location,omitempty"`
	Crawl    *CrawlData `json:"crawl,omitempty"`
}

// CrawlData is the distilled output of a website crawl.
type CrawlData struct {
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Services    []string  `json:"services,omitempty"`
	References  []string  `json:"references,omitempty"` // outbound links, feeds notability
	Source      string    `json:"source,omitempty"`     // which fetcher produced the page
	CrawledAt   time.Time `json:"crawled_at"`
}

// CrawlJobStatus represents the current state of a crawl job.
type CrawlJobStatus string

const (
	CrawlJobStatusRunning  CrawlJobStatus = "running"
	CrawlJobStatusComplete CrawlJobStatus = "complete"
	CrawlJobStatusFailed   CrawlJobStatus = "failed"
)

// CrawlJob records a single crawl attempt against a business URL.
type CrawlJob struct {
	ID          string         `json:"id"`
	BusinessID  string         `json:"business_id,omitempty"`
	URL         string         `json:"url"`
	Status      CrawlJobStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
