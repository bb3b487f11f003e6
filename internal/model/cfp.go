package model

import "time"

// Stage names a step of the crawl-fingerprint-publish pipeline.
type Stage string

const (
	StageCrawl       Stage = "crawl"
	StageFingerprint Stage = "fingerprint"
	StageEntity      Stage = "entity"
	StagePublish     Stage = "publish"
)

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name     Stage          `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartialResults flags which stages completed, independent of overall
// success. A degraded run can succeed with FingerprintSuccess false.
type PartialResults struct {
	CrawlSuccess          bool `json:"crawl_success"`
	FingerprintSuccess    bool `json:"fingerprint_success"`
	EntityCreationSuccess bool `json:"entity_creation_success"`
	PublishSuccess        bool `json:"publish_success"`
}

// Entity is the structured knowledge-base entity built from a business
// and its crawl data.
type Entity struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Location    string            `json:"location,omitempty"`
	URL         string            `json:"url"`
	Claims      map[string]string `json:"claims,omitempty"`
	References  []string          `json:"references,omitempty"`
}

// NotabilityResult is the outcome of the publish precondition check.
type NotabilityResult struct {
	IsNotable  bool     `json:"is_notable"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
	References []string `json:"references,omitempty"`
}

// PublishResult reports the knowledge-base write.
type PublishResult struct {
	Success    bool   `json:"success"`
	QID        string `json:"qid,omitempty"`
	Production bool   `json:"production"`
	Error      string `json:"error,omitempty"`
}

// CFPResult is the final outcome of one pipeline run. It is always
// returned, fully populated with whatever was computed before any failure.
type CFPResult struct {
	Success          bool                 `json:"success"`
	URL              string               `json:"url"`
	RunID            string               `json:"run_id,omitempty"`
	Business         *Business            `json:"business,omitempty"`
	Entity           *Entity              `json:"entity,omitempty"`
	Fingerprint      *FingerprintAnalysis `json:"fingerprint,omitempty"`
	Notability       *NotabilityResult    `json:"notability,omitempty"`
	PublishResult    *PublishResult       `json:"publish_result,omitempty"`
	Partial          PartialResults       `json:"partial_results"`
	Degraded         bool                 `json:"degraded"`
	Stages           []StageResult        `json:"stages,omitempty"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
	Error            string               `json:"error,omitempty"`
}

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusCrawling       RunStatus = "crawling"
	RunStatusFingerprinting RunStatus = "fingerprinting"
	RunStatusPublishing     RunStatus = "publishing"
	RunStatusComplete       RunStatus = "complete"
	RunStatusDegraded       RunStatus = "degraded"
	RunStatusFailed         RunStatus = "failed"
)

// Run is the persisted ledger record of a single pipeline invocation.
type Run struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	BusinessID string     `json:"business_id,omitempty"`
	Trigger    string     `json:"trigger"` // manual, scheduled, webhook
	Status     RunStatus  `json:"status"`
	Result     *CFPResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunStage is a persisted stage record within a run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      Stage        `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}
