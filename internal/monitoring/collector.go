package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Run metrics within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsDegraded int     `json:"runs_degraded"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Fingerprint metrics within the lookback window.
	FingerprintCount int     `json:"fingerprint_count"`
	AvgVisibility    float64 `json:"avg_visibility"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`

	// DLQ depth, not windowed.
	DLQDepth int `json:"dlq_depth"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector aggregates run, fingerprint, and dead-letter metrics from
// the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	counts, err := c.store.CountRunsByStatus(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count runs")
	}
	for status, n := range counts {
		snap.RunsTotal += n
		switch status {
		case model.RunStatusComplete:
			snap.RunsComplete += n
		case model.RunStatusDegraded:
			snap.RunsDegraded += n
		case model.RunStatusFailed:
			snap.RunsFailed += n
		case model.RunStatusQueued, model.RunStatusCrawling, model.RunStatusFingerprinting, model.RunStatusPublishing:
			snap.RunsActive += n
		}
	}
	// Degraded runs finished with usable output; they count as
	// successes for failure-rate purposes.
	finished := snap.RunsComplete + snap.RunsDegraded + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	stats, err := c.store.FingerprintStats(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: fingerprint stats")
	}
	if stats != nil {
		snap.FingerprintCount = stats.Count
		snap.AvgVisibility = stats.AvgVisibility
		snap.TotalTokens = stats.TotalTokens
		snap.CostUSD = stats.TotalCost
	}

	dlqDepth, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqDepth

	return snap, nil
}
