// Package scheduler drives automated re-runs: it scans for businesses due
// for processing, invokes the pipeline in bounded batches, persists the
// next due date per tier frequency, and replays dead-lettered failures.
package scheduler

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

// Orchestrator runs the full pipeline for one business URL.
type Orchestrator interface {
	Execute(ctx context.Context, rawURL, trigger string) *model.CFPResult
}

// Options controls one scheduler pass.
type Options struct {
	// BatchSize caps businesses processed per pass. Zero means
	// DefaultBatchSize.
	BatchSize int
	// CatchMissed also processes businesses that missed one or more
	// whole cycles. When false those are skipped until the next manual
	// intervention or catch-up pass.
	CatchMissed bool
	// DLQMaxRetries caps replays per dead-letter entry.
	DLQMaxRetries int
	// Frequencies maps tier name to frequency name (daily, weekly,
	// monthly, manual). Unmapped tiers fall back to manual.
	Frequencies map[string]string
}

// DefaultBatchSize bounds a pass when no batch size is configured.
const DefaultBatchSize = 10

// Report summarizes one scheduler pass.
type Report struct {
	Candidates    int `json:"candidates"`
	Processed     int `json:"processed"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	SkippedManual int `json:"skipped_manual"`
	SkippedMissed int `json:"skipped_missed"`
	Deferred      int `json:"deferred"`
}

// Scheduler selects due businesses and hands them to the orchestrator.
type Scheduler struct {
	store store.Store
	orch  Orchestrator
	opts  Options
	now   func() time.Time
}

// New creates a Scheduler.
func New(st store.Store, orch Orchestrator, opts Options) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.DLQMaxRetries <= 0 {
		opts.DLQMaxRetries = 3
	}
	return &Scheduler{store: st, orch: orch, opts: opts, now: time.Now}
}

// DueForAutomation is the due-check predicate: a business is due when
// automation is enabled and its next crawl time is unset or has passed.
func DueForAutomation(biz *model.Business, now time.Time) bool {
	if biz == nil || !biz.AutomationEnabled {
		return false
	}
	return biz.NextCrawlAt == nil || !biz.NextCrawlAt.After(now)
}

// missedCycle reports whether a due business is overdue by more than one
// whole frequency interval.
func missedCycle(biz *model.Business, freq Frequency, now time.Time) bool {
	if biz.NextCrawlAt == nil {
		return false
	}
	interval := freq.Interval()
	if interval <= 0 {
		return false
	}
	return now.Sub(*biz.NextCrawlAt) > interval
}

// ProcessScheduledAutomation runs one pass: select due businesses, process
// at most BatchSize of them, and log everything skipped for the next pass.
func (s *Scheduler) ProcessScheduledAutomation(ctx context.Context) (*Report, error) {
	now := s.now().UTC()
	report := &Report{}

	// Fetch past the batch cap so deferred businesses can be counted.
	candidates, err := s.store.ListDueBusinesses(ctx, now, s.opts.BatchSize*2)
	if err != nil {
		return report, eris.Wrap(err, "scheduler: list due businesses")
	}
	report.Candidates = len(candidates)

	log := zap.L()
	log.Info("scheduler: pass starting",
		zap.Int("candidates", len(candidates)),
		zap.Int("batch_size", s.opts.BatchSize),
	)

	for i := range candidates {
		biz := &candidates[i]
		if !DueForAutomation(biz, now) {
			continue
		}

		freq := FrequencyForTier(biz.Tier, s.opts.Frequencies)
		if freq == FrequencyManual {
			report.SkippedManual++
			log.Info("scheduler: skipping manual-frequency business",
				zap.String("business_id", biz.ID),
				zap.String("tier", string(biz.Tier)),
			)
			continue
		}
		if !s.opts.CatchMissed && missedCycle(biz, freq, now) {
			report.SkippedMissed++
			log.Warn("scheduler: skipping business past its cycle, catch-up disabled",
				zap.String("business_id", biz.ID),
				zap.Timep("next_crawl_at", biz.NextCrawlAt),
			)
			continue
		}
		if report.Processed >= s.opts.BatchSize {
			report.Deferred++
			log.Info("scheduler: batch full, deferring to next pass",
				zap.String("business_id", biz.ID),
				zap.String("url", biz.URL),
			)
			continue
		}

		report.Processed++
		s.processOne(ctx, biz, freq, now, report)
	}

	log.Info("scheduler: pass complete",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("deferred", report.Deferred),
	)
	return report, nil
}

func (s *Scheduler) processOne(ctx context.Context, biz *model.Business, freq Frequency, now time.Time, report *Report) {
	result := s.orch.Execute(ctx, biz.URL, "scheduled")

	if result != nil && result.Success {
		report.Succeeded++
	} else {
		report.Failed++
		s.deadLetter(ctx, biz, result)
	}

	// The next due date advances even after a failure; failed runs are
	// replayed through the dead-letter queue, not by tightening the
	// schedule.
	s.scheduleNext(ctx, biz, freq, now)
}

// scheduleNext persists the next due date derived from the tier frequency.
func (s *Scheduler) scheduleNext(ctx context.Context, biz *model.Business, freq Frequency, now time.Time) {
	interval := freq.Interval()
	if interval <= 0 {
		return
	}
	next := now.Add(interval)
	if err := s.store.UpdateBusiness(ctx, biz.ID, store.BusinessPatch{NextCrawlAt: &next}); err != nil {
		zap.L().Warn("scheduler: persist next crawl time",
			zap.String("business_id", biz.ID),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) deadLetter(ctx context.Context, biz *model.Business, result *model.CFPResult) {
	entry := resilience.DLQEntry{
		BusinessID: biz.ID,
		URL:        biz.URL,
		ErrorType:  resilience.ErrorTypeTransient,
		MaxRetries: s.opts.DLQMaxRetries,
	}
	if result != nil {
		entry.Error = result.Error
		entry.Stage = failedStage(result)
	}
	if entry.Error == "" {
		entry.Error = "run failed"
	}
	entry.NextRetryAt = s.now().UTC().Add(resilience.NextRetryDelay(0))

	if err := s.store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("scheduler: enqueue dead letter",
			zap.String("business_id", biz.ID),
			zap.Error(err),
		)
		return
	}
	zap.L().Warn("scheduler: run dead-lettered",
		zap.String("business_id", biz.ID),
		zap.String("url", biz.URL),
		zap.String("stage", entry.Stage),
	)
}

func failedStage(result *model.CFPResult) string {
	for _, sr := range result.Stages {
		if sr.Status == model.StageStatusFailed {
			return string(sr.Name)
		}
	}
	return string(model.StageCrawl)
}

// RetryDeadLetters replays due transient dead-letter entries, at most
// BatchSize per call. Entries that fail again are rescheduled with a
// doubling delay until their retry budget runs out.
func (s *Scheduler) RetryDeadLetters(ctx context.Context) (int, error) {
	entries, err := s.store.DequeueDLQ(ctx, resilience.DLQFilter{
		ErrorType: resilience.ErrorTypeTransient,
		DueOnly:   true,
		Limit:     s.opts.BatchSize,
	})
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: dequeue dead letters")
	}

	retried := 0
	for i := range entries {
		entry := &entries[i]
		if !entry.CanRetry() {
			continue
		}
		retried++

		result := s.orch.Execute(ctx, entry.URL, "scheduled")
		if result != nil && result.Success {
			if err := s.store.RemoveDLQ(ctx, entry.ID); err != nil {
				zap.L().Warn("scheduler: remove dead letter", zap.String("id", entry.ID), zap.Error(err))
			}
			zap.L().Info("scheduler: dead letter recovered",
				zap.String("url", entry.URL),
				zap.Int("retry_count", entry.RetryCount),
			)
			continue
		}

		lastErr := "run failed"
		if result != nil && result.Error != "" {
			lastErr = result.Error
		}
		nextAt := s.now().UTC().Add(resilience.NextRetryDelay(entry.RetryCount + 1))
		if err := s.store.IncrementDLQRetry(ctx, entry.ID, nextAt, lastErr); err != nil {
			zap.L().Warn("scheduler: reschedule dead letter", zap.String("id", entry.ID), zap.Error(err))
		}
	}
	return retried, nil
}
