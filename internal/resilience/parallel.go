package resilience

import "go.uber.org/zap"

// ParallelDecision tells the pipeline how to proceed after the crawl and
// fingerprint results are known.
type ParallelDecision struct {
	ShouldContinue bool
	Degraded       bool
	Reason         string
}

// HandleParallelProcessingError applies the stage-failure decision table:
// a crawl failure stops the run, a fingerprint failure after a good crawl
// continues in degraded mode, and no failure continues normally. Decisions
// are logged with sanitized error text.
func HandleParallelProcessingError(crawlErr, fingerprintErr error, errCtx ErrorContext) ParallelDecision {
	logger := zap.L().With(
		zap.String("operation", errCtx.Operation),
		zap.String("business_id", errCtx.BusinessID),
		zap.String("job_id", errCtx.JobID),
	)

	switch {
	case crawlErr != nil:
		logger.Error("crawl failed, stopping run",
			zap.String("error", SanitizeError(crawlErr)),
		)
		return ParallelDecision{ShouldContinue: false, Reason: "crawl failed"}
	case fingerprintErr != nil:
		logger.Warn("fingerprint failed, continuing with crawl data",
			zap.String("error", SanitizeError(fingerprintErr)),
		)
		return ParallelDecision{ShouldContinue: true, Degraded: true, Reason: "fingerprint failed"}
	default:
		return ParallelDecision{ShouldContinue: true}
	}
}
