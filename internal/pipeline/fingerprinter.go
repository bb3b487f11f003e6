package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/fingerprint"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/processor"
)

// FingerprintService couples the parallel query processor with the
// aggregator to implement the Fingerprinter collaborator.
type FingerprintService struct {
	proc *processor.Processor
	agg  *fingerprint.Aggregator
}

// NewFingerprinter wires the processor and aggregator together.
func NewFingerprinter(proc *processor.Processor, agg *fingerprint.Aggregator) *FingerprintService {
	return &FingerprintService{proc: proc, agg: agg}
}

// Fingerprint runs the full query matrix for one business and reduces
// the results. It fails only when no query succeeded; partial batches
// still produce an analysis.
func (s *FingerprintService) Fingerprint(ctx context.Context, biz model.BusinessContext) (*model.FingerprintAnalysis, error) {
	start := time.Now()

	queries := s.proc.BuildQueries(biz)
	if len(queries) == 0 {
		return nil, eris.New("fingerprint: no queries built")
	}

	results := s.proc.ProcessQueries(ctx, queries, biz.Name)
	analysis := s.agg.Aggregate(biz.Name, results, time.Since(start))

	stats := processor.ComputeStats(results)
	zap.L().Info("fingerprint: batch processed",
		zap.String("business", biz.Name),
		zap.Int("queries", len(queries)),
		zap.Int("successful", analysis.SuccessfulQueries),
		zap.Float64("mention_rate", stats.MentionRate),
		zap.Float64("visibility_score", analysis.VisibilityScore),
	)

	if analysis.SuccessfulQueries == 0 {
		return nil, eris.New("fingerprint: all queries failed")
	}
	return analysis, nil
}
