package pipeline

import (
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// ProgressSink receives stage-boundary notifications. Implementations
// must be fast; the pipeline calls them synchronously.
type ProgressSink interface {
	OnStageTransition(stage model.Stage, percent int, message string)
}

type nopSink struct{}

func (nopSink) OnStageTransition(model.Stage, int, string) {}

// LogSink reports stage transitions through the global logger.
type LogSink struct{}

func (LogSink) OnStageTransition(stage model.Stage, percent int, message string) {
	zap.L().Info("pipeline: stage transition",
		zap.String("stage", string(stage)),
		zap.Int("percent", percent),
		zap.String("message", message),
	)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(stage model.Stage, percent int, message string)

func (f ProgressFunc) OnStageTransition(stage model.Stage, percent int, message string) {
	f(stage, percent, message)
}
