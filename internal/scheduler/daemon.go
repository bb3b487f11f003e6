package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Run blocks, executing a scheduler pass plus a dead-letter sweep on the
// given cron expression until the context is cancelled. Passes never
// overlap; cron fires while a pass is still running are dropped.
func (s *Scheduler) Run(ctx context.Context, cronExpr string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(cronExpr, func() {
		if _, passErr := s.ProcessScheduledAutomation(ctx); passErr != nil {
			zap.L().Error("scheduler: pass failed", zap.Error(passErr))
		}
		if _, retryErr := s.RetryDeadLetters(ctx); retryErr != nil {
			zap.L().Error("scheduler: dead-letter sweep failed", zap.Error(retryErr))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: parse cron %q", cronExpr)
	}

	zap.L().Info("scheduler: daemon starting", zap.String("cron", cronExpr))
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	zap.L().Info("scheduler: daemon stopped")
	return nil
}
