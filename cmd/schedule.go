package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/scheduler"
)

var scheduleDaemon bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Process businesses due for automated re-runs",
	Long:  "Runs one scheduler pass over due businesses, or with --daemon keeps running on the configured cron expression.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		s := scheduler.New(env.Store, env.Pipeline, scheduler.Options{
			BatchSize:     cfg.Scheduler.BatchSize,
			CatchMissed:   cfg.Scheduler.CatchMissed,
			DLQMaxRetries: cfg.Scheduler.DLQMaxRetries,
			Frequencies:   cfg.Scheduler.Frequencies,
		})

		if scheduleDaemon {
			return s.Run(ctx, cfg.Scheduler.Cron)
		}

		report, err := s.ProcessScheduledAutomation(ctx)
		if err != nil {
			return err
		}
		retried, err := s.RetryDeadLetters(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("schedule pass finished",
			zap.Int("processed", report.Processed),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("deferred", report.Deferred),
			zap.Int("dead_letters_retried", retried),
		)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleDaemon, "daemon", false, "keep running on the configured cron schedule")
	rootCmd.AddCommand(scheduleCmd)
}
