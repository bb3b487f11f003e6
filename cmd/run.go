package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runURL string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for a single business",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Pipeline.Execute(ctx, runURL, "manual")

		zap.L().Info("run finished",
			zap.String("url", runURL),
			zap.Bool("success", result.Success),
			zap.Bool("degraded", result.Degraded),
			zap.Int64("elapsed_ms", result.ProcessingTimeMs),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.Success {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "business website URL (required)")
	_ = runCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(runCmd)
}
