package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing, viewing, and summarizing pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		url, _ := cmd.Flags().GetString("url")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			URL:    url,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run and fingerprint statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		cutoff := time.Now().UTC().Add(-since)

		counts, err := st.CountRunsByStatus(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		fpStats, err := st.FingerprintStats(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "fingerprint stats")
		}
		dlqDepth, err := st.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "dlq depth")
		}

		formatRunStats(os.Stdout, counts, fpStats, dlqDepth, since)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, crawling, complete, degraded, failed, ...)")
	runsListCmd.Flags().String("url", "", "filter by business URL")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tURL\tTRIGGER\tSTATUS\tSCORE\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---\t-------\t------\t-----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		score := ""
		if r.Result != nil && r.Result.Fingerprint != nil {
			score = fmt.Sprintf("%.0f", r.Result.Fingerprint.VisibilityScore)
		}

		url := r.URL
		if len(url) > 40 {
			url = url[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			url,
			r.Trigger,
			r.Status,
			score,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, counts map[model.RunStatus]int, fp *store.FingerprintStats, dlqDepth int, window time.Duration) {
	total := 0
	for _, n := range counts {
		total += n
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%s\n", window)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", counts[model.RunStatusComplete])
	_, _ = fmt.Fprintf(w, "Degraded:\t%d\n", counts[model.RunStatusDegraded])
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", counts[model.RunStatusFailed])
	_, _ = fmt.Fprintf(w, "In flight:\t%d\n",
		counts[model.RunStatusQueued]+counts[model.RunStatusCrawling]+counts[model.RunStatusFingerprinting]+counts[model.RunStatusPublishing])
	if fp != nil && fp.Count > 0 {
		_, _ = fmt.Fprintf(w, "Fingerprints:\t%d\n", fp.Count)
		_, _ = fmt.Fprintf(w, "Avg visibility:\t%.1f\n", fp.AvgVisibility)
		_, _ = fmt.Fprintf(w, "Total tokens:\t%d\n", fp.TotalTokens)
		_, _ = fmt.Fprintf(w, "Estimated cost:\t$%.2f\n", fp.TotalCost)
	}
	_, _ = fmt.Fprintf(w, "DLQ depth:\t%d\n", dlqDepth)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
