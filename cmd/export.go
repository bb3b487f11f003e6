package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export businesses, runs, and fingerprints to an xlsx workbook",
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

		var rows int
		if strings.HasSuffix(exportOut, ".csv") {
			rows, err = exportFingerprintCSV(ctx, st, exportOut, exportLimit)
			if err != nil {
				return err
			}
		} else {
			wb, n, buildErr := buildWorkbook(ctx, st, exportLimit)
			if buildErr != nil {
				return buildErr
			}
			if err := wb.Save(exportOut); err != nil {
				return eris.Wrap(err, "write workbook")
			}
			rows = n
		}

		zap.L().Info("export complete",
			zap.String("out", exportOut),
			zap.Int("rows", rows),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "aiviz-export.xlsx", "output path (.xlsx workbook, or .csv for a fingerprint summary)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "max rows per sheet")
	rootCmd.AddCommand(exportCmd)
}

// exportFingerprintCSV writes the latest fingerprint per business as a
// flat CSV. Returns the data row count.
func exportFingerprintCSV(ctx context.Context, st store.Store, path string, limit int) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "export: create csv")
	}
	defer f.Close() //nolint:errcheck

	n, err := writeFingerprintCSV(ctx, st, f, limit)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func writeFingerprintCSV(ctx context.Context, st store.Store, out io.Writer, limit int) (int, error) {
	businesses, err := st.ListBusinesses(ctx, store.BusinessFilter{Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "export: list businesses")
	}

	w := csv.NewWriter(out)
	header := []string{
		"business", "url", "tier", "visibility_score", "mention_rate",
		"sentiment_score", "avg_confidence", "total_queries",
		"successful_queries", "total_tokens", "estimated_cost_usd", "generated_at",
	}
	if err := w.Write(header); err != nil {
		return 0, eris.Wrap(err, "export: write csv header")
	}

	rows := 0
	for _, biz := range businesses {
		fp, fpErr := st.GetLatestFingerprint(ctx, biz.ID)
		if fpErr != nil {
			return 0, eris.Wrap(fpErr, "export: latest fingerprint")
		}
		if fp == nil {
			continue
		}
		record := []string{
			biz.Name,
			biz.URL,
			string(biz.Tier),
			strconv.FormatFloat(fp.VisibilityScore, 'f', 1, 64),
			strconv.FormatFloat(fp.MentionRate, 'f', 3, 64),
			strconv.FormatFloat(fp.SentimentScore, 'f', 3, 64),
			strconv.FormatFloat(fp.AvgConfidence, 'f', 3, 64),
			strconv.Itoa(fp.TotalQueries),
			strconv.Itoa(fp.SuccessfulQueries),
			strconv.Itoa(fp.TotalTokens),
			strconv.FormatFloat(fp.EstimatedCost, 'f', 4, 64),
			fp.GeneratedAt.Format("2006-01-02 15:04"),
		}
		if err := w.Write(record); err != nil {
			return 0, eris.Wrap(err, "export: write csv record")
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, eris.Wrap(err, "export: flush csv")
	}
	return rows, nil
}

// buildWorkbook assembles the Businesses, Runs, Fingerprints, and
// Leaderboard sheets. Returns the total data row count.
func buildWorkbook(ctx context.Context, st store.Store, limit int) (*xlsx.File, int, error) {
	wb := xlsx.NewFile()
	rows := 0

	businesses, err := st.ListBusinesses(ctx, store.BusinessFilter{Limit: limit})
	if err != nil {
		return nil, 0, eris.Wrap(err, "export: list businesses")
	}
	if err := addBusinessSheet(wb, businesses); err != nil {
		return nil, 0, err
	}
	rows += len(businesses)

	runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
	if err != nil {
		return nil, 0, eris.Wrap(err, "export: list runs")
	}
	if err := addRunSheet(wb, runs); err != nil {
		return nil, 0, err
	}
	rows += len(runs)

	var fingerprints []model.FingerprintAnalysis
	for _, biz := range businesses {
		fp, fpErr := st.GetLatestFingerprint(ctx, biz.ID)
		if fpErr != nil {
			return nil, 0, eris.Wrap(fpErr, "export: latest fingerprint")
		}
		if fp != nil {
			fingerprints = append(fingerprints, *fp)
		}
	}
	if err := addFingerprintSheet(wb, fingerprints); err != nil {
		return nil, 0, err
	}
	if err := addLeaderboardSheet(wb, fingerprints); err != nil {
		return nil, 0, err
	}
	rows += len(fingerprints)

	return wb, rows, nil
}

func addBusinessSheet(wb *xlsx.File, businesses []model.Business) error {
	sheet, err := wb.AddSheet("Businesses")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addHeader(sheet, "ID", "Name", "URL", "Category", "Location", "Tier", "Status", "Automation", "Next Crawl")

	for _, b := range businesses {
		row := sheet.AddRow()
		row.AddCell().Value = b.ID
		row.AddCell().Value = b.Name
		row.AddCell().Value = b.URL
		row.AddCell().Value = b.Category
		row.AddCell().Value = b.Location
		row.AddCell().Value = string(b.Tier)
		row.AddCell().Value = string(b.Status)
		row.AddCell().Value = strconv.FormatBool(b.AutomationEnabled)
		if b.NextCrawlAt != nil {
			row.AddCell().Value = b.NextCrawlAt.Format("2006-01-02 15:04")
		} else {
			row.AddCell().Value = ""
		}
	}
	return nil
}

func addRunSheet(wb *xlsx.File, runs []model.Run) error {
	sheet, err := wb.AddSheet("Runs")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addHeader(sheet, "ID", "URL", "Trigger", "Status", "Visibility", "Created", "Duration (s)")

	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().Value = r.ID
		row.AddCell().Value = r.URL
		row.AddCell().Value = r.Trigger
		row.AddCell().Value = string(r.Status)
		if r.Result != nil && r.Result.Fingerprint != nil {
			row.AddCell().SetFloat(r.Result.Fingerprint.VisibilityScore)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = r.CreatedAt.Format("2006-01-02 15:04")
		row.AddCell().SetFloat(r.UpdatedAt.Sub(r.CreatedAt).Seconds())
	}
	return nil
}

func addFingerprintSheet(wb *xlsx.File, fingerprints []model.FingerprintAnalysis) error {
	sheet, err := wb.AddSheet("Fingerprints")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addHeader(sheet, "Business", "Visibility", "Mention Rate", "Sentiment", "Confidence", "Avg Rank",
		"Queries", "Succeeded", "Tokens", "Cost (USD)", "Generated")

	for _, fp := range fingerprints {
		row := sheet.AddRow()
		row.AddCell().Value = fp.BusinessName
		row.AddCell().SetFloat(fp.VisibilityScore)
		row.AddCell().SetFloat(fp.MentionRate)
		row.AddCell().SetFloat(fp.SentimentScore)
		row.AddCell().SetFloat(fp.AvgConfidence)
		if fp.AvgRankPosition != nil {
			row.AddCell().SetFloat(*fp.AvgRankPosition)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().SetInt(fp.TotalQueries)
		row.AddCell().SetInt(fp.SuccessfulQueries)
		row.AddCell().SetInt(fp.TotalTokens)
		row.AddCell().SetFloat(fp.EstimatedCost)
		row.AddCell().Value = fp.GeneratedAt.Format("2006-01-02 15:04")
	}
	return nil
}

func addLeaderboardSheet(wb *xlsx.File, fingerprints []model.FingerprintAnalysis) error {
	sheet, err := wb.AddSheet("Leaderboard")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addHeader(sheet, "Business", "Competitor", "Mentions", "Avg Position", "Appears With Target")

	for _, fp := range fingerprints {
		for _, entry := range fp.Leaderboard.Competitors {
			row := sheet.AddRow()
			row.AddCell().Value = fp.BusinessName
			row.AddCell().Value = entry.Name
			row.AddCell().SetInt(entry.MentionCount)
			if entry.AvgPosition != nil {
				row.AddCell().SetFloat(*entry.AvgPosition)
			} else {
				row.AddCell().Value = ""
			}
			row.AddCell().Value = strconv.FormatBool(entry.AppearsWithTarget)
		}
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, name := range names {
		cell := row.AddCell()
		cell.Value = name
	}
}
