package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import businesses from a CSV file",
	Long:  "Upserts businesses by URL from a CSV with columns: name, url, category, location, tier, automation_enabled.",
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

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		businesses, err := parseBusinessCSV(f)
		if err != nil {
			return err
		}
		if len(businesses) == 0 {
			zap.L().Info("no businesses in csv", zap.String("csv", importCSVPath))
			return nil
		}

		upserted, err := st.UpsertBusinesses(ctx, businesses)
		if err != nil {
			return eris.Wrap(err, "upsert businesses")
		}

		zap.L().Info("import complete",
			zap.Int("parsed", len(businesses)),
			zap.Int64("upserted", upserted),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}

// parseBusinessCSV reads businesses from CSV. The header row names the
// columns; only url is required per row. Rows without a URL are skipped.
func parseBusinessCSV(r io.Reader) ([]model.Business, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["url"]; !ok {
		return nil, eris.New("csv missing required column: url")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var businesses []model.Business
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv record")
		}

		url := field(record, "url")
		if url == "" {
			skipped++
			continue
		}

		biz := model.Business{
			Name:     field(record, "name"),
			URL:      url,
			Category: field(record, "category"),
			Location: field(record, "location"),
			Tier:     model.Tier(field(record, "tier")),
		}
		if raw := field(record, "automation_enabled"); raw != "" {
			enabled, parseErr := strconv.ParseBool(raw)
			if parseErr != nil {
				return nil, eris.Wrapf(parseErr, "row %d: automation_enabled", len(businesses)+skipped+2)
			}
			biz.AutomationEnabled = enabled
		}
		businesses = append(businesses, biz)
	}

	if skipped > 0 {
		zap.L().Warn("skipped csv rows without a url", zap.Int("rows", skipped))
	}
	return businesses, nil
}
