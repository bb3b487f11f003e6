package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/store"
)

var (
	batchFile   string
	batchStatus string
	batchLimit  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the pipeline for many businesses concurrently",
	Long:  "Processes businesses from a URL file or from the store, bounded by batch.max_concurrent_businesses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		var urls []string
		if batchFile != "" {
			urls, err = readURLFile(batchFile)
			if err != nil {
				return err
			}
		} else {
			businesses, listErr := env.Store.ListBusinesses(ctx, store.BusinessFilter{
				Status: model.BusinessStatus(batchStatus),
				Limit:  batchLimit,
			})
			if listErr != nil {
				return eris.Wrap(listErr, "list businesses")
			}
			for _, b := range businesses {
				urls = append(urls, b.URL)
			}
		}

		if len(urls) == 0 {
			zap.L().Info("nothing to process")
			return nil
		}
		if batchLimit > 0 && len(urls) > batchLimit {
			urls = urls[:batchLimit]
		}

		succeeded, failed := processBatch(ctx, urls, cfg.Batch.MaxConcurrentBusinesses, func(ctx context.Context, url string) *model.CFPResult {
			return env.Pipeline.Execute(ctx, url, "manual")
		})

		zap.L().Info("batch complete",
			zap.Int("total", len(urls)),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return eris.Errorf("batch: %d of %d runs failed", failed, len(urls))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one business URL per line")
	batchCmd.Flags().StringVar(&batchStatus, "status", "pending", "process stored businesses with this status (ignored with --file)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max businesses to process")
	rootCmd.AddCommand(batchCmd)
}

// processBatch runs exec for every URL with at most maxConcurrent in
// flight. A failed run never stops the batch; cancellation does.
func processBatch(ctx context.Context, urls []string, maxConcurrent int, exec func(ctx context.Context, url string) *model.CFPResult) (succeeded, failed int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	var ok, bad atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrent)

	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := exec(ctx, url)
			if result != nil && result.Success {
				ok.Add(1)
				return nil
			}
			bad.Add(1)
			msg := "no result"
			if result != nil {
				msg = result.Error
			}
			zap.L().Warn("batch: run failed",
				zap.String("url", url),
				zap.String("error", msg),
			)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

// readURLFile reads one URL per line, skipping blanks and # comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open url file")
	}
	defer f.Close() //nolint:errcheck

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read url file")
	}
	return urls, nil
}
