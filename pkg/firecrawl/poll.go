package firecrawl

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 15 * time.Second
	defaultPollTimeout = 5 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default timeout. Ignored when the
// parent context already carries a deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// PollCrawl polls a crawl job until it completes, fails, or the context
// expires. The poll interval doubles each round up to the cap.
func PollCrawl(ctx context.Context, client Client, id string, opts ...PollOption) (*CrawlStatusResponse, error) {
	return pollJob(ctx, "crawl", id, opts,
		func(ctx context.Context) (*CrawlStatusResponse, error) {
			return client.GetCrawlStatus(ctx, id)
		},
		func(s *CrawlStatusResponse) string { return s.Status },
	)
}

// PollBatchScrape polls a batch scrape job until it completes, fails,
// or the context expires.
func PollBatchScrape(ctx context.Context, client Client, id string, opts ...PollOption) (*BatchScrapeStatusResponse, error) {
	return pollJob(ctx, "batch scrape", id, opts,
		func(ctx context.Context) (*BatchScrapeStatusResponse, error) {
			return client.GetBatchScrapeStatus(ctx, id)
		},
		func(s *BatchScrapeStatusResponse) string { return s.Status },
	)
}

func pollJob[T any](
	ctx context.Context,
	kind, id string,
	opts []PollOption,
	fetch func(context.Context) (*T, error),
	status func(*T) string,
) (*T, error) {
	cfg := pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		resp, err := fetch(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "firecrawl: poll %s %s", kind, id)
		}

		switch status(resp) {
		case "completed":
			return resp, nil
		case "failed":
			return nil, eris.Errorf("firecrawl: %s %s failed", kind, id)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "firecrawl: poll %s %s timed out", kind, id)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}
