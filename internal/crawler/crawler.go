// Package crawler fetches business websites through an ordered fetcher
// chain and distills the metadata the fingerprint pipeline needs.
package crawler

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/pkg/firecrawl"
)

const (
	defaultMaxConcurrent = 4
	siteCrawlDepth       = 2
)

// Fetcher fetches a single URL and returns it as markdown.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*model.CrawledPage, error)
	Name() string
}

// Config tunes how much of a site a crawl covers.
type Config struct {
	MaxPages      int      // pages per crawl; 1 fetches the homepage only
	MaxConcurrent int      // parallel fetches during link expansion
	ExcludePaths  []string // glob patterns never fetched during expansion
}

// Crawler tries fetchers in priority order and merges the pages they
// return into a single CrawlData.
type Crawler struct {
	cfg      Config
	matcher  *PathMatcher
	fetchers []Fetcher
	fc       firecrawl.Client // optional: enables site crawl and batch expansion
}

// New creates a Crawler. Fetchers are tried in order; the first success
// supplies the homepage.
func New(cfg Config, fetchers ...Fetcher) *Crawler {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Crawler{
		cfg:      cfg,
		matcher:  NewPathMatcher(cfg.ExcludePaths),
		fetchers: fetchers,
	}
}

// WithFirecrawl enables the site-crawl fast path and batch link expansion.
func (c *Crawler) WithFirecrawl(fc firecrawl.Client) *Crawler {
	c.fc = fc
	return c
}

// Crawl fetches the site at rawURL and returns its distilled metadata.
// Multi-page crawls degrade to homepage-only rather than failing.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (*model.CrawlData, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "crawler: invalid url")
	}

	if c.cfg.MaxPages > 1 && c.fc != nil {
		data, err := c.siteCrawl(ctx, target)
		if err == nil {
			return data, nil
		}
		zap.L().Warn("crawler: site crawl failed, falling back to page chain",
			zap.String("url", target),
			zap.Error(err),
		)
	}

	home, source, err := c.fetchOne(ctx, target)
	if err != nil {
		return nil, err
	}

	pages := []model.CrawledPage{*home}
	if c.cfg.MaxPages > 1 {
		pages = append(pages, c.expand(ctx, home.Markdown, target)...)
	}

	data := Extract(pages, target)
	data.Source = source
	data.CrawledAt = time.Now().UTC()

	zap.L().Debug("crawler: crawl complete",
		zap.String("url", target),
		zap.String("source", source),
		zap.Int("pages", len(pages)),
		zap.Int("services", len(data.Services)),
		zap.Int("references", len(data.References)),
	)
	return &data, nil
}

// fetchOne tries each fetcher in order and returns the first page fetched,
// along with the name of the fetcher that produced it.
func (c *Crawler) fetchOne(ctx context.Context, targetURL string) (*model.CrawledPage, string, error) {
	var lastErr error
	for _, f := range c.fetchers {
		page, err := f.Fetch(ctx, targetURL)
		if err == nil && page != nil {
			return page, f.Name(), nil
		}
		if err != nil {
			zap.L().Debug("crawler: fetcher failed, trying next",
				zap.String("fetcher", f.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, "", eris.Wrap(lastErr, "crawler: all fetchers failed")
	}
	return nil, "", eris.Errorf("crawler: no fetcher configured for url: %s", targetURL)
}

// siteCrawl asks Firecrawl to walk the site and waits for the job to finish.
func (c *Crawler) siteCrawl(ctx context.Context, target string) (*model.CrawlData, error) {
	resp, err := c.fc.Crawl(ctx, firecrawl.CrawlRequest{
		URL:      target,
		MaxDepth: siteCrawlDepth,
		Limit:    c.cfg.MaxPages,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.ID == "" {
		return nil, eris.New("crawler: site crawl job rejected")
	}

	status, err := firecrawl.PollCrawl(ctx, c.fc, resp.ID)
	if err != nil {
		return nil, err
	}

	pages := pagesFromFirecrawl(status.Data)
	if len(pages) == 0 {
		return nil, eris.New("crawler: site crawl returned no pages")
	}

	data := Extract(pages, target)
	data.Source = "firecrawl"
	data.CrawledAt = time.Now().UTC()
	return &data, nil
}

// expand fetches same-site pages linked from the homepage. Failures are
// skipped; the homepage alone is enough to continue.
func (c *Crawler) expand(ctx context.Context, homepageMarkdown, target string) []model.CrawledPage {
	links := discoverLinks(homepageMarkdown, target, c.matcher, c.cfg.MaxPages-1)
	if len(links) == 0 {
		return nil
	}

	if c.fc != nil {
		return c.batchFetch(ctx, links)
	}

	var (
		mu    sync.Mutex
		pages []model.CrawledPage
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)
	for _, link := range links {
		g.Go(func() error {
			page, _, err := c.fetchOne(gCtx, link)
			if err != nil {
				zap.L().Debug("crawler: expansion fetch failed",
					zap.String("url", link),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			pages = append(pages, *page)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// batchFetch scrapes all expansion links in one Firecrawl batch call.
func (c *Crawler) batchFetch(ctx context.Context, urls []string) []model.CrawledPage {
	resp, err := c.fc.BatchScrape(ctx, firecrawl.BatchScrapeRequest{
		URLs:    urls,
		Formats: []string{"markdown"},
	})
	if err != nil {
		zap.L().Warn("crawler: batch scrape failed", zap.Error(err))
		return nil
	}

	status, err := firecrawl.PollBatchScrape(ctx, c.fc, resp.ID,
		firecrawl.WithPollInterval(2*time.Second),
		firecrawl.WithPollCap(10*time.Second),
	)
	if err != nil {
		zap.L().Warn("crawler: batch scrape poll failed", zap.Error(err))
		return nil
	}

	return pagesFromFirecrawl(status.Data)
}

func pagesFromFirecrawl(data []firecrawl.PageData) []model.CrawledPage {
	var pages []model.CrawledPage
	for _, d := range data {
		if strings.TrimSpace(d.Markdown) == "" {
			continue
		}
		pages = append(pages, model.CrawledPage{
			URL:        d.URL,
			Title:      d.Title,
			Markdown:   d.Markdown,
			StatusCode: d.StatusCode,
		})
	}
	return pages
}

// normalizeURL fills in a missing https scheme and validates the host.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.New("missing host")
	}
	return u.String(), nil
}
