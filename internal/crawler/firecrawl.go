package crawler

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/pkg/firecrawl"
)

// FirecrawlFetcher fetches single pages through the Firecrawl scrape API.
type FirecrawlFetcher struct {
	client firecrawl.Client
}

// NewFirecrawlFetcher wraps a Firecrawl client as a Fetcher.
func NewFirecrawlFetcher(client firecrawl.Client) *FirecrawlFetcher {
	return &FirecrawlFetcher{client: client}
}

func (f *FirecrawlFetcher) Name() string { return "firecrawl" }

// Fetch scrapes one URL and returns its markdown rendering.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, targetURL string) (*model.CrawledPage, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: []string{"markdown"},
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.New("crawler: firecrawl scrape unsuccessful")
	}
	if strings.TrimSpace(resp.Data.Markdown) == "" {
		return nil, eris.New("crawler: firecrawl returned an empty page")
	}

	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &model.CrawledPage{
		URL:        pageURL,
		Title:      resp.Data.Title,
		Markdown:   resp.Data.Markdown,
		StatusCode: resp.Data.StatusCode,
	}, nil
}
