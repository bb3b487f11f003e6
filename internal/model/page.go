package model

import "time"

// CrawledPage is a single page fetched during a crawl, already converted
// to markdown by whichever fetcher produced it.
type CrawledPage struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Markdown   string `json:"markdown"`
	StatusCode int    `json:"status_code"`
}

// CrawlCache stores the distilled result of a crawl so scheduled re-runs
// inside the freshness window skip the fetch entirely.
type CrawlCache struct {
	ID          string    `json:"id"`
	BusinessURL string    `json:"business_url"`
	Data        CrawlData `json:"data"`
	CrawledAt   time.Time `json:"crawled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
