package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/pkg/jina"
)

// JinaFetcher fetches pages through the Jina Reader API. A circuit breaker
// skips the upstream entirely after repeated failures so a flaky reader
// degrades to the next fetcher instead of slowing every crawl.
type JinaFetcher struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaFetcher wraps a Jina client as a Fetcher. Three consecutive
// failures open the breaker for a minute.
func NewJinaFetcher(client jina.Client) *JinaFetcher {
	return &JinaFetcher{
		client:  client,
		breaker: resilience.NewBreaker("jina_reader", 3, time.Minute),
	}
}

func (j *JinaFetcher) Name() string { return "jina" }

// Fetch reads one URL via Jina Reader and validates that the content is
// usable before returning it.
func (j *JinaFetcher) Fetch(ctx context.Context, targetURL string) (*model.CrawledPage, error) {
	if err := j.breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := j.client.Read(ctx, targetURL)
	if err != nil {
		j.breaker.Record(err)
		return nil, err
	}

	if reason := unusable(resp); reason != "" {
		err := eris.Errorf("crawler: jina content unusable: %s", reason)
		j.breaker.Record(err)
		return nil, err
	}

	j.breaker.Record(nil)

	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &model.CrawledPage{
		URL:        pageURL,
		Title:      resp.Data.Title,
		Markdown:   resp.Data.Content,
		StatusCode: resp.Code,
	}, nil
}

// challengeSignatures mark interstitial pages that read as content but
// carry nothing usable. Only short bodies are suspect; a real page can
// legitimately mention Cloudflare.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// unusable reports why a Jina response cannot feed extraction, or "" when
// it can.
func unusable(resp *jina.ReadResponse) string {
	if resp == nil {
		return "empty response"
	}
	if resp.Code != 0 && resp.Code != 200 {
		return fmt.Sprintf("status %d", resp.Code)
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return "content too short"
	}

	if len(content) < 1000 {
		lower := strings.ToLower(content)
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return "challenge page"
			}
		}
	}
	return ""
}
