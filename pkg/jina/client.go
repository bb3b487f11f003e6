// Package jina wraps the Jina AI Reader and Search APIs. Reader turns
// a page into LLM-ready markdown; Search backs notability checks.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Jina operations used by the crawler and publisher.
type Client interface {
	// Read fetches a URL through the reader endpoint and returns the
	// page as markdown.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search and returns ranked results.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// ReadResponse is the parsed reader response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the extracted page content.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks reader token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the parsed search response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// SearchOption configures a single search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	siteFilter string
}

// WithSiteFilter restricts results to one domain.
func WithSiteFilter(domain string) SearchOption {
	return func(o *searchOpts) {
		o.siteFilter = domain
	}
}

// Option configures the client.
type Option func(*apiClient)

// WithBaseURL overrides the reader base URL.
func WithBaseURL(url string) Option {
	return func(c *apiClient) {
		c.readBase = url
	}
}

// WithSearchBaseURL overrides the search base URL.
func WithSearchBaseURL(url string) Option {
	return func(c *apiClient) {
		c.searchBase = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *apiClient) {
		c.http = hc
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *apiClient) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

type apiClient struct {
	apiKey      string
	readBase    string
	searchBase  string
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
}

// NewClient creates a Jina client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &apiClient{
		apiKey:      apiKey,
		readBase:    "https://r.jina.ai",
		searchBase:  "https://s.jina.ai",
		maxAttempts: 3,
		backoff:     1 * time.Second,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *apiClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	headers := map[string]string{"X-Return-Format": "markdown"}

	body, status, err := c.fetch(ctx, c.readBase+"/"+targetURL, headers)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("jina: read status %d: %s", status, string(body))
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal read response")
	}
	return &result, nil
}

func (c *apiClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	reqURL := c.searchBase + "/" + url.QueryEscape(query)
	if so.siteFilter != "" {
		reqURL += "?site=" + url.QueryEscape(so.siteFilter)
	}

	body, status, err := c.fetch(ctx, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}

	// 422 means no results for the query, not a failure.
	if status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: 422}, nil
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("jina: search status %d: %s", status, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return &result, nil
}

// fetch issues an authenticated GET with exponential backoff on
// transport errors and retryable statuses (429, 500, 502, 503). The
// final body and status are returned for the caller to interpret.
func (c *apiClient) fetch(ctx context.Context, reqURL string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "read response body")
		}

		if retryableStatus(resp.StatusCode) && attempt < c.maxAttempts {
			lastErr = eris.Errorf("status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}
