package crawler

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

const maxLocalBody = 512 * 1024

// LocalFetcher grabs pages with plain net/http and strips the HTML down to
// text. It costs nothing, so it backstops the API fetchers when neither is
// configured; blocked or script-only pages still error out and fall through.
type LocalFetcher struct {
	client *http.Client
}

// NewLocalFetcher creates a LocalFetcher with conservative timeouts.
func NewLocalFetcher() *LocalFetcher {
	return &LocalFetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalFetcher) Name() string { return "local_http" }

// Fetch downloads a URL, rejects bot-blocked responses, and converts the
// HTML to plain text.
func (l *LocalFetcher) Fetch(ctx context.Context, targetURL string) (*model.CrawledPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crawler: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aiviz/1.0)")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "crawler: local fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLocalBody))
	if err != nil {
		return nil, eris.Wrap(err, "crawler: read body")
	}

	if kind, blocked := detectBlock(resp.StatusCode, resp.Header, body); blocked {
		return nil, eris.Errorf("crawler: blocked (%s)", kind)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("crawler: status %d", resp.StatusCode)
	}
	if len(body) < 100 {
		return nil, eris.New("crawler: empty page")
	}

	return &model.CrawledPage{
		URL:        targetURL,
		Title:      htmlTitle(body),
		Markdown:   htmlToText(string(body)),
		StatusCode: resp.StatusCode,
	}, nil
}

var (
	titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)

	// Blocks whose inner text is never page content.
	chromeTagRes = compileBlockTagRes("script", "style", "nav", "footer", "noscript")
)

func compileBlockTagRes(tags ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		res = append(res, regexp.MustCompile(`(?is)<`+tag+`[^>]*>.*?</`+tag+`>`))
	}
	return res
}

// htmlTitle pulls the <title> text out of a raw HTML document.
func htmlTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// htmlToText strips chrome blocks and tags, decodes common entities, and
// collapses whitespace into plain text usable by the extractor.
func htmlToText(html string) string {
	for _, re := range chromeTagRes {
		html = re.ReplaceAllString(html, "")
	}
	html = tagRe.ReplaceAllString(html, " ")

	html = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(html)

	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
