package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainSiteHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Acme Plumbing | Home</title>
  <style>body { color: red; }</style>
  <script>console.log("tracking");</script>
</head>
<body>
  <nav><a href="/about">About</a></nav>
  <h1>Acme Plumbing</h1>
  <p>Licensed &amp; bonded plumbing contractor serving the metro area since 1980.</p>
  <footer>Copyright 2024</footer>
</body>
</html>`

func TestLocalFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(plainSiteHTML))
	}))
	defer srv.Close()

	f := NewLocalFetcher()
	page, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing | Home", page.Title)
	assert.Equal(t, 200, page.StatusCode)
	assert.Contains(t, page.Markdown, "Licensed & bonded plumbing contractor")
	assert.NotContains(t, page.Markdown, "console.log")
	assert.NotContains(t, page.Markdown, "color: red")
	assert.NotContains(t, page.Markdown, "Copyright 2024")
}

func TestLocalFetcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, strings.Repeat("not found ", 20), http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewLocalFetcher()
	page, err := f.Fetch(context.Background(), srv.URL)

	assert.Error(t, err)
	assert.Nil(t, page)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLocalFetcher_CloudflareBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("cf-ray", "8abc123")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(strings.Repeat("denied ", 30)))
	}))
	defer srv.Close()

	f := NewLocalFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blocked (cloudflare)")
}

func TestLocalFetcher_TinyBodyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := NewLocalFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty page")
}

func TestLocalFetcher_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewLocalFetcher()
	_, err := f.Fetch(ctx, srv.URL)
	assert.Error(t, err)
}

func TestHTMLTitle(t *testing.T) {
	assert.Equal(t, "Acme", htmlTitle([]byte(`<html><title>Acme</title></html>`)))
	assert.Equal(t, "Acme", htmlTitle([]byte(`<TITLE lang="en"> Acme </TITLE>`)))
	assert.Empty(t, htmlTitle([]byte(`<html><body>no title</body></html>`)))
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText(`<p>Hello &amp; welcome</p><script>evil()</script><p>Second</p>`)
	assert.Contains(t, got, "Hello & welcome")
	assert.Contains(t, got, "Second")
	assert.NotContains(t, got, "evil")
	assert.NotContains(t, got, "<p>")
}
