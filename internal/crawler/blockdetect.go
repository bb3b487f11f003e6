package crawler

import (
	"net/http"
	"strings"
)

// blockKind classifies why a fetch looks bot-blocked.
type blockKind string

const (
	blockCloudflare blockKind = "cloudflare"
	blockCaptcha    blockKind = "captcha"
	blockJSShell    blockKind = "js_shell"
)

// detectBlock inspects a raw HTTP response for anti-bot interstitials so
// the local fetcher fails fast and lets an API fetcher take over.
func detectBlock(statusCode int, header http.Header, body []byte) (blockKind, bool) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return blockCloudflare, true
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return blockCloudflare, true
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return blockCaptcha, true
	}

	// A tiny document that only works with scripts enabled is a JS shell,
	// not content.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return blockJSShell, true
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return blockJSShell, true
		}
	}

	return "", false
}
