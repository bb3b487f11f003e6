package resilience

import "regexp"

// RedactionMarker replaces credential-shaped substrings in logged text.
const RedactionMarker = "[REDACTED]"

var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{4,}`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|token|password|secret|authorization)\b\s*[=:]\s*"?[^\s&"',;]+"?`),
}

// Sanitize strips credential-shaped substrings from s so the result is safe
// to log or persist. Key names are kept; values are replaced.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	out := credentialPatterns[0].ReplaceAllString(s, "Bearer "+RedactionMarker)
	out = credentialPatterns[1].ReplaceAllString(out, "$1="+RedactionMarker)
	return out
}

// SanitizeError is Sanitize over an error's text; nil yields "".
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}
