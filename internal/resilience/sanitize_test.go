package resilience

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitize_RedactsCredentialShapes(t *testing.T) {
	cases := []struct {
		in      string
		leaked  string
	}{
		{"request failed: Bearer sk-ant-abc123xyz rejected", "sk-ant-abc123xyz"},
		{"POST /v1/chat?api_key=secret-value-1 returned 500", "secret-value-1"},
		{"config token=ghp_XXXXX expired", "ghp_XXXXX"},
		{"auth password=hunter2 invalid", "hunter2"},
		{"header api-key: abc.def rejected", "abc.def"},
	}

	for _, tc := range cases {
		out := Sanitize(tc.in)
		if strings.Contains(out, tc.leaked) {
			t.Errorf("credential %q leaked through: %q", tc.leaked, out)
		}
		if !strings.Contains(out, RedactionMarker) {
			t.Errorf("expected redaction marker in %q", out)
		}
	}
}

func TestSanitize_LeavesOrdinaryTextAlone(t *testing.T) {
	in := "503 service unavailable: upstream overloaded"
	if out := Sanitize(in); out != in {
		t.Errorf("expected unchanged text, got %q", out)
	}
	if Sanitize("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestSanitizeError(t *testing.T) {
	if SanitizeError(nil) != "" {
		t.Error("nil error should sanitize to empty string")
	}
	out := SanitizeError(errors.New("call failed: Bearer tok-12345"))
	if strings.Contains(out, "tok-12345") {
		t.Errorf("token leaked: %q", out)
	}
}
