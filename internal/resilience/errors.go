package resilience

import (
	"errors"
	"fmt"
)

// Error codes carried by ProcessingError.
const (
	CodeMaxRetriesExceeded = "MAX_RETRIES_EXCEEDED"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeTimeout            = "TIMEOUT"
	CodeStageFailed        = "STAGE_FAILED"
	CodeUnsupportedModel   = "UNSUPPORTED_MODEL"
)

// ErrorContext carries operational context for error reporting and
// dead-letter records. Fields are omitted from logs when empty.
type ErrorContext struct {
	Operation  string         `json:"operation"`
	BusinessID string         `json:"business_id,omitempty"`
	JobID      string         `json:"job_id,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ProcessingError is the typed error surfaced by the retry framework and
// pipeline stages. Retryable false means no further attempts may be made.
type ProcessingError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
	Context   ErrorContext
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Fatal builds a non-retryable ProcessingError with no cause.
func Fatal(code, message string, errCtx ErrorContext) *ProcessingError {
	return &ProcessingError{Code: code, Message: message, Retryable: false, Context: errCtx}
}

// AsProcessingError unwraps err to a ProcessingError if one is in the chain.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HTTPStatus extracts an HTTP status code from any error in the chain that
// carries one (the API clients' typed errors do).
func HTTPStatus(err error) (int, bool) {
	var carrier interface{ HTTPStatus() int }
	if errors.As(err, &carrier) {
		return carrier.HTTPStatus(), true
	}
	return 0, false
}

// IsAuthError reports whether err carries a 401 or 403 status.
func IsAuthError(err error) bool {
	status, ok := HTTPStatus(err)
	return ok && (status == 401 || status == 403)
}

// IsFatal reports whether err must never be retried: an explicitly
// non-retryable ProcessingError, or a client error status (4xx) other than
// 408 and 429.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := AsProcessingError(err); ok {
		return !pe.Retryable
	}
	if status, ok := HTTPStatus(err); ok {
		if status == 401 || status == 403 {
			return true
		}
		if status >= 400 && status < 500 && status != 408 && status != 429 {
			return true
		}
	}
	return false
}
