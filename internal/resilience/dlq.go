package resilience

import "time"

// Error classes recorded on dead-letter entries.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DLQEntry represents a failed scheduled run that can be retried later.
type DLQEntry struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	URL          string    `json:"url"`
	Stage        string    `json:"stage,omitempty"` // pipeline stage that failed
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	DueOnly   bool   `json:"due_only,omitempty"`   // only entries whose next_retry_at has passed
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry is transient and hasn't exceeded its
// max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.ErrorType == ErrorTypeTransient && e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent". Fatal
// errors (auth, validation, exhausted retries) are permanent.
func ClassifyError(err error) string {
	if err == nil || IsFatal(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}

// NextRetryDelay schedules dead-letter replays: one hour doubling per prior
// retry, capped at 24h.
func NextRetryDelay(retryCount int) time.Duration {
	delay := time.Hour
	for i := 0; i < retryCount && delay < 24*time.Hour; i++ {
		delay *= 2
	}
	if delay > 24*time.Hour {
		delay = 24 * time.Hour
	}
	return delay
}
