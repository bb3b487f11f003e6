package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
// Retryability is decided by matching error text against RetryableErrors;
// an empty pattern list means nothing is ever retried.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff duration before jitter. Default: 30s.
	MaxDelay time.Duration

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the capped delay
	// (0.0 = no jitter, 0.25 = ±25%). Default: 0.25.
	JitterFraction float64

	// RetryableErrors are case-insensitive substrings matched against error
	// text. Only matching errors are retried.
	RetryableErrors []string

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)
}

// DefaultLLMRetryConfig covers gateway calls to LLM backends.
func DefaultLLMRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		RetryableErrors: []string{
			"rate limit", "429", "timeout", "timed out", "overloaded",
			"500", "502", "503", "504", "connection reset", "connection refused",
			"temporarily unavailable", "eof",
		},
	}
}

// DefaultCrawlRetryConfig covers crawl-service calls.
func DefaultCrawlRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       20 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		RetryableErrors: []string{
			"rate limit", "429", "timeout", "timed out",
			"500", "502", "503", "504", "connection reset",
		},
	}
}

// DefaultDatabaseRetryConfig covers store operations.
func DefaultDatabaseRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		RetryableErrors: []string{
			"connection reset", "connection refused", "deadlock",
			"too many connections", "timeout", "broken pipe",
		},
	}
}

// IsRetryableError reports whether err matches any configured pattern.
// Matching is case-insensitive substring; an empty pattern list always
// returns false. Fatal classification is handled separately.
func IsRetryableError(err error, patterns []string) bool {
	if err == nil || len(patterns) == 0 {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// RetryDelay returns the backoff before the given retry attempt (1-based):
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay), then ±JitterFraction
// of the capped value. The result never exceeds MaxDelay*(1+JitterFraction).
func RetryDelay(attempt int, cfg RetryConfig) time.Duration {
	cfg = applyDefaults(cfg)
	if attempt < 1 {
		attempt = 1
	}
	return computeBackoff(attempt-1, cfg)
}

// Do executes fn with retry logic according to cfg. Non-retryable errors
// stop the loop immediately; exhausting all attempts wraps the last error
// in a ProcessingError with code MAX_RETRIES_EXCEEDED. Context cancellation
// stops retries immediately.
func Do(ctx context.Context, cfg RetryConfig, errCtx ErrorContext, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, errCtx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn returning a value with retry logic. Same semantics as
// Do but preserves the return value from the successful call.
func DoVal[T any](ctx context.Context, cfg RetryConfig, errCtx ErrorContext, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		// Don't retry on context cancellation.
		if ctx.Err() != nil {
			return zero, lastErr
		}

		// Fatal errors (auth, validation, non-retryable 4xx) stop the loop
		// regardless of pattern matches.
		if IsFatal(lastErr) {
			return zero, lastErr
		}

		if !IsRetryableError(lastErr, cfg.RetryableErrors) {
			return zero, lastErr
		}

		// Don't sleep after the last attempt.
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		delay := computeBackoff(attempt, cfg)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	errCtx.Attempt = cfg.MaxAttempts
	return zero, &ProcessingError{
		Code:      CodeMaxRetriesExceeded,
		Message:   "all retry attempts exhausted",
		Err:       lastErr,
		Retryable: false,
		Context:   errCtx,
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// Apply jitter: ±JitterFraction of the capped delay.
	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		jitter := (rand.Float64()*2 - 1) * jitterRange // [-jitterRange, +jitterRange]
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
// Error text is sanitized before logging.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("error", SanitizeError(err)),
		)
	}
}
