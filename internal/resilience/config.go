package resilience

import "time"

// FromRetrySettings converts config file values to a RetryConfig, starting
// from base and overriding only the fields that were set.
func FromRetrySettings(base RetryConfig, maxAttempts, baseDelayMs, maxDelayMs int, multiplier float64, retryableErrors []string) RetryConfig {
	cfg := base
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if baseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if retryableErrors != nil {
		cfg.RetryableErrors = retryableErrors
	}
	return cfg
}
