package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds retry-with-backoff configuration
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	MaxDelay      time.Duration `json:"max_delay"`
	Jitter        bool          `json:"jitter"` // ±25% uniform jitter on each delay

	// IsRetryable decides whether an error is worth another attempt.
	// Nil retries every error.
	IsRetryable func(error) bool `json:"-"`

	// OnExhausted, when set, is invoked with the last error instead of
	// returning it after all attempts fail.
	OnExhausted func(error) error `json:"-"`
}

// DefaultRetryConfig returns safe defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      30 * time.Second,
		Jitter:        true,
	}
}

// Retry runs fn up to MaxAttempts times, sleeping between attempts with
// multiplicative backoff. The delay after attempt n (1-indexed) is
// min(initial × factor^n, max), jittered when enabled. Context
// cancellation aborts the wait and returns ctx.Err().
func Retry(ctx context.Context, cfg *RetryConfig, fn func(context.Context) error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.IsRetryable != nil && !cfg.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(backoffDelay(cfg, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if cfg.OnExhausted != nil {
		return cfg.OnExhausted(lastErr)
	}
	return lastErr
}

// backoffDelay computes the sleep before the next attempt
func backoffDelay(cfg *RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if maxDelay := float64(cfg.MaxDelay); maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	if cfg.Jitter {
		// ±25% uniform
		delay *= 0.75 + rand.Float64()*0.5
	}

	return time.Duration(delay)
}
