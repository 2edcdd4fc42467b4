package resilience

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitError is returned when a caller exceeds the configured rate.
// RetryAfter carries the suggested wait before the next attempt.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %v", e.Key, e.RetryAfter.Round(time.Millisecond))
}

// RateLimiter provides simple in-memory sliding-window rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow records a request for key and returns nil if it is within the
// limit, or a *RateLimitError with a suggested wait if not.
func (r *RateLimiter) Allow(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out requests older than the window
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		// Oldest recent request rolling out of the window frees a slot
		wait := recent[0].Add(r.window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		return &RateLimitError{Key: key, RetryAfter: wait}
	}

	r.requests[key] = append(recent, now)
	return nil
}
