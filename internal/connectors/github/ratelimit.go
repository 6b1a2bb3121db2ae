package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// GitHubRateLimit is the authenticated rate limit (5000/hour).
	GitHubRateLimit = 5000

	// ProactiveRate is the proactive throttle rate (~1.2 req/sec = 4320/hr).
	ProactiveRate = 1.2

	// MinBuffer is the minimum remaining requests before waiting for reset.
	MinBuffer = 100

	// ResetMargin is added to header-derived waits so the retry lands after
	// the quota actually refreshed, not on the boundary.
	ResetMargin = 10 * time.Second

	// HeaderRateRemaining is the remaining requests header.
	HeaderRateRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimit is the rate limit header.
	HeaderRateLimit = "X-RateLimit-Limit"

	// HeaderRateReset is the reset timestamp header (Unix seconds).
	HeaderRateReset = "X-RateLimit-Reset"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

// RateLimiter implements dual-strategy rate limiting for the GitHub API:
// a proactive token bucket that keeps the request rate under the hourly
// quota, and reactive tracking of the rate headers so a throttled request
// waits out the provider-indicated reset before repeating.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int
	limit     int
	resetTime time.Time
	bucket    *rate.Limiter
	minBuffer int
}

// NewRateLimiter creates a rate limiter assuming a full quota.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		remaining: GitHubRateLimit,
		limit:     GitHubRateLimit,
		bucket:    rate.NewLimiter(rate.Limit(ProactiveRate), 1),
		minBuffer: MinBuffer,
	}
}

// Wait blocks until it is safe to issue the next request: first the token
// bucket, then the reactive quota check.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining := r.remaining
	resetTime := r.resetTime
	r.mu.Unlock()

	if remaining < r.minBuffer && time.Now().Before(resetTime) {
		return sleepUntil(ctx, resetTime.Add(ResetMargin))
	}
	return nil
}

// UpdateFromResponse records rate limit state from response headers.
func (r *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if remaining := resp.Header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			r.remaining = val
		}
	}
	if limit := resp.Header.Get(HeaderRateLimit); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			r.limit = val
		}
	}
	if reset := resp.Header.Get(HeaderRateReset); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			r.resetTime = time.Unix(val, 0)
		}
	}
}

// CheckThrottle classifies the response, returning a *RateLimitError when
// the provider is throttling (429, or 403 with the quota exhausted) and nil
// otherwise. Headers are always folded into the limiter state.
func (r *RateLimiter) CheckThrottle(resp *http.Response) error {
	if resp == nil {
		return nil
	}

	r.UpdateFromResponse(resp)

	r.mu.Lock()
	remaining := r.remaining
	limit := r.limit
	resetTime := r.resetTime
	r.mu.Unlock()

	if resp.StatusCode != http.StatusTooManyRequests &&
		!(resp.StatusCode == http.StatusForbidden && remaining == 0) {
		return nil
	}

	// Retry-After dominates when both signals are present.
	if retryAfter := resp.Header.Get(HeaderRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			resetTime = time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}

	return &RateLimitError{
		ResetAt:   resetTime,
		Remaining: remaining,
		Limit:     limit,
	}
}

// sleepUntil blocks until the deadline or context cancellation.
func sleepUntil(ctx context.Context, deadline time.Time) error {
	wait := time.Until(deadline)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
