package github

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(status int, headers map[string]string) *http.Response {
	resp := &http.Response{StatusCode: status, Header: make(http.Header)}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("does not block with a full quota", func(t *testing.T) {
		r := NewRateLimiter()

		start := time.Now()
		err := r.Wait(context.Background())

		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("returns context error when cancelled", func(t *testing.T) {
		r := NewRateLimiter()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Burn the single burst token first so the bucket has to wait.
		_ = r.Wait(context.Background())
		err := r.Wait(ctx)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRateLimiter_UpdateFromResponse(t *testing.T) {
	r := NewRateLimiter()

	r.UpdateFromResponse(response(http.StatusOK, map[string]string{
		HeaderRateRemaining: "42",
		HeaderRateLimit:     "5000",
		HeaderRateReset:     "1700000000",
	}))

	assert.Equal(t, 42, r.remaining)
	assert.Equal(t, 5000, r.limit)
	assert.Equal(t, time.Unix(1700000000, 0), r.resetTime)
}

func TestRateLimiter_CheckThrottle(t *testing.T) {
	t.Run("nil on success", func(t *testing.T) {
		r := NewRateLimiter()
		assert.NoError(t, r.CheckThrottle(response(http.StatusOK, nil)))
	})

	t.Run("nil on forbidden with quota left", func(t *testing.T) {
		r := NewRateLimiter()
		err := r.CheckThrottle(response(http.StatusForbidden, map[string]string{
			HeaderRateRemaining: "100",
		}))
		assert.NoError(t, err)
	})

	t.Run("throttled on 429", func(t *testing.T) {
		r := NewRateLimiter()
		err := r.CheckThrottle(response(http.StatusTooManyRequests, map[string]string{
			HeaderRateRemaining: "0",
			HeaderRateReset:     "1700000000",
		}))

		var rle *RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Equal(t, time.Unix(1700000000, 0), rle.ResetAt)
	})

	t.Run("throttled on forbidden with exhausted quota", func(t *testing.T) {
		r := NewRateLimiter()
		err := r.CheckThrottle(response(http.StatusForbidden, map[string]string{
			HeaderRateRemaining: "0",
		}))

		var rle *RateLimitError
		assert.ErrorAs(t, err, &rle)
	})

	t.Run("retry-after dominates the reset header", func(t *testing.T) {
		r := NewRateLimiter()
		before := time.Now()
		err := r.CheckThrottle(response(http.StatusTooManyRequests, map[string]string{
			HeaderRateRemaining: "0",
			HeaderRateReset:     "1700000000",
			HeaderRetryAfter:    "30",
		}))

		var rle *RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.WithinDuration(t, before.Add(30*time.Second), rle.ResetAt, 2*time.Second)
	})
}
