// Package papersources provides the clients that collect candidate records
// from academic search APIs, and the shared plumbing they run on.
package papersources

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for controlling request rates
// to external APIs. It is safe for concurrent use because the underlying
// rate.Limiter is goroutine-safe for all operations.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// ratePerSecond is the sustained rate of requests per second.
// burst is the maximum burst size (number of tokens that can be consumed at once).
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// NewIntervalLimiter creates a limiter that grants at most count requests in
// any window of length interval, e.g. 100 per minute for Semantic Scholar or
// 10 per minute for arXiv. The first burst requests (clamped to [1, count])
// pass at once; the rest are paced at interval/(count-burst+1), so the
// initial burst plus the refill inside one window never exceeds count.
func NewIntervalLimiter(count int, interval time.Duration, burst int) *RateLimiter {
	if count < 1 {
		count = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	burst = min(max(burst, 1), count)
	every := interval / time.Duration(count-burst+1)
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
// Requests are never dropped; the only error is the context's.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Allow returns true if a request is allowed without waiting.
// It consumes one token if allowed, and returns false if no tokens are available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Limit returns the sustained rate in events per second.
func (r *RateLimiter) Limit() float64 {
	return float64(r.limiter.Limit())
}

// Burst returns the bucket size.
func (r *RateLimiter) Burst() int {
	return r.limiter.Burst()
}
