package delta

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds the request rate to the exchange with a sliding
// window. The exchange bans keys that burst past its limits; staying
// under them locally is cheaper than handling 429 responses.
type RateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	requests []time.Time
}

// NewRateLimiter creates a limiter allowing `limit` requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window: window,
		limit:  limit,
	}
}

// Wait blocks until a request slot is available or the context is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.tryAcquire()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire records the request if under the limit, otherwise returns
// how long to wait for the oldest in-window request to expire
func (r *RateLimiter) tryAcquire() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	recent := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	r.requests = recent

	if len(r.requests) < r.limit {
		r.requests = append(r.requests, now)
		return 0
	}

	return r.requests[0].Sub(cutoff)
}
