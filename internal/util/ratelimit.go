package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter replenishing at a fixed per-minute
// rate with a burst of one.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter creates a RateLimiter allowing perMinute operations per
// minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:     float64(perMinute) / 60.0,
		tokens:   1,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// take refills the bucket from elapsed time and consumes a token when one
// is available.
func (rl *RateLimiter) take() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > 1 {
		rl.tokens = 1
	}
	rl.lastTime = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}
