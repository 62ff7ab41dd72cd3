package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket rate limiter. Tokens refill continuously at a
// fixed per-minute rate and accumulate up to a burst ceiling, so callers can
// absorb short spikes without exceeding the sustained rate.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a limiter sustaining perMinute operations per minute
// with no burst headroom.
func NewRateLimiter(perMinute int) *RateLimiter {
	return NewBurstRateLimiter(perMinute, 1)
}

// NewBurstRateLimiter creates a limiter sustaining perMinute operations per
// minute that lets up to burst of them fire back to back. The bucket starts
// full.
func NewBurstRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 60
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or the context ends. The sleep is
// sized from the refill rate rather than polled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
		rl.last = now

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
