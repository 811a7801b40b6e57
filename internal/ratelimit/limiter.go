// Package ratelimit throttles transfer bandwidth with a token bucket whose
// tokens are bytes.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
//
// WaitN may take more tokens than are available; the balance goes negative
// and the caller sleeps until it is paid back. A chunk larger than the burst
// therefore still passes, just later.
type RateLimiter struct {
	tokens     float64   // Current number of tokens available, may be negative
	maxTokens  float64   // Maximum bucket capacity
	refillRate float64   // Tokens added per second
	lastRefill time.Time // Last time tokens were refilled
	mu         sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a new rate limiter.
//
// Parameters:
//   - tokensPerSecond: Rate at which tokens are added
//   - burstSize: Maximum tokens that can accumulate (allows brief bursts)
func NewRateLimiter(tokensPerSecond float64, burstSize float64) *RateLimiter {
	return &RateLimiter{
		tokens:     burstSize, // Start with full bucket
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// NewBandwidthLimiter limits throughput to bytesPerSec with one second of burst.
// It returns nil for bytesPerSec <= 0; a nil limiter never waits.
func NewBandwidthLimiter(bytesPerSec int64) *RateLimiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return NewRateLimiter(float64(bytesPerSec), float64(bytesPerSec))
}

// Wait blocks until one token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN takes n tokens, blocking until the bucket has paid for them or ctx
// is cancelled.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	if rl == nil || n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := rl.reserve(float64(n))
	if wait <= 0 {
		return nil
	}
	return rl.sleep(ctx, wait)
}

// reserve deducts n tokens and returns how long until the balance is back
// to zero.
func (rl *RateLimiter) reserve(n float64) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	rl.tokens -= n
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.refillRate * float64(time.Second))
}

// refill adds tokens for the time elapsed since the last refill. Caller holds mu.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// Rate returns the refill rate in tokens per second.
func (rl *RateLimiter) Rate() float64 {
	if rl == nil {
		return 0
	}
	return rl.refillRate
}

// GetCurrentTokens returns the current number of tokens (for testing/debugging).
func (rl *RateLimiter) GetCurrentTokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
