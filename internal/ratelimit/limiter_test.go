package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a limiter without real sleeping.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func newTestLimiter(rate, burst float64) (*RateLimiter, *fakeClock) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rl := NewRateLimiter(rate, burst)
	rl.lastRefill = clk.t
	rl.now = func() time.Time { return clk.t }
	rl.sleep = func(ctx context.Context, d time.Duration) error {
		clk.slept = append(clk.slept, d)
		clk.t = clk.t.Add(d)
		return ctx.Err()
	}
	return rl, clk
}

func TestNewRateLimiterStartsFull(t *testing.T) {
	rl, _ := newTestLimiter(1.0, 10.0)
	assert.InDelta(t, 10.0, rl.GetCurrentTokens(), 0.001)
}

func TestWaitN_WithinBurstDoesNotSleep(t *testing.T) {
	rl, clk := newTestLimiter(1000, 1000)
	require.NoError(t, rl.WaitN(context.Background(), 400))
	require.NoError(t, rl.WaitN(context.Background(), 600))
	assert.Empty(t, clk.slept)
	assert.InDelta(t, 0, rl.GetCurrentTokens(), 0.001)
}

func TestWaitN_PaysBackDebt(t *testing.T) {
	rl, clk := newTestLimiter(400000, 400000)
	ctx := context.Background()

	// 1,000,000 bytes in 400,000-byte chunks at 400,000 B/s:
	// the first chunk rides the burst, each later one waits a second.
	for _, n := range []int{400000, 400000, 200000} {
		require.NoError(t, rl.WaitN(ctx, n))
	}
	require.Len(t, clk.slept, 2)
	assert.Equal(t, time.Second, clk.slept[0])
	assert.Equal(t, 500*time.Millisecond, clk.slept[1])
}

func TestWaitN_ChunkLargerThanBurst(t *testing.T) {
	rl, clk := newTestLimiter(100, 100)
	require.NoError(t, rl.WaitN(context.Background(), 300))
	require.Len(t, clk.slept, 1)
	assert.Equal(t, 2*time.Second, clk.slept[0])
}

func TestWaitN_Cancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.WaitN(ctx, 10), context.Canceled)
}

func TestWaitN_RealSleepHonoursCancel(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.NoError(t, rl.WaitN(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := rl.WaitN(ctx, 100) // would take 100s
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNilLimiter(t *testing.T) {
	var rl *RateLimiter
	assert.NoError(t, rl.WaitN(context.Background(), 1<<30))
	assert.Nil(t, NewBandwidthLimiter(0))
	assert.Equal(t, 0.0, rl.Rate())
	assert.Equal(t, 2048.0, NewBandwidthLimiter(2048).Rate())
}
