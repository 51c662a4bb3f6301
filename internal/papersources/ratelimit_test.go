package papersources

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("PubMed rate allows a burst of three", func(t *testing.T) {
		rl := NewRateLimiter(3, 3)

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow(), "request %d should be within burst", i+1)
		}
		assert.False(t, rl.Allow())
	})

	t.Run("burst below one is raised to one", func(t *testing.T) {
		rl := NewRateLimiter(1, 0)
		assert.Equal(t, 1, rl.Burst())
		assert.True(t, rl.Allow())
	})
}

func TestNewIntervalLimiter(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		interval  time.Duration
		burst     int
		rate      float64
		wantBurst int
	}{
		{name: "three per second paced", count: 3, interval: time.Second, burst: 1, rate: 3, wantBurst: 1},
		{name: "hundred per minute paced", count: 100, interval: time.Minute, burst: 1, rate: 100.0 / 60, wantBurst: 1},
		{name: "ten per minute with burst of four", count: 10, interval: time.Minute, burst: 4, rate: 7.0 / 60, wantBurst: 4},
		{name: "burst above count is clamped", count: 5, interval: time.Second, burst: 9, rate: 1, wantBurst: 5},
		{name: "burst below one is raised", count: 5, interval: time.Second, burst: 0, rate: 5, wantBurst: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewIntervalLimiter(tt.count, tt.interval, tt.burst)
			assert.InDelta(t, tt.rate, rl.Limit(), 1e-6)
			assert.Equal(t, tt.wantBurst, rl.Burst())
		})
	}

	t.Run("invalid arguments fall back to one per second", func(t *testing.T) {
		rl := NewIntervalLimiter(0, 0, 0)
		assert.InDelta(t, 1.0, rl.Limit(), 1e-6)
		assert.Equal(t, 1, rl.Burst())
	})
}

// grantedWithin counts the permits Wait hands out before window elapses.
func grantedWithin(rl *RateLimiter, window time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	granted := 0
	for rl.Wait(ctx) == nil {
		granted++
	}
	return granted
}

func TestIntervalLimiter_HonorsBudgetWithinOneInterval(t *testing.T) {
	const (
		count    = 5
		interval = 500 * time.Millisecond
		window   = 490 * time.Millisecond
	)

	for _, burst := range []int{1, 3, count} {
		t.Run(fmt.Sprintf("burst %d", burst), func(t *testing.T) {
			t.Parallel()
			rl := NewIntervalLimiter(count, interval, burst)

			granted := grantedWithin(rl, window)

			assert.LessOrEqual(t, granted, count)
			assert.GreaterOrEqual(t, granted, burst)
		})
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("burst allows instant requests", func(t *testing.T) {
		rl := NewRateLimiter(100, 5)
		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Wait(context.Background()))
		}
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("waits for token after burst exhausted", func(t *testing.T) {
		rl := NewRateLimiter(20, 1)
		require.NoError(t, rl.Wait(context.Background()))

		start := time.Now()
		require.NoError(t, rl.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("returns context error when canceled", func(t *testing.T) {
		rl := NewIntervalLimiter(1, time.Hour, 1)
		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := rl.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("safe for concurrent use", func(t *testing.T) {
		rl := NewRateLimiter(1000, 50)
		var wg sync.WaitGroup
		errs := make(chan error, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- rl.Wait(context.Background())
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})
}
