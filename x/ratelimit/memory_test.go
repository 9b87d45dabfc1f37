package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tixgate/eventchat/core"
)

const (
	Wallet1 = "0x1111111111111111111111111111111111111111"
	Wallet2 = "0x2222222222222222222222222222222222222222"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiterWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newMemoryLimiter(core.Config{}, clock.Now)

	for i := 0; i < 20; i++ {
		ok, _, err := limiter.Allow(ctx, Wallet1)
		assert.NoError(t, err)
		assert.True(t, ok, "message %d should be allowed", i+1)
		clock.Advance(time.Second)
	}

	// 21st in the same window
	ok, retry, err := limiter.Allow(ctx, Wallet1)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	// other wallets are independent
	ok, _, _ = limiter.Allow(ctx, Wallet2)
	assert.True(t, ok)

	// exactly 60s after the first message the window is still open
	clock.Advance(40 * time.Second)
	ok, _, _ = limiter.Allow(ctx, Wallet1)
	assert.False(t, ok)

	// 61s after the first message it resets
	clock.Advance(time.Second)
	ok, _, _ = limiter.Allow(ctx, Wallet1)
	assert.True(t, ok)

	metrics := limiter.GetMetrics()
	assert.Equal(t, int64(22), metrics["ratelimit_allowed"])
	assert.Equal(t, int64(2), metrics["ratelimit_rejected"])
}

func TestMemoryLimiterCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	limiter := newMemoryLimiter(core.Config{RateLimitMax: 2}, clock.Now)

	mixed := "0xAbCdEf0123456789aBcDeF0123456789abCDef01"

	ok, _, _ := limiter.Allow(ctx, mixed)
	assert.True(t, ok)
	ok, _, _ = limiter.Allow(ctx, "0xabcdef0123456789abcdef0123456789abcdef01")
	assert.True(t, ok)
	ok, _, _ = limiter.Allow(ctx, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	assert.False(t, ok)
}

// a burst straddling the boundary admits two full windows
func TestMemoryLimiterBoundaryBurst(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	limiter := newMemoryLimiter(core.Config{}, clock.Now)

	ok, _, _ := limiter.Allow(ctx, Wallet1)
	assert.True(t, ok)

	clock.Advance(59 * time.Second)
	admitted := 1
	for i := 0; i < 30; i++ {
		if ok, _, _ := limiter.Allow(ctx, Wallet1); ok {
			admitted++
		}
	}
	assert.Equal(t, 20, admitted)

	clock.Advance(2 * time.Second)
	for i := 0; i < 30; i++ {
		if ok, _, _ := limiter.Allow(ctx, Wallet1); ok {
			admitted++
		}
	}
	assert.Equal(t, 40, admitted)
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	ctx := context.Background()
	limiter := newMemoryLimiter(core.Config{}, time.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, _ := limiter.Allow(ctx, Wallet1)
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, admitted)
}

func TestMemoryLimiterSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	limiter := newMemoryLimiter(core.Config{}, clock.Now)

	limiter.Allow(ctx, Wallet1)
	clock.Advance(30 * time.Second)
	limiter.Allow(ctx, Wallet2)

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, int64(1), limiter.GetMetrics()["ratelimit_tracked"])
}
