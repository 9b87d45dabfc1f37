// Package ratelimit bounds how often a wallet may post messages
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("ratelimit")

type window struct {
	count int
	start time.Time
}

type memoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	max     int
	now     func() time.Time

	allowed  int64
	rejected int64
}

// NewMemoryLimiter creates a process-local fixed window limiter
func NewMemoryLimiter(config core.Config) core.RateLimiter {
	return newMemoryLimiter(config, time.Now)
}

func newMemoryLimiter(config core.Config, now func() time.Time) *memoryLimiter {
	config.Normalize()
	return &memoryLimiter{
		windows: make(map[string]*window),
		size:    config.RateLimitWindow,
		max:     config.RateLimitMax,
		now:     now,
	}
}

// Allow counts one send attempt for wallet.
// The window is fixed: it restarts only once more than the window size elapsed since its first hit.
func (l *memoryLimiter) Allow(ctx context.Context, wallet string) (bool, time.Duration, error) {
	_, span := tracer.Start(ctx, "RateLimit.Memory.Allow")
	defer span.End()

	key := strings.ToLower(wallet)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > l.size {
		l.windows[key] = &window{count: 1, start: now}
		atomic.AddInt64(&l.allowed, 1)
		return true, 0, nil
	}

	if w.count >= l.max {
		atomic.AddInt64(&l.rejected, 1)
		return false, w.start.Add(l.size).Sub(now), nil
	}

	w.count++
	atomic.AddInt64(&l.allowed, 1)
	return true, 0, nil
}

// Sweep drops windows that already expired
func (l *memoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	swept := 0
	for key, w := range l.windows {
		if now.Sub(w.start) > l.size {
			delete(l.windows, key)
			swept++
		}
	}
	return swept
}

func (l *memoryLimiter) GetMetrics() map[string]int64 {
	l.mu.Lock()
	tracked := int64(len(l.windows))
	l.mu.Unlock()

	return map[string]int64{
		"ratelimit_allowed":  atomic.LoadInt64(&l.allowed),
		"ratelimit_rejected": atomic.LoadInt64(&l.rejected),
		"ratelimit_tracked":  tracked,
	}
}
