// Package agent runs some scheduled tasks
package agent

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("agent")

// Sweeper is an in-process store whose expired entries are evicted lazily
type Sweeper interface {
	Sweep() int
}

// Agent periodically evicts expired cache and rate limit entries
type Agent interface {
	Boot(ctx context.Context)
	Sweep(ctx context.Context) int
	GetMetrics() map[string]int64
}

type agent struct {
	sweepers map[string]Sweeper
	interval time.Duration
	swept    int64
	runs     int64
}

// NewAgent creates a new agent
func NewAgent(interval time.Duration, sweepers map[string]Sweeper) Agent {
	return &agent{
		sweepers: sweepers,
		interval: interval,
	}
}

// Boot starts agent. It stops when ctx is done.
func (a *agent) Boot(ctx context.Context) {
	slog.Info("agent start!", slog.Int("sweepers", len(a.sweepers)), slog.String("module", "agent"))

	if len(a.sweepers) == 0 {
		return
	}

	ticker := time.NewTicker(a.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs every sweeper once and returns the number of evicted entries
func (a *agent) Sweep(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "Agent.Sweep")
	defer span.End()

	total := 0
	for name, sweeper := range a.sweepers {
		swept := sweeper.Sweep()
		if swept > 0 {
			slog.DebugContext(
				ctx, "swept expired entries",
				slog.String("store", name),
				slog.Int("count", swept),
				slog.String("module", "agent"),
			)
		}
		total += swept
	}

	atomic.AddInt64(&a.swept, int64(total))
	atomic.AddInt64(&a.runs, 1)

	return total
}

func (a *agent) GetMetrics() map[string]int64 {
	return map[string]int64{
		"agent_sweep_runs":    atomic.LoadInt64(&a.runs),
		"agent_swept_entries": atomic.LoadInt64(&a.swept),
	}
}
