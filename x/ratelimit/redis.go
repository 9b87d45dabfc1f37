package ratelimit

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tixgate/eventchat/core"
)

const redisKeyPrefix = "chat:ratelimit:"

type redisLimiter struct {
	rdb  *redis.Client
	size time.Duration
	max  int

	allowed  int64
	rejected int64
}

// NewRedisLimiter creates a fixed window limiter shared by every gateway instance using rdb.
// The window starts with the first INCR and ends when the key expires.
func NewRedisLimiter(rdb *redis.Client, config core.Config) core.RateLimiter {
	config.Normalize()
	return &redisLimiter{
		rdb:  rdb,
		size: config.RateLimitWindow,
		max:  config.RateLimitMax,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, wallet string) (bool, time.Duration, error) {
	ctx, span := tracer.Start(ctx, "RateLimit.Redis.Allow")
	defer span.End()

	key := redisKeyPrefix + strings.ToLower(wallet)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.size)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, 0, errors.Wrap(err, "failed to count send attempt")
	}

	if incr.Val() > int64(l.max) {
		atomic.AddInt64(&l.rejected, 1)
		retry := ttl.Val()
		if retry <= 0 {
			retry = l.size
		}
		return false, retry, nil
	}

	atomic.AddInt64(&l.allowed, 1)
	return true, 0, nil
}

func (l *redisLimiter) GetMetrics() map[string]int64 {
	return map[string]int64{
		"ratelimit_allowed":  atomic.LoadInt64(&l.allowed),
		"ratelimit_rejected": atomic.LoadInt64(&l.rejected),
	}
}
