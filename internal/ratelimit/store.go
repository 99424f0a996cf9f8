package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// StoreLimiter is a fixed-window Allower on top of a ulule limiter store.
type StoreLimiter struct {
	Store limiter.Store
}

// NewRedisStore builds a limiter store that keeps counters in Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return store, nil
}

// Allow counts one request for key within window.
func (l StoreLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if l.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	lctx, err := limiter.New(l.Store, rate).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
