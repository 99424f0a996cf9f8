package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken before the wait
// budget or the context ran out.
var ErrNotAcquired = errors.New("lock: not acquired")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed mutual exclusion per key.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock retries; zero waits until ctx is done.
	MaxWait time.Duration
}

// SessionKey is the lock key guarding one owner's shopping session.
func SessionKey(ownerID string) string {
	return "canasta:lock:session:" + strings.TrimSpace(ownerID)
}

// WithLock executes fn while holding the lock for key. The lock is released
// even if fn returns an error, and only by the holder that took it.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(waitCtx, key, token, ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("%w: %s", ErrNotAcquired, key)
			}
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			defer l.release(key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-timer.C:
		}
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
