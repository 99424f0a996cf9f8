package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/canasta/internal/session"
)

// SessionCache keeps the device-local snapshot of a user's session state in Redis.
type SessionCache struct {
	R            redis.UniversalClient
	TTL          time.Duration
	HistoryLimit int
}

// ActiveKey is the Redis key holding the in-progress session.
func ActiveKey(ownerID string) string {
	return "canasta:session:" + strings.TrimSpace(ownerID)
}

// HistoryKey is the Redis list holding completed sessions, newest first.
func HistoryKey(ownerID string) string {
	return "canasta:history:" + strings.TrimSpace(ownerID)
}

func (c SessionCache) historyLimit() int64 {
	if c.HistoryLimit <= 0 {
		return session.DefaultHistoryLimit
	}
	return int64(c.HistoryLimit)
}

// Load returns the owner's active session, if any, and history.
func (c SessionCache) Load(ctx context.Context, ownerID string) (*session.Session, []session.Session, error) {
	if c.R == nil {
		return nil, nil, errors.New("repo: redis client not configured")
	}
	pipe := c.R.Pipeline()
	activeCmd := pipe.Get(ctx, ActiveKey(ownerID))
	historyCmd := pipe.LRange(ctx, HistoryKey(ownerID), 0, c.historyLimit()-1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("repo: load session: %w", err)
	}

	var active *session.Session
	if data, err := activeCmd.Bytes(); err == nil {
		var s session.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, nil, fmt.Errorf("repo: decode active session: %w", err)
		}
		active = &s
	} else if !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("repo: load active session: %w", err)
	}

	raw := historyCmd.Val()
	history := make([]session.Session, 0, len(raw))
	for _, entry := range raw {
		var s session.Session
		if err := json.Unmarshal([]byte(entry), &s); err != nil {
			return nil, nil, fmt.Errorf("repo: decode history: %w", err)
		}
		history = append(history, s)
	}
	return active, history, nil
}

// Save stores the active session (deleting the key when nil) and, when
// archived is set, prepends it to the bounded history list.
func (c SessionCache) Save(ctx context.Context, ownerID string, active, archived *session.Session) error {
	if c.R == nil {
		return errors.New("repo: redis client not configured")
	}
	activeKey := ActiveKey(ownerID)
	historyKey := HistoryKey(ownerID)

	var activeData, archivedData []byte
	var err error
	if active != nil {
		if activeData, err = json.Marshal(active); err != nil {
			return fmt.Errorf("repo: encode active session: %w", err)
		}
	}
	if archived != nil {
		if archivedData, err = json.Marshal(archived); err != nil {
			return fmt.Errorf("repo: encode archived session: %w", err)
		}
	}

	pipe := c.R.TxPipeline()
	if active != nil {
		pipe.Set(ctx, activeKey, activeData, c.TTL)
	} else {
		pipe.Del(ctx, activeKey)
	}
	if archived != nil {
		pipe.LPush(ctx, historyKey, archivedData)
		pipe.LTrim(ctx, historyKey, 0, c.historyLimit()-1)
		if c.TTL > 0 {
			pipe.Expire(ctx, historyKey, c.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("repo: save session: %w", err)
	}
	return nil
}
