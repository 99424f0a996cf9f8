package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/canasta/internal/events"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/session"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SessionStore persists synced sessions.
type SessionStore interface {
	Upsert(ctx context.Context, s session.Session) error
}

// SyncPublisher enqueues a sync task whenever a session is completed or
// cancelled. It is an events.Notifier.
type SyncPublisher struct {
	Client Enqueuer
}

// Notify implements events.Notifier.
func (p SyncPublisher) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicSessionCompleted && ev.Topic != events.TopicSessionCancelled {
		return nil
	}
	if p.Client == nil {
		return errors.New("queue: client not configured")
	}
	var s session.Session
	if err := json.Unmarshal(ev.Payload, &s); err != nil {
		return fmt.Errorf("queue: decode session event: %w", err)
	}
	task, err := NewSessionSyncTask(s)
	if err != nil {
		return err
	}
	if _, err := p.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("queue: enqueue %s: %w", TypeSessionSync, err)
	}
	return nil
}

// SyncHandler processes session:sync tasks.
type SyncHandler struct {
	Store   SessionStore
	Metrics *obs.SessionMetrics
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h SyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := DecodeSyncPayload(t.Payload())
	if err != nil {
		h.Metrics.ObserveSync(err)
		h.Logger.Error().Err(err).Str("task", t.Type()).Msg("discard malformed sync task")
		return fmt.Errorf("queue: %v: %w", err, asynq.SkipRetry)
	}
	s := payload.Session
	err = h.Store.Upsert(ctx, s)
	h.Metrics.ObserveSync(err)
	if err != nil {
		h.Logger.Warn().Err(err).Str("session_id", s.ID).Str("owner_id", s.OwnerID).Msg("session sync failed")
		return err
	}
	h.Logger.Info().Str("session_id", s.ID).Str("owner_id", s.OwnerID).Str("status", string(s.Status)).Msg("session synced")
	return nil
}

// NewServeMux routes task types to their handlers.
func NewServeMux(sync SyncHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSessionSync, sync)
	return mux
}
