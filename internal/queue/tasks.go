package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/canasta/internal/session"
)

// TypeSessionSync uploads a finished session snapshot to Postgres.
const TypeSessionSync = "session:sync"

// QueueSync is the asynq queue session sync tasks run on.
const QueueSync = "sync"

// SyncPayload is the body of a session:sync task.
type SyncPayload struct {
	Session session.Session `json:"session"`
}

// NewSessionSyncTask builds a sync task for s. The task id is derived from the
// session id and its last update so the same snapshot is enqueued once.
func NewSessionSyncTask(s session.Session) (*asynq.Task, error) {
	if s.ID == "" {
		return nil, errors.New("queue: session id is required")
	}
	payload, err := json.Marshal(SyncPayload{Session: s})
	if err != nil {
		return nil, fmt.Errorf("queue: encode sync payload: %w", err)
	}
	return asynq.NewTask(TypeSessionSync, payload,
		asynq.Queue(QueueSync),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(syncTaskID(s)),
	), nil
}

func syncTaskID(s session.Session) string {
	return fmt.Sprintf("%s:%s:%d", TypeSessionSync, s.ID, s.UpdatedAt.UnixNano())
}

// DecodeSyncPayload parses the body of a session:sync task.
func DecodeSyncPayload(data []byte) (SyncPayload, error) {
	var p SyncPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return SyncPayload{}, err
	}
	if p.Session.ID == "" {
		return SyncPayload{}, errors.New("session id is required")
	}
	return p, nil
}
