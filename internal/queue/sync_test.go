package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/events"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/queue"
	"github.com/noah-isme/canasta/internal/session"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t", Queue: queue.QueueSync, Type: task.Type()}, nil
}

type stubStore struct {
	saved []session.Session
	err   error
}

func (s *stubStore) Upsert(_ context.Context, sess session.Session) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, sess)
	return nil
}

func completedSession() session.Session {
	ended := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return session.Session{
		ID:        "s-1",
		OwnerID:   "user-1",
		Status:    session.StatusCompleted,
		Items:     []session.LineItem{},
		StartedAt: ended.Add(-time.Hour),
		EndedAt:   &ended,
		UpdatedAt: ended,
	}
}

func eventFor(t *testing.T, topic string, s session.Session) events.Event {
	t.Helper()
	payload, err := json.Marshal(s)
	require.NoError(t, err)
	return events.Event{Topic: topic, AggregateID: s.OwnerID, Payload: payload}
}

func TestSyncPublisherEnqueuesFinishedSessions(t *testing.T) {
	enq := &fakeEnqueuer{}
	pub := queue.SyncPublisher{Client: enq}
	s := completedSession()

	require.NoError(t, pub.Notify(context.Background(), eventFor(t, events.TopicSessionItemChanged, s)))
	require.Empty(t, enq.tasks)

	require.NoError(t, pub.Notify(context.Background(), eventFor(t, events.TopicSessionCompleted, s)))
	require.NoError(t, pub.Notify(context.Background(), eventFor(t, events.TopicSessionCancelled, s)))
	require.Len(t, enq.tasks, 2)
	require.Equal(t, queue.TypeSessionSync, enq.tasks[0].Type())

	payload, err := queue.DecodeSyncPayload(enq.tasks[0].Payload())
	require.NoError(t, err)
	require.Equal(t, "s-1", payload.Session.ID)
}

func TestSyncPublisherIgnoresDuplicates(t *testing.T) {
	pub := queue.SyncPublisher{Client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, pub.Notify(context.Background(), eventFor(t, events.TopicSessionCompleted, completedSession())))

	pub = queue.SyncPublisher{Client: &fakeEnqueuer{err: errors.New("redis down")}}
	require.ErrorContains(t, pub.Notify(context.Background(), eventFor(t, events.TopicSessionCompleted, completedSession())), "redis down")
}

func TestSyncHandlerUpserts(t *testing.T) {
	store := &stubStore{}
	metrics := obs.NewSessionMetrics("test", prometheus.NewRegistry())
	h := queue.SyncHandler{Store: store, Metrics: metrics, Logger: zerolog.Nop()}

	task, err := queue.NewSessionSyncTask(completedSession())
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, store.saved, 1)
	require.Equal(t, session.StatusCompleted, store.saved[0].Status)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.SyncResults.WithLabelValues("ok")))

	store.err = errors.New("db down")
	err = h.ProcessTask(context.Background(), task)
	require.ErrorContains(t, err, "db down")
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.SyncResults.WithLabelValues("error")))
}

func TestSyncHandlerSkipsMalformed(t *testing.T) {
	h := queue.SyncHandler{Store: &stubStore{}, Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(queue.TypeSessionSync, []byte(`{"session":{}}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = h.ProcessTask(context.Background(), asynq.NewTask(queue.TypeSessionSync, []byte(`not json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewSessionSyncTaskRequiresID(t *testing.T) {
	_, err := queue.NewSessionSyncTask(session.Session{})
	require.Error(t, err)
}
