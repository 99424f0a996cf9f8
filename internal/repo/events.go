package repo

import (
	"context"
	"fmt"

	"github.com/noah-isme/canasta/internal/events"
)

// EventRepo stores emitted session events.
type EventRepo struct {
	DB DBTX
}

// InsertEvent implements events.EventStore.
func (r EventRepo) InsertEvent(ctx context.Context, ev events.Event) error {
	if r.DB == nil {
		return ErrDBUnavailable
	}
	_, err := r.DB.Exec(ctx,
		`INSERT INTO session_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("repo: insert event: %w", err)
	}
	return nil
}
