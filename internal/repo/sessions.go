package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/session"
)

const upsertSessionSQL = `INSERT INTO shopping_sessions (
    id, owner_id, store_id, status, items, subtotal_before_tax, total_tax, total,
    tax_breakdown, started_at, ended_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    store_id = EXCLUDED.store_id,
    status = EXCLUDED.status,
    items = EXCLUDED.items,
    subtotal_before_tax = EXCLUDED.subtotal_before_tax,
    total_tax = EXCLUDED.total_tax,
    total = EXCLUDED.total,
    tax_breakdown = EXCLUDED.tax_breakdown,
    ended_at = EXCLUDED.ended_at,
    updated_at = EXCLUDED.updated_at
WHERE shopping_sessions.updated_at <= EXCLUDED.updated_at`

const listSessionsSQL = `SELECT id, owner_id, store_id, status, items, subtotal_before_tax, total_tax, total,
    tax_breakdown, started_at, ended_at, updated_at
FROM shopping_sessions
WHERE owner_id = $1
ORDER BY started_at DESC
LIMIT $2`

// SessionRepo persists shopping sessions to Postgres.
type SessionRepo struct {
	DB DBTX
}

// Upsert inserts or updates s. An older snapshot never overwrites a newer one.
func (r SessionRepo) Upsert(ctx context.Context, s session.Session) error {
	if r.DB == nil {
		return ErrDBUnavailable
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("repo: encode items: %w", err)
	}
	breakdown, err := json.Marshal(s.TaxBreakdown)
	if err != nil {
		return fmt.Errorf("repo: encode tax breakdown: %w", err)
	}
	var endedAt pgtype.Timestamptz
	if s.EndedAt != nil {
		endedAt = pgtype.Timestamptz{Time: *s.EndedAt, Valid: true}
	}
	_, err = r.DB.Exec(ctx, upsertSessionSQL,
		s.ID,
		s.OwnerID,
		textOrNull(s.StoreID),
		string(s.Status),
		items,
		numeric(s.SubtotalBeforeTax),
		numeric(s.TotalTax),
		numeric(s.Total),
		breakdown,
		s.StartedAt,
		endedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: upsert session %s: %w", s.ID, err)
	}
	return nil
}

// ListByOwner returns the owner's sessions, most recently started first.
func (r SessionRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]session.Session, error) {
	if r.DB == nil {
		return nil, ErrDBUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.DB.Query(ctx, listSessionsSQL, strings.TrimSpace(ownerID), limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]session.Session, 0, limit)
	for rows.Next() {
		var (
			s                    session.Session
			storeID              pgtype.Text
			status               string
			items, breakdown     []byte
			subtotal, tax, total pgtype.Numeric
			endedAt              pgtype.Timestamptz
			startedAt, updatedAt time.Time
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &storeID, &status, &items, &subtotal, &tax, &total,
			&breakdown, &startedAt, &endedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan session: %w", err)
		}
		s.StoreID = textPtr(storeID)
		s.Status = session.Status(status)
		s.SubtotalBeforeTax = fromNumeric(subtotal)
		s.TotalTax = fromNumeric(tax)
		s.Total = fromNumeric(total)
		s.StartedAt = startedAt
		s.UpdatedAt = updatedAt
		if endedAt.Valid {
			t := endedAt.Time
			s.EndedAt = &t
		}
		if err := json.Unmarshal(items, &s.Items); err != nil {
			return nil, fmt.Errorf("repo: decode items of %s: %w", s.ID, err)
		}
		s.TaxBreakdown = map[pricing.RateCode]pricing.Bucket{}
		if err := json.Unmarshal(breakdown, &s.TaxBreakdown); err != nil {
			return nil, fmt.Errorf("repo: decode tax breakdown of %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list sessions: %w", err)
	}
	return out, nil
}
