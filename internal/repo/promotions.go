package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/canasta/internal/promotion"
)

const activePromotionsSQL = `SELECT id, product_id, store_id, type, details
FROM promotions
WHERE product_id = $1
  AND (store_id IS NULL OR store_id = $2)
  AND verified
  AND starts_at <= $3
  AND (ends_at IS NULL OR ends_at > $3)
ORDER BY store_id NULLS LAST, priority DESC, created_at DESC`

// PromotionRepo reads verified promotions from Postgres.
type PromotionRepo struct {
	DB  DBTX
	Now func() time.Time
}

// ActiveFor returns the promotions running for a product at a store, store
// specific ones first. Records that fail to decode are skipped.
func (r PromotionRepo) ActiveFor(ctx context.Context, productID, storeID string) ([]promotion.Promotion, error) {
	if r.DB == nil {
		return nil, ErrDBUnavailable
	}
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	rows, err := r.DB.Query(ctx, activePromotionsSQL, strings.TrimSpace(productID), strings.TrimSpace(storeID), now)
	if err != nil {
		return nil, fmt.Errorf("repo: active promotions: %w", err)
	}
	defer rows.Close()

	var out []promotion.Promotion
	for rows.Next() {
		var (
			rec     promotion.Record
			storeTx pgtype.Text
			kind    string
			details []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ProductID, &storeTx, &kind, &details); err != nil {
			return nil, fmt.Errorf("repo: scan promotion: %w", err)
		}
		rec.StoreID = storeTx.String
		rec.Type = promotion.Kind(kind)
		rec.Details = details
		p, err := promotion.Decode(rec)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: active promotions: %w", err)
	}
	return out, nil
}

const upsertPromotionSQL = `INSERT INTO promotions (id, product_id, store_id, type, details, verified, priority, starts_at, ends_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  product_id = EXCLUDED.product_id,
  store_id = EXCLUDED.store_id,
  type = EXCLUDED.type,
  details = EXCLUDED.details,
  verified = EXCLUDED.verified,
  priority = EXCLUDED.priority,
  starts_at = EXCLUDED.starts_at,
  ends_at = EXCLUDED.ends_at`

// PromotionWindow controls when and how a stored promotion applies.
type PromotionWindow struct {
	Verified bool
	Priority int
	StartsAt time.Time
	EndsAt   *time.Time
}

// Upsert validates rec and stores it. Invalid records are rejected before
// reaching the database.
func (r PromotionRepo) Upsert(ctx context.Context, rec promotion.Record, window PromotionWindow) error {
	if r.DB == nil {
		return ErrDBUnavailable
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("repo: promotion id is required")
	}
	if strings.TrimSpace(rec.ProductID) == "" {
		return fmt.Errorf("repo: promotion %s: product id is required", rec.ID)
	}
	p, err := promotion.Decode(rec)
	if err != nil {
		return fmt.Errorf("repo: promotion %s: %w", rec.ID, err)
	}
	canonical, err := promotion.Encode(p)
	if err != nil {
		return fmt.Errorf("repo: promotion %s: %w", rec.ID, err)
	}
	startsAt := window.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now().UTC()
		if r.Now != nil {
			startsAt = r.Now()
		}
	}
	var storeID *string
	if s := strings.TrimSpace(rec.StoreID); s != "" {
		storeID = &s
	}
	endsAt := pgtype.Timestamptz{}
	if window.EndsAt != nil {
		endsAt = pgtype.Timestamptz{Time: *window.EndsAt, Valid: true}
	}
	if _, err := r.DB.Exec(ctx, upsertPromotionSQL,
		rec.ID,
		strings.TrimSpace(rec.ProductID),
		textOrNull(storeID),
		string(canonical.Type),
		[]byte(canonical.Details),
		window.Verified,
		window.Priority,
		startsAt,
		endsAt,
	); err != nil {
		return fmt.Errorf("repo: upsert promotion %s: %w", rec.ID, err)
	}
	return nil
}
