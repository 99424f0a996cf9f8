package shopping

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/canasta/internal/events"
	"github.com/noah-isme/canasta/internal/lock"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
	"github.com/noah-isme/canasta/internal/session"
)

// SnapshotStore loads and saves the per-owner session snapshot.
type SnapshotStore interface {
	Load(ctx context.Context, ownerID string) (*session.Session, []session.Session, error)
	Save(ctx context.Context, ownerID string, active, archived *session.Session) error
}

// Locker serializes work per key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// PromotionSource resolves the promotions running for a catalog product.
type PromotionSource interface {
	ActiveFor(ctx context.Context, productID, storeID string) ([]promotion.Promotion, error)
}

// Mutation is the outcome of an item operation. Found is false when the item
// id did not match any line; Removed is set when a decrement removed the line.
type Mutation struct {
	Session session.Session
	Item    *session.LineItem
	Found   bool
	Removed bool
}

// Service applies session operations on behalf of an owner.
type Service struct {
	Store        SnapshotStore
	Locker       Locker
	LockTTL      time.Duration
	Promotions   PromotionSource
	Bus          *events.Bus
	Metrics      *obs.SessionMetrics
	Logger       zerolog.Logger
	HistoryLimit int
	Now          func() time.Time
	NewID        func() string
}

func (s *Service) aggregator(ownerID string) *session.Aggregator {
	agg := session.NewAggregator(ownerID)
	if s.HistoryLimit > 0 {
		agg.HistoryLimit = s.HistoryLimit
	}
	agg.Now = s.Now
	agg.NewID = s.NewID
	return agg
}

func normalizeOwner(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", pricing.Invalid("ownerId", "is required")
	}
	return ownerID, nil
}

func (s *Service) load(ctx context.Context, ownerID string) (*session.Aggregator, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("shopping: snapshot store not configured")
	}
	active, history, err := s.Store.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	agg := s.aggregator(ownerID)
	agg.Restore(active, history)
	return agg, nil
}

// Current returns the owner's in-progress session.
func (s *Service) Current(ctx context.Context, ownerID string) (session.Session, bool, error) {
	ownerID, err := normalizeOwner(ownerID)
	if err != nil {
		return session.Session{}, false, err
	}
	agg, err := s.load(ctx, ownerID)
	if err != nil {
		return session.Session{}, false, err
	}
	current, ok := agg.Session()
	return current, ok, nil
}

// History returns the owner's completed sessions, most recent first.
func (s *Service) History(ctx context.Context, ownerID string) ([]session.Session, error) {
	ownerID, err := normalizeOwner(ownerID)
	if err != nil {
		return nil, err
	}
	agg, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return agg.History(), nil
}

// mutate runs fn against the owner's restored aggregator under the owner lock
// and persists the result when fn committed at least one change.
func (s *Service) mutate(ctx context.Context, ownerID string, op session.Op, fn func(context.Context, *session.Aggregator) error) (err error) {
	ownerID, err = normalizeOwner(ownerID)
	if err != nil {
		return err
	}
	defer func() { s.Metrics.ObserveMutation(string(op), err) }()

	run := func(ctx context.Context) error {
		agg, err := s.load(ctx, ownerID)
		if err != nil {
			return err
		}
		var changes []session.Change
		unsubscribe := agg.Subscribe(func(c session.Change) { changes = append(changes, c) })
		defer unsubscribe()

		if err := fn(ctx, agg); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		var active, archived *session.Session
		if current, ok := agg.Session(); ok {
			active = &current
		}
		for _, c := range changes {
			if c.Op == session.OpEnd {
				ended := c.Session
				archived = &ended
			}
		}
		if err := s.Store.Save(ctx, ownerID, active, archived); err != nil {
			return err
		}
		s.publish(ctx, ownerID, changes)
		return nil
	}

	if s.Locker == nil {
		return run(ctx)
	}
	return s.Locker.WithLock(ctx, lock.SessionKey(ownerID), s.LockTTL, run)
}

// publish emits one event per committed change. The snapshot is already
// saved, so failures are only logged.
func (s *Service) publish(ctx context.Context, ownerID string, changes []session.Change) {
	for _, c := range changes {
		topic := topicFor(c.Op)
		if c.Op == session.OpEnd {
			s.Metrics.ObserveCompleted(c.Session.Total)
		}
		if s.Bus == nil {
			continue
		}
		if _, err := s.Bus.Emit(ctx, topic, ownerID, c.Session); err != nil {
			s.Logger.Warn().Err(err).
				Str("owner_id", ownerID).
				Str("session_id", c.Session.ID).
				Str("topic", topic).
				Msg("session event delivery failed")
		}
	}
}

func topicFor(op session.Op) string {
	switch op {
	case session.OpStart:
		return events.TopicSessionStarted
	case session.OpEnd:
		return events.TopicSessionCompleted
	case session.OpCancel:
		return events.TopicSessionCancelled
	default:
		return events.TopicSessionItemChanged
	}
}

// Start begins a session at storeID, or returns the one in progress.
func (s *Service) Start(ctx context.Context, ownerID string, storeID *string) (session.Session, error) {
	var out session.Session
	err := s.mutate(ctx, ownerID, session.OpStart, func(_ context.Context, agg *session.Aggregator) error {
		out = agg.Start(storeID)
		return nil
	})
	return out, err
}

// AddItem adds a line item, starting a session when none is active.
func (s *Service) AddItem(ctx context.Context, ownerID string, in session.AddItemInput) (Mutation, error) {
	var out Mutation
	err := s.mutate(ctx, ownerID, session.OpAddItem, func(ctx context.Context, agg *session.Aggregator) error {
		if in.Promotion == nil {
			in.Promotion = s.resolvePromotion(ctx, agg, in.ProductID)
		}
		item, err := agg.AddItem(in)
		if err != nil {
			return err
		}
		s.observePromotion(item)
		out = s.result(agg, &item, true, false)
		return nil
	})
	return out, err
}

// UpdateItem applies a partial update to a line item.
func (s *Service) UpdateItem(ctx context.Context, ownerID, itemID string, in session.UpdateItemInput) (Mutation, error) {
	var out Mutation
	err := s.mutate(ctx, ownerID, session.OpUpdate, func(_ context.Context, agg *session.Aggregator) error {
		item, found, err := agg.UpdateItem(itemID, in)
		if err != nil {
			return err
		}
		if !found {
			out = s.result(agg, nil, false, false)
			return nil
		}
		s.observePromotion(item)
		out = s.result(agg, &item, true, false)
		return nil
	})
	return out, err
}

// RemoveItem deletes a line item.
func (s *Service) RemoveItem(ctx context.Context, ownerID, itemID string) (Mutation, error) {
	var out Mutation
	err := s.mutate(ctx, ownerID, session.OpRemove, func(_ context.Context, agg *session.Aggregator) error {
		found, err := agg.RemoveItem(itemID)
		if err != nil {
			return err
		}
		out = s.result(agg, nil, found, found)
		return nil
	})
	return out, err
}

// ClearItems empties the active session.
func (s *Service) ClearItems(ctx context.Context, ownerID string) (Mutation, error) {
	var out Mutation
	err := s.mutate(ctx, ownerID, session.OpClear, func(_ context.Context, agg *session.Aggregator) error {
		agg.ClearItems()
		out = s.result(agg, nil, true, false)
		return nil
	})
	return out, err
}

// IncrementQuantity adds one unit to a line item.
func (s *Service) IncrementQuantity(ctx context.Context, ownerID, itemID string) (Mutation, error) {
	var out Mutation
	err := s.mutate(ctx, ownerID, session.OpIncrement, func(_ context.Context, agg *session.Aggregator) error {
		item, found, err := agg.IncrementQuantity(itemID)
		if err != nil {
			return err
		}
		if !found {
			out = s.result(agg, nil, false, false)
			return nil
		}
		out = s.result(agg, &item, true, false)
		return nil
	})
	return out, err
}

// DecrementQuantity removes one unit, dropping the line below one.
func (s *Service) DecrementQuantity(ctx context.Context, ownerID, itemID string) (Mutation, error) {
	var out Mutation
	err := s.mutate(ctx, ownerID, session.OpDecrement, func(_ context.Context, agg *session.Aggregator) error {
		item, found, removed, err := agg.DecrementQuantity(itemID)
		if err != nil {
			return err
		}
		if !found || removed {
			out = s.result(agg, nil, found, removed)
			return nil
		}
		out = s.result(agg, &item, true, false)
		return nil
	})
	return out, err
}

// End completes the active session and archives it.
func (s *Service) End(ctx context.Context, ownerID string) (session.Session, error) {
	var out session.Session
	err := s.mutate(ctx, ownerID, session.OpEnd, func(_ context.Context, agg *session.Aggregator) error {
		ended, err := agg.End()
		if err != nil {
			return err
		}
		out = ended
		return nil
	})
	if err == nil {
		s.Logger.Info().Str("owner_id", out.OwnerID).Str("session_id", out.ID).
			Str("total", out.Total.StringFixed(2)).Int("items", len(out.Items)).Msg("session completed")
	}
	return out, err
}

// Cancel discards the active session.
func (s *Service) Cancel(ctx context.Context, ownerID string) (session.Session, error) {
	var out session.Session
	err := s.mutate(ctx, ownerID, session.OpCancel, func(_ context.Context, agg *session.Aggregator) error {
		cancelled, err := agg.Cancel()
		if err != nil {
			return err
		}
		out = cancelled
		return nil
	})
	return out, err
}

func (s *Service) result(agg *session.Aggregator, item *session.LineItem, found, removed bool) Mutation {
	current, _ := agg.Session()
	return Mutation{Session: current, Item: item, Found: found, Removed: removed}
}

// resolvePromotion picks the first active promotion for a catalog product at
// the session's store. Lookup failures leave the item without a promotion.
func (s *Service) resolvePromotion(ctx context.Context, agg *session.Aggregator, productID *string) *promotion.Promotion {
	if s.Promotions == nil || productID == nil || strings.TrimSpace(*productID) == "" {
		return nil
	}
	current, ok := agg.Session()
	if !ok || current.StoreID == nil {
		return nil
	}
	found, err := s.Promotions.ActiveFor(ctx, *productID, *current.StoreID)
	if err != nil {
		s.Logger.Warn().Err(err).
			Str("product_id", *productID).
			Str("store_id", *current.StoreID).
			Msg("promotion lookup failed")
		return nil
	}
	if len(found) == 0 {
		return nil
	}
	p := found[0]
	return &p
}

func (s *Service) observePromotion(item session.LineItem) {
	if item.Promotion == nil || item.Promotion.Rule == nil {
		return
	}
	s.Metrics.ObservePromotion(string(item.Promotion.Rule.Kind()), item.PromotionTriggered)
}
