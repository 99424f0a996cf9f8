package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/canasta/internal/pricing"
)

// DefaultHistoryLimit bounds the number of completed sessions kept in history.
const DefaultHistoryLimit = 20

// Op names a mutating operation, reported to observers.
type Op string

const (
	OpStart     Op = "start"
	OpAddItem   Op = "add_item"
	OpUpdate    Op = "update_item"
	OpRemove    Op = "remove_item"
	OpClear     Op = "clear_items"
	OpIncrement Op = "increment_quantity"
	OpDecrement Op = "decrement_quantity"
	OpEnd       Op = "end"
	OpCancel    Op = "cancel"
)

// Change describes a committed mutation. Session is a copy.
type Change struct {
	Op      Op
	ItemID  string
	Session Session
}

// Observer is notified synchronously after every committed mutation.
type Observer func(Change)

type subscription struct {
	id int
	fn Observer
}

// Aggregator owns the active shopping session of one user and keeps its
// totals equal to pricing.Summarize over its items. It is not safe for
// concurrent use; callers serialize access per owner.
type Aggregator struct {
	OwnerID      string
	HistoryLimit int
	Now          func() time.Time
	NewID        func() string

	active    *Session
	history   []Session
	observers []subscription
	nextSub   int
}

// NewAggregator returns an empty aggregator for ownerID.
func NewAggregator(ownerID string) *Aggregator {
	return &Aggregator{OwnerID: ownerID, HistoryLimit: DefaultHistoryLimit}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Aggregator) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

func (a *Aggregator) historyLimit() int {
	if a.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return a.HistoryLimit
}

// Subscribe registers an observer and returns a function that removes it.
func (a *Aggregator) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	a.nextSub++
	id := a.nextSub
	a.observers = append(a.observers, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range a.observers {
			if sub.id == id {
				a.observers = append(a.observers[:i], a.observers[i+1:]...)
				return
			}
		}
	}
}

func (a *Aggregator) notify(op Op, itemID string, s Session) {
	if len(a.observers) == 0 {
		return
	}
	change := Change{Op: op, ItemID: itemID, Session: s.Clone()}
	for _, sub := range a.observers {
		sub.fn(change)
	}
}

// Restore replaces the aggregator state, typically with a persisted snapshot.
// An active session that is no longer in progress is discarded.
func (a *Aggregator) Restore(active *Session, history []Session) {
	a.active = nil
	if active != nil && active.Status == StatusInProgress {
		s := active.Clone()
		a.active = &s
	}
	a.history = make([]Session, 0, len(history))
	for _, h := range history {
		a.history = append(a.history, h.Clone())
	}
	if len(a.history) > a.historyLimit() {
		a.history = a.history[:a.historyLimit()]
	}
}

// Session returns a copy of the active session.
func (a *Aggregator) Session() (Session, bool) {
	if a.active == nil {
		return Session{}, false
	}
	return a.active.Clone(), true
}

// History returns completed sessions, most recent first.
func (a *Aggregator) History() []Session {
	out := make([]Session, len(a.history))
	for i, h := range a.history {
		out[i] = h.Clone()
	}
	return out
}

// Start begins a session for storeID. A session already in progress is
// returned unchanged.
func (a *Aggregator) Start(storeID *string) Session {
	if a.active != nil {
		return a.active.Clone()
	}
	a.begin(trimmedPtr(storeID))
	a.notify(OpStart, "", *a.active)
	return a.active.Clone()
}

func (a *Aggregator) begin(storeID *string) {
	now := a.now()
	summary := pricing.Summarize(nil)
	a.active = &Session{
		ID:                a.newID(),
		OwnerID:           a.OwnerID,
		StoreID:           storeID,
		Status:            StatusInProgress,
		Items:             []LineItem{},
		SubtotalBeforeTax: summary.SubtotalBeforeTax,
		TotalTax:          summary.TotalTax,
		Total:             summary.GrandTotal,
		TaxBreakdown:      summary.Breakdown,
		StartedAt:         now,
		UpdatedAt:         now,
	}
}

func (a *Aggregator) currentItems() []LineItem {
	if a.active == nil {
		return nil
	}
	return a.active.Items
}

// commit reprices items and installs them on the active session. Nothing is
// changed when pricing fails.
func (a *Aggregator) commit(items []LineItem) error {
	priced, summary, err := reprice(items)
	if err != nil {
		return err
	}
	if a.active == nil {
		a.begin(nil)
	}
	a.active.Items = priced
	a.active.SubtotalBeforeTax = summary.SubtotalBeforeTax
	a.active.TotalTax = summary.TotalTax
	a.active.Total = summary.GrandTotal
	a.active.TaxBreakdown = summary.Breakdown
	a.active.UpdatedAt = a.now()
	return nil
}

func (a *Aggregator) indexOf(id string) int {
	for i, it := range a.currentItems() {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// AddItem appends a line item, starting a session when none is active.
func (a *Aggregator) AddItem(in AddItemInput) (LineItem, error) {
	item, err := newLineItem(a.newID(), in)
	if err != nil {
		return LineItem{}, err
	}
	current := a.currentItems()
	items := make([]LineItem, 0, len(current)+1)
	items = append(items, current...)
	items = append(items, item)
	if err := a.commit(items); err != nil {
		return LineItem{}, err
	}
	added := a.active.Items[len(a.active.Items)-1]
	a.notify(OpAddItem, added.ID, *a.active)
	return added, nil
}

// UpdateItem applies a partial update. An unknown id is a no-op reported
// through the found result.
func (a *Aggregator) UpdateItem(id string, in UpdateItemInput) (LineItem, bool, error) {
	return a.update(OpUpdate, id, in)
}

func (a *Aggregator) update(op Op, id string, in UpdateItemInput) (LineItem, bool, error) {
	idx := a.indexOf(id)
	if idx < 0 {
		return LineItem{}, false, nil
	}
	updated, err := applyUpdate(a.active.Items[idx], in)
	if err != nil {
		return LineItem{}, true, err
	}
	items := make([]LineItem, len(a.active.Items))
	copy(items, a.active.Items)
	items[idx] = updated
	if err := a.commit(items); err != nil {
		return LineItem{}, true, err
	}
	a.notify(op, id, *a.active)
	return a.active.Items[idx], true, nil
}

// RemoveItem deletes a line item. An unknown id is a no-op.
func (a *Aggregator) RemoveItem(id string) (bool, error) {
	return a.remove(OpRemove, id)
}

func (a *Aggregator) remove(op Op, id string) (bool, error) {
	idx := a.indexOf(id)
	if idx < 0 {
		return false, nil
	}
	items := make([]LineItem, 0, len(a.active.Items)-1)
	items = append(items, a.active.Items[:idx]...)
	items = append(items, a.active.Items[idx+1:]...)
	if err := a.commit(items); err != nil {
		return true, err
	}
	a.notify(op, id, *a.active)
	return true, nil
}

// ClearItems removes every line item from the active session.
func (a *Aggregator) ClearItems() {
	if a.active == nil {
		return
	}
	// An empty basket always prices.
	_ = a.commit([]LineItem{})
	a.notify(OpClear, "", *a.active)
}

// IncrementQuantity adds one unit to the item.
func (a *Aggregator) IncrementQuantity(id string) (LineItem, bool, error) {
	idx := a.indexOf(id)
	if idx < 0 {
		return LineItem{}, false, nil
	}
	qty := a.active.Items[idx].Quantity + 1
	return a.update(OpIncrement, id, UpdateItemInput{Quantity: &qty})
}

// DecrementQuantity removes one unit, removing the item when it would drop
// below one. removed reports the latter case.
func (a *Aggregator) DecrementQuantity(id string) (item LineItem, found, removed bool, err error) {
	idx := a.indexOf(id)
	if idx < 0 {
		return LineItem{}, false, false, nil
	}
	qty := a.active.Items[idx].Quantity - 1
	if qty < 1 {
		_, err = a.remove(OpDecrement, id)
		return LineItem{}, true, err == nil, err
	}
	item, found, err = a.update(OpDecrement, id, UpdateItemInput{Quantity: &qty})
	return item, found, false, err
}

// End completes the active session and archives it to history.
func (a *Aggregator) End() (Session, error) {
	ended, err := a.finish(StatusCompleted)
	if err != nil {
		return Session{}, err
	}
	a.history = append([]Session{ended.Clone()}, a.history...)
	if len(a.history) > a.historyLimit() {
		a.history = a.history[:a.historyLimit()]
	}
	a.notify(OpEnd, "", ended)
	return ended, nil
}

// Cancel discards the active session without archiving it.
func (a *Aggregator) Cancel() (Session, error) {
	cancelled, err := a.finish(StatusCancelled)
	if err != nil {
		return Session{}, err
	}
	a.notify(OpCancel, "", cancelled)
	return cancelled, nil
}

func (a *Aggregator) finish(status Status) (Session, error) {
	if a.active == nil {
		return Session{}, ErrNoActiveSession
	}
	now := a.now()
	s := a.active.Clone()
	s.Status = status
	s.EndedAt = &now
	s.UpdatedAt = now
	a.active = nil
	return s, nil
}
