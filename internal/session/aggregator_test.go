package session_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
	"github.com/noah-isme/canasta/internal/session"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, want, got.StringFixed(2))
}

func strPtr(s string) *string { return &s }

func newTestAggregator() *session.Aggregator {
	agg := session.NewAggregator("user-1")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	agg.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	seq := 0
	agg.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return agg
}

func requireConsistent(t *testing.T, s session.Session) {
	t.Helper()
	require.True(t, s.Total.Equal(s.SubtotalBeforeTax.Add(s.TotalTax)), "total %s != %s + %s", s.Total, s.SubtotalBeforeTax, s.TotalTax)
	taxable := decimal.Zero
	tax := decimal.Zero
	for _, b := range s.TaxBreakdown {
		taxable = taxable.Add(b.Taxable)
		tax = tax.Add(b.Tax)
	}
	require.True(t, taxable.Equal(s.SubtotalBeforeTax))
	require.True(t, tax.Equal(s.TotalTax))
	lineTax := decimal.Zero
	for _, it := range s.Items {
		lineTax = lineTax.Add(it.TaxAmount)
	}
	require.True(t, lineTax.Equal(s.TotalTax))
}

func TestAggregatorTwoRateSession(t *testing.T) {
	agg := newTestAggregator()
	agg.Start(strPtr("store-1"))

	_, err := agg.AddItem(session.AddItemInput{Name: "Arroz", UnitPrice: dec("10.70"), Quantity: 1, TaxRateCode: pricing.RateGeneral, PriceIncludesTax: true})
	require.NoError(t, err)
	_, err = agg.AddItem(session.AddItemInput{Name: "Leche", UnitPrice: dec("5.00"), Quantity: 1, TaxRateCode: pricing.RateExempt})
	require.NoError(t, err)

	s, ok := agg.Session()
	require.True(t, ok)
	requireMoney(t, "15.00", s.SubtotalBeforeTax)
	requireMoney(t, "0.70", s.TotalTax)
	requireMoney(t, "15.70", s.Total)
	require.Len(t, s.TaxBreakdown, 2)
	requireMoney(t, "10.00", s.TaxBreakdown[pricing.RateGeneral].Taxable)
	requireMoney(t, "0.70", s.TaxBreakdown[pricing.RateGeneral].Tax)
	requireMoney(t, "5.00", s.TaxBreakdown[pricing.RateExempt].Taxable)
	requireMoney(t, "0.00", s.TaxBreakdown[pricing.RateExempt].Tax)
	require.Equal(t, "store-1", *s.StoreID)
	requireConsistent(t, s)
}

func TestAddItemStartsSession(t *testing.T) {
	agg := newTestAggregator()
	_, ok := agg.Session()
	require.False(t, ok)

	item, err := agg.AddItem(session.AddItemInput{Name: "Pan", UnitPrice: dec("1.50"), Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, pricing.RateGeneral, item.TaxRateCode)
	requireMoney(t, "7.00", item.TaxRate)
	requireMoney(t, "3.00", item.Subtotal)
	requireMoney(t, "0.21", item.TaxAmount)

	s, ok := agg.Session()
	require.True(t, ok)
	require.Equal(t, session.StatusInProgress, s.Status)
	require.Equal(t, "user-1", s.OwnerID)
	require.Nil(t, s.StoreID)
	require.Len(t, s.Items, 1)
}

func TestStartReturnsExistingSession(t *testing.T) {
	agg := newTestAggregator()
	first := agg.Start(strPtr("store-1"))
	second := agg.Start(strPtr("store-2"))
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "store-1", *second.StoreID)
}

func TestValidationLeavesSessionUntouched(t *testing.T) {
	agg := newTestAggregator()
	item, err := agg.AddItem(session.AddItemInput{Name: "Cafe", UnitPrice: dec("4.00"), Quantity: 1})
	require.NoError(t, err)
	before, _ := agg.Session()

	cases := []struct {
		name  string
		in    session.AddItemInput
		field string
	}{
		{"blank name", session.AddItemInput{Name: "  ", UnitPrice: dec("1"), Quantity: 1}, "name"},
		{"negative price", session.AddItemInput{Name: "x", UnitPrice: dec("-1"), Quantity: 1}, "unitPrice"},
		{"zero quantity", session.AddItemInput{Name: "x", UnitPrice: dec("1"), Quantity: 0}, "quantity"},
		{"unknown rate", session.AddItemInput{Name: "x", UnitPrice: dec("1"), Quantity: 1, TaxRateCode: "luxury"}, "taxRateCode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := agg.AddItem(tc.in)
			var verr *pricing.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}

	zero := 0
	_, found, err := agg.UpdateItem(item.ID, session.UpdateItemInput{Quantity: &zero})
	require.True(t, found)
	require.Error(t, err)

	after, _ := agg.Session()
	require.Equal(t, before, after)
}

func TestStaleItemIDsAreNoOps(t *testing.T) {
	agg := newTestAggregator()
	_, err := agg.AddItem(session.AddItemInput{Name: "Cafe", UnitPrice: dec("4.00"), Quantity: 1})
	require.NoError(t, err)
	before, _ := agg.Session()

	qty := 3
	_, found, err := agg.UpdateItem("missing", session.UpdateItemInput{Quantity: &qty})
	require.NoError(t, err)
	require.False(t, found)

	found, err = agg.RemoveItem("missing")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = agg.IncrementQuantity("missing")
	require.NoError(t, err)
	require.False(t, found)

	_, found, removed, err := agg.DecrementQuantity("missing")
	require.NoError(t, err)
	require.False(t, found)
	require.False(t, removed)

	after, _ := agg.Session()
	require.Equal(t, before, after)
}

func TestIncrementDecrement(t *testing.T) {
	agg := newTestAggregator()
	item, err := agg.AddItem(session.AddItemInput{Name: "Agua", UnitPrice: dec("1.00"), Quantity: 1, TaxRateCode: pricing.RateExempt})
	require.NoError(t, err)

	updated, found, err := agg.IncrementQuantity(item.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, updated.Quantity)
	requireMoney(t, "2.00", updated.Subtotal)

	updated, found, removed, err := agg.DecrementQuantity(item.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, removed)
	require.Equal(t, 1, updated.Quantity)

	_, found, removed, err = agg.DecrementQuantity(item.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, removed)

	s, ok := agg.Session()
	require.True(t, ok)
	require.Empty(t, s.Items)
	requireMoney(t, "0.00", s.Total)
	require.NotNil(t, s.TaxBreakdown)
}

func TestUpdateItemChangesRate(t *testing.T) {
	agg := newTestAggregator()
	item, err := agg.AddItem(session.AddItemInput{Name: "Ron", UnitPrice: dec("20.00"), Quantity: 1})
	require.NoError(t, err)
	requireMoney(t, "1.40", item.TaxAmount)

	code := pricing.RateServices
	updated, found, err := agg.UpdateItem(item.ID, session.UpdateItemInput{TaxRateCode: &code})
	require.NoError(t, err)
	require.True(t, found)
	requireMoney(t, "10.00", updated.TaxRate)
	requireMoney(t, "2.00", updated.TaxAmount)

	s, _ := agg.Session()
	require.Len(t, s.TaxBreakdown, 1)
	_, ok := s.TaxBreakdown[pricing.RateServices]
	require.True(t, ok)
	requireConsistent(t, s)
}

func TestConsistencyAfterMutationSequence(t *testing.T) {
	agg := newTestAggregator()
	var ids []string
	prices := []string{"10.70", "3.33", "0.99", "25.00", "7.77"}
	codes := []pricing.RateCode{pricing.RateGeneral, pricing.RateExempt, pricing.RateSelective, pricing.RateServices, pricing.RateGeneral}
	for i, p := range prices {
		item, err := agg.AddItem(session.AddItemInput{
			Name:             fmt.Sprintf("item %d", i),
			UnitPrice:        dec(p),
			Quantity:         i + 1,
			TaxRateCode:      codes[i],
			PriceIncludesTax: i%2 == 0,
		})
		require.NoError(t, err)
		ids = append(ids, item.ID)
		s, _ := agg.Session()
		requireConsistent(t, s)
	}

	price := dec("1.11")
	_, _, err := agg.UpdateItem(ids[1], session.UpdateItemInput{UnitPrice: &price})
	require.NoError(t, err)
	s, _ := agg.Session()
	requireConsistent(t, s)

	_, err = agg.RemoveItem(ids[3])
	require.NoError(t, err)
	s, _ = agg.Session()
	requireConsistent(t, s)
	require.Len(t, s.Items, 4)

	_, _, err = agg.IncrementQuantity(ids[0])
	require.NoError(t, err)
	s, _ = agg.Session()
	requireConsistent(t, s)

	agg.ClearItems()
	s, _ = agg.Session()
	requireConsistent(t, s)
	require.Empty(t, s.Items)
}

func TestPromotionAppliedToLine(t *testing.T) {
	agg := newTestAggregator()
	promo := promotion.Promotion{ID: "p-3x2", Rule: promotion.BuyXGetY{Buy: 2, Get: 1}}
	item, err := agg.AddItem(session.AddItemInput{
		Name:        "Galletas",
		UnitPrice:   dec("5.00"),
		Quantity:    3,
		TaxRateCode: pricing.RateExempt,
		Promotion:   &promo,
	})
	require.NoError(t, err)
	require.True(t, item.PromotionTriggered)
	require.Equal(t, "p-3x2", *item.AppliedPromotionID)
	requireMoney(t, "15.00", *item.OriginalPrice)
	requireMoney(t, "5.00", item.DiscountAmount)

	s, _ := agg.Session()
	requireMoney(t, "10.00", s.SubtotalBeforeTax)
	requireMoney(t, "10.00", s.Total)

	two := 2
	item, _, err = agg.UpdateItem(item.ID, session.UpdateItemInput{Quantity: &two})
	require.NoError(t, err)
	require.False(t, item.PromotionTriggered)
	require.Nil(t, item.AppliedPromotionID)
	requireMoney(t, "0.00", item.DiscountAmount)
}

func TestDiscountIsTaxedAfterReduction(t *testing.T) {
	agg := newTestAggregator()
	promo := promotion.Promotion{ID: "p-10", Rule: promotion.Percentage{Percent: dec("10")}}
	item, err := agg.AddItem(session.AddItemInput{Name: "Queso", UnitPrice: dec("10.00"), Quantity: 1, Promotion: &promo})
	require.NoError(t, err)
	requireMoney(t, "1.00", item.DiscountAmount)
	requireMoney(t, "0.63", item.TaxAmount)

	s, _ := agg.Session()
	requireMoney(t, "9.00", s.SubtotalBeforeTax)
	requireMoney(t, "9.63", s.Total)
}

func TestBundleRecomputedAcrossItems(t *testing.T) {
	agg := newTestAggregator()
	promo := promotion.Promotion{ID: "p-bundle", Rule: promotion.BundleFree{
		Components:   []promotion.BundleComponent{{ProductID: "pasta", Quantity: 1}, {ProductID: "salsa", Quantity: 1}},
		FreeQuantity: 1,
	}}
	free, err := agg.AddItem(session.AddItemInput{
		ProductID:   strPtr("queso"),
		Name:        "Queso rallado",
		UnitPrice:   dec("3.00"),
		Quantity:    1,
		TaxRateCode: pricing.RateExempt,
		Promotion:   &promo,
	})
	require.NoError(t, err)
	require.False(t, free.PromotionTriggered)

	_, err = agg.AddItem(session.AddItemInput{ProductID: strPtr("pasta"), Name: "Pasta", UnitPrice: dec("2.00"), Quantity: 1, TaxRateCode: pricing.RateExempt})
	require.NoError(t, err)
	s, _ := agg.Session()
	it, _ := s.Item(free.ID)
	require.False(t, it.PromotionTriggered)

	salsa, err := agg.AddItem(session.AddItemInput{ProductID: strPtr("salsa"), Name: "Salsa", UnitPrice: dec("1.50"), Quantity: 1, TaxRateCode: pricing.RateExempt})
	require.NoError(t, err)
	s, _ = agg.Session()
	it, _ = s.Item(free.ID)
	require.True(t, it.PromotionTriggered)
	requireMoney(t, "3.00", it.DiscountAmount)
	requireMoney(t, "3.50", s.Total)

	_, err = agg.RemoveItem(salsa.ID)
	require.NoError(t, err)
	s, _ = agg.Session()
	it, _ = s.Item(free.ID)
	require.False(t, it.PromotionTriggered)
	requireMoney(t, "5.00", s.Total)
}

func TestEndArchivesAndCancelDiscards(t *testing.T) {
	agg := newTestAggregator()

	_, err := agg.End()
	require.ErrorIs(t, err, session.ErrNoActiveSession)
	_, err = agg.Cancel()
	require.ErrorIs(t, err, session.ErrNoActiveSession)

	_, err = agg.AddItem(session.AddItemInput{Name: "Pan", UnitPrice: dec("1.00"), Quantity: 1})
	require.NoError(t, err)
	ended, err := agg.End()
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, ended.Status)
	require.NotNil(t, ended.EndedAt)
	_, ok := agg.Session()
	require.False(t, ok)

	agg.Start(nil)
	cancelled, err := agg.Cancel()
	require.NoError(t, err)
	require.Equal(t, session.StatusCancelled, cancelled.Status)

	history := agg.History()
	require.Len(t, history, 1)
	require.Equal(t, ended.ID, history[0].ID)
}

func TestHistoryIsBoundedAndRecentFirst(t *testing.T) {
	agg := newTestAggregator()
	agg.HistoryLimit = 3
	var ids []string
	for range 5 {
		s := agg.Start(nil)
		ids = append(ids, s.ID)
		_, err := agg.End()
		require.NoError(t, err)
	}
	history := agg.History()
	require.Len(t, history, 3)
	require.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{history[0].ID, history[1].ID, history[2].ID})
}

func TestObserversSeeCommittedChanges(t *testing.T) {
	agg := newTestAggregator()
	var ops []session.Op
	unsubscribe := agg.Subscribe(func(c session.Change) {
		ops = append(ops, c.Op)
		if c.Op == session.OpAddItem {
			require.Len(t, c.Session.Items, 1)
		}
	})

	agg.Start(nil)
	item, err := agg.AddItem(session.AddItemInput{Name: "Pan", UnitPrice: dec("1.00"), Quantity: 1})
	require.NoError(t, err)
	_, err = agg.AddItem(session.AddItemInput{Name: "", UnitPrice: dec("1.00"), Quantity: 1})
	require.Error(t, err)
	_, _, err = agg.IncrementQuantity(item.ID)
	require.NoError(t, err)
	_, err = agg.RemoveItem("missing")
	require.NoError(t, err)
	_, err = agg.End()
	require.NoError(t, err)

	require.Equal(t, []session.Op{session.OpStart, session.OpAddItem, session.OpIncrement, session.OpEnd}, ops)

	unsubscribe()
	agg.Start(nil)
	require.Len(t, ops, 4)
}

func TestRestoreDropsFinishedActiveSession(t *testing.T) {
	agg := newTestAggregator()
	agg.Start(nil)
	s, _ := agg.Session()
	s.Status = session.StatusCompleted

	other := session.NewAggregator("user-1")
	other.Restore(&s, []session.Session{s})
	_, ok := other.Session()
	require.False(t, ok)
	require.Len(t, other.History(), 1)

	s.Status = session.StatusInProgress
	other.Restore(&s, nil)
	got, ok := other.Session()
	require.True(t, ok)
	require.Equal(t, s.ID, got.ID)
}
