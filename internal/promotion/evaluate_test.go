package promotion_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
)

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func evaluate(t *testing.T, rule promotion.Rule, in promotion.Input) promotion.Result {
	t.Helper()
	res, err := promotion.CalculateEffectiveDiscount(promotion.Promotion{ID: "promo", Rule: rule}, in)
	require.NoError(t, err)
	return res
}

func TestBuyXGetYThreeForTwo(t *testing.T) {
	res := evaluate(t, promotion.BuyXGetY{Buy: 2, Get: 1}, promotion.Input{UnitPrice: money("5.00"), Quantity: 3})
	require.True(t, res.Triggered)
	require.Equal(t, "5.00", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "10.00", res.FinalPrice.StringFixed(2))
}

func TestBuyXGetYRemainder(t *testing.T) {
	cases := []struct {
		buy, get, qty int
		free          int64
		triggered     bool
	}{
		{2, 1, 2, 0, false},
		{2, 1, 4, 1, true},
		{2, 1, 6, 2, true},
		{2, 2, 7, 3, true},
		{1, 1, 5, 2, true},
	}
	for _, tc := range cases {
		res := evaluate(t, promotion.BuyXGetY{Buy: tc.buy, Get: tc.get}, promotion.Input{UnitPrice: money("1.00"), Quantity: tc.qty})
		require.Equal(t, tc.triggered, res.Triggered, "buy %d get %d qty %d", tc.buy, tc.get, tc.qty)
		require.True(t, res.DiscountAmount.Equal(decimal.NewFromInt(tc.free)), "buy %d get %d qty %d: %s", tc.buy, tc.get, tc.qty, res.DiscountAmount)
	}
}

func TestBulkPriceBelowThreshold(t *testing.T) {
	rule := promotion.BulkPrice{MinQuantity: 4, UnitPrice: money("0.76")}
	res := evaluate(t, rule, promotion.Input{UnitPrice: money("0.80"), Quantity: 2})
	require.False(t, res.Triggered)
	require.Equal(t, "0.00", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "1.60", res.FinalPrice.StringFixed(2))

	res = evaluate(t, rule, promotion.Input{UnitPrice: money("0.80"), Quantity: 5})
	require.True(t, res.Triggered)
	require.Equal(t, "0.20", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "3.80", res.FinalPrice.StringFixed(2))
}

func TestPercentageZeroIsStillTriggered(t *testing.T) {
	res := evaluate(t, promotion.Percentage{Percent: decimal.Zero}, promotion.Input{UnitPrice: money("3.00"), Quantity: 2})
	require.True(t, res.Triggered)
	require.True(t, res.DiscountAmount.IsZero())

	res = evaluate(t, promotion.Percentage{Percent: money("15")}, promotion.Input{UnitPrice: money("3.00"), Quantity: 2})
	require.Equal(t, "0.90", res.DiscountAmount.StringFixed(2))
}

func TestFixedAmountNeverNegative(t *testing.T) {
	res := evaluate(t, promotion.FixedAmount{ReducedPrice: money("6.00")}, promotion.Input{UnitPrice: money("5.00"), Quantity: 2})
	require.True(t, res.Triggered)
	require.True(t, res.DiscountAmount.IsZero())

	res = evaluate(t, promotion.FixedAmount{ReducedPrice: money("4.25")}, promotion.Input{UnitPrice: money("5.00"), Quantity: 2})
	require.Equal(t, "1.50", res.DiscountAmount.StringFixed(2))
}

func TestCouponAndLoyaltyRequireCondition(t *testing.T) {
	coupon := promotion.Coupon{Code: "AHORRA10", Reward: promotion.Percentage{Percent: money("10")}}
	in := promotion.Input{UnitPrice: money("20.00"), Quantity: 1}

	res := evaluate(t, coupon, in)
	require.False(t, res.Triggered)
	require.True(t, res.DiscountAmount.IsZero())

	in.Conditions.CouponApplied = true
	res = evaluate(t, coupon, in)
	require.True(t, res.Triggered)
	require.Equal(t, "2.00", res.DiscountAmount.StringFixed(2))

	loyalty := promotion.Loyalty{StampsRequired: 10, Reward: promotion.FixedAmount{ReducedPrice: money("15.00")}}
	res = evaluate(t, loyalty, in)
	require.False(t, res.Triggered)

	in.Conditions.LoyaltySatisfied = true
	res = evaluate(t, loyalty, in)
	require.True(t, res.Triggered)
	require.Equal(t, "5.00", res.DiscountAmount.StringFixed(2))
}

func TestBundleFreeNeedsWholeSet(t *testing.T) {
	rule := promotion.BundleFree{
		Components: []promotion.BundleComponent{
			{ProductID: "pasta", Quantity: 2},
			{ProductID: "salsa", Quantity: 1},
		},
		FreeQuantity: 1,
	}
	in := promotion.Input{
		UnitPrice: money("1.50"),
		Quantity:  3,
		Basket: []promotion.BasketLine{
			{ProductID: "pasta", Quantity: 1},
			{ProductID: "salsa", Quantity: 1},
			{ProductID: "queso", Quantity: 3},
		},
	}
	res := evaluate(t, rule, in)
	require.False(t, res.Triggered)

	in.Basket = append(in.Basket, promotion.BasketLine{ProductID: "pasta", Quantity: 3})
	res = evaluate(t, rule, in)
	require.True(t, res.Triggered)
	require.Equal(t, "1.50", res.DiscountAmount.StringFixed(2))

	in.Basket = append(in.Basket, promotion.BasketLine{ProductID: "salsa", Quantity: 5})
	res = evaluate(t, rule, in)
	require.Equal(t, "3.00", res.DiscountAmount.StringFixed(2))
}

func TestDiscountBounded(t *testing.T) {
	rules := []promotion.Rule{
		promotion.Percentage{Percent: money("100")},
		promotion.Percentage{Percent: money("33.3")},
		promotion.FixedAmount{ReducedPrice: decimal.Zero},
		promotion.FixedAmount{ReducedPrice: money("99")},
		promotion.BuyXGetY{Buy: 1, Get: 1},
		promotion.BuyXGetY{Buy: 1, Get: 5},
		promotion.BulkPrice{MinQuantity: 1, UnitPrice: decimal.Zero},
		promotion.BulkPrice{MinQuantity: 3, UnitPrice: money("0.10")},
		promotion.BundleFree{Components: []promotion.BundleComponent{{ProductID: "a", Quantity: 1}}, FreeQuantity: 50},
		promotion.Coupon{Code: "X", Reward: promotion.Percentage{Percent: money("100")}},
		promotion.Loyalty{StampsRequired: 1, Reward: promotion.FixedAmount{ReducedPrice: decimal.Zero}},
	}
	prices := []string{"0", "0.01", "0.33", "1.99", "10.70", "250"}
	for _, rule := range rules {
		for _, p := range prices {
			for qty := 1; qty <= 9; qty++ {
				in := promotion.Input{
					UnitPrice:  money(p),
					Quantity:   qty,
					Conditions: promotion.Conditions{CouponApplied: true, LoyaltySatisfied: true},
					Basket:     []promotion.BasketLine{{ProductID: "a", Quantity: qty}},
				}
				res := evaluate(t, rule, in)
				gross := money(p).Mul(decimal.NewFromInt(int64(qty)))
				require.False(t, res.DiscountAmount.IsNegative(), "%s %s x%d", rule.Kind(), p, qty)
				require.True(t, res.DiscountAmount.LessThanOrEqual(gross), "%s %s x%d", rule.Kind(), p, qty)
				require.False(t, res.FinalPrice.IsNegative())
			}
		}
	}
}

func TestEvaluateValidatesInput(t *testing.T) {
	p := promotion.Promotion{Rule: promotion.Percentage{Percent: money("10")}}
	_, err := promotion.CalculateEffectiveDiscount(p, promotion.Input{UnitPrice: money("-1"), Quantity: 1})
	var verr *pricing.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "unitPrice", verr.Field)

	_, err = promotion.CalculateEffectiveDiscount(p, promotion.Input{UnitPrice: money("1"), Quantity: 0})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "quantity", verr.Field)

	_, err = promotion.CalculateEffectiveDiscount(promotion.Promotion{}, promotion.Input{UnitPrice: money("1"), Quantity: 1})
	var unsupported *promotion.UnsupportedPromotionError
	require.True(t, errors.As(err, &unsupported))
}

func TestToBaseConvertsPrices(t *testing.T) {
	half := func(d decimal.Decimal) decimal.Decimal { return d.Div(decimal.NewFromInt(2)) }

	bulk := promotion.ToBase(promotion.BulkPrice{MinQuantity: 2, UnitPrice: money("4")}, half).(promotion.BulkPrice)
	require.Equal(t, "2.00", bulk.UnitPrice.StringFixed(2))
	require.Equal(t, 2, bulk.MinQuantity)

	coupon := promotion.ToBase(promotion.Coupon{Code: "C", Reward: promotion.FixedAmount{ReducedPrice: money("3")}}, half).(promotion.Coupon)
	require.Equal(t, "1.50", coupon.Reward.(promotion.FixedAmount).ReducedPrice.StringFixed(2))

	pct := promotion.ToBase(promotion.Percentage{Percent: money("10")}, half).(promotion.Percentage)
	require.Equal(t, "10.00", pct.Percent.StringFixed(2))
}
