package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/canasta/internal/pricing"
)

// Conditions carries the customer-side flags coupon and loyalty rules depend on.
type Conditions struct {
	CouponApplied    bool
	LoyaltySatisfied bool
}

// BasketLine is a product quantity present in the session, used by bundle rules.
type BasketLine struct {
	ProductID string
	Quantity  int
}

// Input describes the line a promotion is evaluated against. UnitPrice is the
// pre-tax, pre-discount unit price.
type Input struct {
	UnitPrice  decimal.Decimal
	Quantity   int
	Conditions Conditions
	Basket     []BasketLine
}

// Result is the outcome of an evaluation. Triggered is false when the
// promotion's quantity or conditions are not met yet.
type Result struct {
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalPrice     decimal.Decimal `json:"finalPrice"`
	Triggered      bool            `json:"isTriggered"`
}

// CalculateEffectiveDiscount evaluates p against the line described by in.
// The discount is always within [0, unitPrice*quantity].
func CalculateEffectiveDiscount(p Promotion, in Input) (Result, error) {
	if in.UnitPrice.IsNegative() {
		return Result{}, pricing.Invalid("unitPrice", "must not be negative")
	}
	if in.Quantity < 1 {
		return Result{}, pricing.Invalid("quantity", "must be a positive integer")
	}
	gross := pricing.Round(in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))))
	discount, triggered, err := discountFor(p.Rule, in)
	if err != nil {
		return Result{}, err
	}
	discount = pricing.Round(clamp(discount, gross))
	return Result{
		DiscountAmount: discount,
		FinalPrice:     gross.Sub(discount),
		Triggered:      triggered,
	}, nil
}

func discountFor(rule Rule, in Input) (decimal.Decimal, bool, error) {
	qty := decimal.NewFromInt(int64(in.Quantity))
	switch r := rule.(type) {
	case Percentage:
		return in.UnitPrice.Mul(qty).Mul(pricing.Fraction(r.Percent)), true, nil
	case FixedAmount:
		return in.UnitPrice.Sub(r.ReducedPrice).Mul(qty), true, nil
	case BuyXGetY:
		free, ok := freeUnits(r, in.Quantity)
		if !ok {
			return decimal.Zero, false, nil
		}
		return in.UnitPrice.Mul(decimal.NewFromInt(int64(free))), true, nil
	case BulkPrice:
		if in.Quantity < r.MinQuantity {
			return decimal.Zero, false, nil
		}
		return in.UnitPrice.Sub(r.UnitPrice).Mul(qty), true, nil
	case BundleFree:
		sets := completeSets(r, in.Basket)
		if sets == 0 {
			return decimal.Zero, false, nil
		}
		perSet := r.FreeQuantity
		if perSet < 1 {
			perSet = 1
		}
		free := min(sets*perSet, in.Quantity)
		return in.UnitPrice.Mul(decimal.NewFromInt(int64(free))), true, nil
	case Coupon:
		if !in.Conditions.CouponApplied {
			return decimal.Zero, false, nil
		}
		return rewardFor(r.Reward, in)
	case Loyalty:
		if !in.Conditions.LoyaltySatisfied {
			return decimal.Zero, false, nil
		}
		return rewardFor(r.Reward, in)
	case nil:
		return decimal.Zero, false, &UnsupportedPromotionError{}
	default:
		return decimal.Zero, false, &UnsupportedPromotionError{Kind: rule.Kind()}
	}
}

func rewardFor(reward Rule, in Input) (decimal.Decimal, bool, error) {
	switch reward.(type) {
	case Percentage, FixedAmount:
		return discountFor(reward, in)
	default:
		return decimal.Zero, false, pricing.Invalid("reward.type", "must be percentage or fixed_amount")
	}
}

// freeUnits returns how many units are free under a buy-X-get-Y rule. Below
// one full cycle the rule does not trigger; past it, a partial cycle gives away
// the units taken beyond the X paid ones.
func freeUnits(r BuyXGetY, quantity int) (int, bool) {
	if r.Buy < 1 || r.Get < 1 {
		return 0, false
	}
	cycle := r.Buy + r.Get
	if quantity < cycle {
		return 0, false
	}
	free := (quantity / cycle) * r.Get
	if extra := quantity%cycle - r.Buy; extra > 0 {
		free += extra
	}
	return free, true
}

// completeSets counts how many full sets of the bundle components the basket holds.
func completeSets(r BundleFree, basket []BasketLine) int {
	if len(r.Components) == 0 {
		return 0
	}
	held := make(map[string]int, len(basket))
	for _, line := range basket {
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		held[line.ProductID] += line.Quantity
	}
	sets := -1
	for _, c := range r.Components {
		need := c.Quantity
		if need < 1 {
			need = 1
		}
		n := held[c.ProductID] / need
		if sets < 0 || n < sets {
			sets = n
		}
	}
	return max(sets, 0)
}

func clamp(discount, gross decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(gross) {
		return gross
	}
	return discount
}
