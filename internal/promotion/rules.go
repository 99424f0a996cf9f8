package promotion

import "github.com/shopspring/decimal"

// Kind is the discriminator of a promotion record.
type Kind string

const (
	KindPercentage  Kind = "percentage"
	KindFixedAmount Kind = "fixed_amount"
	KindBuyXGetY    Kind = "buy_x_get_y"
	KindBulkPrice   Kind = "bulk_price"
	KindBundleFree  Kind = "bundle_free"
	KindCoupon      Kind = "coupon"
	KindLoyalty     Kind = "loyalty"
)

// Kinds lists every supported promotion kind.
func Kinds() []Kind {
	return []Kind{KindPercentage, KindFixedAmount, KindBuyXGetY, KindBulkPrice, KindBundleFree, KindCoupon, KindLoyalty}
}

// Rule is a decoded promotion. The set of implementations is closed.
type Rule interface {
	Kind() Kind
	isRule()
}

// Percentage takes Percent off the line total.
type Percentage struct {
	Percent decimal.Decimal
}

// FixedAmount sells every unit at ReducedPrice.
type FixedAmount struct {
	ReducedPrice decimal.Decimal
}

// BuyXGetY gives Get units free for every Buy units paid ("3x2" is Buy 2, Get 1).
type BuyXGetY struct {
	Buy int
	Get int
}

// BulkPrice sells every unit at UnitPrice once MinQuantity units are bought.
type BulkPrice struct {
	MinQuantity int
	UnitPrice   decimal.Decimal
}

// BundleComponent is one product required by a bundle.
type BundleComponent struct {
	ProductID string
	Quantity  int
}

// BundleFree makes FreeQuantity units of the carrying line free for every
// complete set of Components present across the session.
type BundleFree struct {
	Components   []BundleComponent
	FreeQuantity int
}

// Coupon applies Reward only when the coupon has been presented.
type Coupon struct {
	Code   string
	Reward Rule
}

// Loyalty applies Reward only when the loyalty card condition is met.
type Loyalty struct {
	StampsRequired int
	Reward         Rule
}

func (Percentage) Kind() Kind  { return KindPercentage }
func (FixedAmount) Kind() Kind { return KindFixedAmount }
func (BuyXGetY) Kind() Kind    { return KindBuyXGetY }
func (BulkPrice) Kind() Kind   { return KindBulkPrice }
func (BundleFree) Kind() Kind  { return KindBundleFree }
func (Coupon) Kind() Kind      { return KindCoupon }
func (Loyalty) Kind() Kind     { return KindLoyalty }

func (Percentage) isRule()  {}
func (FixedAmount) isRule() {}
func (BuyXGetY) isRule()    {}
func (BulkPrice) isRule()   {}
func (BundleFree) isRule()  {}
func (Coupon) isRule()      {}
func (Loyalty) isRule()     {}

// Promotion is a resolved, validated promotion ready for evaluation.
type Promotion struct {
	ID   string
	Rule Rule
}

// ToBase returns a copy of rule with its monetary parameters passed through
// conv. Rules without prices are returned unchanged.
func ToBase(rule Rule, conv func(decimal.Decimal) decimal.Decimal) Rule {
	switch r := rule.(type) {
	case FixedAmount:
		r.ReducedPrice = conv(r.ReducedPrice)
		return r
	case BulkPrice:
		r.UnitPrice = conv(r.UnitPrice)
		return r
	case Coupon:
		r.Reward = ToBase(r.Reward, conv)
		return r
	case Loyalty:
		r.Reward = ToBase(r.Reward, conv)
		return r
	default:
		return rule
	}
}
