package shopping

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
)

// QuoteInput is a stand-alone tax computation request. A zero quantity
// quotes one unit; an empty rate code uses the general rate.
type QuoteInput struct {
	Price            decimal.Decimal  `json:"price"`
	Quantity         int              `json:"quantity" validate:"gte=0"`
	TaxRateCode      pricing.RateCode `json:"taxRateCode"`
	PriceIncludesTax bool             `json:"priceIncludesTax"`
}

// Quote is the tax breakdown of one priced line.
type Quote struct {
	TaxRateCode pricing.RateCode `json:"taxRateCode"`
	TaxRate     decimal.Decimal  `json:"taxRate"`
	Quantity    int              `json:"quantity"`
	BasePrice   decimal.Decimal  `json:"basePrice"`
	Taxable     decimal.Decimal  `json:"taxableAmount"`
	TaxAmount   decimal.Decimal  `json:"taxAmount"`
	Total       decimal.Decimal  `json:"total"`
}

// QuoteTax prices a single line without touching any session.
func QuoteTax(in QuoteInput) (Quote, error) {
	if err := validatePayload(in); err != nil {
		return Quote{}, err
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	code := in.TaxRateCode
	if strings.TrimSpace(string(code)) == "" {
		code = pricing.RateGeneral
	}
	rate, err := pricing.LookupRate(code)
	if err != nil {
		return Quote{}, err
	}
	base, err := pricing.BasePrice(in.Price, rate.Percent, in.PriceIncludesTax)
	if err != nil {
		return Quote{}, err
	}
	tax, err := pricing.TaxAmount(base, rate.Percent, qty)
	if err != nil {
		return Quote{}, err
	}
	taxable := pricing.Round(base.Mul(decimal.NewFromInt(int64(qty))))
	return Quote{
		TaxRateCode: rate.Code,
		TaxRate:     rate.Percent,
		Quantity:    qty,
		BasePrice:   base,
		Taxable:     taxable,
		TaxAmount:   tax,
		Total:       taxable.Add(tax),
	}, nil
}

// BasketEntry is one product quantity for bundle evaluation.
type BasketEntry struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// EvaluateInput asks what a promotion would discount on a line.
type EvaluateInput struct {
	Promotion        *promotion.Promotion `json:"promotion" validate:"required"`
	UnitPrice        decimal.Decimal      `json:"unitPrice"`
	Quantity         int                  `json:"quantity" validate:"required,gte=1"`
	CouponApplied    bool                 `json:"couponApplied"`
	LoyaltySatisfied bool                 `json:"loyaltySatisfied"`
	Basket           []BasketEntry        `json:"basket" validate:"omitempty,dive"`
}

// EvaluatePromotion runs the promotion evaluator on a hypothetical line.
func (s *Service) EvaluatePromotion(in EvaluateInput) (promotion.Result, error) {
	if err := validatePayload(in); err != nil {
		return promotion.Result{}, err
	}
	basket := make([]promotion.BasketLine, 0, len(in.Basket))
	for _, b := range in.Basket {
		basket = append(basket, promotion.BasketLine{ProductID: b.ProductID, Quantity: b.Quantity})
	}
	res, err := promotion.CalculateEffectiveDiscount(*in.Promotion, promotion.Input{
		UnitPrice: in.UnitPrice,
		Quantity:  in.Quantity,
		Conditions: promotion.Conditions{
			CouponApplied:    in.CouponApplied,
			LoyaltySatisfied: in.LoyaltySatisfied,
		},
		Basket: basket,
	})
	if err != nil {
		return promotion.Result{}, err
	}
	if s != nil && in.Promotion.Rule != nil {
		s.Metrics.ObservePromotion(string(in.Promotion.Rule.Kind()), res.Triggered)
	}
	return res, nil
}
