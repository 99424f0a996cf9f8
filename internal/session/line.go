package session

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
)

// newLineItem validates input and builds an unpriced line item.
func newLineItem(id string, in AddItemInput) (LineItem, error) {
	item := LineItem{
		ID:               id,
		ProductID:        trimmedPtr(in.ProductID),
		Name:             strings.TrimSpace(in.Name),
		UnitPrice:        in.UnitPrice,
		Quantity:         in.Quantity,
		Unit:             strings.TrimSpace(in.Unit),
		Notes:            in.Notes,
		PriceIncludesTax: in.PriceIncludesTax,
		CouponApplied:    in.CouponApplied,
		LoyaltySatisfied: in.LoyaltySatisfied,
		Promotion:        in.Promotion,
	}
	if err := setRate(&item, in.TaxRateCode); err != nil {
		return LineItem{}, err
	}
	if err := validateItem(item); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// applyUpdate returns item with the non-nil fields of in applied.
func applyUpdate(item LineItem, in UpdateItemInput) (LineItem, error) {
	if in.Name != nil {
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.UnitPrice != nil {
		item.UnitPrice = *in.UnitPrice
	}
	if in.Quantity != nil {
		item.Quantity = *in.Quantity
	}
	if in.Unit != nil {
		item.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.Notes != nil {
		item.Notes = *in.Notes
	}
	if in.TaxRateCode != nil && *in.TaxRateCode != item.TaxRateCode {
		if err := setRate(&item, *in.TaxRateCode); err != nil {
			return LineItem{}, err
		}
	}
	if in.PriceIncludesTax != nil {
		item.PriceIncludesTax = *in.PriceIncludesTax
	}
	if in.CouponApplied != nil {
		item.CouponApplied = *in.CouponApplied
	}
	if in.LoyaltySatisfied != nil {
		item.LoyaltySatisfied = *in.LoyaltySatisfied
	}
	if in.ClearPromotion {
		item.Promotion = nil
	}
	if in.Promotion != nil {
		item.Promotion = in.Promotion
	}
	if err := validateItem(item); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// setRate copies the current rate value onto the item so later catalog
// changes do not move historical totals.
func setRate(item *LineItem, code pricing.RateCode) error {
	if strings.TrimSpace(string(code)) == "" {
		code = pricing.RateGeneral
	}
	rate, err := pricing.LookupRate(code)
	if err != nil {
		return err
	}
	item.TaxRateCode = rate.Code
	item.TaxRate = rate.Percent
	return nil
}

func validateItem(item LineItem) error {
	if item.Name == "" {
		return pricing.Invalid("name", "is required")
	}
	if item.UnitPrice.IsNegative() {
		return pricing.Invalid("unitPrice", "must not be negative")
	}
	if item.Quantity < 1 {
		return pricing.Invalid("quantity", "must be a positive integer")
	}
	return nil
}

// priceLine recomputes every derived field of item. basket is the whole
// session, needed by bundle promotions.
func priceLine(item LineItem, basket []promotion.BasketLine) (LineItem, error) {
	base, err := pricing.BasePrice(item.UnitPrice, item.TaxRate, item.PriceIncludesTax)
	if err != nil {
		return LineItem{}, err
	}
	qty := decimal.NewFromInt(int64(item.Quantity))
	gross := pricing.Round(base.Mul(qty))

	item.BasePrice = base
	item.Subtotal = pricing.Round(item.UnitPrice.Mul(qty))
	item.DiscountAmount = decimal.Zero
	item.AppliedPromotionID = nil
	item.OriginalPrice = nil
	item.PromotionTriggered = false

	if item.Promotion != nil {
		res, err := evaluatePromotion(item, base, basket)
		if err != nil {
			return LineItem{}, err
		}
		item.PromotionTriggered = res.Triggered
		if res.Triggered {
			id := item.Promotion.ID
			item.AppliedPromotionID = &id
			item.OriginalPrice = &gross
			item.DiscountAmount = res.DiscountAmount
		}
	}

	// base is whole cents, so taxing the line total equals taxing per unit.
	tax, err := pricing.TaxAmount(gross.Sub(item.DiscountAmount), item.TaxRate, 1)
	if err != nil {
		return LineItem{}, err
	}
	item.TaxAmount = tax
	return item, nil
}

func evaluatePromotion(item LineItem, base decimal.Decimal, basket []promotion.BasketLine) (promotion.Result, error) {
	rule := item.Promotion.Rule
	if item.PriceIncludesTax {
		// Promotion prices are shelf prices; compare them pre-tax like the line.
		rule = promotion.ToBase(rule, func(d decimal.Decimal) decimal.Decimal {
			b, err := pricing.BasePrice(d, item.TaxRate, true)
			if err != nil {
				return d
			}
			return b
		})
	}
	return promotion.CalculateEffectiveDiscount(
		promotion.Promotion{ID: item.Promotion.ID, Rule: rule},
		promotion.Input{
			UnitPrice: base,
			Quantity:  item.Quantity,
			Conditions: promotion.Conditions{
				CouponApplied:    item.CouponApplied,
				LoyaltySatisfied: item.LoyaltySatisfied,
			},
			Basket: basket,
		},
	)
}

// reprice recomputes all items and the session summary without touching the
// caller's slice.
func reprice(items []LineItem) ([]LineItem, pricing.Summary, error) {
	basket := make([]promotion.BasketLine, 0, len(items))
	for _, it := range items {
		if it.ProductID != nil {
			basket = append(basket, promotion.BasketLine{ProductID: *it.ProductID, Quantity: it.Quantity})
		}
	}
	priced := make([]LineItem, len(items))
	lines := make([]pricing.TaxLine, len(items))
	for i, it := range items {
		p, err := priceLine(it, basket)
		if err != nil {
			return nil, pricing.Summary{}, err
		}
		priced[i] = p
		lines[i] = pricing.TaxLine{
			RateCode:      p.TaxRateCode,
			RatePercent:   p.TaxRate,
			TaxableAmount: p.TaxableAmount(),
			TaxAmount:     p.TaxAmount,
		}
	}
	return priced, pricing.Summarize(lines), nil
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
