package pricing

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// BasePrice returns the tax-exclusive unit price. A tax-inclusive price is
// divided by (1 + rate/100); an exclusive price is returned as is.
func BasePrice(price, ratePercent decimal.Decimal, priceIncludesTax bool) (decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Zero, Invalid("price", "must not be negative")
	}
	if err := checkRate(ratePercent); err != nil {
		return decimal.Zero, err
	}
	if !priceIncludesTax {
		return Round(price), nil
	}
	return Round(price.Div(one.Add(Fraction(ratePercent)))), nil
}

// TaxAmount returns basePrice * rate/100 * quantity rounded to cents.
func TaxAmount(basePrice, ratePercent decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if basePrice.IsNegative() {
		return decimal.Zero, Invalid("basePrice", "must not be negative")
	}
	if quantity < 1 {
		return decimal.Zero, Invalid("quantity", "must be a positive integer")
	}
	if err := checkRate(ratePercent); err != nil {
		return decimal.Zero, err
	}
	return Round(basePrice.Mul(Fraction(ratePercent)).Mul(decimal.NewFromInt(int64(quantity)))), nil
}

func checkRate(ratePercent decimal.Decimal) error {
	if ratePercent.IsNegative() || ratePercent.GreaterThan(hundred) {
		return Invalid("taxRate", "must be between 0 and 100")
	}
	return nil
}
