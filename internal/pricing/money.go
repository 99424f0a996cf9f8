package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round rounds a currency amount to cents. Amounts in this package are never
// negative, so rounding half away from zero is half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Fraction converts a percentage (7 for 7%) into a multiplier (0.07).
func Fraction(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}
