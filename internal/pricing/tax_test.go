package pricing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/pricing"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, want, got.StringFixed(2))
}

func TestBasePriceInclusive(t *testing.T) {
	base, err := pricing.BasePrice(dec(t, "10.70"), decimal.NewFromInt(7), true)
	require.NoError(t, err)
	requireMoney(t, "10.00", base)

	tax, err := pricing.TaxAmount(base, decimal.NewFromInt(7), 1)
	require.NoError(t, err)
	requireMoney(t, "0.70", tax)
}

func TestBasePriceExclusiveReturnsPrice(t *testing.T) {
	base, err := pricing.BasePrice(dec(t, "5.00"), decimal.NewFromInt(15), false)
	require.NoError(t, err)
	requireMoney(t, "5.00", base)
}

func TestBasePriceRoundsHalfUp(t *testing.T) {
	// 1.07 / 1.10 = 0.97272... and 0.125 exclusive rounds to 0.13
	base, err := pricing.BasePrice(dec(t, "1.07"), decimal.NewFromInt(10), true)
	require.NoError(t, err)
	requireMoney(t, "0.97", base)

	base, err = pricing.BasePrice(dec(t, "0.125"), decimal.Zero, false)
	require.NoError(t, err)
	requireMoney(t, "0.13", base)
}

func TestTaxAmountMultipliesQuantity(t *testing.T) {
	tax, err := pricing.TaxAmount(dec(t, "2.50"), decimal.NewFromInt(7), 3)
	require.NoError(t, err)
	requireMoney(t, "0.53", tax) // 0.525
}

func TestInclusiveRoundTrip(t *testing.T) {
	tolerance := dec(t, "0.01")
	for _, rate := range pricing.Rates() {
		for _, raw := range []string{"0.01", "0.99", "1.00", "3.33", "10.00", "10.70", "19.99", "123.45", "999.99"} {
			price := dec(t, raw)
			base, err := pricing.BasePrice(price, rate.Percent, true)
			require.NoError(t, err)
			tax, err := pricing.TaxAmount(base, rate.Percent, 1)
			require.NoError(t, err)
			diff := base.Add(tax).Sub(price).Abs()
			require.Truef(t, diff.LessThanOrEqual(tolerance), "rate %s price %s: base %s tax %s", rate.Code, raw, base, tax)
		}
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name  string
		field string
		call  func() error
	}{
		{"negative price", "price", func() error {
			_, err := pricing.BasePrice(dec(t, "-1"), decimal.NewFromInt(7), true)
			return err
		}},
		{"rate above 100", "taxRate", func() error {
			_, err := pricing.BasePrice(dec(t, "1"), decimal.NewFromInt(101), false)
			return err
		}},
		{"negative rate", "taxRate", func() error {
			_, err := pricing.TaxAmount(dec(t, "1"), decimal.NewFromInt(-7), 1)
			return err
		}},
		{"zero quantity", "quantity", func() error {
			_, err := pricing.TaxAmount(dec(t, "1"), decimal.NewFromInt(7), 0)
			return err
		}},
		{"negative base", "basePrice", func() error {
			_, err := pricing.TaxAmount(dec(t, "-0.01"), decimal.NewFromInt(7), 1)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var verr *pricing.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestLookupRate(t *testing.T) {
	rate, err := pricing.LookupRate("GENERAL")
	require.NoError(t, err)
	require.Equal(t, pricing.RateGeneral, rate.Code)
	requireMoney(t, "7.00", rate.Percent)

	_, err = pricing.LookupRate("luxury")
	var verr *pricing.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "taxRateCode", verr.Field)

	rates := pricing.Rates()
	require.Len(t, rates, 4)
	for i := 1; i < len(rates); i++ {
		require.True(t, rates[i-1].Percent.LessThan(rates[i].Percent))
	}
}
