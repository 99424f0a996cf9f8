package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/pricing"
)

func line(t *testing.T, code pricing.RateCode, price string, qty int, inclusive bool) pricing.TaxLine {
	t.Helper()
	rate, err := pricing.LookupRate(code)
	require.NoError(t, err)
	base, err := pricing.BasePrice(dec(t, price), rate.Percent, inclusive)
	require.NoError(t, err)
	tax, err := pricing.TaxAmount(base, rate.Percent, qty)
	require.NoError(t, err)
	return pricing.TaxLine{
		RateCode:      code,
		RatePercent:   rate.Percent,
		TaxableAmount: pricing.Round(base.Mul(decimal.NewFromInt(int64(qty)))),
		TaxAmount:     tax,
	}
}

func TestSummarizeTwoRates(t *testing.T) {
	summary := pricing.Summarize([]pricing.TaxLine{
		line(t, pricing.RateGeneral, "10.70", 1, true),
		line(t, pricing.RateExempt, "5.00", 1, false),
	})
	requireMoney(t, "15.00", summary.SubtotalBeforeTax)
	requireMoney(t, "0.70", summary.TotalTax)
	requireMoney(t, "15.70", summary.GrandTotal)
	require.Len(t, summary.Breakdown, 2)
	require.Equal(t, 1, summary.Breakdown[pricing.RateGeneral].ItemCount)
	requireMoney(t, "0.70", summary.Breakdown[pricing.RateGeneral].Tax)
	requireMoney(t, "5.00", summary.Breakdown[pricing.RateExempt].Taxable)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := pricing.Summarize(nil)
	requireMoney(t, "0.00", summary.SubtotalBeforeTax)
	requireMoney(t, "0.00", summary.TotalTax)
	requireMoney(t, "0.00", summary.GrandTotal)
	require.NotNil(t, summary.Breakdown)
	require.Empty(t, summary.Breakdown)
}

func TestSummarizeIdempotent(t *testing.T) {
	lines := []pricing.TaxLine{
		line(t, pricing.RateGeneral, "3.99", 3, true),
		line(t, pricing.RateSelective, "8.25", 2, false),
		line(t, pricing.RateServices, "12.10", 1, true),
		line(t, pricing.RateGeneral, "0.45", 7, false),
	}
	first := pricing.Summarize(lines)
	second := pricing.Summarize(lines)
	require.Equal(t, first.SubtotalBeforeTax.String(), second.SubtotalBeforeTax.String())
	require.Equal(t, first.TotalTax.String(), second.TotalTax.String())
	require.Equal(t, first.GrandTotal.String(), second.GrandTotal.String())
	require.Equal(t, len(first.Breakdown), len(second.Breakdown))
	for code, bucket := range first.Breakdown {
		other := second.Breakdown[code]
		require.Equal(t, bucket.ItemCount, other.ItemCount)
		require.Equal(t, bucket.Tax.String(), other.Tax.String())
		require.Equal(t, bucket.Taxable.String(), other.Taxable.String())
	}
}

func TestSummarizeLinearity(t *testing.T) {
	a := []pricing.TaxLine{
		line(t, pricing.RateGeneral, "10.70", 2, true),
		line(t, pricing.RateExempt, "1.25", 4, false),
	}
	b := []pricing.TaxLine{
		line(t, pricing.RateGeneral, "2.19", 5, false),
		line(t, pricing.RateSelective, "4.60", 1, true),
	}
	union := append(append([]pricing.TaxLine{}, a...), b...)

	sa, sb, su := pricing.Summarize(a), pricing.Summarize(b), pricing.Summarize(union)
	require.Equal(t, sa.TotalTax.Add(sb.TotalTax).StringFixed(2), su.TotalTax.StringFixed(2))
	require.Equal(t, sa.SubtotalBeforeTax.Add(sb.SubtotalBeforeTax).StringFixed(2), su.SubtotalBeforeTax.StringFixed(2))
}

func TestSummarizeGrandTotalInvariant(t *testing.T) {
	summary := pricing.Summarize([]pricing.TaxLine{
		line(t, pricing.RateGeneral, "0.99", 3, true),
		line(t, pricing.RateServices, "45.00", 2, true),
		line(t, pricing.RateSelective, "6.66", 1, false),
	})
	require.True(t, summary.GrandTotal.Equal(summary.SubtotalBeforeTax.Add(summary.TotalTax)))
}
