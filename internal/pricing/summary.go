package pricing

import "github.com/shopspring/decimal"

// TaxLine is the per-item input to Summarize.
type TaxLine struct {
	RateCode      RateCode
	RatePercent   decimal.Decimal
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
}

// Bucket aggregates the lines sharing one tax rate code.
type Bucket struct {
	Rate      decimal.Decimal `json:"rate"`
	ItemCount int             `json:"itemCount"`
	Taxable   decimal.Decimal `json:"taxableAmount"`
	Tax       decimal.Decimal `json:"taxAmount"`
}

// Summary holds session-wide tax totals.
type Summary struct {
	SubtotalBeforeTax decimal.Decimal     `json:"subtotalBeforeTax"`
	TotalTax          decimal.Decimal     `json:"totalTax"`
	GrandTotal        decimal.Decimal     `json:"total"`
	Breakdown         map[RateCode]Bucket `json:"taxBreakdown"`
}

// Summarize groups lines by rate code and totals them. It has no hidden state:
// the same input always yields the same Summary.
func Summarize(lines []TaxLine) Summary {
	breakdown := make(map[RateCode]Bucket)
	order := make([]RateCode, 0, len(lines))
	for _, line := range lines {
		b, ok := breakdown[line.RateCode]
		if !ok {
			order = append(order, line.RateCode)
			b = Bucket{Rate: line.RatePercent, Taxable: decimal.Zero, Tax: decimal.Zero}
		}
		b.ItemCount++
		b.Taxable = Round(b.Taxable.Add(line.TaxableAmount))
		b.Tax = Round(b.Tax.Add(line.TaxAmount))
		breakdown[line.RateCode] = b
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	// Bucket first-seen order keeps the sum independent of map iteration.
	for _, code := range order {
		b := breakdown[code]
		subtotal = Round(subtotal.Add(b.Taxable))
		tax = Round(tax.Add(b.Tax))
	}
	return Summary{
		SubtotalBeforeTax: subtotal,
		TotalTax:          tax,
		GrandTotal:        Round(subtotal.Add(tax)),
		Breakdown:         breakdown,
	}
}
