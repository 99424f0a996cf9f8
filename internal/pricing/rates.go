package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RateCode identifies an ITBMS tax category.
type RateCode string

const (
	RateExempt    RateCode = "exempt"
	RateGeneral   RateCode = "general"
	RateServices  RateCode = "services"
	RateSelective RateCode = "selective"
)

// TaxRate is immutable reference data describing one ITBMS category.
type TaxRate struct {
	Code    RateCode        `json:"code"`
	Percent decimal.Decimal `json:"rate"`
	Name    string          `json:"name"`
}

var rateTable = []TaxRate{
	{Code: RateExempt, Percent: decimal.Zero, Name: "Exento"},
	{Code: RateGeneral, Percent: decimal.NewFromInt(7), Name: "ITBMS general"},
	{Code: RateServices, Percent: decimal.NewFromInt(10), Name: "ITBMS servicios"},
	{Code: RateSelective, Percent: decimal.NewFromInt(15), Name: "ITBMS selectivo"},
}

// Rates returns the rate catalog ordered from lowest to highest rate.
func Rates() []TaxRate {
	out := make([]TaxRate, len(rateTable))
	copy(out, rateTable)
	return out
}

// LookupRate resolves a rate code, case-insensitively.
func LookupRate(code RateCode) (TaxRate, error) {
	normalized := RateCode(strings.ToLower(strings.TrimSpace(string(code))))
	for _, r := range rateTable {
		if r.Code == normalized {
			return r, nil
		}
	}
	return TaxRate{}, Invalid("taxRateCode", "unknown tax rate code "+string(code))
}
