package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date format used to key exchange-rate tables.
const DateLayout = "2006-01-02"

// RateTable maps an ISO 4217 currency code to its rate relative to BaseCurrency
// (1 BaseCurrency = rate units of the currency).
type RateTable map[string]decimal.Decimal

// Conversion is the result of converting an amount between two currencies.
type Conversion struct {
	OriginalAmount  decimal.Decimal
	From            string
	To              string
	Rate            decimal.Decimal
	ConvertedAmount decimal.Decimal // Rounded to 2 decimal places.
	Date            string
}

// DateKey formats t as the rate-table key for its UTC calendar day.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
