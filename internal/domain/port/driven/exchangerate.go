package driven

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// ExchangeRateStore defines the driven port for the persisted exchange-rate cache.
type ExchangeRateStore interface {
	// Get returns the rate table for date (YYYY-MM-DD), or nil, nil if none is stored.
	Get(ctx context.Context, date string) (model.RateTable, error)
	// Save stores or replaces the rate table for date.
	Save(ctx context.Context, date string, rates model.RateTable) error
}

// RateProvider defines the driven port for an external exchange-rate API.
// Returned tables are always relative to model.BaseCurrency.
type RateProvider interface {
	Name() string
	FetchRates(ctx context.Context, date string) (model.RateTable, error)
}

// CurrencyConverter defines the port campaign sources use to normalize
// donation amounts. date is YYYY-MM-DD; empty means today.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to, date string) (model.Conversion, error)
}
