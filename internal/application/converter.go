package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CurrencyConverter = (*Converter)(nil)

// Converter normalizes amounts between currencies using daily USD-based rate
// tables. Tables are looked up in the in-process cache, then the persisted
// cache, then fetched from the primary provider, the backup provider, and as a
// last resort today's rates from the primary provider.
type Converter struct {
	cache   *RateCache
	store   driven.ExchangeRateStore
	primary driven.RateProvider
	backup  driven.RateProvider // optional
	metrics *Metrics
	now     func() time.Time
}

// NewConverter creates a Converter. backup and metrics may be nil.
func NewConverter(cache *RateCache, store driven.ExchangeRateStore, primary, backup driven.RateProvider, metrics *Metrics) *Converter {
	return &Converter{
		cache:   cache,
		store:   store,
		primary: primary,
		backup:  backup,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the clock used to resolve "today". Intended for testing.
func (c *Converter) WithClock(now func() time.Time) *Converter {
	c.now = now
	return c
}

func (c *Converter) today() string {
	return model.DateKey(c.now())
}

// Rates returns the rate table for date (YYYY-MM-DD).
func (c *Converter) Rates(ctx context.Context, date string) (model.RateTable, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("date must be in YYYY-MM-DD format: %w", err)
	}

	if rates := c.cache.Get(date); len(rates) > 0 {
		c.metrics.rateLookup("memory")
		return rates, nil
	}

	stored, err := c.store.Get(ctx, date)
	if err != nil {
		slog.Warn("failed to read persisted exchange rates", "date", date, "error", err)
	} else if len(stored) > 0 {
		c.metrics.rateLookup("store")
		c.cache.Set(date, stored)
		return stored, nil
	}

	slog.Debug("fetching exchange rates", "date", date)
	rates, err := c.fetch(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := c.store.Save(ctx, date, rates); err != nil {
		slog.Warn("failed to persist exchange rates", "date", date, "error", err)
	}
	c.cache.Set(date, rates)

	return rates, nil
}

func (c *Converter) fetch(ctx context.Context, date string) (model.RateTable, error) {
	rates, primaryErr := c.primary.FetchRates(ctx, date)
	if primaryErr == nil {
		c.metrics.rateLookup(c.primary.Name())
		return rates, nil
	}
	errs := []error{primaryErr}

	if c.backup != nil {
		slog.Debug("primary currency API failed, falling back to backup",
			"provider", c.primary.Name(), "date", date, "error", primaryErr)

		rates, backupErr := c.backup.FetchRates(ctx, date)
		if backupErr == nil {
			c.metrics.rateLookup(c.backup.Name())
			return rates, nil
		}
		errs = append(errs, backupErr)
		slog.Warn("backup currency API failed, falling back to most recent rates",
			"provider", c.backup.Name(), "date", date, "error", backupErr)
	}

	// Today's rates are the most recent ones, which the primary already refused.
	today := c.today()
	if date == today {
		return nil, fmt.Errorf("fetching rates for %s: %w", date, errors.Join(errs...))
	}

	rates, err := c.primary.FetchRates(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("fetching rates for %s: %w", date, errors.Join(append(errs, err)...))
	}
	c.metrics.rateLookup(c.primary.Name() + "-latest")
	return rates, nil
}

// Convert converts amount from one currency to another at date's rates. An
// empty date means today (UTC). Only ConvertedAmount is rounded.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to, date string) (model.Conversion, error) {
	from, err := normalizeCurrency(from)
	if err != nil {
		return model.Conversion{}, conversionError(err)
	}
	to, err = normalizeCurrency(to)
	if err != nil {
		return model.Conversion{}, conversionError(err)
	}
	if date == "" {
		date = c.today()
	}

	rates, err := c.Rates(ctx, date)
	if err != nil {
		return model.Conversion{}, conversionError(err)
	}

	toRate, ok := lookupRate(rates, to)
	if !ok {
		return model.Conversion{}, conversionError(fmt.Errorf("currency %s not found in rates for %s", to, date))
	}

	base := amount
	if from != model.BaseCurrency {
		fromRate, ok := lookupRate(rates, from)
		if !ok {
			return model.Conversion{}, conversionError(fmt.Errorf("currency %s not found in rates for %s", from, date))
		}
		base = amount.Div(fromRate)
	}

	return model.Conversion{
		OriginalAmount:  amount,
		From:            from,
		To:              to,
		Rate:            toRate,
		ConvertedAmount: base.Mul(toRate).Round(2),
		Date:            date,
	}, nil
}

// lookupRate returns the rate of code. The base currency is implicitly 1 when
// a provider omits it.
func lookupRate(rates model.RateTable, code string) (decimal.Decimal, bool) {
	rate, ok := rates[code]
	if ok && rate.IsPositive() {
		return rate, true
	}
	if code == model.BaseCurrency {
		return decimal.NewFromInt(1), true
	}
	return decimal.Zero, false
}

func normalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	return unit.String(), nil
}

func conversionError(err error) error {
	return model.NewFetchError(model.KindConversion, model.PlatformUnknown, "", err)
}
