package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ExchangeRateStore = (*ExchangeRateRepo)(nil)

// ExchangeRateRepo is the SQLite implementation of the ExchangeRateStore port.
// Each row holds a whole day's rate table as a JSON object of decimal strings.
type ExchangeRateRepo struct {
	db *DB
}

// NewExchangeRateRepo creates a new ExchangeRateRepo backed by the given DB.
func NewExchangeRateRepo(db *DB) *ExchangeRateRepo {
	return &ExchangeRateRepo{db: db}
}

// Get returns the rate table stored for date, or nil, nil if there is none.
func (r *ExchangeRateRepo) Get(ctx context.Context, date string) (model.RateTable, error) {
	const query = `SELECT rates_json FROM exchange_rates WHERE date = ?`

	var ratesJSON string
	err := r.db.Reader.QueryRowContext(ctx, query, date).Scan(&ratesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange rates for %s: %w", date, err)
	}

	// decimal.Decimal unmarshals from both JSON strings and numbers.
	var rates model.RateTable
	if err := json.Unmarshal([]byte(ratesJSON), &rates); err != nil {
		return nil, fmt.Errorf("unmarshal exchange rates for %s: %w", date, err)
	}

	return rates, nil
}

// Save stores or replaces the rate table for date.
func (r *ExchangeRateRepo) Save(ctx context.Context, date string, rates model.RateTable) error {
	const query = `
		INSERT INTO exchange_rates (date, rates_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			rates_json = excluded.rates_json,
			updated_at = excluded.updated_at
	`

	ratesJSON, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("marshal exchange rates for %s: %w", date, err)
	}

	now := formatTime(time.Now())
	if _, err := r.db.Writer.ExecContext(ctx, query, date, string(ratesJSON), now, now); err != nil {
		return fmt.Errorf("save exchange rates for %s: %w", date, err)
	}

	return nil
}
