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
var _ driven.AccountStore = (*AccountRepo)(nil)

// AccountRepo is the SQLite implementation of the AccountStore port interface.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new AccountRepo backed by the given DB.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Upsert inserts or updates an account's profile. Profile fields are serialized
// as a JSON array in the TEXT column. An existing campaign link is preserved
// when account.CampaignURL is empty.
func (r *AccountRepo) Upsert(ctx context.Context, account model.Account) error {
	const query = `
		INSERT INTO accounts (url, display_name, profile_note, profile_fields, campaign_url, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			display_name = excluded.display_name,
			profile_note = excluded.profile_note,
			profile_fields = excluded.profile_fields,
			campaign_url = COALESCE(excluded.campaign_url, accounts.campaign_url),
			disabled = excluded.disabled,
			updated_at = excluded.updated_at
	`

	fields := account.ProfileFields
	if fields == nil {
		fields = []model.ProfileField{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal profile fields: %w", err)
	}

	now := time.Now().UTC()
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		account.URL, account.DisplayName, account.ProfileNote, string(fieldsJSON),
		nullString(account.CampaignURL), boolToInt(account.Disabled),
		formatTime(createdAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", account.URL, err)
	}

	return nil
}

// Remove deletes an account by URL. Its campaign and donations are kept; they
// are only ever deleted administratively.
func (r *AccountRepo) Remove(ctx context.Context, url string) error {
	const query = `DELETE FROM accounts WHERE url = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, url)
	if err != nil {
		return fmt.Errorf("remove account %s: %w", url, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("remove account %s: %w", url, driven.ErrAccountNotFound)
	}

	return nil
}

// GetByURL retrieves an account. Returns nil, nil if the account does not exist.
func (r *AccountRepo) GetByURL(ctx context.Context, url string) (*model.Account, error) {
	const query = `
		SELECT url, display_name, profile_note, profile_fields, campaign_url, disabled, created_at, updated_at
		FROM accounts
		WHERE url = ?
	`

	account, err := scanAccount(r.db.Reader.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", url, err)
	}

	return account, nil
}

// ListAll returns all accounts ordered by URL.
func (r *AccountRepo) ListAll(ctx context.Context) ([]model.Account, error) {
	const query = `
		SELECT url, display_name, profile_note, profile_fields, campaign_url, disabled, created_at, updated_at
		FROM accounts
		ORDER BY url
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// SetCampaignURL links an account to its canonical campaign URL.
func (r *AccountRepo) SetCampaignURL(ctx context.Context, accountURL, campaignURL string) error {
	const query = `UPDATE accounts SET campaign_url = ?, updated_at = ? WHERE url = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, nullString(campaignURL), formatTime(time.Now()), accountURL)
	if err != nil {
		return fmt.Errorf("set campaign url for %s: %w", accountURL, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set campaign url for %s: %w", accountURL, driven.ErrAccountNotFound)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*model.Account, error) {
	var account model.Account
	var fieldsJSON string
	var campaignURL sql.NullString
	var disabled int
	var createdAt, updatedAt string

	err := s.Scan(
		&account.URL, &account.DisplayName, &account.ProfileNote, &fieldsJSON,
		&campaignURL, &disabled, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &account.ProfileFields); err != nil {
		return nil, fmt.Errorf("unmarshal profile fields: %w", err)
	}
	account.CampaignURL = campaignURL.String
	account.Disabled = disabled != 0

	account.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	account.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &account, nil
}

// timeLayout is fixed-width so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
