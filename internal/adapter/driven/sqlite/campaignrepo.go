package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CampaignStore = (*CampaignRepo)(nil)

// CampaignRepo is the SQLite implementation of the CampaignStore port interface.
// Amounts are stored as decimal strings to avoid float drift.
type CampaignRepo struct {
	db *DB
}

// NewCampaignRepo creates a new CampaignRepo backed by the given DB.
func NewCampaignRepo(db *DB) *CampaignRepo {
	return &CampaignRepo{db: db}
}

// GetCampaign returns the campaign and all its donations ordered newest first.
// Returns nil, nil if the campaign does not exist.
func (r *CampaignRepo) GetCampaign(ctx context.Context, url string) (*model.Campaign, error) {
	const query = `
		SELECT url, account_url, platform, donations_cursor, created_at, updated_at
		FROM campaigns
		WHERE url = ?
	`

	campaign, err := scanCampaign(r.db.Reader.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", url, err)
	}

	const donationsQuery = `
		SELECT campaign_url, id, donor, amount, created_at
		FROM campaign_donations
		WHERE campaign_url = ?
		ORDER BY created_at DESC, id
	`

	campaign.Donations, err = r.queryDonations(ctx, donationsQuery, url)
	if err != nil {
		return nil, fmt.Errorf("get donations for %s: %w", url, err)
	}

	return campaign, nil
}

// SaveCampaigns persists a batch of campaigns in one transaction. New campaigns
// are inserted with all their donations. For existing campaigns the cursor row
// is only updated when it changed; donations with unseen IDs are always inserted.
func (r *CampaignRepo) SaveCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}

	now := formatTime(time.Now())

	return r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		for _, c := range campaigns {
			if err := saveCampaign(ctx, tx, c, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveCampaign inserts c when it is new. Otherwise it updates the cursor when
// it differs and adds donations whose IDs are not yet stored.
func saveCampaign(ctx context.Context, tx *sql.Tx, c model.Campaign, now string) error {
	var storedCursor sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT donations_cursor FROM campaigns WHERE url = ?`, c.URL).Scan(&storedCursor)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		const insertCampaign = `
			INSERT INTO campaigns (url, account_url, platform, donations_cursor, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		platform := c.Platform
		if platform == model.PlatformUnknown {
			platform = model.PlatformForURL(c.URL)
		}
		if _, err := tx.ExecContext(ctx, insertCampaign,
			c.URL, c.AccountURL, string(platform), nullString(c.DonationsCursor), now, now,
		); err != nil {
			return fmt.Errorf("insert campaign %s: %w", c.URL, err)
		}

		added, err := insertDonations(ctx, tx, c)
		if err != nil {
			return err
		}
		slog.Info("added new campaign", "campaign_url", c.URL, "donations", added)

	case err != nil:
		return fmt.Errorf("read cursor for %s: %w", c.URL, err)

	case storedCursor.String != c.DonationsCursor:
		const updateCampaign = `
			UPDATE campaigns SET donations_cursor = ?, account_url = ?, updated_at = ? WHERE url = ?
		`
		if _, err := tx.ExecContext(ctx, updateCampaign,
			nullString(c.DonationsCursor), c.AccountURL, now, c.URL,
		); err != nil {
			return fmt.Errorf("update campaign %s: %w", c.URL, err)
		}

		added, err := insertDonations(ctx, tx, c)
		if err != nil {
			return err
		}
		if added > 0 {
			slog.Info("added donations to campaign", "campaign_url", c.URL, "donations", added)
		}

	default:
		// Sources with coarse cursors (Steunactie hour buckets) can report new
		// donations without moving the cursor.
		added, err := insertDonations(ctx, tx, c)
		if err != nil {
			return err
		}
		if added > 0 {
			slog.Info("added donations to campaign", "campaign_url", c.URL, "donations", added)
		}
	}

	return nil
}

// insertDonations inserts donations whose (campaign_url, id) is not yet stored
// and returns how many rows were added.
func insertDonations(ctx context.Context, tx *sql.Tx, c model.Campaign) (int64, error) {
	const query = `
		INSERT OR IGNORE INTO campaign_donations (campaign_url, id, donor, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	var added int64
	for _, d := range c.Donations {
		var donor sql.NullString
		if d.Donor != nil {
			donor = sql.NullString{String: *d.Donor, Valid: true}
		}

		result, err := tx.ExecContext(ctx, query, c.URL, d.ID, donor, d.Amount.String(), formatTime(d.CreatedAt))
		if err != nil {
			return added, fmt.Errorf("insert donation %s for %s: %w", d.ID, c.URL, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return added, fmt.Errorf("check rows affected: %w", err)
		}
		added += n
	}

	return added, nil
}

// GetRecentDonations returns up to limit donations of a campaign, newest first.
func (r *CampaignRepo) GetRecentDonations(ctx context.Context, campaignURL string, limit int) ([]model.Donation, error) {
	const query = `
		SELECT campaign_url, id, donor, amount, created_at
		FROM campaign_donations
		WHERE campaign_url = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	donations, err := r.queryDonations(ctx, query, campaignURL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent donations for %s: %w", campaignURL, err)
	}

	return donations, nil
}

// GetDonationIDsBetween returns the IDs of donations created within [start, end].
func (r *CampaignRepo) GetDonationIDsBetween(ctx context.Context, campaignURL string, start, end time.Time) (map[string]struct{}, error) {
	const query = `
		SELECT id FROM campaign_donations
		WHERE campaign_url = ? AND created_at >= ? AND created_at <= ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, campaignURL, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("query donation ids for %s: %w", campaignURL, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donation id: %w", err)
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donation ids: %w", err)
	}

	return ids, nil
}

// DeleteDonationsByIDs removes the given donations from a campaign and returns
// the number of rows deleted.
func (r *CampaignRepo) DeleteDonationsByIDs(ctx context.Context, campaignURL string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `DELETE FROM campaign_donations WHERE campaign_url = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, campaignURL)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete donations for %s: %w", campaignURL, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return deleted, nil
}

// ListCampaigns returns all campaigns with their donation count, USD total and
// first/last donation time, ordered by URL.
func (r *CampaignRepo) ListCampaigns(ctx context.Context) ([]model.CampaignSummary, error) {
	const query = `
		SELECT c.url, c.account_url, c.platform, c.donations_cursor, c.created_at, c.updated_at,
		       COUNT(d.id), MIN(d.created_at), MAX(d.created_at)
		FROM campaigns c
		LEFT JOIN campaign_donations d ON d.campaign_url = c.url
		GROUP BY c.url
		ORDER BY c.url
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var summaries []model.CampaignSummary
	index := make(map[string]int)
	for rows.Next() {
		var s model.CampaignSummary
		var platform string
		var cursor, first, last sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(
			&s.Campaign.URL, &s.Campaign.AccountURL, &platform, &cursor, &createdAt, &updatedAt,
			&s.DonationCount, &first, &last,
		); err != nil {
			return nil, fmt.Errorf("scan campaign summary: %w", err)
		}

		s.Campaign.Platform = model.Platform(platform)
		s.Campaign.DonationsCursor = cursor.String
		if s.Campaign.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if s.Campaign.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		if first.Valid {
			if s.FirstDonationTime, err = parseTime(first.String); err != nil {
				return nil, fmt.Errorf("parse first donation time: %w", err)
			}
		}
		if last.Valid {
			if s.LastDonationTime, err = parseTime(last.String); err != nil {
				return nil, fmt.Errorf("parse last donation time: %w", err)
			}
		}
		s.TotalAmount = decimal.Zero

		index[s.Campaign.URL] = len(summaries)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}

	// Totals are summed in Go so decimal precision survives SQLite's REAL coercion.
	amountRows, err := r.db.Reader.QueryContext(ctx, `SELECT campaign_url, amount FROM campaign_donations`)
	if err != nil {
		return nil, fmt.Errorf("query donation amounts: %w", err)
	}
	defer amountRows.Close()

	for amountRows.Next() {
		var url, raw string
		if err := amountRows.Scan(&url, &raw); err != nil {
			return nil, fmt.Errorf("scan donation amount: %w", err)
		}
		i, ok := index[url]
		if !ok {
			continue
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		summaries[i].TotalAmount = summaries[i].TotalAmount.Add(amount)
	}
	if err := amountRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donation amounts: %w", err)
	}

	return summaries, nil
}

// ListDonations returns donations matching filter, newest first.
func (r *CampaignRepo) ListDonations(ctx context.Context, filter model.DonationFilter) ([]model.Donation, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT d.campaign_url, d.id, d.donor, d.amount, d.created_at
		FROM campaign_donations d
		JOIN campaigns c ON c.url = d.campaign_url
		WHERE 1 = 1`)

	var args []any
	if filter.AccountURL != "" {
		b.WriteString(` AND c.account_url = ?`)
		args = append(args, filter.AccountURL)
	}
	if filter.Donor != "" {
		b.WriteString(` AND d.donor = ?`)
		args = append(args, filter.Donor)
	}
	if !filter.Start.IsZero() {
		b.WriteString(` AND d.created_at >= ?`)
		args = append(args, formatTime(filter.Start))
	}
	if !filter.End.IsZero() {
		b.WriteString(` AND d.created_at <= ?`)
		args = append(args, formatTime(filter.End))
	}
	b.WriteString(` ORDER BY d.created_at DESC, d.id`)

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit.
	}
	b.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, filter.Offset)

	donations, err := r.queryDonations(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}

	return donations, nil
}

func (r *CampaignRepo) queryDonations(ctx context.Context, query string, args ...any) ([]model.Donation, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		donations = append(donations, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}

	return donations, nil
}

func scanCampaign(s scanner) (*model.Campaign, error) {
	var c model.Campaign
	var platform string
	var cursor sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&c.URL, &c.AccountURL, &platform, &cursor, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c.Platform = model.Platform(platform)
	c.DonationsCursor = cursor.String

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &c, nil
}

func scanDonation(s scanner) (*model.Donation, error) {
	var d model.Donation
	var donor sql.NullString
	var amount, createdAt string

	if err := s.Scan(&d.CampaignURL, &d.ID, &donor, &amount, &createdAt); err != nil {
		return nil, err
	}

	if donor.Valid {
		name := donor.String
		d.Donor = &name
	}

	var err error
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &d, nil
}
