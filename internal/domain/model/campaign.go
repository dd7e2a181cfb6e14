// Package model holds the domain types shared by every layer: accounts,
// campaigns, donations, exchange rates and fetch errors.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every stored donation amount is normalized to.
const BaseCurrency = "USD"

// Campaign is a fundraising page on an external platform linked from an
// archived account's profile.
type Campaign struct {
	URL        string
	AccountURL string
	Platform   Platform
	// DonationsCursor is an opaque pagination token whose meaning is defined by
	// the adapter that owns the campaign's platform. Empty means "never fetched".
	DonationsCursor string
	Donations       []Donation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Donation is a single contribution to a campaign. Amount is always in BaseCurrency.
type Donation struct {
	ID          string
	CampaignURL string
	Donor       *string // nil for anonymous donations.
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

// URL returns the stable permalink used to identify the donation in feeds.
func (d Donation) URL() string {
	return d.CampaignURL + "#donation-" + d.ID
}

// DonorName returns the donor name, or the empty string for anonymous donations.
func (d Donation) DonorName() string {
	if d.Donor == nil {
		return ""
	}
	return *d.Donor
}

// CampaignSummary aggregates a campaign's stored donations for listing.
type CampaignSummary struct {
	Campaign          Campaign
	DonationCount     int
	TotalAmount       decimal.Decimal
	FirstDonationTime time.Time
	LastDonationTime  time.Time
}

// DonationFilter narrows a donation listing. Zero values mean "no constraint".
type DonationFilter struct {
	AccountURL string
	Donor      string
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
}

// TimeWindow is an inclusive time span.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
