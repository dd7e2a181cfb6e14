package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// CampaignStore defines the driven port for campaign and donation persistence.
type CampaignStore interface {
	// GetCampaign returns the campaign with all its donations, newest first.
	// Returns nil, nil if the campaign does not exist.
	GetCampaign(ctx context.Context, url string) (*model.Campaign, error)

	// SaveCampaigns inserts new campaigns with their donations. For existing
	// campaigns it stores the cursor when it changed and inserts donations whose
	// IDs are not yet stored, even when the cursor did not move.
	SaveCampaigns(ctx context.Context, campaigns []model.Campaign) error

	// GetRecentDonations returns up to limit donations of a campaign, newest first.
	GetRecentDonations(ctx context.Context, campaignURL string, limit int) ([]model.Donation, error)

	// GetDonationIDsBetween returns the IDs of stored donations created within [start, end].
	GetDonationIDsBetween(ctx context.Context, campaignURL string, start, end time.Time) (map[string]struct{}, error)

	// DeleteDonationsByIDs removes the given donations and returns how many rows were deleted.
	DeleteDonationsByIDs(ctx context.Context, campaignURL string, ids []string) (int64, error)

	// ListCampaigns returns every campaign with aggregate donation stats.
	ListCampaigns(ctx context.Context) ([]model.CampaignSummary, error)

	// ListDonations returns donations matching filter, newest first.
	ListDonations(ctx context.Context, filter model.DonationFilter) ([]model.Donation, error)
}
