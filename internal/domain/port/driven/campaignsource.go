package driven

import (
	"context"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// CampaignSource defines the driven port for a fundraising platform adapter.
// Implementations are stateless besides configuration and never persist data.
type CampaignSource interface {
	// Platform identifies the site this source handles.
	Platform() model.Platform

	// Accepts reports whether rawURL looks like a campaign on this platform.
	Accepts(rawURL string) bool

	// Canonicalize strips tracking parameters and resolves the platform's
	// canonical campaign URL, following link shorteners if needed. It returns a
	// *model.FetchError of kind KindNotSupported if the URL is not a campaign.
	Canonicalize(ctx context.Context, rawURL string) (string, error)

	// FetchDonations resumes from campaign.DonationsCursor and returns the
	// campaign with Donations set to the donations observed by this call and the
	// cursor advanced. Previously stored donations are merged by the caller.
	FetchDonations(ctx context.Context, campaign model.Campaign) (model.Campaign, error)
}

// DonationProber is an optional capability of a CampaignSource that can list
// upstream donation IDs inside a time window, used to reconcile deletions.
type DonationProber interface {
	// ConfirmedDonationIDs pages forward from anchorID and returns the IDs of
	// upstream donations whose timestamp falls inside window and which are either
	// confirmed or still inside the confirmation grace period.
	ConfirmedDonationIDs(ctx context.Context, campaign model.Campaign, anchorID string, window model.TimeWindow) (map[string]struct{}, error)
}
