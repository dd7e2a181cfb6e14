package fundraising

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

const (
	chuffedProbePageSize = 50
	chuffedStatusOK      = "Confirmed"
	// Unconfirmed donations younger than this are still counted as present.
	chuffedUnconfirmedGrace = time.Hour
)

// ConfirmedDonationIDs pages forward from anchorID and collects the IDs of
// donations inside window that are confirmed or still within the grace
// period. Paging stops at the first donation past window.End.
//
// The API has no backward paging, so anchorID is passed as the `after`
// cursor. This relies on Chuffed accepting a donation id there.
func (c *Chuffed) ConfirmedDonationIDs(ctx context.Context, campaign model.Campaign, anchorID string, window model.TimeWindow) (map[string]struct{}, error) {
	campaignID, err := c.campaignID(ctx, campaign.URL)
	if err != nil {
		return nil, err
	}

	slog.Debug("probing chuffed donations from anchor id",
		"campaign_url", campaign.URL, "anchor_id", anchorID,
		"window_start", window.Start, "window_end", window.End)

	ids := make(map[string]struct{})
	cursor := anchorID
	now := c.now().UTC()

	for {
		after := cursor
		data, err := c.queryPage(ctx, campaignID, chuffedProbePageSize, &after)
		if err != nil {
			return nil, classify(model.PlatformChuffed, campaign.URL, err)
		}
		if data.Campaign == nil || len(data.Campaign.Donations.Edges) == 0 {
			return ids, nil
		}

		page := data.Campaign.Donations
		for _, edge := range page.Edges {
			node := edge.Node
			if node.ID == "" || node.CreatedAt == "" {
				continue
			}

			createdAt, err := time.Parse(time.RFC3339, node.CreatedAt)
			if err != nil {
				continue
			}

			if createdAt.After(window.End) {
				return ids, nil
			}
			if window.Contains(createdAt) &&
				(node.Status == chuffedStatusOK || now.Sub(createdAt) < chuffedUnconfirmedGrace) {
				ids[node.ID] = struct{}{}
			}
		}

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == nil {
			return ids, nil
		}
		cursor = *page.PageInfo.EndCursor
	}
}
