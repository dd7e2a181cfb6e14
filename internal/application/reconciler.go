package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// reconcileWindow is how many of the most recent stored donations are checked
// against the platform on each cycle.
const reconcileWindow = 20

// Reconciler removes stored donations that the platform no longer reports as
// confirmed, such as refunds or abandoned payments.
type Reconciler struct {
	store   driven.CampaignStore
	window  int
	metrics *Metrics
	// writeMu serializes deletes with other store writes.
	writeMu *sync.Mutex
}

// NewReconciler creates a Reconciler over store. metrics may be nil.
func NewReconciler(store driven.CampaignStore, metrics *Metrics) *Reconciler {
	return &Reconciler{store: store, window: reconcileWindow, metrics: metrics, writeMu: &sync.Mutex{}}
}

// Reconcile compares the most recent stored donations of campaign with what
// prober reports upstream over the same time span and deletes the stored ones
// that are missing upstream. It returns the deleted IDs. A prober failure aborts
// without deleting anything.
//
// The oldest donation in the span anchors the upstream walk. Upstream paging
// starts after it, so neither the anchor nor any donation created at the same
// instant is a deletion candidate.
func (r *Reconciler) Reconcile(ctx context.Context, campaign model.Campaign, prober driven.DonationProber) ([]string, error) {
	recent, err := r.store.GetRecentDonations(ctx, campaign.URL, r.window)
	if err != nil {
		return nil, fmt.Errorf("loading recent donations: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}

	anchor := recent[0]
	window := model.TimeWindow{Start: recent[0].CreatedAt, End: recent[0].CreatedAt}
	for _, d := range recent[1:] {
		if d.CreatedAt.Before(anchor.CreatedAt) {
			anchor = d
		}
		if d.CreatedAt.Before(window.Start) {
			window.Start = d.CreatedAt
		}
		if d.CreatedAt.After(window.End) {
			window.End = d.CreatedAt
		}
	}

	slog.Debug("reconciling donations",
		"campaign_url", campaign.URL,
		"anchor_id", anchor.ID,
		"start", window.Start,
		"end", window.End,
	)

	upstream, err := prober.ConfirmedDonationIDs(ctx, campaign, anchor.ID, window)
	if err != nil {
		return nil, fmt.Errorf("probing upstream donations: %w", err)
	}

	local, err := r.store.GetDonationIDsBetween(ctx, campaign.URL, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("loading stored donation ids: %w", err)
	}

	// Upstream paging starts strictly after the anchor, so donations sharing
	// its timestamp are never reported and cannot be judged.
	tied, err := r.store.GetDonationIDsBetween(ctx, campaign.URL, anchor.CreatedAt, anchor.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("loading donation ids at anchor time: %w", err)
	}

	var missing []string
	for id := range local {
		if _, ok := tied[id]; ok || id == anchor.ID {
			continue
		}
		if _, ok := upstream[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	sort.Strings(missing)

	slog.Info("removing donations missing upstream",
		"campaign_url", campaign.URL,
		"account_url", campaign.AccountURL,
		"ids", missing,
	)

	r.writeMu.Lock()
	deleted, err := r.store.DeleteDonationsByIDs(ctx, campaign.URL, missing)
	r.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("deleting missing donations: %w", err)
	}
	r.metrics.addDeleted(campaign.Platform, deleted)

	return missing, nil
}
