package application

import (
	"sort"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// mergeDonations returns the union of stored and fetched keyed by donation ID.
// On an ID conflict the donation with the later CreatedAt wins; ties go to the
// fetched one. The result is sorted newest first, then by ID for stability.
func mergeDonations(stored, fetched []model.Donation) []model.Donation {
	byID := make(map[string]model.Donation, len(stored)+len(fetched))
	for _, d := range stored {
		byID[d.ID] = d
	}
	for _, d := range fetched {
		if prev, ok := byID[d.ID]; ok && prev.CreatedAt.After(d.CreatedAt) {
			continue
		}
		byID[d.ID] = d
	}

	merged := make([]model.Donation, 0, len(byID))
	for _, d := range byID {
		merged = append(merged, d)
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})

	return merged
}

// withoutDonations returns donations minus the given IDs.
func withoutDonations(donations []model.Donation, ids []string) []model.Donation {
	if len(ids) == 0 {
		return donations
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := make([]model.Donation, 0, len(donations))
	for _, d := range donations {
		if _, ok := drop[d.ID]; !ok {
			kept = append(kept, d)
		}
	}
	return kept
}
