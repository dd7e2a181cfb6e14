// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

const defaultConcurrency = 5

// RefreshSummary describes one completed refresh run.
type RefreshSummary struct {
	RunID        string        `json:"run_id"`
	Accounts     int           `json:"accounts"`
	Campaigns    int           `json:"campaigns"`
	NewDonations int           `json:"new_donations"`
	Failed       int           `json:"failed"`
	Duration     time.Duration `json:"duration"`
}

// CampaignService discovers campaigns from account profiles, fetches their new
// donations through the matching CampaignSource on a bounded worker pool,
// reconciles deletions, and persists the merged result.
type CampaignService struct {
	sources     []driven.CampaignSource
	campaigns   driven.CampaignStore
	accounts    driven.AccountStore
	reconciler  *Reconciler
	metrics     *Metrics
	concurrency int
	enabled     bool

	// writeMu serializes every store write made by a refresh.
	writeMu sync.Mutex
}

// NewCampaignService creates a CampaignService. When enabled is false,
// refreshes are no-ops. metrics may be nil.
func NewCampaignService(
	sources []driven.CampaignSource,
	campaigns driven.CampaignStore,
	accounts driven.AccountStore,
	metrics *Metrics,
	concurrency int,
	enabled bool,
) *CampaignService {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	s := &CampaignService{
		sources:     sources,
		campaigns:   campaigns,
		accounts:    accounts,
		metrics:     metrics,
		concurrency: concurrency,
		enabled:     enabled,
	}
	s.reconciler = &Reconciler{
		store:   campaigns,
		window:  reconcileWindow,
		metrics: metrics,
		writeMu: &s.writeMu,
	}
	return s
}

// fetchOutcome reports what a single campaign task did.
type fetchOutcome struct {
	fetched int
	failed  bool
}

// RefreshCampaigns fetches new donations for the campaigns linked from
// accounts and returns the merged campaigns, one per distinct campaign URL.
// A campaign whose fetch fails is returned in its previous state.
func (s *CampaignService) RefreshCampaigns(ctx context.Context, accounts []model.Account) ([]model.Campaign, error) {
	campaigns, _, err := s.refreshCampaigns(ctx, accounts)
	return campaigns, err
}

func (s *CampaignService) refreshCampaigns(ctx context.Context, accounts []model.Account) ([]model.Campaign, []fetchOutcome, error) {
	if !s.enabled {
		slog.Debug("campaign processing is disabled")
		return nil, nil, nil
	}

	start := time.Now()

	var pending []model.Campaign
	seen := make(map[string]bool)
	for _, account := range accounts {
		if account.CampaignURL == "" || seen[account.CampaignURL] {
			continue
		}
		seen[account.CampaignURL] = true

		stored, err := s.campaigns.GetCampaign(ctx, account.CampaignURL)
		if err != nil {
			return nil, nil, fmt.Errorf("loading campaign %s: %w", account.CampaignURL, err)
		}

		if stored == nil {
			pending = append(pending, model.Campaign{
				URL:        account.CampaignURL,
				AccountURL: account.URL,
				Platform:   model.PlatformForURL(account.CampaignURL),
			})
			continue
		}

		stored.AccountURL = account.URL
		pending = append(pending, *stored)
	}

	slog.Info("refreshing campaigns", "campaigns", len(pending), "concurrency", s.concurrency)

	results := make([]model.Campaign, len(pending))
	outcomes := make([]fetchOutcome, len(pending))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, campaign := range pending {
		g.Go(func() error {
			results[i], outcomes[i] = s.refreshCampaign(ctx, campaign)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("refreshed campaigns",
		"campaigns", len(pending),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return results, outcomes, nil
}

// refreshCampaign runs one campaign task. It never fails: errors are logged and
// the campaign is returned unchanged.
func (s *CampaignService) refreshCampaign(ctx context.Context, campaign model.Campaign) (result model.Campaign, outcome fetchOutcome) {
	result = campaign

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic refreshing campaign",
				"campaign_url", campaign.URL,
				"account_url", campaign.AccountURL,
				"panic", r,
			)
			result = campaign
			outcome = fetchOutcome{failed: true}
		}
	}()

	source := s.sourceFor(campaign.URL)
	if source == nil {
		slog.Warn("no campaign source for url", "campaign_url", campaign.URL, "account_url", campaign.AccountURL)
		return campaign, fetchOutcome{failed: true}
	}

	stored := campaign.Donations

	if prober, ok := source.(driven.DonationProber); ok && len(stored) > 0 {
		deleted, err := s.reconciler.Reconcile(ctx, campaign, prober)
		if err != nil {
			slog.Warn("reconciliation failed",
				"campaign_url", campaign.URL,
				"account_url", campaign.AccountURL,
				"error", err,
			)
		}
		stored = withoutDonations(stored, deleted)
	}

	fetched, err := source.FetchDonations(ctx, campaign)
	if err != nil {
		kind := model.KindOf(err)
		s.metrics.fetchFailed(source.Platform(), kind)
		slog.Error("error fetching donations",
			"campaign_url", campaign.URL,
			"account_url", campaign.AccountURL,
			"platform", source.Platform(),
			"kind", kind.String(),
			"error", err,
		)
		result.Donations = stored
		return result, fetchOutcome{failed: true}
	}

	s.metrics.addFetched(source.Platform(), len(fetched.Donations))
	if len(fetched.Donations) > 0 {
		slog.Info("fetched new donations",
			"campaign_url", campaign.URL,
			"account_url", campaign.AccountURL,
			"count", len(fetched.Donations),
		)
	}

	outcome.fetched = len(fetched.Donations)
	fetched.Platform = source.Platform()
	fetched.Donations = mergeDonations(stored, fetched.Donations)

	return fetched, outcome
}

// SaveCampaigns persists campaigns through the store behind the write lock.
func (s *CampaignService) SaveCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.campaigns.SaveCampaigns(ctx, campaigns); err != nil {
		return fmt.Errorf("saving campaigns: %w", err)
	}
	return nil
}

// Refresh runs a full cycle over every enabled stored account: resolve each
// profile's campaign link, record it on the account, fetch and merge
// donations, and save the results.
func (s *CampaignService) Refresh(ctx context.Context) (RefreshSummary, error) {
	summary := RefreshSummary{RunID: uuid.NewString()}
	start := time.Now()

	all, err := s.accounts.ListAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(all))
	for _, account := range all {
		if account.Disabled {
			continue
		}
		s.linkCampaign(ctx, &account)
		accounts = append(accounts, account)
	}
	summary.Accounts = len(accounts)

	campaigns, outcomes, err := s.refreshCampaigns(ctx, accounts)
	if err != nil {
		return summary, err
	}
	summary.Campaigns = len(campaigns)
	for _, o := range outcomes {
		summary.NewDonations += o.fetched
		if o.failed {
			summary.Failed++
		}
	}

	if err := s.SaveCampaigns(ctx, campaigns); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(start).Round(time.Millisecond)
	s.metrics.observeRefresh(summary.Duration)

	slog.Info("refresh complete",
		"run_id", summary.RunID,
		"accounts", summary.Accounts,
		"campaigns", summary.Campaigns,
		"new_donations", summary.NewDonations,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)

	return summary, nil
}

// linkCampaign resolves the account's campaign URL from its profile and stores
// it when it changed. An unresolvable profile keeps the previous link.
func (s *CampaignService) linkCampaign(ctx context.Context, account *model.Account) {
	url := s.CampaignURL(ctx, *account)
	if url == "" || url == account.CampaignURL {
		return
	}

	s.writeMu.Lock()
	err := s.accounts.SetCampaignURL(ctx, account.URL, url)
	s.writeMu.Unlock()
	if err != nil {
		slog.Error("failed to link campaign", "account_url", account.URL, "campaign_url", url, "error", err)
		return
	}

	slog.Info("linked campaign", "account_url", account.URL, "campaign_url", url)
	account.CampaignURL = url
}
