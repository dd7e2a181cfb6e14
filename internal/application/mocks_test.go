package application_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// --- Campaign store ---

type mockCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]model.Campaign
	saves     [][]model.Campaign
	deletes   [][]string
	getErr    error
}

func newMockCampaignStore(campaigns ...model.Campaign) *mockCampaignStore {
	m := &mockCampaignStore{campaigns: make(map[string]model.Campaign)}
	for _, c := range campaigns {
		m.campaigns[c.URL] = c
	}
	return m
}

func (m *mockCampaignStore) GetCampaign(_ context.Context, url string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.campaigns[url]
	if !ok {
		return nil, nil
	}
	c.Donations = append([]model.Donation(nil), c.Donations...)
	return &c, nil
}

func (m *mockCampaignStore) SaveCampaigns(_ context.Context, campaigns []model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, campaigns)
	for _, c := range campaigns {
		m.campaigns[c.URL] = c
	}
	return nil
}

func (m *mockCampaignStore) sortedDonations(url string) []model.Donation {
	donations := append([]model.Donation(nil), m.campaigns[url].Donations...)
	sort.Slice(donations, func(i, j int) bool { return donations[i].CreatedAt.After(donations[j].CreatedAt) })
	return donations
}

func (m *mockCampaignStore) GetRecentDonations(_ context.Context, campaignURL string, limit int) ([]model.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	donations := m.sortedDonations(campaignURL)
	if len(donations) > limit {
		donations = donations[:limit]
	}
	return donations, nil
}

func (m *mockCampaignStore) GetDonationIDsBetween(_ context.Context, campaignURL string, start, end time.Time) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := model.TimeWindow{Start: start, End: end}
	ids := make(map[string]struct{})
	for _, d := range m.campaigns[campaignURL].Donations {
		if window.Contains(d.CreatedAt) {
			ids[d.ID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *mockCampaignStore) DeleteDonationsByIDs(_ context.Context, campaignURL string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ids)

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	c := m.campaigns[campaignURL]
	var kept []model.Donation
	var n int64
	for _, d := range c.Donations {
		if drop[d.ID] {
			n++
			continue
		}
		kept = append(kept, d)
	}
	c.Donations = kept
	m.campaigns[campaignURL] = c
	return n, nil
}

func (m *mockCampaignStore) ListCampaigns(_ context.Context) ([]model.CampaignSummary, error) {
	return nil, nil
}

func (m *mockCampaignStore) ListDonations(_ context.Context, _ model.DonationFilter) ([]model.Donation, error) {
	return nil, nil
}

// --- Account store ---

type mockAccountStore struct {
	mu       sync.Mutex
	accounts []model.Account
	links    map[string]string
}

func (m *mockAccountStore) Upsert(_ context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = append(m.accounts, account)
	return nil
}

func (m *mockAccountStore) Remove(_ context.Context, _ string) error { return nil }

func (m *mockAccountStore) GetByURL(_ context.Context, _ string) (*model.Account, error) {
	return nil, nil
}

func (m *mockAccountStore) ListAll(_ context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Account(nil), m.accounts...), nil
}

func (m *mockAccountStore) SetCampaignURL(_ context.Context, accountURL, campaignURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[accountURL] = campaignURL
	return nil
}

// --- Campaign source ---

// mockSource accepts URLs with its prefix and answers FetchDonations from fetch.
type mockSource struct {
	platform model.Platform
	prefix   string
	fetch    func(ctx context.Context, c model.Campaign) (model.Campaign, error)
}

func (m *mockSource) Platform() model.Platform { return m.platform }

func (m *mockSource) Accepts(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), m.prefix)
}

func (m *mockSource) Canonicalize(_ context.Context, rawURL string) (string, error) {
	if !m.Accepts(rawURL) {
		return "", model.NewFetchError(model.KindNotSupported, m.platform, rawURL, nil)
	}
	return strings.TrimSuffix(strings.ToLower(rawURL), "/"), nil
}

func (m *mockSource) FetchDonations(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	return m.fetch(ctx, c)
}

// mockProbingSource adds the DonationProber capability.
type mockProbingSource struct {
	mockSource
	confirmed map[string]struct{}
	probeErr  error
	anchors   []string
}

func (m *mockProbingSource) ConfirmedDonationIDs(_ context.Context, _ model.Campaign, anchorID string, _ model.TimeWindow) (map[string]struct{}, error) {
	m.anchors = append(m.anchors, anchorID)
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	return m.confirmed, nil
}

var (
	_ driven.CampaignSource = (*mockSource)(nil)
	_ driven.DonationProber = (*mockProbingSource)(nil)
)

// --- Exchange rates ---

type mockRateProvider struct {
	name  string
	rates map[string]model.RateTable
	err   error
	mu    sync.Mutex
	calls []string
}

func (m *mockRateProvider) Name() string { return m.name }

func (m *mockRateProvider) FetchRates(_ context.Context, date string) (model.RateTable, error) {
	m.mu.Lock()
	m.calls = append(m.calls, date)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rates, ok := m.rates[date]
	if !ok {
		return nil, errors.New("no rates for " + date)
	}
	return rates, nil
}

type memRateStore struct {
	mu     sync.Mutex
	tables map[string]model.RateTable
	saves  []string
}

func (m *memRateStore) Get(_ context.Context, date string) (model.RateTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[date], nil
}

func (m *memRateStore) Save(_ context.Context, date string, rates model.RateTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables == nil {
		m.tables = make(map[string]model.RateTable)
	}
	m.tables[date] = rates
	m.saves = append(m.saves, date)
	return nil
}

// --- Helpers ---

func donation(campaignURL, id string, amount string, createdAt time.Time) model.Donation {
	return model.Donation{
		ID:          id,
		CampaignURL: campaignURL,
		Amount:      decimal.RequireFromString(amount),
		CreatedAt:   createdAt,
	}
}

func rates(pairs ...string) model.RateTable {
	table := make(model.RateTable, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		table[pairs[i]] = decimal.RequireFromString(pairs[i+1])
	}
	return table
}

func donationIDs(donations []model.Donation) []string {
	ids := make([]string, len(donations))
	for i, d := range donations {
		ids[i] = d.ID
	}
	return ids
}
