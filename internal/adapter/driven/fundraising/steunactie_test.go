package fundraising_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/campaignwatch/internal/adapter/driven/fundraising"
	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

const steunactieCampaignURL = "https://steunactie.nl/fundraiser/help-de-buren"

var steunactieNow = time.Date(2025, 9, 20, 15, 30, 0, 0, time.UTC)

type steunactieEntry struct {
	donor  string
	amount string
	date   string
}

func steunactieHTML(entries ...steunactieEntry) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="list-group">`)
	for _, e := range entries {
		fmt.Fprintf(&b, `<li class="list-group-item py-3">
  <div class="d-flex justify-content-between"><span>%s</span><strong class="amount">%s</strong></div>
  <small class="date text-muted">%s</small>
</li>`, e.donor, e.amount, e.date)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

// newSteunactieServer redirects the fundraiser page to its numeric id and
// serves the given donation pages, 1-indexed. Missing pages are empty lists.
func newSteunactieServer(t *testing.T, pages map[int]string, pageHits *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/fundraiser/help-de-buren":
			w.Header().Set("Location", "/fundraiser/help-de-buren/-5678")
			w.WriteHeader(http.StatusFound)
		case r.Method == http.MethodGet && r.URL.Path == "/donations/all/5678/0/latest/1/":
			page := r.URL.Query().Get("page")
			if pageHits != nil {
				mu.Lock()
				*pageHits = append(*pageHits, page)
				mu.Unlock()
			}
			var n int
			_, _ = fmt.Sscanf(page, "%d", &n)
			body, ok := pages[n]
			if !ok {
				body = steunactieHTML()
			}
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newSteunactie(server *httptest.Server, conv *fakeConverter) *fundraising.Steunactie {
	if conv == nil {
		conv = &fakeConverter{rate: decimal.RequireFromString("1.1")}
	}
	return fundraising.NewSteunactieWithHTTPClient(server.Client(), server.URL, conv, (&sleepRecorder{}).sleep,
		func() time.Time { return steunactieNow })
}

func TestSteunactie_Canonicalize(t *testing.T) {
	s := fundraising.NewSteunactie(fundraising.Options{Timeout: time.Second}, &fakeConverter{})

	got, err := s.Canonicalize(context.Background(), "https://www.steunactie.nl/fundraiser/help-de-buren?ref=share")
	require.NoError(t, err)
	assert.Equal(t, steunactieCampaignURL, got)

	_, err = s.Canonicalize(context.Background(), "https://steunactie.nl/over-ons")
	assert.ErrorIs(t, err, model.ErrNotSupported)
}

func TestSteunactie_FetchDonations(t *testing.T) {
	var hits []string
	server := newSteunactieServer(t, map[int]string{
		1: steunactieHTML(
			steunactieEntry{donor: "Jan", amount: "€ 25,00", date: "2 uur geleden"},
			steunactieEntry{donor: "Anoniem", amount: "€ 1.234,56", date: "op 18-09-2025"},
			steunactieEntry{donor: "Piet", amount: "€ 5,00", date: "gisteren"},
		),
	}, &hits)
	defer server.Close()

	conv := &fakeConverter{rate: decimal.RequireFromString("1.1")}
	s := newSteunactie(server, conv)

	got, err := s.FetchDonations(context.Background(), model.Campaign{URL: steunactieCampaignURL})
	require.NoError(t, err)

	require.Len(t, got.Donations, 2, "the unparseable date is skipped")
	assert.Equal(t, []string{"1", "2"}, hits)
	assert.Equal(t, "2025092013", got.DonationsCursor)

	jan := got.Donations[0]
	assert.Equal(t, "Jan", jan.DonorName())
	assert.Equal(t, "27.5", jan.Amount.String())
	assert.True(t, time.Date(2025, 9, 20, 13, 0, 0, 0, time.UTC).Equal(jan.CreatedAt))
	assert.True(t, strings.HasPrefix(jan.ID, "2025092013"))
	assert.Len(t, jan.ID, 14)

	anon := got.Donations[1]
	assert.Nil(t, anon.Donor)
	assert.Equal(t, "1358.02", anon.Amount.String())
	assert.True(t, strings.HasPrefix(anon.ID, "2025091800"))

	assert.Equal(t, []string{"EUR->USD@2025-09-20", "EUR->USD@2025-09-18"}, conv.calls)
}

func TestSteunactie_FetchDonations_StableIDs(t *testing.T) {
	page := steunactieHTML(
		steunactieEntry{donor: "Anoniem", amount: "€ 10,00", date: "1 uur geleden"},
		steunactieEntry{donor: "Anoniem", amount: "€ 10,00", date: "1 uur geleden"},
		steunactieEntry{donor: "Marie", amount: "€ 10,00", date: "1 uur geleden"},
	)
	server := newSteunactieServer(t, map[int]string{1: page}, nil)
	defer server.Close()

	s := newSteunactie(server, nil)

	first, err := s.FetchDonations(context.Background(), model.Campaign{URL: steunactieCampaignURL})
	require.NoError(t, err)
	second, err := s.FetchDonations(context.Background(), model.Campaign{URL: steunactieCampaignURL})
	require.NoError(t, err)

	require.Len(t, first.Donations, 3)
	require.Len(t, second.Donations, 3)

	ids := make(map[string]bool)
	for i := range first.Donations {
		assert.Equal(t, first.Donations[i].ID, second.Donations[i].ID)
		ids[first.Donations[i].ID] = true
	}
	assert.Len(t, ids, 3, "identical donations in the same hour get distinct ids")
}

func TestSteunactie_FetchDonations_StopsAtStoredCursor(t *testing.T) {
	var hits []string
	server := newSteunactieServer(t, map[int]string{
		1: steunactieHTML(
			steunactieEntry{donor: "Jan", amount: "€ 25,00", date: "30 minuten geleden"},
			steunactieEntry{donor: "Kees", amount: "€ 15,00", date: "3 uur geleden"},
		),
		2: steunactieHTML(
			steunactieEntry{donor: "Els", amount: "€ 50,00", date: "1 week geleden"},
		),
	}, &hits)
	defer server.Close()

	s := newSteunactie(server, nil)

	got, err := s.FetchDonations(context.Background(), model.Campaign{
		URL:             steunactieCampaignURL,
		DonationsCursor: "2025092013",
	})
	require.NoError(t, err)

	require.Len(t, got.Donations, 1)
	assert.Equal(t, "Jan", got.Donations[0].DonorName())
	assert.Equal(t, "2025092015", got.DonationsCursor)
	assert.Equal(t, []string{"1"}, hits, "older donations end the walk")
}

func TestSteunactie_FetchDonations_CursorNeverMovesBackward(t *testing.T) {
	server := newSteunactieServer(t, map[int]string{
		1: steunactieHTML(steunactieEntry{donor: "Jan", amount: "€ 25,00", date: "2 uur geleden"}),
	}, nil)
	defer server.Close()

	s := newSteunactie(server, nil)

	got, err := s.FetchDonations(context.Background(), model.Campaign{
		URL:             steunactieCampaignURL,
		DonationsCursor: "2025092014",
	})
	require.NoError(t, err)
	assert.Empty(t, got.Donations)
	assert.Equal(t, "2025092014", got.DonationsCursor)
}

func TestSteunactie_FetchDonations_MissingRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newSteunactie(server, nil)

	got, err := s.FetchDonations(context.Background(), model.Campaign{URL: steunactieCampaignURL, DonationsCursor: "2025010100"})
	require.NoError(t, err)
	assert.Empty(t, got.Donations)
	assert.Equal(t, "2025010100", got.DonationsCursor)
}
