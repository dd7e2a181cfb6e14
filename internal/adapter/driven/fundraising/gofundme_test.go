package fundraising_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/campaignwatch/internal/adapter/driven/fundraising"
	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

const gfmCampaignURL = "https://www.gofundme.com/f/help-the-family"

var gfmBase = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

// gfmFeed simulates a fundraiser with donations 1..n, where n is the newest.
// Cursors are "cur-<n>". Backward pages are newest first; forward pages are
// oldest first.
type gfmFeed struct {
	total int
}

func (f gfmFeed) edge(n int) map[string]any {
	return map[string]any{
		"cursor": fmt.Sprintf("cur-%d", n),
		"node": map[string]any{
			"donationId":  fmt.Sprintf("%d", n),
			"name":        fmt.Sprintf("Donor %d", n),
			"isAnonymous": n%5 == 0,
			"amount":      map[string]any{"amount": "10.00", "currencyCode": "USD"},
			"createdAt":   gfmBase.Add(time.Duration(n) * time.Hour).Format(time.RFC3339),
		},
	}
}

func parseCursor(v any) int {
	s, _ := v.(string)
	var n int
	_, _ = fmt.Sscanf(s, "cur-%d", &n)
	return n
}

func (f gfmFeed) page(vars map[string]any) map[string]any {
	var edges []map[string]any
	info := map[string]any{"hasNextPage": false, "hasPreviousPage": false, "startCursor": nil, "endCursor": nil}

	if last, ok := vars["last"].(float64); ok {
		upper := f.total
		if vars["before"] != nil {
			upper = parseCursor(vars["before"]) - 1
		}
		lower := upper - int(last) + 1
		if lower < 1 {
			lower = 1
		}
		for n := upper; n >= lower; n-- {
			edges = append(edges, f.edge(n))
		}
		if len(edges) > 0 {
			info["startCursor"] = fmt.Sprintf("cur-%d", upper)
			info["endCursor"] = fmt.Sprintf("cur-%d", lower)
			info["hasPreviousPage"] = lower > 1
		}
	} else {
		first := int(vars["first"].(float64))
		lower := parseCursor(vars["after"]) + 1
		upper := lower + first - 1
		if upper > f.total {
			upper = f.total
		}
		for n := lower; n <= upper; n++ {
			edges = append(edges, f.edge(n))
		}
		if len(edges) > 0 {
			info["startCursor"] = fmt.Sprintf("cur-%d", lower)
			info["endCursor"] = fmt.Sprintf("cur-%d", upper)
			info["hasNextPage"] = upper < f.total
		}
	}

	return map[string]any{
		"data": map[string]any{
			"fundraiser": map[string]any{
				"donations": map[string]any{"edges": edges, "pageInfo": info},
			},
		},
	}
}

func newGFMServer(t *testing.T, feed gfmFeed, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			*requests++
		}
		vars := graphqlVars(t, r)
		assert.Equal(t, "help-the-family", vars["slug"])
		writeJSON(w, feed.page(vars))
	}))
}

func newGoFundMe(server *httptest.Server, sleeper *sleepRecorder) *fundraising.GoFundMe {
	if sleeper == nil {
		sleeper = &sleepRecorder{}
	}
	return fundraising.NewGoFundMeWithHTTPClient(server.Client(), server.URL, &fakeConverter{rate: decimal.NewFromInt(1)}, sleeper.sleep)
}

func TestGoFundMe_FirstFetchWalksBackward(t *testing.T) {
	requests := 0
	server := newGFMServer(t, gfmFeed{total: 25}, &requests)
	defer server.Close()

	g := newGoFundMe(server, nil)

	got, err := g.FetchDonations(context.Background(), model.Campaign{URL: gfmCampaignURL})
	require.NoError(t, err)

	assert.Len(t, got.Donations, 25)
	assert.Equal(t, "cur-25", got.DonationsCursor, "cursor is the start cursor of the newest page")
	assert.Equal(t, 2, requests)

	ids := make(map[string]bool)
	for _, d := range got.Donations {
		ids[d.ID] = true
	}
	assert.Len(t, ids, 25, "no duplicates across pages")
	assert.Nil(t, got.Donations[0].Donor, "donation 25 is anonymous")
	assert.Equal(t, "Donor 24", got.Donations[1].DonorName())
}

func TestGoFundMe_LaterFetchWalksForward(t *testing.T) {
	server := newGFMServer(t, gfmFeed{total: 27}, nil)
	defer server.Close()

	g := newGoFundMe(server, nil)

	got, err := g.FetchDonations(context.Background(), model.Campaign{URL: gfmCampaignURL, DonationsCursor: "cur-25"})
	require.NoError(t, err)

	require.Len(t, got.Donations, 2)
	assert.Equal(t, "26", got.Donations[0].ID)
	assert.Equal(t, "27", got.Donations[1].ID)
	assert.Equal(t, "cur-27", got.DonationsCursor)
}

func TestGoFundMe_NoNewDonationsKeepsCursor(t *testing.T) {
	server := newGFMServer(t, gfmFeed{total: 25}, nil)
	defer server.Close()

	g := newGoFundMe(server, nil)

	got, err := g.FetchDonations(context.Background(), model.Campaign{URL: gfmCampaignURL, DonationsCursor: "cur-25"})
	require.NoError(t, err)
	assert.Empty(t, got.Donations)
	assert.Equal(t, "cur-25", got.DonationsCursor)
}

func TestGoFundMe_ForbiddenStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	g := newGoFundMe(server, nil)

	_, err := g.FetchDonations(context.Background(), model.Campaign{URL: gfmCampaignURL})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
}

func TestGoFundMe_ForbiddenGraphQLCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"data":   nil,
			"errors": []any{map[string]any{"message": "not allowed", "extensions": map[string]any{"code": "FORBIDDEN"}}},
		})
	}))
	defer server.Close()

	g := newGoFundMe(server, nil)

	_, err := g.FetchDonations(context.Background(), model.Campaign{URL: gfmCampaignURL})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
}

func TestGoFundMe_RateLimitBounded(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sleeper := &sleepRecorder{}
	g := newGoFundMe(server, sleeper)

	_, err := g.FetchDonations(context.Background(), model.Campaign{URL: gfmCampaignURL})
	assert.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, 5, requests)
	assert.Len(t, sleeper.delays, 4)
	assert.Equal(t, 11*time.Second, sleeper.delays[0], "default Retry-After plus one second")
}

func TestGoFundMe_Canonicalize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/abc123", r.URL.Path)
		w.Header().Set("Location", "https://www.gofundme.com/f/help-the-family?attribution_id=sl:1")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer server.Close()

	g := fundraising.NewGoFundMeWithHTTPClient(rewritingClient(t, server), server.URL, &fakeConverter{}, nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "canonical", in: "https://gofundme.com/f/help-the-family?utm_medium=copy", want: gfmCampaignURL},
		{name: "www", in: "https://www.gofundme.com/f/help-the-family", want: gfmCampaignURL},
		{name: "short link", in: "https://gofund.me/abc123", want: gfmCampaignURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, g.Accepts(tt.in))
			got, err := g.Canonicalize(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := g.Canonicalize(context.Background(), "https://example.org/f/x")
	assert.ErrorIs(t, err, model.ErrNotSupported)
}
