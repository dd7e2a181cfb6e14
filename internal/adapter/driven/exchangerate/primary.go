// Package exchangerate implements the RateProvider port against public
// exchange-rate APIs. All returned tables are relative to USD.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateProvider = (*Primary)(nil)

const (
	primaryLatestURL  = "https://api.exchangerate-api.com/v4/latest/" + model.BaseCurrency
	primaryHistoryURL = "https://v6.exchangerate-api.com/v6"
)

// Primary fetches rates from exchangerate-api.com. Today's rates come from the
// keyless v4 endpoint; historical dates need an API key on the v6 endpoint.
type Primary struct {
	httpClient *http.Client
	latestURL  string
	historyURL string
	apiKey     string
	userAgent  string
	now        func() time.Time
}

// NewPrimary creates a Primary provider whose responses are cached in memory
// by httpcache, honoring the API's Cache-Control headers.
func NewPrimary(apiKey, userAgent string, timeout time.Duration) *Primary {
	client := httpcache.NewMemoryCacheTransport().Client()
	client.Timeout = timeout

	return &Primary{
		httpClient: client,
		latestURL:  primaryLatestURL,
		historyURL: primaryHistoryURL,
		apiKey:     apiKey,
		userAgent:  userAgent,
		now:        time.Now,
	}
}

// NewPrimaryWithHTTPClient creates a Primary with a custom http.Client and
// endpoints. This constructor is intended for testing.
func NewPrimaryWithHTTPClient(httpClient *http.Client, latestURL, historyURL, apiKey string, now func() time.Time) *Primary {
	return &Primary{
		httpClient: httpClient,
		latestURL:  latestURL,
		historyURL: strings.TrimSuffix(historyURL, "/"),
		apiKey:     apiKey,
		userAgent:  "campaignwatch-test",
		now:        now,
	}
}

// Name identifies the provider in logs.
func (p *Primary) Name() string { return "exchangerate-api" }

// primaryResponse covers both API generations: v4 returns "rates", v6 history
// returns "conversion_rates".
type primaryResponse struct {
	Result          string          `json:"result"`
	ErrorType       string          `json:"error-type"`
	Rates           model.RateTable `json:"rates"`
	ConversionRates model.RateTable `json:"conversion_rates"`
}

// FetchRates returns the USD-based rate table for date (YYYY-MM-DD).
func (p *Primary) FetchRates(ctx context.Context, date string) (model.RateTable, error) {
	url := p.latestURL
	if date != model.DateKey(p.now()) {
		url = fmt.Sprintf("%s/%s/history/%s/%s", p.historyURL, p.apiKey, model.BaseCurrency, strings.ReplaceAll(date, "-", "/"))
	}

	slog.Debug("fetching exchange rates", "provider", p.Name(), "date", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", p.Name(), err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request for %s: %w", p.Name(), date, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body primaryResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		errorType := body.ErrorType
		if decodeErr != nil || errorType == "" {
			errorType = "unknown error"
		}
		return nil, fmt.Errorf("%s API error for %s: HTTP %d: %s", p.Name(), date, resp.StatusCode, errorType)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding %s response for %s: %w", p.Name(), date, decodeErr)
	}
	if body.Result == "error" {
		return nil, fmt.Errorf("%s API error for %s: %s", p.Name(), date, body.ErrorType)
	}

	rates := body.Rates
	if len(rates) == 0 {
		rates = body.ConversionRates
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%s returned no rates for %s", p.Name(), date)
	}

	return rates, nil
}
