package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateProvider = (*Backup)(nil)

const (
	backupBaseURL     = "https://data.fixer.io/api"
	backupRetryDelay  = 30 * time.Second
	backupMaxAttempts = 3
)

// errNoBackupKey is returned by FetchRates when the provider has no access key.
var errNoBackupKey = errors.New("no API key configured for backup service")

// Backup fetches rates from fixer.io. Fixer quotes against EUR on the free
// plan, so tables are rebased to USD before being returned.
type Backup struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewBackup creates a Backup provider on a caching transport.
func NewBackup(apiKey string, timeout time.Duration) *Backup {
	client := httpcache.NewMemoryCacheTransport().Client()
	client.Timeout = timeout

	return &Backup{
		httpClient: client,
		baseURL:    backupBaseURL,
		apiKey:     apiKey,
		sleep:      sleepContext,
	}
}

// NewBackupWithHTTPClient creates a Backup with a custom http.Client, base URL
// and sleep function. This constructor is intended for testing.
func NewBackupWithHTTPClient(httpClient *http.Client, baseURL, apiKey string, sleep func(context.Context, time.Duration) error) *Backup {
	return &Backup{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		sleep:      sleep,
	}
}

// Name identifies the provider in logs.
func (b *Backup) Name() string { return "fixer" }

type fixerResponse struct {
	Success bool                       `json:"success"`
	Base    string                     `json:"base"`
	Rates   map[string]decimal.Decimal `json:"rates"`
	Error   struct {
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
}

// FetchRates returns the USD-based rate table for date (YYYY-MM-DD). A 429 is
// retried after a fixed delay, up to a small number of attempts.
func (b *Backup) FetchRates(ctx context.Context, date string) (model.RateTable, error) {
	if b.apiKey == "" {
		return nil, errNoBackupKey
	}

	endpoint := fmt.Sprintf("%s/%s?access_key=%s", b.baseURL, date, url.QueryEscape(b.apiKey))

	var body fixerResponse
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating %s request: %w", b.Name(), err)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request for %s: %w", b.Name(), date, err)
		}

		body = fixerResponse{}
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests && attempt < backupMaxAttempts {
			slog.Warn("backup exchange-rate API rate limited, waiting before retry",
				"provider", b.Name(), "attempt", attempt, "delay", backupRetryDelay)
			if err := b.sleep(ctx, backupRetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			errorType := body.Error.Type
			if decodeErr != nil || errorType == "" {
				errorType = "unknown error"
			}
			return nil, fmt.Errorf("%s HTTP error for %s: %d: %s", b.Name(), date, resp.StatusCode, errorType)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding %s response for %s: %w", b.Name(), date, decodeErr)
		}
		break
	}

	if !body.Success {
		info := body.Error.Info
		if info == "" {
			info = "unknown error"
		}
		return nil, fmt.Errorf("%s API error for %s: %s", b.Name(), date, info)
	}

	return rebase(body.Base, body.Rates)
}

// rebase converts a table quoted against base into one quoted against USD.
func rebase(base string, rates map[string]decimal.Decimal) (model.RateTable, error) {
	if base == "" {
		base = "EUR"
	}
	if base == model.BaseCurrency {
		return rates, nil
	}

	usd, ok := rates[model.BaseCurrency]
	if !ok || usd.IsZero() {
		return nil, fmt.Errorf("cannot rebase %s rates: missing %s rate", base, model.BaseCurrency)
	}

	adjusted := make(model.RateTable, len(rates))
	for code, rate := range rates {
		adjusted[code] = rate.Div(usd)
	}

	return adjusted, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
