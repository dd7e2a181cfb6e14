// Package fundraising implements the CampaignSource port for the supported
// donation platforms: Chuffed, GoFundMe and Steunactie.
package fundraising

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

const defaultRetryAfter = 10 * time.Second

// Options carries the HTTP settings shared by all campaign sources.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// Proxy is an optional HTTP proxy URL. Only sources that opt in use it.
	Proxy string
}

// SleepFunc waits for d or until ctx is done. Injected so tests do not wait
// out real Retry-After delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// statusError reports an unexpected HTTP status.
type statusError struct {
	StatusCode int
	URL        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// errRateLimitExhausted means a bounded 429 retry budget ran out.
var errRateLimitExhausted = errors.New("rate limit retries exhausted")

// httpClient wraps an *http.Client with the user agent, Retry-After handling
// and a second client that does not follow redirects for HEAD probes.
type httpClient struct {
	client     *http.Client
	noRedirect *http.Client
	userAgent  string
	sleep      SleepFunc
}

func newHTTPClient(client *http.Client, userAgent string, sleep SleepFunc) *httpClient {
	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if sleep == nil {
		sleep = sleepContext
	}

	return &httpClient{
		client:     client,
		noRedirect: &noRedirect,
		userAgent:  userAgent,
		sleep:      sleep,
	}
}

// newCachingClient returns an *http.Client on an in-memory httpcache transport,
// so repeated GETs of unchanged pages are served from cache.
func newCachingClient(timeout time.Duration) *http.Client {
	client := httpcache.NewMemoryCacheTransport().Client()
	client.Timeout = timeout
	return client
}

// newProxyClient returns an *http.Client that routes through proxyURL when set.
func newProxyClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// get fetches url and returns the body. 429 responses are retried after
// Retry-After plus one second, up to maxAttempts (0 means unbounded).
func (c *httpClient) get(ctx context.Context, target string, maxAttempts int) ([]byte, error) {
	return c.doWithRetry(ctx, http.MethodGet, target, nil, maxAttempts)
}

// post sends a JSON body with the same retry policy as get.
func (c *httpClient) post(ctx context.Context, target string, body []byte, maxAttempts int) ([]byte, error) {
	return c.doWithRetry(ctx, http.MethodPost, target, body, maxAttempts)
}

func (c *httpClient) doWithRetry(ctx context.Context, method, target string, body []byte, maxAttempts int) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, target, err)
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if maxAttempts > 0 && attempt >= maxAttempts {
				return nil, fmt.Errorf("%s %s: %w", method, target, errRateLimitExhausted)
			}
			delay := retryAfter(resp.Header)
			slog.Warn("rate limit exceeded, sleeping", "url", target, "delay", delay, "attempt", attempt)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return data, &statusError{StatusCode: resp.StatusCode, URL: target}
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading response from %s: %w", target, readErr)
		}

		return data, nil
	}
}

// location issues a HEAD request without following redirects and returns the
// Location header.
func (c *httpClient) location(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", fmt.Errorf("creating HEAD request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return "", fmt.Errorf("HEAD %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &statusError{StatusCode: resp.StatusCode, URL: target}
	}

	return resp.Header.Get("Location"), nil
}

// retryAfter reads the Retry-After header in seconds (default 10) and adds one second.
func retryAfter(h http.Header) time.Duration {
	delay := defaultRetryAfter
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		}
	}
	return delay + time.Second
}

// classify maps a transport error onto a FetchError kind.
func classify(platform model.Platform, campaignURL string, err error) error {
	var se *statusError
	switch {
	case errors.Is(err, errRateLimitExhausted):
		return model.NewFetchError(model.KindRateLimited, platform, campaignURL, err)
	case errors.As(err, &se) && se.StatusCode == http.StatusForbidden:
		return model.NewFetchError(model.KindPermissionDenied, platform, campaignURL, err)
	default:
		return model.NewFetchError(model.KindTransient, platform, campaignURL, err)
	}
}

// toBaseCurrency converts amount to USD at the donation's UTC date.
func toBaseCurrency(ctx context.Context, converter driven.CurrencyConverter, platform model.Platform, campaignURL string, amount decimal.Decimal, currency string, at time.Time) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == model.BaseCurrency {
		return amount, nil
	}

	conv, err := converter.Convert(ctx, amount, currency, model.BaseCurrency, model.DateKey(at))
	if err != nil {
		return decimal.Zero, model.NewFetchError(model.KindConversion, platform, campaignURL, err)
	}

	return conv.ConvertedAmount, nil
}

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
