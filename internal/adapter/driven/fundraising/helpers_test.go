package fundraising_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// fakeConverter multiplies every amount by rate.
type fakeConverter struct {
	mu    sync.Mutex
	rate  decimal.Decimal
	err   error
	calls []string
}

func (f *fakeConverter) Convert(_ context.Context, amount decimal.Decimal, from, to, date string) (model.Conversion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, from+"->"+to+"@"+date)
	f.mu.Unlock()

	if f.err != nil {
		return model.Conversion{}, f.err
	}
	converted := amount.Mul(f.rate)
	return model.Conversion{
		OriginalAmount:  amount,
		From:            from,
		To:              to,
		Rate:            f.rate,
		ConvertedAmount: converted.Round(2),
		Date:            date,
	}, nil
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

// rewriteTransport sends every request to the test server regardless of the
// original host, so production URLs can be exercised.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	clone.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func rewritingClient(t *testing.T, server *httptest.Server) *http.Client {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return &http.Client{Transport: rewriteTransport{target: u}, Timeout: 5 * time.Second}
}

// graphqlVars decodes the variables of a GraphQL POST body.
func graphqlVars(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body.Variables
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func strPtr(s string) *string { return &s }
