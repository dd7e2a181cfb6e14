// Package httphandler is the REST driving adapter: account registration,
// campaign and donation listings, manual refresh, health and metrics.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/ericfisherdev/campaignwatch/internal/application"
	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

const (
	maxDonationLimit = 1000
	healthTimeout    = 2 * time.Second
)

// Refresher triggers a synchronous refresh run.
type Refresher interface {
	RefreshNow(ctx context.Context) (application.RefreshSummary, error)
}

// Pinger reports whether a backing dependency can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	accountStore  driven.AccountStore
	campaignStore driven.CampaignStore
	refresher     Refresher
	metrics       http.Handler
	converter     driven.CurrencyConverter
	database      Pinger
	logger        *slog.Logger
}

// NewHandler creates a Handler. refresher and metrics may be nil, in which
// case their endpoints answer 503 and 404 respectively.
func NewHandler(
	accountStore driven.AccountStore,
	campaignStore driven.CampaignStore,
	refresher Refresher,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		accountStore:  accountStore,
		campaignStore: campaignStore,
		refresher:     refresher,
		metrics:       metrics,
		logger:        logger,
	}
}

// WithConverter enables the currency query parameter on the campaign and
// donation listings.
func (h *Handler) WithConverter(c driven.CurrencyConverter) *Handler {
	h.converter = c
	return h
}

// WithDatabase makes the health endpoint report 503 while db fails to ping.
func (h *Handler) WithDatabase(db Pinger) *Handler {
	h.database = db
	return h
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, h.Health)
	mux.HandleFunc("GET /api/v1/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/v1/accounts", h.RegisterAccount)
	mux.HandleFunc("DELETE /api/v1/accounts", h.RemoveAccount)
	mux.HandleFunc("GET /api/v1/campaigns", h.ListCampaigns)
	mux.HandleFunc("GET /api/v1/donations", h.ListDonations)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health reports liveness and, when a database is attached, whether it is
// reachable with a clean schema.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if h.database == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.database.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Database = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Database = "ok"
	writeJSON(w, http.StatusOK, resp)
}

// ListAccounts returns all registered accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountStore.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RegisterAccount creates or updates an account's profile. The campaign link
// is resolved on the next refresh.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if !isValidAccountURL(req.URL) {
		writeError(w, http.StatusBadRequest, "invalid account url: expected an absolute http(s) URL")
		return
	}

	now := time.Now().UTC()
	account := model.Account{
		URL:         req.URL,
		DisplayName: req.DisplayName,
		ProfileNote: req.Note,
		Disabled:    req.Disabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, f := range req.Fields {
		account.ProfileFields = append(account.ProfileFields, model.ProfileField(f))
	}

	if err := h.accountStore.Upsert(r.Context(), account); err != nil {
		h.logger.Error("failed to register account", "account_url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stored, err := h.accountStore.GetByURL(r.Context(), req.URL)
	if err != nil || stored == nil {
		h.logger.Error("failed to reload account", "account_url", req.URL, "error", err)
		writeJSON(w, http.StatusCreated, toAccountResponse(account))
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(*stored))
}

// RemoveAccount deletes the account named by the url query parameter.
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	accountURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if accountURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	if err := h.accountStore.Remove(r.Context(), accountURL); err != nil {
		if errors.Is(err, driven.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.Error("failed to remove account", "account_url", accountURL, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCampaigns returns every campaign with its donation stats. With a
// currency parameter, totals are also given in that currency at today's rate.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	target, ok := h.outputCurrency(w, r)
	if !ok {
		return
	}

	summaries, err := h.campaignStore.ListCampaigns(r.Context())
	if err != nil {
		h.logger.Error("failed to list campaigns", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]CampaignResponse, 0, len(summaries))
	for _, s := range summaries {
		c := toCampaignResponse(s)
		if target != "" {
			total, err := h.convert(r.Context(), s.TotalAmount, target, "")
			if err != nil {
				h.logger.Error("failed to convert campaign total",
					"campaign_url", s.Campaign.URL, "currency", target, "error", err)
				writeError(w, http.StatusBadGateway, "currency conversion failed")
				return
			}
			c.Currency = target
			c.Total = total
		}
		resp = append(resp, c)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListDonations returns donations newest first, filtered by the account,
// donor, start, end, limit and offset query parameters. With a currency
// parameter, each amount is also given in that currency at the rate of the
// day the donation was made.
func (h *Handler) ListDonations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDonationFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, ok := h.outputCurrency(w, r)
	if !ok {
		return
	}

	donations, err := h.campaignStore.ListDonations(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list donations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]DonationResponse, 0, len(donations))
	for _, d := range donations {
		dr := toDonationResponse(d)
		if target != "" {
			amount, err := h.convert(r.Context(), d.Amount, target, model.DateKey(d.CreatedAt))
			if err != nil {
				h.logger.Error("failed to convert donation",
					"donation_url", d.URL(), "currency", target, "error", err)
				writeError(w, http.StatusBadGateway, "currency conversion failed")
				return
			}
			dr.Currency = target
			dr.Amount = amount
		}
		resp = append(resp, dr)
	}

	writeJSON(w, http.StatusOK, resp)
}

// outputCurrency validates the optional currency query parameter and returns
// its ISO 4217 code, or "" when absent. It writes the error response itself
// and returns false when the request cannot be served.
func (h *Handler) outputCurrency(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("currency"))
	if raw == "" {
		return "", true
	}

	unit, err := currency.ParseISO(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid currency: expected an ISO 4217 code")
		return "", false
	}
	code := unit.String()

	if code != model.BaseCurrency && h.converter == nil {
		writeError(w, http.StatusServiceUnavailable, "currency conversion is not available")
		return "", false
	}
	return code, true
}

// convert renders a stored USD amount in target at date's rates.
func (h *Handler) convert(ctx context.Context, amount decimal.Decimal, target, date string) (string, error) {
	if target == model.BaseCurrency {
		return amount.StringFixed(2), nil
	}
	conv, err := h.converter.Convert(ctx, amount, model.BaseCurrency, target, date)
	if err != nil {
		return "", err
	}
	return conv.ConvertedAmount.StringFixed(2), nil
}

// Refresh runs a campaign refresh and returns its summary once it completes.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not available")
		return
	}

	summary, err := h.refresher.RefreshNow(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "refresh canceled")
			return
		}
		h.logger.Error("manual refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, toRefreshResponse(summary))
}

// parseDonationFilter reads the donation listing query parameters. Times are
// RFC 3339 or YYYY-MM-DD; a date-only end covers the whole day.
func parseDonationFilter(q url.Values) (model.DonationFilter, error) {
	filter := model.DonationFilter{
		AccountURL: strings.TrimSpace(q.Get("account")),
		Donor:      strings.TrimSpace(q.Get("donor")),
	}

	if v := q.Get("start"); v != "" {
		t, _, err := parseQueryTime(v)
		if err != nil {
			return filter, errors.New("invalid start: expected RFC 3339 or YYYY-MM-DD")
		}
		filter.Start = t
	}

	if v := q.Get("end"); v != "" {
		t, dateOnly, err := parseQueryTime(v)
		if err != nil {
			return filter, errors.New("invalid end: expected RFC 3339 or YYYY-MM-DD")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.End = t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxDonationLimit {
			return filter, errors.New("invalid limit: expected 1-" + strconv.Itoa(maxDonationLimit))
		}
		filter.Limit = n
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}

	return filter, nil
}

func parseQueryTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(model.DateLayout, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// isValidAccountURL reports whether raw is an absolute http(s) URL with a host.
func isValidAccountURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
