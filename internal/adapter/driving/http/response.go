package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/campaignwatch/internal/application"
	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Database string `json:"database,omitempty"`
}

// ProfileFieldPayload is a profile metadata entry in account requests and responses.
type ProfileFieldPayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AccountRequest is the JSON body for the register account endpoint.
type AccountRequest struct {
	URL         string                `json:"url"`
	DisplayName string                `json:"display_name"`
	Note        string                `json:"note"`
	Fields      []ProfileFieldPayload `json:"fields"`
	Disabled    bool                  `json:"disabled"`
}

// AccountResponse is the JSON representation of an archived account.
type AccountResponse struct {
	URL         string                `json:"url"`
	DisplayName string                `json:"display_name"`
	Note        string                `json:"note"`
	Fields      []ProfileFieldPayload `json:"fields"`
	CampaignURL *string               `json:"campaign_url"`
	Disabled    bool                  `json:"disabled"`
	CreatedAt   string                `json:"created_at"`
	UpdatedAt   string                `json:"updated_at"`
}

// CampaignResponse is the JSON representation of a campaign with its stats.
type CampaignResponse struct {
	URL             string  `json:"url"`
	AccountURL      string  `json:"account_url"`
	Platform        string  `json:"platform"`
	DonationsCursor *string `json:"donations_cursor"`
	DonationCount   int     `json:"donation_count"`
	TotalUSD        string  `json:"total_usd"`
	FirstDonationAt *string `json:"first_donation_at"`
	LastDonationAt  *string `json:"last_donation_at"`
	// Set only when a currency was requested.
	Currency string `json:"currency,omitempty"`
	Total    string `json:"total,omitempty"`
}

// DonationResponse is the JSON representation of a single donation.
type DonationResponse struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	CampaignURL string  `json:"campaign_url"`
	Donor       *string `json:"donor"`
	AmountUSD   string  `json:"amount_usd"`
	CreatedAt   string  `json:"created_at"`
	Currency    string  `json:"currency,omitempty"`
	Amount      string  `json:"amount,omitempty"`
}

// RefreshResponse is the JSON representation of a completed refresh run.
type RefreshResponse struct {
	RunID        string `json:"run_id"`
	Accounts     int    `json:"accounts"`
	Campaigns    int    `json:"campaigns"`
	NewDonations int    `json:"new_donations"`
	Failed       int    `json:"failed"`
	DurationMS   int64  `json:"duration_ms"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// optionalTime formats t, or returns nil for the zero time.
func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := formatTime(t)
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toAccountResponse converts a domain Account to its JSON representation.
func toAccountResponse(a model.Account) AccountResponse {
	fields := make([]ProfileFieldPayload, 0, len(a.ProfileFields))
	for _, f := range a.ProfileFields {
		fields = append(fields, ProfileFieldPayload(f))
	}

	return AccountResponse{
		URL:         a.URL,
		DisplayName: a.DisplayName,
		Note:        a.ProfileNote,
		Fields:      fields,
		CampaignURL: optionalString(a.CampaignURL),
		Disabled:    a.Disabled,
		CreatedAt:   formatTime(a.CreatedAt),
		UpdatedAt:   formatTime(a.UpdatedAt),
	}
}

// toCampaignResponse converts a campaign summary to its JSON representation.
func toCampaignResponse(s model.CampaignSummary) CampaignResponse {
	return CampaignResponse{
		URL:             s.Campaign.URL,
		AccountURL:      s.Campaign.AccountURL,
		Platform:        string(s.Campaign.Platform),
		DonationsCursor: optionalString(s.Campaign.DonationsCursor),
		DonationCount:   s.DonationCount,
		TotalUSD:        s.TotalAmount.StringFixed(2),
		FirstDonationAt: optionalTime(s.FirstDonationTime),
		LastDonationAt:  optionalTime(s.LastDonationTime),
	}
}

// toDonationResponse converts a domain Donation to its JSON representation.
func toDonationResponse(d model.Donation) DonationResponse {
	return DonationResponse{
		ID:          d.ID,
		URL:         d.URL(),
		CampaignURL: d.CampaignURL,
		Donor:       d.Donor,
		AmountUSD:   d.Amount.StringFixed(2),
		CreatedAt:   formatTime(d.CreatedAt),
	}
}

// toRefreshResponse converts a refresh summary to its JSON representation.
func toRefreshResponse(s application.RefreshSummary) RefreshResponse {
	return RefreshResponse{
		RunID:        s.RunID,
		Accounts:     s.Accounts,
		Campaigns:    s.Campaigns,
		NewDonations: s.NewDonations,
		Failed:       s.Failed,
		DurationMS:   s.Duration.Milliseconds(),
	}
}
