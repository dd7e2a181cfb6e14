package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

func TestFetchError_Is(t *testing.T) {
	err := fmt.Errorf("fetch page 3: %w",
		model.NewFetchError(model.KindPermissionDenied, model.PlatformGoFundMe, "https://www.gofundme.com/f/x", errors.New("FORBIDDEN")))

	assert.ErrorIs(t, err, model.ErrPermissionDenied)
	assert.NotErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, model.KindPermissionDenied, model.KindOf(err))
	assert.Equal(t, "fetch page 3: gofundme: permission_denied https://www.gofundme.com/f/x: FORBIDDEN", err.Error())
}

func TestFetchError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := model.NewFetchError(model.KindTransient, model.PlatformChuffed, "", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "chuffed: transient: connection reset", err.Error())
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, model.KindTransient, model.KindOf(errors.New("plain")))
	assert.Equal(t, "unknown", model.ErrorKind(99).String())
}

func TestPlatformForURL(t *testing.T) {
	tests := []struct {
		url  string
		want model.Platform
	}{
		{url: "https://www.chuffed.org/project/help", want: model.PlatformChuffed},
		{url: "https://www.gofundme.com/f/help", want: model.PlatformGoFundMe},
		{url: "https://gofund.me/abc123", want: model.PlatformGoFundMe},
		{url: "https://steunactie.nl/fundraiser/help", want: model.PlatformSteunactie},
		{url: "https://example.org/donate", want: model.PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, model.PlatformForURL(tt.url))
		})
	}
}

func TestDonation_URLAndDonor(t *testing.T) {
	name := "Carol"
	named := model.Donation{ID: "42", CampaignURL: "https://www.chuffed.org/project/help", Donor: &name}
	anonymous := model.Donation{ID: "43", CampaignURL: "https://www.chuffed.org/project/help"}

	assert.Equal(t, "https://www.chuffed.org/project/help#donation-42", named.URL())
	assert.Equal(t, "Carol", named.DonorName())
	assert.Equal(t, "", anonymous.DonorName())
}

func TestAccount_ProfileTexts(t *testing.T) {
	a := model.Account{
		ProfileNote: "<p>hi</p>",
		ProfileFields: []model.ProfileField{
			{Name: "Site", Value: "https://example.org"},
			{Name: "Empty", Value: ""},
			{Name: "Donate", Value: "https://gofund.me/abc"},
		},
	}

	assert.Equal(t, []string{"<p>hi</p>", "https://example.org", "https://gofund.me/abc"}, a.ProfileTexts())
	assert.Empty(t, model.Account{}.ProfileTexts())
}

func TestTimeWindow_Contains(t *testing.T) {
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	w := model.TimeWindow{Start: start, End: start.Add(time.Hour)}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(time.Hour)))
	assert.False(t, w.Contains(start.Add(-time.Second)))
	assert.False(t, w.Contains(start.Add(time.Hour+time.Second)))
}

func TestDateKey_UsesUTCDay(t *testing.T) {
	amsterdam := time.FixedZone("CEST", 2*60*60)
	assert.Equal(t, "2025-09-19", model.DateKey(time.Date(2025, 9, 20, 1, 0, 0, 0, amsterdam)))
}
