package model

import "time"

// ProfileField is a single name/value pair from an account's profile metadata.
// Values are HTML fragments as served by the account's home instance.
type ProfileField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Account represents an archived social-media account whose profile may link
// to a fundraising campaign.
type Account struct {
	URL           string
	DisplayName   string
	ProfileNote   string
	ProfileFields []ProfileField
	CampaignURL   string // Canonical campaign URL; empty when none was resolved.
	Disabled      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProfileTexts returns the profile note followed by each profile field value,
// skipping empty entries. This is the order in which campaign links are searched.
func (a Account) ProfileTexts() []string {
	texts := make([]string, 0, len(a.ProfileFields)+1)
	if a.ProfileNote != "" {
		texts = append(texts, a.ProfileNote)
	}
	for _, f := range a.ProfileFields {
		if f.Value != "" {
			texts = append(texts, f.Value)
		}
	}
	return texts
}
