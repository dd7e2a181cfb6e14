package model

import "strings"

// Platform identifies the fundraising site hosting a campaign.
type Platform string

const (
	PlatformChuffed    Platform = "chuffed"
	PlatformGoFundMe   Platform = "gofundme"
	PlatformSteunactie Platform = "steunactie"
	PlatformUnknown    Platform = ""
)

// PlatformForURL classifies a canonical campaign URL by host.
func PlatformForURL(url string) Platform {
	switch {
	case strings.Contains(url, "chuffed.org"):
		return PlatformChuffed
	case strings.Contains(url, "gofundme.com"), strings.Contains(url, "gofund.me"):
		return PlatformGoFundMe
	case strings.Contains(url, "steunactie.nl"):
		return PlatformSteunactie
	default:
		return PlatformUnknown
	}
}
