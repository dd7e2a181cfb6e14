package fundraising

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CampaignSource = (*GoFundMe)(nil)

const (
	gofundmeGraphQLURL   = "https://graphql.gofundme.com/graphql"
	gofundmePageSize     = 20
	gofundmeRateAttempts = 5
)

var (
	gofundmeURLPattern   = regexp.MustCompile(`(?i)^https://(www\.)?gofundme\.com/f/([^/?#&]+)`)
	gofundmeShortPattern = regexp.MustCompile(`(?i)^https://gofund\.me/([^/?#&]+)`)
)

const gofundmeDonationsQuery = `query GetFundraiserDonations($slug: ID!, $first: Int, $after: String, $last: Int, $before: String) {
	fundraiser(slug: $slug) {
		donations(first: $first, after: $after, last: $last, before: $before) {
			edges {
				cursor
				node {
					donationId
					name
					isAnonymous
					amount { amount currencyCode }
					createdAt
				}
			}
			pageInfo {
				hasNextPage
				hasPreviousPage
				startCursor
				endCursor
			}
		}
	}
}`

type gofundmeEdge struct {
	Cursor string `json:"cursor"`
	Node   struct {
		DonationID  string `json:"donationId"`
		Name        string `json:"name"`
		IsAnonymous bool   `json:"isAnonymous"`
		Amount      struct {
			Amount       decimal.Decimal `json:"amount"`
			CurrencyCode string          `json:"currencyCode"`
		} `json:"amount"`
		CreatedAt string `json:"createdAt"`
	} `json:"node"`
}

type gofundmeDonationsData struct {
	Fundraiser *struct {
		Donations struct {
			Edges    []gofundmeEdge `json:"edges"`
			PageInfo pageInfo       `json:"pageInfo"`
		} `json:"donations"`
	} `json:"fundraiser"`
}

// GoFundMe fetches donations from gofundme.com. The first fetch walks backward
// from the newest donation; later fetches walk forward from the stored cursor.
// Donation edges are returned newest first, so a page's startCursor points at
// its newest donation.
type GoFundMe struct {
	http       *httpClient
	converter  driven.CurrencyConverter
	graphqlURL string
}

// NewGoFundMe creates a GoFundMe source, routed through opts.Proxy when set.
func NewGoFundMe(opts Options, converter driven.CurrencyConverter) (*GoFundMe, error) {
	client, err := newProxyClient(opts.Timeout, opts.Proxy)
	if err != nil {
		return nil, err
	}

	return &GoFundMe{
		http:       newHTTPClient(client, opts.UserAgent, nil),
		converter:  converter,
		graphqlURL: gofundmeGraphQLURL,
	}, nil
}

// NewGoFundMeWithHTTPClient creates a GoFundMe source with a custom http.Client,
// GraphQL endpoint and sleep. This constructor is intended for testing.
func NewGoFundMeWithHTTPClient(client *http.Client, graphqlURL string, converter driven.CurrencyConverter, sleep SleepFunc) *GoFundMe {
	return &GoFundMe{
		http:       newHTTPClient(client, "campaignwatch-test", sleep),
		converter:  converter,
		graphqlURL: graphqlURL,
	}
}

// Platform returns model.PlatformGoFundMe.
func (g *GoFundMe) Platform() model.Platform { return model.PlatformGoFundMe }

// Accepts reports whether rawURL is a gofundme.com fundraiser or a gofund.me short link.
func (g *GoFundMe) Accepts(rawURL string) bool {
	return gofundmeURLPattern.MatchString(rawURL) || gofundmeShortPattern.MatchString(rawURL)
}

// Canonicalize rewrites rawURL to https://www.gofundme.com/f/<slug>, resolving
// gofund.me short links with a HEAD request.
func (g *GoFundMe) Canonicalize(ctx context.Context, rawURL string) (string, error) {
	if m := gofundmeURLPattern.FindStringSubmatch(rawURL); m != nil {
		return "https://www.gofundme.com/f/" + m[2], nil
	}

	if !gofundmeShortPattern.MatchString(rawURL) {
		return "", model.NewFetchError(model.KindNotSupported, model.PlatformGoFundMe, rawURL, nil)
	}

	location, err := g.http.location(ctx, rawURL)
	if err != nil {
		return "", classify(model.PlatformGoFundMe, rawURL, err)
	}

	m := gofundmeURLPattern.FindStringSubmatch(location)
	if m == nil {
		return "", model.NewFetchError(model.KindNotSupported, model.PlatformGoFundMe, rawURL,
			fmt.Errorf("short link redirects to %q", location))
	}

	return "https://www.gofundme.com/f/" + m[2], nil
}

func gofundmeSlug(campaignURL string) (string, error) {
	m := gofundmeURLPattern.FindStringSubmatch(campaignURL)
	if m == nil {
		return "", model.NewFetchError(model.KindNotSupported, model.PlatformGoFundMe, campaignURL, nil)
	}
	return m[2], nil
}

func (g *GoFundMe) queryPage(ctx context.Context, campaignURL string, vars map[string]any) (*gofundmeDonationsData, error) {
	var data gofundmeDonationsData
	gqlErrs, err := g.http.queryGraphQL(ctx, g.graphqlURL, graphqlRequest{Query: gofundmeDonationsQuery, Variables: vars}, gofundmeRateAttempts, &data)

	if hasErrorCode(gqlErrs, "FORBIDDEN") {
		return nil, model.NewFetchError(model.KindPermissionDenied, model.PlatformGoFundMe, campaignURL,
			errors.New(gqlErrs[0].Message))
	}
	if err != nil {
		return nil, classify(model.PlatformGoFundMe, campaignURL, err)
	}
	if len(gqlErrs) > 0 && data.Fundraiser == nil {
		return nil, model.NewFetchError(model.KindTransient, model.PlatformGoFundMe, campaignURL,
			errors.New(gqlErrs[0].Message))
	}

	return &data, nil
}

// FetchDonations returns the donations newer than the stored cursor (or all of
// them on the first fetch) and advances the cursor to the newest one seen.
// Rate limiting and permission errors are returned; other failures keep the
// donations collected so far.
func (g *GoFundMe) FetchDonations(ctx context.Context, campaign model.Campaign) (model.Campaign, error) {
	slug, err := gofundmeSlug(campaign.URL)
	if err != nil {
		return campaign, err
	}

	result := campaign
	result.Donations = nil

	var (
		newest   string
		fetchErr error
	)
	if campaign.DonationsCursor == "" {
		newest, fetchErr = g.walkBackward(ctx, slug, &result)
	} else {
		newest, fetchErr = g.walkForward(ctx, slug, campaign.DonationsCursor, &result)
	}

	if fetchErr != nil {
		kind := model.KindOf(fetchErr)
		if kind == model.KindRateLimited || kind == model.KindPermissionDenied || kind == model.KindConversion {
			return campaign, fetchErr
		}
		slog.Error("failed to fetch gofundme donations", "campaign_url", campaign.URL, "error", fetchErr)
	}

	if newest != "" {
		result.DonationsCursor = newest
	}

	return result, nil
}

// walkBackward pages from the newest donation toward the oldest. The newest
// cursor is the startCursor of the first page. It is only returned once the
// walk completes, so an interrupted first fetch starts over next time.
func (g *GoFundMe) walkBackward(ctx context.Context, slug string, campaign *model.Campaign) (string, error) {
	var (
		newest string
		before *string
	)

	for {
		slog.Debug("fetching gofundme donations backward", "campaign_url", campaign.URL, "before", deref(before))

		data, err := g.queryPage(ctx, campaign.URL, map[string]any{
			"slug":   slug,
			"last":   gofundmePageSize,
			"before": before,
		})
		if err != nil {
			return "", err
		}
		if data.Fundraiser == nil || len(data.Fundraiser.Donations.Edges) == 0 {
			return newest, nil
		}

		page := data.Fundraiser.Donations
		if err := g.appendDonations(ctx, campaign, page.Edges); err != nil {
			return "", err
		}
		if newest == "" && page.PageInfo.StartCursor != nil {
			newest = *page.PageInfo.StartCursor
		}

		if !page.PageInfo.HasPreviousPage || page.PageInfo.EndCursor == nil {
			return newest, nil
		}
		before = page.PageInfo.EndCursor
	}
}

// walkForward pages from cursor toward newer donations. The newest cursor is
// the endCursor of the last non-empty page.
func (g *GoFundMe) walkForward(ctx context.Context, slug, cursor string, campaign *model.Campaign) (string, error) {
	var newest string
	after := cursor

	for {
		slog.Debug("fetching gofundme donations forward", "campaign_url", campaign.URL, "after", after)

		data, err := g.queryPage(ctx, campaign.URL, map[string]any{
			"slug":  slug,
			"first": gofundmePageSize,
			"after": after,
		})
		if err != nil {
			return newest, err
		}
		if data.Fundraiser == nil || len(data.Fundraiser.Donations.Edges) == 0 {
			return newest, nil
		}

		page := data.Fundraiser.Donations
		if err := g.appendDonations(ctx, campaign, page.Edges); err != nil {
			return newest, err
		}
		if page.PageInfo.EndCursor != nil {
			newest = *page.PageInfo.EndCursor
			after = newest
		}

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == nil {
			return newest, nil
		}
	}
}

func (g *GoFundMe) appendDonations(ctx context.Context, campaign *model.Campaign, edges []gofundmeEdge) error {
	for _, edge := range edges {
		node := edge.Node
		createdAt, err := time.Parse(time.RFC3339, node.CreatedAt)
		if err != nil {
			slog.Warn("skipping gofundme donation with bad timestamp",
				"campaign_url", campaign.URL, "donation_id", node.DonationID, "error", err)
			continue
		}
		createdAt = createdAt.UTC()

		amount, err := toBaseCurrency(ctx, g.converter, model.PlatformGoFundMe, campaign.URL,
			node.Amount.Amount, node.Amount.CurrencyCode, createdAt)
		if err != nil {
			return err
		}

		var donor *string
		if !node.IsAnonymous {
			donor = cleanDonorName(node.Name)
		}

		campaign.Donations = append(campaign.Donations, model.Donation{
			ID:          node.DonationID,
			CampaignURL: campaign.URL,
			Donor:       donor,
			Amount:      amount,
			CreatedAt:   createdAt,
		})
	}

	return nil
}
