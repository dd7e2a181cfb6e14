package fundraising

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CampaignSource = (*Chuffed)(nil)
	_ driven.DonationProber = (*Chuffed)(nil)
)

const (
	chuffedGraphQLURL = "https://www.chuffed.org/api/graphql"
	chuffedPageSize   = 20
)

var (
	chuffedURLPattern = regexp.MustCompile(`(?i)^https://(www\.)?chuffed\.org/project/([a-zA-Z0-9\-]+)`)
	chuffedIDPattern  = regexp.MustCompile(`campaignId:\s*(\d+)`)
)

const chuffedDonationsQuery = `query GetCampaignDonors($campaignId: ID!, $first: Int, $after: ID) {
	campaign(id: $campaignId) {
		id
		title
		donations(first: $first, after: $after) {
			edges {
				node {
					id
					amount { amount currency }
					name
					status
					createdAt
				}
				cursor
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

type chuffedDonationsData struct {
	Campaign *struct {
		ID        string `json:"id"`
		Donations struct {
			Edges []struct {
				Node struct {
					ID     string `json:"id"`
					Amount struct {
						Amount   decimal.Decimal `json:"amount"` // minor units
						Currency string          `json:"currency"`
					} `json:"amount"`
					Name      *string `json:"name"`
					Status    string  `json:"status"`
					CreatedAt string  `json:"createdAt"`
				} `json:"node"`
				Cursor string `json:"cursor"`
			} `json:"edges"`
			PageInfo pageInfo `json:"pageInfo"`
		} `json:"donations"`
	} `json:"campaign"`
}

// Chuffed fetches donations from chuffed.org. The numeric campaign id is
// scraped from the campaign page, then donations are paged forward through
// the public GraphQL API.
type Chuffed struct {
	http       *httpClient
	converter  driven.CurrencyConverter
	graphqlURL string
	now        func() time.Time
}

// NewChuffed creates a Chuffed source. Campaign pages are fetched through an
// in-memory HTTP cache.
func NewChuffed(opts Options, converter driven.CurrencyConverter) *Chuffed {
	return &Chuffed{
		http:       newHTTPClient(newCachingClient(opts.Timeout), opts.UserAgent, nil),
		converter:  converter,
		graphqlURL: chuffedGraphQLURL,
		now:        time.Now,
	}
}

// NewChuffedWithHTTPClient creates a Chuffed source with a custom http.Client,
// GraphQL endpoint, sleep and clock. This constructor is intended for testing.
func NewChuffedWithHTTPClient(client *http.Client, graphqlURL string, converter driven.CurrencyConverter, sleep SleepFunc, now func() time.Time) *Chuffed {
	return &Chuffed{
		http:       newHTTPClient(client, "campaignwatch-test", sleep),
		converter:  converter,
		graphqlURL: graphqlURL,
		now:        now,
	}
}

// Platform returns model.PlatformChuffed.
func (c *Chuffed) Platform() model.Platform { return model.PlatformChuffed }

// Accepts reports whether rawURL is a chuffed.org project page.
func (c *Chuffed) Accepts(rawURL string) bool {
	return chuffedURLPattern.MatchString(rawURL)
}

// Canonicalize rewrites rawURL to https://www.chuffed.org/project/<slug>.
func (c *Chuffed) Canonicalize(_ context.Context, rawURL string) (string, error) {
	m := chuffedURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", model.NewFetchError(model.KindNotSupported, model.PlatformChuffed, rawURL, nil)
	}
	return "https://www.chuffed.org/project/" + m[2], nil
}

// campaignID scrapes the numeric campaign id from the campaign page.
func (c *Chuffed) campaignID(ctx context.Context, campaignURL string) (string, error) {
	page, err := c.http.get(ctx, campaignURL, 1)
	if err != nil {
		return "", classify(model.PlatformChuffed, campaignURL, err)
	}

	m := chuffedIDPattern.FindSubmatch(page)
	if m == nil {
		return "", model.NewFetchError(model.KindParseError, model.PlatformChuffed, campaignURL,
			fmt.Errorf("campaign id not found in page"))
	}

	id := string(m[1])
	slog.Debug("scraped chuffed campaign id", "campaign_url", campaignURL, "campaign_id", id)
	return id, nil
}

// queryPage fetches one page of donations after cursor. 429s are retried
// until the API answers.
func (c *Chuffed) queryPage(ctx context.Context, campaignID string, first int, after *string) (*chuffedDonationsData, error) {
	req := graphqlRequest{
		Query: chuffedDonationsQuery,
		Variables: map[string]any{
			"campaignId": campaignID,
			"first":      first,
			"after":      after,
		},
	}

	var data chuffedDonationsData
	if _, err := c.http.queryGraphQL(ctx, c.graphqlURL, req, 0, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// FetchDonations pages forward from the stored cursor until the API reports no
// further pages. If a page fails, donations from the pages already completed
// are returned and the cursor stays at the last completed page.
func (c *Chuffed) FetchDonations(ctx context.Context, campaign model.Campaign) (model.Campaign, error) {
	result := campaign
	result.Donations = nil

	campaignID, err := c.campaignID(ctx, campaign.URL)
	if err != nil {
		slog.Warn("cannot resolve chuffed campaign id", "campaign_url", campaign.URL, "error", err)
		return result, nil
	}

	cursor := campaign.DonationsCursor
	for {
		var after *string
		if cursor != "" {
			after = &cursor
		}

		slog.Debug("fetching chuffed donations", "campaign_url", campaign.URL, "cursor", cursor, "limit", chuffedPageSize)

		data, err := c.queryPage(ctx, campaignID, chuffedPageSize, after)
		if err != nil {
			slog.Error("failed to fetch chuffed donations", "campaign_url", campaign.URL, "error", err)
			break
		}
		if data.Campaign == nil || len(data.Campaign.Donations.Edges) == 0 {
			break
		}

		page := data.Campaign.Donations
		donations := make([]model.Donation, 0, len(page.Edges))
		for _, edge := range page.Edges {
			node := edge.Node
			createdAt, err := time.Parse(time.RFC3339, node.CreatedAt)
			if err != nil {
				slog.Warn("skipping chuffed donation with bad timestamp",
					"campaign_url", campaign.URL, "donation_id", node.ID, "error", err)
				continue
			}
			createdAt = createdAt.UTC()

			amount, err := toBaseCurrency(ctx, c.converter, model.PlatformChuffed, campaign.URL,
				node.Amount.Amount.Div(decimal.NewFromInt(100)), node.Amount.Currency, createdAt)
			if err != nil {
				return campaign, err
			}

			donations = append(donations, model.Donation{
				ID:          node.ID,
				CampaignURL: campaign.URL,
				Donor:       cleanDonorName(deref(node.Name)),
				Amount:      amount,
				CreatedAt:   createdAt,
			})
		}

		result.Donations = append(result.Donations, donations...)
		if page.PageInfo.EndCursor != nil && *page.PageInfo.EndCursor != "" {
			cursor = *page.PageInfo.EndCursor
		}

		if !page.PageInfo.HasNextPage {
			break
		}
	}

	result.DonationsCursor = cursor
	return result, nil
}
