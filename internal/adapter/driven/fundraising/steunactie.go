package fundraising

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CampaignSource = (*Steunactie)(nil)

const (
	steunactieBaseURL   = "https://steunactie.nl"
	steunactieAnonymous = "Anoniem"
	steunactieCurrency  = "EUR"
)

var (
	steunactieURLPattern = regexp.MustCompile(`(?i)^https://(www\.)?steunactie\.nl/fundraiser/([^/?#&]+)`)
	steunactieIDPattern  = regexp.MustCompile(`/-(\d+)`)
)

// Steunactie scrapes donations from steunactie.nl. The site has no API and no
// donation ids, so ids are synthesized from the donation's hour bucket and a
// stable disambiguator.
type Steunactie struct {
	http      *httpClient
	converter driven.CurrencyConverter
	baseURL   string
	now       func() time.Time
}

// NewSteunactie creates a Steunactie source. Donation pages go through an
// in-memory HTTP cache.
func NewSteunactie(opts Options, converter driven.CurrencyConverter) *Steunactie {
	return &Steunactie{
		http:      newHTTPClient(newCachingClient(opts.Timeout), opts.UserAgent, nil),
		converter: converter,
		baseURL:   steunactieBaseURL,
		now:       time.Now,
	}
}

// NewSteunactieWithHTTPClient creates a Steunactie source with a custom
// http.Client, base URL, sleep and clock. This constructor is intended for testing.
func NewSteunactieWithHTTPClient(client *http.Client, baseURL string, converter driven.CurrencyConverter, sleep SleepFunc, now func() time.Time) *Steunactie {
	return &Steunactie{
		http:      newHTTPClient(client, "campaignwatch-test", sleep),
		converter: converter,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		now:       now,
	}
}

// Platform returns model.PlatformSteunactie.
func (s *Steunactie) Platform() model.Platform { return model.PlatformSteunactie }

// Accepts reports whether rawURL is a steunactie.nl fundraiser page.
func (s *Steunactie) Accepts(rawURL string) bool {
	return steunactieURLPattern.MatchString(rawURL)
}

// Canonicalize rewrites rawURL to https://steunactie.nl/fundraiser/<slug>.
func (s *Steunactie) Canonicalize(_ context.Context, rawURL string) (string, error) {
	slug, ok := steunactieSlug(rawURL)
	if !ok {
		return "", model.NewFetchError(model.KindNotSupported, model.PlatformSteunactie, rawURL, nil)
	}
	return steunactieBaseURL + "/fundraiser/" + slug, nil
}

func steunactieSlug(rawURL string) (string, bool) {
	m := steunactieURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// campaignID reads the numeric id from the fundraiser page's redirect target.
func (s *Steunactie) campaignID(ctx context.Context, campaignURL string) (string, error) {
	slug, ok := steunactieSlug(campaignURL)
	if !ok {
		return "", model.NewFetchError(model.KindNotSupported, model.PlatformSteunactie, campaignURL, nil)
	}

	location, err := s.http.location(ctx, s.baseURL+"/fundraiser/"+slug)
	if err != nil {
		return "", classify(model.PlatformSteunactie, campaignURL, err)
	}

	m := steunactieIDPattern.FindStringSubmatch(location)
	if m == nil {
		return "", model.NewFetchError(model.KindParseError, model.PlatformSteunactie, campaignURL,
			fmt.Errorf("no campaign id in redirect %q", location))
	}

	slog.Debug("scraped steunactie campaign id", "campaign_url", campaignURL, "campaign_id", m[1])
	return m[1], nil
}

// steunactieItem is one parsed list entry before conversion.
type steunactieItem struct {
	donor      string
	amountText string
	dateText   string
}

// FetchDonations walks the newest-first donation pages until it reaches a
// donation older than the stored cursor bucket or a page with no items. The
// new cursor is the highest bucket seen.
func (s *Steunactie) FetchDonations(ctx context.Context, campaign model.Campaign) (model.Campaign, error) {
	result := campaign
	result.Donations = nil

	campaignID, err := s.campaignID(ctx, campaign.URL)
	if err != nil {
		slog.Warn("cannot resolve steunactie campaign id", "campaign_url", campaign.URL, "error", err)
		return result, nil
	}

	storedCursor, _ := strconv.ParseInt(campaign.DonationsCursor, 10, 64)
	maxBucket := storedCursor
	now := s.now()
	occurrences := make(map[string]int)
	used := make(map[string]bool)

	for page := 1; ; page++ {
		slog.Debug("fetching steunactie donations", "campaign_url", campaign.URL, "page", page)

		pageURL := fmt.Sprintf("%s/donations/all/%s/0/latest/1/?page=%d", s.baseURL, campaignID, page)
		body, err := s.http.get(ctx, pageURL, 0)
		if err != nil {
			slog.Error("failed to fetch steunactie donations", "campaign_url", campaign.URL, "page", page, "error", err)
			break
		}

		items, err := parseSteunactieItems(body)
		if err != nil {
			slog.Error("failed to parse steunactie page", "campaign_url", campaign.URL, "page", page, "error", err)
			break
		}
		if len(items) == 0 {
			break
		}

		reachedKnown := false
		for _, item := range items {
			createdAt, ok := parseDutchDate(item.dateText, now)
			if !ok {
				slog.Warn("could not parse steunactie donation date",
					"campaign_url", campaign.URL, "date", item.dateText)
				continue
			}

			bucket := donationBucket(createdAt)
			if bucket < storedCursor {
				reachedKnown = true
				break
			}

			value, err := parseEuroAmount(item.amountText)
			if err != nil {
				slog.Warn("could not parse steunactie donation amount",
					"campaign_url", campaign.URL, "amount", item.amountText, "error", err)
				continue
			}

			amount, err := toBaseCurrency(ctx, s.converter, model.PlatformSteunactie, campaign.URL, value, steunactieCurrency, createdAt)
			if err != nil {
				return campaign, err
			}

			var donor *string
			if item.donor != steunactieAnonymous {
				donor = cleanDonorName(item.donor)
			}

			key := fmt.Sprintf("%d|%s|%s", bucket, item.donor, value.String())
			n := occurrences[key]
			id := syntheticDonationID(bucket, key, n)
			for used[id] {
				n++
				id = syntheticDonationID(bucket, key, n)
			}
			occurrences[key] = n + 1
			used[id] = true

			result.Donations = append(result.Donations, model.Donation{
				ID:          id,
				CampaignURL: campaign.URL,
				Donor:       donor,
				Amount:      amount,
				CreatedAt:   createdAt,
			})
			if bucket > maxBucket {
				maxBucket = bucket
			}
		}

		if reachedKnown {
			break
		}
	}

	if maxBucket > 0 {
		result.DonationsCursor = strconv.FormatInt(maxBucket, 10)
	}

	return result, nil
}

// syntheticDonationID builds "<YYYYMMDDHH><1000-9999>". The disambiguator is
// derived from the donation's content and its position among identical
// donations so repeated fetches produce the same id.
func syntheticDonationID(bucket int64, key string, occurrence int) string {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s#%d", key, occurrence)
	return strconv.FormatInt(bucket, 10) + strconv.FormatUint(uint64(1000+h.Sum32()%9000), 10)
}

// parseEuroAmount parses "€ 1.234,56" style amounts.
func parseEuroAmount(text string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("€", "", " ", "", "\u00a0", "", ".", "").Replace(text)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(cleaned)
}

// parseSteunactieItems extracts the donation list entries of a page:
//
//	<li class="list-group-item ...">
//	  <div class="d-flex ..."><span>Anoniem</span><strong class="amount">€ 25,00</strong></div>
//	  <small class="date ...">op 18-09-2025</small>
//	</li>
func parseSteunactieItems(page []byte) ([]steunactieItem, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var items []steunactieItem
	for _, li := range findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Li && hasClass(n, "list-group-item")
	}) {
		var item steunactieItem

		if div := findFirst(li, func(n *html.Node) bool {
			return n.DataAtom == atom.Div && hasClass(n, "d-flex")
		}); div != nil {
			if span := findFirst(div, func(n *html.Node) bool { return n.DataAtom == atom.Span }); span != nil {
				item.donor = strings.TrimSpace(textContent(span))
			}
		}

		item.amountText = "€ 0,00"
		if strong := findFirst(li, func(n *html.Node) bool {
			return n.DataAtom == atom.Strong && hasClass(n, "amount")
		}); strong != nil {
			item.amountText = strings.TrimSpace(textContent(strong))
		}

		if small := findFirst(li, func(n *html.Node) bool {
			return n.DataAtom == atom.Small && hasClass(n, "date")
		}); small != nil {
			item.dateText = strings.TrimSpace(textContent(small))
		}

		items = append(items, item)
	}

	return items, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// findFirst returns the first descendant of n matching match, depth first.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant of n matching match, in document order.
// Matches are not searched for nested matches.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			out = append(out, c)
			continue
		}
		out = append(out, findAll(c, match)...)
	}
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
