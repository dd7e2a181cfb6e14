package application

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
	"github.com/ericfisherdev/campaignwatch/internal/domain/port/driven"
)

var bareURLPattern = regexp.MustCompile(`(?i)^https?://\S+`)

// CampaignURL returns the canonical campaign URL linked from the account's
// profile, searching the note first and then each profile field. It returns the
// empty string when no supported campaign link is found.
func (s *CampaignService) CampaignURL(ctx context.Context, account model.Account) string {
	for _, text := range account.ProfileTexts() {
		if url := s.parseCampaignURL(ctx, text); url != "" {
			return url
		}
	}
	return ""
}

func (s *CampaignService) parseCampaignURL(ctx context.Context, text string) string {
	var url string
	if bareURLPattern.MatchString(text) {
		url = text
	} else {
		url = s.firstCampaignHref(text)
		if url == "" {
			return ""
		}
	}

	url = strings.TrimSpace(url)
	url = strings.Replace(url, "Https://", "https://", 1)
	url, _, _ = strings.Cut(url, "?")

	source := s.sourceFor(url)
	if source == nil {
		return ""
	}

	canonical, err := source.Canonicalize(ctx, url)
	if err != nil {
		slog.Debug("cannot canonicalize campaign url", "url", url, "platform", source.Platform(), "error", err)
		return ""
	}
	return canonical
}

// firstCampaignHref parses fragment as HTML and returns the first anchor href
// accepted by any campaign source.
func (s *CampaignService) firstCampaignHref(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key == "href" && s.sourceFor(strings.TrimSpace(attr.Val)) != nil {
					found = attr.Val
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	for _, n := range nodes {
		if walk(n) {
			break
		}
	}
	return found
}

// sourceFor returns the first source accepting url, or nil.
func (s *CampaignService) sourceFor(url string) driven.CampaignSource {
	for _, src := range s.sources {
		if src.Accepts(url) {
			return src
		}
	}
	return nil
}
