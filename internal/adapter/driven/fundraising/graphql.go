package fundraising

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// graphqlRequest is the JSON body sent to a GraphQL endpoint.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// pageInfo is the Relay pagination block shared by both GraphQL platforms.
type pageInfo struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

// queryGraphQL posts req to endpoint and decodes the "data" member into out.
// GraphQL-level errors are returned alongside so callers can inspect codes.
func (c *httpClient) queryGraphQL(ctx context.Context, endpoint string, req graphqlRequest, maxAttempts int, out any) ([]graphqlError, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling graphql request: %w", err)
	}

	data, err := c.post(ctx, endpoint, body, maxAttempts)
	if err != nil {
		// A 4xx may still carry a GraphQL error document.
		var envelope struct {
			Errors []graphqlError `json:"errors"`
		}
		if len(data) > 0 && json.Unmarshal(data, &envelope) == nil {
			return envelope.Errors, err
		}
		return nil, err
	}

	envelope := struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}

	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return envelope.Errors, fmt.Errorf("decoding graphql data: %w", err)
		}
	}

	return envelope.Errors, nil
}

func hasErrorCode(errs []graphqlError, code string) bool {
	for _, e := range errs {
		if strings.EqualFold(e.Extensions.Code, code) {
			return true
		}
	}
	return false
}

var donorPolicy = bluemonday.StrictPolicy()

// cleanDonorName strips any markup from a scraped or API-provided donor name
// and returns nil for blank names.
func cleanDonorName(raw string) *string {
	name := strings.TrimSpace(html.UnescapeString(donorPolicy.Sanitize(raw)))
	if name == "" {
		return nil
	}
	return &name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
