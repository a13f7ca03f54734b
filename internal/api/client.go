package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"brigadas-analytics/internal/models"
	"brigadas-analytics/internal/services/hierarchy"
)

const (
	leadersEndpoint = "rest/v1/leaders"
	hierarchySelect = "*,brigadistas(*,movilizadores(*,ciudadanos(*)))"
)

// Client talks to the hosted store's REST interface. It implements hierarchy.Gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *resty.Client
}

// NewClient creates a REST client authenticated with apiKey
func NewClient(baseURL, apiKey string) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}

	client.http = resty.New().
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return client
}

// Get performs a GET request against the REST interface
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	return req.Get(c.buildURL(endpoint))
}

// FetchHierarchy loads leaders with embedded brigade members, mobilizers and citizens
func (c *Client) FetchHierarchy(ctx context.Context, filter *hierarchy.Filter) ([]models.Leader, error) {
	resp, err := c.Get(ctx, leadersEndpoint, hierarchyParams(filter))
	if err != nil {
		return nil, fmt.Errorf("hierarchy request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("hierarchy request failed: HTTP %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	var leaders []models.Leader
	if err := json.Unmarshal(resp.Body(), &leaders); err != nil {
		return nil, fmt.Errorf("failed to decode hierarchy response: %w", err)
	}
	return leaders, nil
}

// Ping issues the smallest possible leaders query to check URL and credentials
func (c *Client) Ping(ctx context.Context) (*resty.Response, error) {
	params := url.Values{}
	params.Set("select", "id")
	params.Set("limit", "1")
	return c.Get(ctx, leadersEndpoint, params)
}

// SetTimeout allows customizing the request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}

// SetRetryWait changes the backoff bounds between retries
func (c *Client) SetRetryWait(wait, maxWait time.Duration) {
	c.http.SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
}

func hierarchyParams(filter *hierarchy.Filter) url.Values {
	params := url.Values{}
	params.Set("select", hierarchySelect)
	params.Set("order", "created_at.asc,id.asc")

	if filter == nil {
		return params
	}

	if len(filter.Regions) > 0 {
		quoted := make([]string, len(filter.Regions))
		for i, r := range filter.Regions {
			quoted[i] = quoteValue(r)
		}
		params.Set("region", "in.("+strings.Join(quoted, ",")+")")
	}
	if dr := filter.DateRange; dr != nil {
		if dr.Start != nil {
			params.Add("created_at", "gte."+dr.Start.UTC().Format(time.RFC3339))
		}
		if dr.End != nil {
			params.Add("created_at", "lte."+dr.End.UTC().Format(time.RFC3339))
		}
	}
	return params
}

// quoteValue wraps a list value in double quotes so commas and parentheses survive
func quoteValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}
