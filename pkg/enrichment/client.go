// Package enrichment is a client for the profile enrichment provider, which
// verifies a profile URL and returns its current details.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.profileenrich.io"

// Client looks up a single profile.
type Client interface {
	Enrich(ctx context.Context, profileURL string) (*Result, error)
}

// Result is the response from GET /v1/profile.
type Result struct {
	Found    bool   `json:"found"`
	Name     string `json:"full_name"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Email    string `json:"work_email,omitempty"`
	Phone    string `json:"mobile_phone,omitempty"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("enrichment: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the request may succeed later.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an enrichment API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Enrich(ctx context.Context, profileURL string) (*Result, error) {
	q := url.Values{"profile_url": {profileURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/profile?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: read response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return &Result{Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "enrichment: unmarshal response")
	}
	result.Found = true
	return &result, nil
}
