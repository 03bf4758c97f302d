// Package search is a client for the profile search provider API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.profilesearch.io"

// Client searches the provider for profiles matching a query.
type Client interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// Query is the request body for POST /v1/search.
type Query struct {
	Keywords        string `json:"keywords,omitempty"`
	Industry        string `json:"industry,omitempty"`
	Title           string `json:"title,omitempty"`
	Organization    string `json:"company,omitempty"`
	Location        string `json:"location,omitempty"`
	ConnectionLevel string `json:"network_depth,omitempty"`
	Limit           int    `json:"limit"`
}

// Profile is one search hit.
type Profile struct {
	URL             string          `json:"profile_url"`
	Name            string          `json:"full_name"`
	Headline        string          `json:"headline"`
	Company         string          `json:"company"`
	Location        string          `json:"location"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Industry        string          `json:"industry,omitempty"`
	ConnectionLevel string          `json:"network_depth,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Experience      json.RawMessage `json:"experience,omitempty"`
	Education       json.RawMessage `json:"education,omitempty"`
	Skills          json.RawMessage `json:"skills,omitempty"`
}

// Result is the response from POST /v1/search.
type Result struct {
	Profiles []Profile `json:"profiles"`
	Total    int       `json:"total"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the request may succeed later.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a search API client.
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

func (c *httpClient) Search(ctx context.Context, q Query) (*Result, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "search: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "search: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "search: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "search: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "search: unmarshal response")
	}
	return &result, nil
}
