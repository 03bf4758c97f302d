// Package dialer is a client for the outbound calling provider.
package dialer

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

const defaultBaseURL = "https://api.voicedialer.io"

// Client places batches of outbound calls.
type Client interface {
	BatchCall(ctx context.Context, req BatchRequest) (*BatchResult, error)
}

// Lead is one callee.
type Lead struct {
	ID           string `json:"lead_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Organization string `json:"company,omitempty"`
	Title        string `json:"title,omitempty"`
}

// BatchRequest is the body for POST /v1/calls/batch.
type BatchRequest struct {
	Campaign string `json:"campaign"`
	Leads    []Lead `json:"leads"`
}

// CallOutcome is the per-lead result.
type CallOutcome struct {
	LeadID string `json:"lead_id"`
	CallID string `json:"call_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Succeeded reports whether the call was placed.
func (o CallOutcome) Succeeded() bool {
	return o.Status == "queued" || o.Status == "completed" || o.Status == "in_progress"
}

// BatchResult is the response from POST /v1/calls/batch.
type BatchResult struct {
	BatchID string        `json:"batch_id"`
	Calls   []CallOutcome `json:"calls"`
}

// Counts returns successful and failed call counts.
func (r *BatchResult) Counts() (succeeded, failed int) {
	for _, c := range r.Calls {
		if c.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dialer: unexpected status %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a dialer API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) BatchCall(ctx context.Context, breq BatchRequest) (*BatchResult, error) {
	if len(breq.Leads) == 0 {
		return &BatchResult{}, nil
	}
	body, err := json.Marshal(breq)
	if err != nil {
		return nil, eris.Wrap(err, "dialer: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/calls/batch", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "dialer: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "dialer: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "dialer: read response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result BatchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "dialer: unmarshal response")
	}
	return &result, nil
}
