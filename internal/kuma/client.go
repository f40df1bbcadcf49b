// Package kuma is the HTTP client for the upstream uptime-monitoring
// source. It is stateless and does no client-side caching; every call hits
// the network.
package kuma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/poer2023/uptime-sync/internal/config"
)

// Monitor is one monitored target as the upstream reports it.
type Monitor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Interval    int    `json:"interval"`
	Active      bool   `json:"active"`
	Description string `json:"description"`
}

// Heartbeat is one status sample as the upstream reports it.
// Status: 0=down, 1=up, 2=pending. Time is the source's clock.
type Heartbeat struct {
	Status     int       `json:"status"`
	Time       time.Time `json:"time"`
	Ping       *int      `json:"ping"`
	StatusCode *int      `json:"statusCode"`
	Msg        string    `json:"msg"`
}

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kuma api: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the upstream monitoring API with bearer authentication.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new upstream API client
func NewClient(cfg config.KumaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether both the base URL and the credential are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// HealthCheck probes the upstream health endpoint. An unconfigured client
// returns false without any network I/O.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// ListMonitors fetches the full monitor list from the upstream.
func (c *Client) ListMonitors(ctx context.Context) ([]Monitor, error) {
	var monitors []Monitor
	if err := c.get(ctx, "/monitors", &monitors); err != nil {
		return nil, err
	}
	return monitors, nil
}

// ListHeartbeats fetches the most recent heartbeats for one monitor,
// newest first, bounded by limit.
func (c *Client) ListHeartbeats(ctx context.Context, kumaID string, limit int) ([]Heartbeat, error) {
	path := fmt.Sprintf("/monitors/%s/beats?limit=%d", url.PathEscape(kumaID), limit)

	var beats []Heartbeat
	if err := c.get(ctx, path, &beats); err != nil {
		return nil, err
	}
	return beats, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if !c.Configured() {
		return fmt.Errorf("kuma client is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bound the body so a misbehaving upstream cannot blow up memory.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
