// Package supervisor talks to the Home Assistant Supervisor API to check and
// reload the core configuration.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single check or reload call
const DefaultTimeout = 30 * time.Second

const (
	checkConfigPath = "/core/api/config/core/check"
	reloadCorePath  = "/core/api/services/homeassistant/reload_core_config"
)

// ErrUnavailable is returned when no Supervisor token is configured
var ErrUnavailable = errors.New("supervisor token not configured")

// CheckResult is the outcome of a configuration check
type CheckResult struct {
	Valid  bool   `json:"valid"`
	Result string `json:"result"`
	Errors string `json:"errors,omitempty"`
	// Payload is the core's response as received, without the Supervisor wrapper
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConfigChecker validates and reloads the Home Assistant core configuration
type ConfigChecker interface {
	Available() bool
	CheckConfig(ctx context.Context) (*CheckResult, error)
	ReloadCoreConfig(ctx context.Context) error
}

// Client is an HTTP client for the Supervisor API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a client for the Supervisor at baseURL authenticating with token
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Available reports whether the client has credentials to call the Supervisor
func (c *Client) Available() bool {
	return c.token != ""
}

// checkPayload is the core check response
type checkPayload struct {
	Result string          `json:"result"`
	Errors json.RawMessage `json:"errors"`
}

// checkResponse accepts both the bare core response and the Supervisor's {"data": ...} wrapper
type checkResponse struct {
	checkPayload
	Data json.RawMessage `json:"data"`
}

// CheckConfig asks Home Assistant to validate the configuration on disk
func (c *Client) CheckConfig(ctx context.Context) (*CheckResult, error) {
	body, err := c.post(ctx, checkConfigPath)
	if err != nil {
		return nil, err
	}

	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode check response: %w", err)
	}

	payload, raw := resp.checkPayload, json.RawMessage(body)
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		var data checkPayload
		if err := json.Unmarshal(resp.Data, &data); err == nil && data.Result != "" {
			payload, raw = data, resp.Data
		}
	}
	if payload.Result == "" {
		return nil, fmt.Errorf("check response has no result: %s", truncate(string(body)))
	}

	return &CheckResult{
		Valid:   payload.Result == "valid",
		Result:  payload.Result,
		Errors:  errorsText(payload.Errors),
		Payload: raw,
	}, nil
}

// ReloadCoreConfig asks Home Assistant to reload its core configuration
func (c *Client) ReloadCoreConfig(ctx context.Context) error {
	_, err := c.post(ctx, reloadCorePath)
	return err
}

func (c *Client) post(ctx context.Context, path string) ([]byte, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("supervisor returned status %d: %s", resp.StatusCode, truncate(string(body)))
	}

	return body, nil
}

// errorsText renders the check errors, which Home Assistant sends as a string or null
func errorsText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
