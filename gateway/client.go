// Package gateway provides an authenticated HTTP client for the Ignition
// Gateway REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds each gateway request when no client is injected.
const DefaultTimeout = 30 * time.Second

// statusPath reports the health of remote servers on the gateway network.
const statusPath = "/system/gateway-network/remote-servers/status"

// StatusError is returned when the gateway responds with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Code, e.Body)
}

// Client issues authenticated requests against an Ignition Gateway.
//
// Credentials are held in one of two mutually exclusive forms: a static API
// token, or a username/password pair. Auth headers are computed fresh on
// every round trip, so rotated credentials apply to the next request without
// rebuilding the client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	apiKey   string
	username string
	password string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped
// with the credential-injecting round tripper, so a retrying client keeps
// its retry behavior.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIKey configures static API-token authentication.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBasicAuth configures username/password authentication. Ignored when an
// API key is also configured.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the gateway at baseURL. A trailing slash on
// baseURL is stripped so request paths can always begin with one.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	inner := c.httpClient
	if inner == nil {
		inner = &http.Client{Timeout: DefaultTimeout}
	}
	c.httpClient = &http.Client{
		Transport: &authTransport{base: inner.Transport, credentials: c.authHeader},
		Timeout:   inner.Timeout,
	}

	return c
}

// BaseURL returns the normalized gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAPIKey replaces the API token. Takes effect on the next request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// SetBasicAuth replaces the username/password pair. Takes effect on the next
// request unless an API key is configured.
func (c *Client) SetBasicAuth(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

// authHeader computes the auth header for a single request. An API token
// wins over basic credentials when both are present.
func (c *Client) authHeader() http.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-Ignition-API-Token", c.apiKey)
		return header
	}
	if c.username != "" || c.password != "" {
		header.Set("Authorization", "Basic "+basicToken(c.username, c.password))
	}
	return header
}

// Do issues an authenticated request and decodes the response.
//
// JSON responses are decoded into their natural Go shape; any other content
// type is wrapped in a minimal {"status": "success", "content": ...}
// envelope. A non-2xx status returns a *StatusError; callers own the policy
// of converting that into a user-facing result.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header) (any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("gateway request", "method", req.Method, "url", u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("decoding gateway response: %w", err)
		}
		return decoded, nil
	}

	return map[string]any{"status": "success", "content": string(data)}, nil
}

// GatewayStatus reports the gateway-network status of remote servers.
func (c *Client) GatewayStatus(ctx context.Context) (any, error) {
	return c.Do(ctx, http.MethodGet, statusPath, nil, nil, nil)
}

// FetchSpec retrieves the gateway's OpenAPI document as raw bytes.
//
// Credentials sufficient for data operations may not be allowed to read the
// introspection endpoint, so any failure here degrades to a minimal empty
// document instead of an error. Data-plane tools stay usable either way.
func (c *Client) FetchSpec(ctx context.Context) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/openapi.json", nil)
	if err != nil {
		c.logger.Warn("building spec request failed", "error", err)
		return emptySpec()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("fetching OpenAPI spec failed", "error", err)
		return emptySpec()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("OpenAPI spec not available", "status", resp.StatusCode)
		return emptySpec()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("reading OpenAPI spec failed", "error", err)
		return emptySpec()
	}

	return data
}

func emptySpec() []byte {
	return []byte(`{"openapi":"3.0.0","info":{"title":"Ignition Gateway","version":"0.0.0"},"paths":{}}`)
}
