// Package adminapi is a thin REST client for the school administration backend.
//
// Every request carries the bearer token from a session.Source and a fresh
// X-Request-ID. Responses use the backend's {success, data, error} envelope;
// 401 responses surface as ErrAuthRequired and every other failure as *APIError.
package adminapi

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
	"time"

	"github.com/google/uuid"

	"github.com/schoolbooks/admin-console/internal/session"
	"github.com/schoolbooks/admin-console/internal/telemetry"
)

// RequestIDHeader is the header carrying the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxResponseBytes bounds JSON responses.
const maxResponseBytes = 16 << 20

// maxExportBytes bounds a server-rendered CSV export.
var maxExportBytes int64 = 256 << 20

// Client calls the admin API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     session.Source
	userAgent  string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, tokens session.Source, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("adminapi: invalid base URL %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		userAgent:  "admin-console",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request sends one call. endpoint is the route template used for metrics and
// logs; path is the concrete request path; accept is the wanted media type.
func (c *Client) request(ctx context.Context, method, endpoint, path, accept string, query url.Values, body any) (*http.Response, error) {
	token, err := session.Bearer(c.tokens)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("adminapi: encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("adminapi: create %s request: %w", endpoint, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		telemetry.ObserveAPIRequest(method, endpoint, 0, elapsed)
		slog.Debug("admin api request failed", "method", method, "endpoint", endpoint, "request_id", requestID, "error", err)
		return nil, NewAPIError(0, "admin api unreachable", err)
	}
	telemetry.ObserveAPIRequest(method, endpoint, resp.StatusCode, elapsed)
	slog.Debug("admin api request", "method", method, "endpoint", endpoint, "status", resp.StatusCode,
		"request_id", requestID, "duration_ms", elapsed.Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		return nil, ErrAuthRequired
	}
	return resp, nil
}

// doJSON sends a call and decodes the envelope. A non-2xx status or
// success:false becomes an *APIError carrying the backend message.
func (c *Client) doJSON(ctx context.Context, method, endpoint, path string, query url.Values, body any) (*envelope, error) {
	resp, err := c.request(ctx, method, endpoint, path, "application/json", query, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewAPIError(resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewAPIError(resp.StatusCode, errorMessage(data, resp.StatusCode), nil)
	}

	env := &envelope{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return env, nil
	}
	if trimmed[0] == '[' {
		// Bare list without an envelope.
		env.Data = trimmed
		return env, nil
	}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, NewAPIError(resp.StatusCode, "invalid response from admin api", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, NewAPIError(resp.StatusCode, env.message(fmt.Sprintf("admin api reported failure (status %d)", resp.StatusCode)), nil)
	}
	return env, nil
}
