// Package api provides the shared HTTP client for the marketplace backend.
// Every request carries the current access token; a 401 triggers exactly one
// transparent token refresh and retry per original request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/marketctl/metrics"
	"github.com/google/uuid"
)

// maxResponseSize limits response bodies to prevent memory exhaustion.
const maxResponseSize = 4 * 1024 * 1024 // 4MB

// TokenSource supplies the access token attached to requests and mints a new
// one when the backend rejects it. session.Manager implements it.
type TokenSource interface {
	// AccessToken returns the current access token, or "" when there is no
	// session. Requests without a token go out unauthenticated.
	AccessToken() string

	// Refresh exchanges the refresh token for a new access token. On failure
	// the implementation clears the session before returning.
	Refresh(ctx context.Context) (string, error)
}

// Client is the shared marketplace API client. One instance is meant to be
// shared by every service in the process so they agree on session state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTokenSource sets the token source. Without one the client sends
// unauthenticated requests and never retries a 401.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(client *Client) {
		client.tokens = ts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(client *Client) {
		client.metrics = m
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get issues a GET and decodes the 2xx response body into out (if non-nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON payload and decodes the 2xx response body
// into out (if non-nil).
func (c *Client) Post(ctx context.Context, path string, payload any, out any) error {
	return c.Do(ctx, http.MethodPost, path, payload, out)
}

// Do issues a request against the backend. The path is joined to the base URL
// verbatim: trailing slashes are significant and must match the backend's
// routing exactly.
//
// On a 401 the client refreshes the access token once and re-issues the
// original request with the new token. A request is never retried more than
// once, which bounds the cost to O(1) per call and prevents a refresh loop
// when the backend keeps rejecting the refreshed token. Concurrent in-flight
// requests that each hit a 401 each trigger their own refresh. That is a
// known inefficiency: refreshes are idempotent server-side, so the cost is
// extra round trips, not incorrect state.
func (c *Client) Do(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	requestID := uuid.New().String()
	token := ""
	if c.tokens != nil {
		token = c.tokens.AccessToken()
	}

	resp, err := c.send(ctx, method, path, body, token, requestID)
	if err != nil {
		c.metrics.ObserveRequest(method, 0)
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
		drain(resp)

		c.logger.Debug("Received 401, refreshing token",
			slog.String("request_id", requestID),
			slog.String("path", path))

		newToken, refreshErr := c.tokens.Refresh(ctx)
		c.metrics.ObserveRefresh(refreshErr == nil)
		if refreshErr != nil {
			c.metrics.ObserveRequest(method, http.StatusUnauthorized)
			return refreshErr
		}

		resp, err = c.send(ctx, method, path, body, newToken, requestID)
		if err != nil {
			c.metrics.ObserveRequest(method, 0)
			return err
		}
	}
	defer resp.Body.Close()

	c.metrics.ObserveRequest(method, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status: resp.StatusCode,
			Detail: readErrorDetail(resp.Body),
		}
		c.logger.Debug("Request failed",
			slog.String("request_id", requestID),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send issues one HTTP round trip. The body is rebuilt from the buffered
// payload so the retry after a refresh sends identical bytes.
func (c *Client) send(ctx context.Context, method, path string, body []byte, token, requestID string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{err: err}
	}
	return resp, nil
}

// drain discards and closes a response body so the connection is reusable.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	resp.Body.Close()
}

// readErrorDetail extracts the human-readable reason from a backend error
// body. The backend is inconsistent about the field name.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxResponseSize))
	if err != nil {
		return ""
	}

	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}

	switch {
	case body.Error != "":
		return body.Error
	case body.Detail != "":
		return body.Detail
	case body.Message != "":
		return body.Message
	}
	return ""
}
