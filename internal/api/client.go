// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/telemetry"
	"github.com/jeranaias/ragchat/internal/transport"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// envelope is the service's response wrapper.
type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error"`
	Pagination *model.Pagination `json:"pagination"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat service. Ordinary requests go through the
// authenticating middleware; the stream exchange uses its own HTTP client
// with no overall timeout.
type Client struct {
	baseURL     string
	userAgent   string
	maxResponse int64

	session    *session.Store
	stack      *transport.Stack
	http       *http.Client
	streamHTTP *http.Client

	base      http.RoundTripper
	onMissing func(*http.Request)
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client and its middleware.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink for the client and its middleware.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTransport sets the base transport under the middleware.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithStreamClient replaces the HTTP client used for stream exchanges.
func WithStreamClient(hc *http.Client) Option {
	return func(c *Client) { c.streamHTTP = hc }
}

// OnMissingCredential registers a hook for requests sent without a token.
func OnMissingCredential(fn func(*http.Request)) Option {
	return func(c *Client) { c.onMissing = fn }
}

// New creates a Client for cfg.BaseURL holding credentials in store.
func New(cfg config.APIConfig, store *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		maxResponse: cfg.MaxResponseBytes(),
		session:     store,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.stack = transport.Chain(store, c, transport.Options{
		Base:                c.base,
		RefreshTimeout:      cfg.RefreshTimeout(),
		Logger:              c.logger,
		Metrics:             c.metrics,
		OnMissingCredential: c.onMissing,
	})
	c.http = &http.Client{
		Transport: c.stack,
		Timeout:   cfg.RequestTimeout(),
	}
	if c.streamHTTP == nil {
		c.streamHTTP = stream.NewHTTPClient()
	}
	return c
}

// BaseURL returns the service root, e.g. http://localhost:5000/api/v1.
func (c *Client) BaseURL() string { return c.baseURL }

// Session returns the credential store.
func (c *Client) Session() *session.Store { return c.session }

// Coordinator returns the refresh coordinator of the middleware.
func (c *Client) Coordinator() *transport.Coordinator { return c.stack.Coordinator }

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	// token, when set, is sent instead of the session's access token.
	token string
}

// do sends the call and decodes the envelope's data into out. It returns
// the decoded envelope for callers that need pagination.
func (c *Client) do(ctx context.Context, cl call, out any) (*envelope, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := c.setHeaders(req)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("API_RESPONSE",
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"took_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	data, err := c.readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, data, requestID)
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return &env, nil
}

// setHeaders sets the common headers and returns the request id.
func (c *Client) setHeaders(req *http.Request) string {
	id := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return id
}

// readResponse reads the body up to the configured limit.
func (c *Client) readResponse(resp *http.Response) ([]byte, error) {
	limit := c.maxResponse
	if limit <= 0 {
		limit = 10 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", limit)
	}
	return body, nil
}

// IsAuthError reports whether err means the session is no longer usable.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotAuthenticated)
}
