// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/ragchat/internal/telemetry"
)

// TokenSource returns the current access token, or "" when logged out.
// Implementations must be safe for concurrent use without blocking.
type TokenSource interface {
	Access() string
}

// =============================================================================
// AUTH TRANSPORT
// =============================================================================

// AuthTransport attaches the session's access token as a bearer credential
// to every request outside its exclusion set. It never inspects responses
// and never retries.
//
// A request that already carries an Authorization header is sent as is;
// that is how the refresh and logout calls present their own credential.
type AuthTransport struct {
	base       http.RoundTripper
	tokens     TokenSource
	exclusions Exclusions
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	onMissing  func(*http.Request)

	// PERFORMANCE: a burst of unauthenticated requests logs once, not N times
	warnLimiter *rate.Limiter
}

// NewAuthTransport wraps base. A nil base means http.DefaultTransport.
func NewAuthTransport(base http.RoundTripper, tokens TokenSource) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{
		base:        base,
		tokens:      tokens,
		exclusions:  DefaultExclusions,
		logger:      slog.Default(),
		warnLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// WithExclusions replaces the set of endpoints that never get the token.
func (t *AuthTransport) WithExclusions(e Exclusions) *AuthTransport {
	t.exclusions = e
	return t
}

// WithLogger sets the logger used for diagnostics.
func (t *AuthTransport) WithLogger(l *slog.Logger) *AuthTransport {
	t.logger = l
	return t
}

// WithMetrics sets the metrics sink.
func (t *AuthTransport) WithMetrics(m *telemetry.Metrics) *AuthTransport {
	t.metrics = m
	return t
}

// OnMissingCredential registers fn, called for every request that is sent
// without a credential it should have had.
func (t *AuthTransport) OnMissingCredential(fn func(*http.Request)) *AuthTransport {
	t.onMissing = fn
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if h := req.Header.Get("Authorization"); h != "" {
		recordSent(req, strings.TrimPrefix(h, "Bearer "))
		return t.base.RoundTrip(req)
	}

	token := t.tokens.Access()
	if token != "" {
		if t.exclusions.Match(req.URL) {
			return t.base.RoundTrip(req)
		}
		// RoundTrippers must not modify the caller's request
		out := req.Clone(req.Context())
		out.Header.Set("Authorization", "Bearer "+token)
		recordSent(req, token)
		return t.base.RoundTrip(out)
	}

	if !anonymousEndpoints.Match(req.URL) {
		t.missingCredential(req)
	}
	return t.base.RoundTrip(req)
}

// missingCredential surfaces a request sent without a token. The server
// remains authoritative on rejecting it.
func (t *AuthTransport) missingCredential(req *http.Request) {
	t.metrics.RequestWithoutCredential()
	if t.warnLimiter.Allow() {
		t.logger.Warn("REQUEST_WITHOUT_CREDENTIAL",
			"method", req.Method,
			"url", redactURL(req.URL),
		)
	}
	if t.onMissing != nil {
		t.onMissing(req)
	}
}

// =============================================================================
// SENT CREDENTIAL
// =============================================================================

type sentKey struct{}

// sentSlot receives the credential AuthTransport put on the wire. The
// response cannot be trusted to carry it: resp.Request is optional for
// RoundTrippers.
type sentSlot struct {
	token string
}

// withSentSlot returns req with an empty slot in its context.
func withSentSlot(req *http.Request) (*http.Request, *sentSlot) {
	slot := &sentSlot{}
	return req.WithContext(context.WithValue(req.Context(), sentKey{}, slot)), slot
}

func recordSent(req *http.Request, token string) {
	if slot, ok := req.Context().Value(sentKey{}).(*sentSlot); ok {
		slot.token = token
	}
}
