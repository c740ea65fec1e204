// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jeranaias/ragchat/internal/telemetry"
)

// Options configures Chain.
type Options struct {
	Base           http.RoundTripper
	Exclusions     Exclusions
	RefreshTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *telemetry.Metrics
	// OnMissingCredential is called for requests sent without a token.
	OnMissingCredential func(*http.Request)
}

// Stack is a wired middleware chain.
type Stack struct {
	Auth        *AuthTransport
	Refresh     *RefreshTransport
	Coordinator *Coordinator
}

// RoundTrip implements http.RoundTripper.
func (s *Stack) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.Refresh.RoundTrip(req)
}

// Chain builds RefreshTransport -> AuthTransport -> opts.Base.
func Chain(session Session, refresher Refresher, opts Options) *Stack {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Exclusions == nil {
		opts.Exclusions = DefaultExclusions
	}

	auth := NewAuthTransport(opts.Base, session).
		WithExclusions(opts.Exclusions).
		WithLogger(opts.Logger).
		WithMetrics(opts.Metrics).
		OnMissingCredential(opts.OnMissingCredential)

	coord := NewCoordinator(session, refresher).
		WithLogger(opts.Logger).
		WithMetrics(opts.Metrics)
	if opts.RefreshTimeout > 0 {
		coord.WithTimeout(opts.RefreshTimeout)
	}

	refresh := NewRefreshTransport(auth, coord).
		WithExclusions(opts.Exclusions).
		WithLogger(opts.Logger).
		WithMetrics(opts.Metrics)

	return &Stack{Auth: auth, Refresh: refresh, Coordinator: coord}
}
