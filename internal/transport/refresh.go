// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jeranaias/ragchat/internal/telemetry"
)

// maxDrain bounds how much of a rejected response body is read before the
// connection is reused.
const maxDrain = 64 << 10

// RefreshTransport intercepts 401 responses outside its exclusion set,
// obtains a fresh credential through the Coordinator and replays the
// original request exactly once. It sits outside AuthTransport so that
// replays are attached like any other request.
type RefreshTransport struct {
	next       http.RoundTripper
	coord      *Coordinator
	exclusions Exclusions
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// NewRefreshTransport wraps next.
func NewRefreshTransport(next http.RoundTripper, coord *Coordinator) *RefreshTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RefreshTransport{
		next:       next,
		coord:      coord,
		exclusions: DefaultExclusions,
		logger:     slog.Default(),
	}
}

// WithExclusions replaces the set of endpoints whose 401s pass through.
func (t *RefreshTransport) WithExclusions(e Exclusions) *RefreshTransport {
	t.exclusions = e
	return t
}

// WithLogger sets the logger.
func (t *RefreshTransport) WithLogger(l *slog.Logger) *RefreshTransport {
	t.logger = l
	return t
}

// WithMetrics sets the metrics sink.
func (t *RefreshTransport) WithMetrics(m *telemetry.Metrics) *RefreshTransport {
	t.metrics = m
	return t
}

// RoundTrip implements http.RoundTripper.
//
// Non-401 outcomes and transport errors pass through untouched. When the
// refresh fails the original 401 is returned. A replay that fails again is
// returned as is and never triggers a second refresh.
func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}

	req, slot := withSentSlot(req)
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || t.exclusions.Match(req.URL) {
		return resp, err
	}

	label := req.Method + " " + redactURL(req.URL)
	token, err := t.coord.Await(req.Context(), sentCredential(req, resp, slot), label)
	if err != nil {
		if req.Context().Err() != nil {
			resp.Body.Close()
			return nil, req.Context().Err()
		}
		t.logger.Debug("REPLAY_SKIPPED", "request", label, "error", err)
		return resp, nil
	}

	retry, err := withCredential(req, token)
	if err != nil {
		// The body can't be replayed. Surface the original rejection.
		t.metrics.Replay(telemetry.ReplayError)
		t.logger.Warn("REPLAY_FAILED", "request", label, "error", err)
		return resp, nil
	}
	discard(resp)

	out, err := t.next.RoundTrip(retry)
	switch {
	case err != nil:
		t.metrics.Replay(telemetry.ReplayError)
	case out.StatusCode == http.StatusUnauthorized:
		t.metrics.Replay(telemetry.ReplayUnauthorized)
		t.logger.Warn("REPLAY_UNAUTHORIZED", "request", label)
	default:
		t.metrics.Replay(telemetry.ReplayOK)
	}
	return out, err
}

// rewindable makes sure req's body can be read a second time.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.ContentLength = int64(len(data))
	return out, nil
}

// withCredential clones req with a fresh body and the given bearer token.
func withCredential(req *http.Request, token string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return out, nil
}

// sentCredential returns the bearer token the rejected request carried:
// what AuthTransport recorded in slot, else the header of resp.Request or
// of req itself.
func sentCredential(req *http.Request, resp *http.Response, slot *sentSlot) string {
	if slot.token != "" {
		return slot.token
	}
	h := req.Header.Get("Authorization")
	if resp.Request != nil {
		if v := resp.Request.Header.Get("Authorization"); v != "" {
			h = v
		}
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()
}
