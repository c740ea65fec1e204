// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// METRIC LABELS
// =============================================================================

// Refresh results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Replay results.
const (
	ReplayOK           = "ok"
	ReplayUnauthorized = "unauthorized"
	ReplayError        = "error"
)

// Stream frame kinds. Frames that are not data lines, fail to decode, or
// carry an unknown type are counted as ignored.
const (
	FrameToken   = "token"
	FrameSources = "sources"
	FrameDone    = "done"
	FrameError   = "error"
	FrameIgnored = "ignored"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the client-side counters for the session middleware and
// the stream decoder. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsWithoutCredential prometheus.Counter
	refreshes                 *prometheus.CounterVec
	refreshDuration           prometheus.Histogram
	refreshWaiters            prometheus.Counter
	replays                   *prometheus.CounterVec
	teardowns                 prometheus.Counter
	streamFrames              *prometheus.CounterVec
}

// New creates Metrics on a private registry. Process and Go runtime
// collectors are included so /metrics is useful on its own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestsWithoutCredential: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "requests_without_credential_total",
			Help:      "Outgoing requests sent without an access token",
		}),

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "refresh_total",
			Help:      "Credential refresh calls by result",
		}, []string{"result"}),

		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragchat",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of credential refresh calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}),

		refreshWaiters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "refresh_waiters_total",
			Help:      "Requests that queued behind an in-flight refresh",
		}),

		replays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "replays_total",
			Help:      "Requests replayed with a refreshed credential, by result",
		}, []string{"result"}),

		teardowns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "session_teardowns_total",
			Help:      "Sessions cleared after a failed refresh",
		}),

		streamFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "stream_frames_total",
			Help:      "Decoded stream lines by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RequestWithoutCredential counts a request sent with no access token.
func (m *Metrics) RequestWithoutCredential() {
	if m == nil {
		return
	}
	m.requestsWithoutCredential.Inc()
}

// Refresh records the outcome and duration of one refresh call.
func (m *Metrics) Refresh(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	result := ResultFailure
	if ok {
		result = ResultSuccess
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(took.Seconds())
}

// RefreshWaiter counts a request that joined an in-flight refresh.
func (m *Metrics) RefreshWaiter() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

// Replay records the outcome of a replayed request.
func (m *Metrics) Replay(result string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(result).Inc()
}

// Teardown counts a session cleared after refresh failure.
func (m *Metrics) Teardown() {
	if m == nil {
		return
	}
	m.teardowns.Inc()
}

// StreamFrame counts one decoded stream line.
func (m *Metrics) StreamFrame(kind string) {
	if m == nil {
		return
	}
	m.streamFrames.WithLabelValues(kind).Inc()
}
