// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/ragchat/internal/telemetry"
)

// ErrRefreshFailed is returned to every request of a failure cluster when
// the shared refresh call did not produce a credential.
var ErrRefreshFailed = errors.New("credential refresh failed")

// Refresher performs the refresh call, stores the new credential and
// returns the new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Session is the credential holder consulted by the Coordinator.
type Session interface {
	TokenSource
	// ClearIfUnchanged ends the session unless its access token differs
	// from snapshot, reporting whether it did.
	ClearIfUnchanged(snapshot string) (bool, error)
}

// =============================================================================
// STATE
// =============================================================================

// State is the Coordinator's refresh state.
type State int

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

type outcome struct {
	token string
	err   error
}

type waiter struct {
	label string
	ch    chan outcome // buffered, receives exactly one outcome
}

// Coordinator guarantees a single in-flight refresh. The first request of
// a cluster of authentication failures becomes the leader and refreshes;
// every failure observed while Refreshing queues as a waiter and is
// released, in registration order, with the leader's outcome.
type Coordinator struct {
	session   Session
	refresher Refresher
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	mu      sync.Mutex
	state   State
	waiters []*waiter
}

// NewCoordinator creates an Idle Coordinator.
func NewCoordinator(session Session, refresher Refresher) *Coordinator {
	return &Coordinator{
		session:   session,
		refresher: refresher,
		timeout:   15 * time.Second,
		logger:    slog.Default(),
	}
}

// WithTimeout bounds the refresh call.
func (c *Coordinator) WithTimeout(d time.Duration) *Coordinator {
	c.timeout = d
	return c
}

// WithLogger sets the logger.
func (c *Coordinator) WithLogger(l *slog.Logger) *Coordinator {
	c.logger = l
	return c
}

// WithMetrics sets the metrics sink.
func (c *Coordinator) WithMetrics(m *telemetry.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waiting returns the number of queued waiters.
func (c *Coordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Await is called after a request sent with credential sent failed
// authentication. It returns the credential to replay with, or
// ErrRefreshFailed. label identifies the request in logs.
//
// If a refresh settled since the request was sent, the current credential
// is returned without a new refresh. ctx only bounds how long this caller
// waits; the refresh call itself is not cancelled by any one caller.
func (c *Coordinator) Await(ctx context.Context, sent, label string) (string, error) {
	c.mu.Lock()
	if c.state == Refreshing {
		w := &waiter{label: label, ch: make(chan outcome, 1)}
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()

		c.metrics.RefreshWaiter()
		select {
		case o := <-w.ch:
			return o.token, o.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if cur := c.session.Access(); cur != "" && cur != sent {
		c.mu.Unlock()
		return cur, nil
	}

	// Idle -> Refreshing. The snapshot is taken under the same lock.
	c.state = Refreshing
	t0 := c.session.Access()
	c.mu.Unlock()

	return c.lead(ctx, t0, label)
}

func (c *Coordinator) lead(ctx context.Context, t0, label string) (string, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	start := time.Now()
	token, err := c.refresher.Refresh(rctx)
	cancel()
	took := time.Since(start)

	if err == nil && token == "" {
		err = errors.New("refresh returned an empty credential")
	}
	c.metrics.Refresh(err == nil, took)

	o := outcome{token: token}
	if err != nil {
		o = outcome{err: ErrRefreshFailed}
	}

	// Teardown happens while the state is still Refreshing and without
	// c.mu: session listeners run on this goroutine.
	if err != nil {
		c.logger.Warn("REFRESH_FAILED", "error", err, "leader", label)
		c.teardown(t0)
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	if err == nil {
		c.logger.Debug("REFRESH_OK", "waiters", len(waiters), "took_ms", took.Milliseconds())
	}

	for i, w := range waiters {
		c.logger.Debug("REFRESH_WAITER_RELEASED", "position", i, "request", w.label)
		w.ch <- o
	}
	c.state = Idle
	c.mu.Unlock()

	return o.token, o.err
}

func (c *Coordinator) teardown(t0 string) {
	cleared, err := c.session.ClearIfUnchanged(t0)
	switch {
	case err != nil:
		c.logger.Warn("SESSION_TEARDOWN_FAILED", "error", err)
	case cleared:
		c.metrics.Teardown()
		c.logger.Info("SESSION_TEARDOWN", "reason", "refresh_failed")
	case c.session.Access() == "":
		c.logger.Debug("SESSION_ALREADY_EMPTY")
	default:
		c.logger.Info("SESSION_KEPT", "reason", "credential_changed_during_refresh")
	}
}
