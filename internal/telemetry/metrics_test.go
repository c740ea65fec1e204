// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.RequestWithoutCredential()
	m.RequestWithoutCredential()
	m.Refresh(true, 120*time.Millisecond)
	m.Refresh(false, time.Second)
	m.Refresh(false, time.Second)
	m.RefreshWaiter()
	m.Replay(ReplayOK)
	m.Replay(ReplayUnauthorized)
	m.Teardown()
	m.StreamFrame(FrameToken)
	m.StreamFrame(FrameToken)
	m.StreamFrame(FrameIgnored)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsWithoutCredential))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshes.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshWaiters))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues(ReplayOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues(ReplayUnauthorized)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.teardowns))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.streamFrames.WithLabelValues(FrameToken)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamFrames.WithLabelValues(FrameIgnored)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RequestWithoutCredential()
		m.Refresh(true, time.Millisecond)
		m.RefreshWaiter()
		m.Replay(ReplayError)
		m.Teardown()
		m.StreamFrame(FrameDone)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Teardown()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ragchat_session_teardowns_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_ServeAndShutdown(t *testing.T) {
	m := New()
	m.RefreshWaiter()

	srv, err := m.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + srv.Addr() + "/metrics")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(data), "ragchat_refresh_waiters_total 1"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListen_BadAddress(t *testing.T) {
	_, err := New().Listen("not-an-address", nil)
	assert.Error(t, err)
}
