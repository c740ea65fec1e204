// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/telemetry"
)

// App is the state shared by every command of one invocation.
type App struct {
	// Flags.
	configPath string
	apiURL     string
	category   string
	verbose    bool
	jsonMode   bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer

	store   *session.Opened
	metrics *telemetry.Metrics
	client  *api.Client

	stopMetrics context.CancelFunc
	metricsDone chan error

	// missingCredential is set when a request left without a session.
	missingCredential atomic.Bool
}

// loadConfig reads the configuration and applies flag overrides.
func (a *App) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(a.errOut, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
	}

	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
	}
	if a.category != "" {
		cfg.API.DefaultCategory = a.category
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := logging.Open(cfg.Log)
	if err != nil {
		return err
	}
	a.logger, a.logCloser = logger, closer
	return nil
}

// connect opens the session store and builds the API client. Commands
// that only touch configuration never call it.
func (a *App) connect() (*api.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	store, err := session.Open(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	a.store = store

	a.metrics = telemetry.New()
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Listen != "" {
		if err := a.serveMetrics(); err != nil {
			a.logger.Warn("METRICS_UNAVAILABLE", "addr", a.cfg.Metrics.Listen, "error", err)
		}
	}

	a.client = api.New(a.cfg.API, store.Store,
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
		api.OnMissingCredential(func(*http.Request) { a.missingCredential.Store(true) }),
	)
	return a.client, nil
}

// requireSession connects and fails early when nobody is logged in.
func (a *App) requireSession() (*api.Client, error) {
	c, err := a.connect()
	if err != nil {
		return nil, err
	}
	if !c.Session().IsAuthenticated() {
		return nil, api.ErrNotAuthenticated
	}
	return c, nil
}

func (a *App) serveMetrics() error {
	srv, err := a.metrics.Listen(a.cfg.Metrics.Listen, a.logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopMetrics = cancel
	a.metricsDone = make(chan error, 1)
	go func() { a.metricsDone <- srv.Serve(ctx) }()
	return nil
}

// Close releases everything connect and loadConfig acquired.
func (a *App) Close() error {
	var errs []error
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}
