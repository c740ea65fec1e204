// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/ragchat/internal/config"
)

// watchDebounce absorbs the write/rename pair of an atomic file update.
const watchDebounce = 150 * time.Millisecond

// Opened is a Store built from configuration, plus the watcher keeping it
// in sync with other processes when enabled.
type Opened struct {
	*Store
	watcher *Watcher
}

// Close stops the watcher and closes the store.
func (o *Opened) Close() error {
	if o.watcher != nil {
		o.watcher.Close()
	}
	return o.Store.Close()
}

// Open builds the Store described by cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Opened, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := cfg.SessionPath()
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch cfg.Session.Backend {
	case config.BackendMemory:
		backend = NewMemoryBackend()
	case config.BackendSQLite:
		backend, err = NewSQLiteBackend(path)
		if err != nil {
			return nil, err
		}
	case config.BackendFile, "":
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		backend = NewFileBackend(path)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}

	if cfg.Session.Encrypt && cfg.Session.Backend != config.BackendMemory {
		salt, err := LoadOrCreateSalt(path + ".salt")
		if err != nil {
			backend.Close()
			return nil, err
		}
		sealer, err := NewSealer(cfg.Session.Passphrase, salt)
		if err != nil {
			backend.Close()
			return nil, err
		}
		backend = Sealed(backend, sealer)
	}

	store, err := NewStore(WithBackend(backend), WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	o := &Opened{Store: store}
	if cfg.Session.Watch && cfg.Session.Backend != config.BackendMemory {
		w, err := NewWatcher(store, path, watchDebounce, logger)
		if err != nil {
			// Not fatal: cross-process updates are picked up on next start.
			logger.Debug("SESSION_WATCH_UNAVAILABLE", "error", err)
		} else {
			o.watcher = w
		}
	}
	return o, nil
}
