// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"

	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend persists the Store's key/value pairs.
type Backend interface {
	// Load returns every stored pair. A missing store is empty, not an error.
	Load() (map[string]string, error)
	// Save replaces the stored pairs with values. Keys absent from values
	// are removed.
	Save(values map[string]string) error
	// Close releases resources.
	Close() error
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryBackend keeps credentials for the life of the process only.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[string]string{}}
}

// Load implements Backend.
func (m *MemoryBackend) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = maps.Clone(values)
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileBackend stores credentials as a JSON object in a single 0600 file.
// Writes are atomic; an empty session removes the file.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file location.
func (f *FileBackend) Path() string { return f.path }

// Load implements Backend.
func (f *FileBackend) Load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return values, nil
}

// Save implements Backend.
// SECURITY: The file and its directory are owner-only.
func (f *FileBackend) Save(values map[string]string) error {
	if len(values) == 0 {
		return util.RemoveIfExists(f.path)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(f.path, data, 0600, 0700)
}

// Close implements Backend.
func (f *FileBackend) Close() error { return nil }
