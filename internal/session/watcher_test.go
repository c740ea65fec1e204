// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/logging"
)

// TestWatcher_PicksUpOtherProcessLogin simulates two clients sharing one
// session file: a login written by one becomes visible to the other.
func TestWatcher_PicksUpOtherProcessLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	reader := newTestStore(t, NewFileBackend(path))
	w, err := NewWatcher(reader, path, 20*time.Millisecond, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	writer := newTestStore(t, NewFileBackend(path))
	require.NoError(t, writer.SetTokens("from-other-terminal", "r"))

	assert.Eventually(t, func() bool {
		return reader.Access() == "from-other-terminal"
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, writer.Clear())
	assert.Eventually(t, func() bool {
		return !reader.IsAuthenticated()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	reader := newTestStore(t, NewFileBackend(path))
	w, err := NewWatcher(reader, path, 10*time.Millisecond, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	other := NewFileBackend(filepath.Join(dir, "config.json"))
	require.NoError(t, other.Save(map[string]string{KeyAccessToken: "nope"}))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, reader.IsAuthenticated())
}

func TestWatcher_CloseIsClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	w, err := NewWatcher(newTestStore(t, NewMemoryBackend()), path, time.Millisecond, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
