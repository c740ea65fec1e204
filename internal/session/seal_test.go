// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_SealOpen(t *testing.T) {
	salt, err := LoadOrCreateSalt(filepath.Join(t.TempDir(), "s.salt"))
	require.NoError(t, err)
	s, err := NewSealer("passphrase", salt)
	require.NoError(t, err)

	sealed, err := s.Seal("eyJ.token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, SealedPrefix))
	assert.NotContains(t, sealed, "eyJ.token")

	again, err := s.Seal("eyJ.token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "eyJ.token", plain)
}

func TestSealer_OpenPassesThroughPlaintext(t *testing.T) {
	s, err := NewSealer("p", make([]byte, saltSize))
	require.NoError(t, err)

	plain, err := s.Open("legacy-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", plain)
}

func TestSealer_Errors(t *testing.T) {
	salt := make([]byte, saltSize)
	s1, err := NewSealer("one", salt)
	require.NoError(t, err)
	s2, err := NewSealer("two", salt)
	require.NoError(t, err)

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = s1.Open(SealedPrefix + "!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = NewSealer("", salt)
	assert.Error(t, err)
}

func TestLoadOrCreateSalt_Stable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json.salt")

	first, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Len(t, first, saltSize)

	second, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
