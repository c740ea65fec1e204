// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the client's credentials.
//
// A Store keeps the access token, refresh token and user of the current
// login. Reads never block: every pending request may consult the Store
// concurrently while a single writer (login, logout, refresh) swaps in a
// new immutable Session.
//
// # Key Types
//
//   - Store: Lock-free readable session holder with write-through persistence
//   - Backend: Persistence interface (MemoryBackend, FileBackend, SQLiteBackend)
//   - Sealer: AES-256-GCM sealing of stored values under a passphrase
//   - Watcher: fsnotify-driven reload when another process logs in or out
//
// # Usage
//
//	opened, err := session.Open(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer opened.Close()
//
//	if opened.IsAuthenticated() {
//	    fmt.Println("logged in as", opened.User().DisplayName())
//	}
//
// # Security
//
// File and SQLite stores are created 0600 inside a 0700 directory.
// Tokens are never logged.
package session
