// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the authenticating HTTP middleware.
//
// Requests pass through two http.RoundTripper layers:
//
//	RefreshTransport -> AuthTransport -> base transport
//
// AuthTransport attaches the session's access token. RefreshTransport turns
// a 401 into a single coordinated refresh followed by one replay of each
// rejected request. Chain builds the stack for an http.Client.
package transport
