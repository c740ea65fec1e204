// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the client for the retrieval-augmented chat service.
//
// Every response is wrapped in an envelope:
//
//	{"success": true, "message": "...", "data": {...}, "pagination": {...}}
//
// Failures carry "error" and "message" and are returned as *Error, which
// unwraps to a sentinel such as ErrUnauthorized or ErrNotFound.
//
// Requests run through the transport package's middleware, so an expired
// access token is refreshed once and the request replayed. Client itself
// is the middleware's Refresher.
package api
