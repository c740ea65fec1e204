// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides prometheus metrics for ragchat.
//
// Metrics live on a private registry, never the global default, so tests
// and multiple clients in one process do not collide.
//
// # Key Types
//
//   - Metrics: Counters for refreshes, replays, teardowns and stream frames
//   - Server: Optional /metrics endpoint bound for one command's lifetime
//
// # Usage
//
//	m := telemetry.New()
//	srv, err := m.Listen("127.0.0.1:9464", logger)
//	if err == nil {
//	    go srv.Serve(ctx)
//	}
//	m.Refresh(true, time.Since(start))
//
// # Privacy
//
// Metrics are counters only. Tokens, prompts and answers are never recorded.
package telemetry
