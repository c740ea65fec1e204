// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to Markdown, JSON or HTML files.
//
// # Usage
//
//	t := export.NewTranscript(id, messages)
//	exp, err := export.ForFormat("markdown", opts)
//	path, err := export.ToFile(t, exp, opts)
package export
