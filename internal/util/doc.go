// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the ragchat packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync, used for
//     credential and config files
//   - RemoveIfExists: Idempotent delete
//
// String Utilities:
//   - TruncateWidth: Display-width aware truncation with ellipsis
//   - OneLine: Collapse whitespace for single-line previews
//
// # Usage
//
//	if err := util.AtomicWriteFile(path, data, 0600, 0700); err != nil {
//	    return err
//	}
//	preview := util.TruncateWidth(util.OneLine(text), 60)
package util
