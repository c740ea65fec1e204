// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for ragchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - APIConfig: Base URL and timeouts for the chat service
//   - SessionConfig: Credential storage backend and sealing
//   - LogConfig, MetricsConfig, UIConfig: Ambient settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RAGCHAT_*)
//   - $RAGCHAT_HOME/config.toml (default ~/.ragchat/config.toml)
//   - $RAGCHAT_HOME/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil && cfg == nil {
//	    log.Fatal(err)
//	}
//	client := api.NewClient(cfg.API.BaseURL, ...)
package config
