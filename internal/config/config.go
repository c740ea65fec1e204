// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for ragchat.
//
// CONFIG: Comprehensive validation ensures safe configuration
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the top-level ragchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// API controls how the client talks to the chat service.
	API APIConfig `toml:"api" json:"api"`

	// Session controls where credentials are kept between runs.
	Session SessionConfig `toml:"session" json:"session"`

	// Log configures the slog handler.
	Log LogConfig `toml:"log" json:"log"`

	// Metrics configures the optional prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`

	// UI holds terminal presentation settings.
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig holds settings for the HTTP API client.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://localhost:5000/api/v1
	BaseURL string `toml:"base_url" json:"base_url"`
	// RequestTimeoutSecs bounds ordinary (non-streaming) requests.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// RefreshTimeoutSecs bounds the shared credential refresh call.
	RefreshTimeoutSecs int `toml:"refresh_timeout_secs" json:"refresh_timeout_secs"`
	// MaxResponseMB caps the size of buffered (non-streaming) responses.
	MaxResponseMB int `toml:"max_response_mb" json:"max_response_mb"`
	// UserAgent is sent on every request.
	UserAgent string `toml:"user_agent" json:"user_agent"`
	// DefaultCategory restricts retrieval to one category when set.
	DefaultCategory string `toml:"default_category" json:"default_category,omitempty"`
}

// SessionConfig holds credential storage settings.
type SessionConfig struct {
	// Backend is one of: file, sqlite, memory
	Backend string `toml:"backend" json:"backend"`
	// Path overrides the default store location inside ConfigDir.
	Path string `toml:"path" json:"path,omitempty"`
	// Encrypt seals stored credentials with a passphrase-derived key.
	Encrypt bool `toml:"encrypt" json:"encrypt"`
	// Passphrase used when Encrypt is set. Prefer RAGCHAT_PASSPHRASE.
	Passphrase string `toml:"passphrase" json:"passphrase,omitempty"`
	// Watch reloads credentials written by another ragchat process.
	Watch bool `toml:"watch" json:"watch"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is one of: text, json
	Format string `toml:"format" json:"format"`
	// File receives log output; empty means stderr.
	File string `toml:"file" json:"file,omitempty"`
}

// MetricsConfig holds prometheus settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Listen is the address for /metrics, e.g. 127.0.0.1:9464
	Listen string `toml:"listen" json:"listen,omitempty"`
}

// UIConfig holds terminal presentation settings.
type UIConfig struct {
	// Markdown renders answers with glamour when stdout is a TTY.
	Markdown bool `toml:"markdown" json:"markdown"`
	// WordWrap is the rendering width; 0 means terminal width.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
	// Theme is one of: dark, light, auto
	Theme string `toml:"theme" json:"theme"`
}

// Session backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// RequestTimeout returns the ordinary request timeout.
func (a APIConfig) RequestTimeout() time.Duration {
	return time.Duration(a.RequestTimeoutSecs) * time.Second
}

// RefreshTimeout returns the refresh call timeout.
func (a APIConfig) RefreshTimeout() time.Duration {
	return time.Duration(a.RefreshTimeoutSecs) * time.Second
}

// MaxResponseBytes returns MaxResponseMB in bytes.
func (a APIConfig) MaxResponseBytes() int64 {
	return int64(a.MaxResponseMB) * 1024 * 1024
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			BaseURL:            "http://localhost:5000/api/v1",
			RequestTimeoutSecs: 30,
			RefreshTimeoutSecs: 15,
			MaxResponseMB:      10,
			UserAgent:          "ragchat/0.1.0",
		},

		Session: SessionConfig{
			Backend: BackendFile,
			Encrypt: false,
			Watch:   true,
		},

		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},

		Metrics: MetricsConfig{
			Enabled: false,
		},

		UI: UIConfig{
			Markdown: true,
			WordWrap: 0,
			Theme:    "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ragchat configuration directory path.
// RAGCHAT_HOME overrides the default ~/.ragchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RAGCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ragchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
// SECURITY: The directory holds credentials, so it is owner-only.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// SessionPath returns where the configured session backend keeps its data.
func (c *Config) SessionPath() (string, error) {
	if c.Session.Path != "" {
		return c.Session.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	switch c.Session.Backend {
	case BackendSQLite:
		return filepath.Join(dir, "session.db"), nil
	default:
		return filepath.Join(dir, "session.json"), nil
	}
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files may hold a passphrase and should be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last. A broken config file is
// reported alongside the usable defaults.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg, err := LoadFromPath(tomlPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	if loadErr == nil {
		if jsonPath, err := ConfigPathJSON(); err == nil {
			if _, statErr := os.Stat(jsonPath); statErr == nil {
				cfg, err := LoadFromPath(jsonPath)
				if err == nil {
					return cfg, nil
				}
				loadErr = err
			}
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full validation.
// Values missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# ragchat configuration file\n")
	buf.WriteString("# Secrets such as the session passphrase are better kept in RAGCHAT_PASSPHRASE.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// API
	if c.API.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "api.base_url", Message: "must not be empty"})
	} else if u, err := url.Parse(c.API.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "api.base_url", Message: fmt.Sprintf("invalid URL: %v", err)})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme),
		})
	}
	if c.API.RequestTimeoutSecs < 1 || c.API.RequestTimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "api.request_timeout_secs",
			Message: fmt.Sprintf("must be 1-600, got %d", c.API.RequestTimeoutSecs),
		})
	}
	if c.API.RefreshTimeoutSecs < 1 || c.API.RefreshTimeoutSecs > 120 {
		errs = append(errs, ValidationError{
			Field:   "api.refresh_timeout_secs",
			Message: fmt.Sprintf("must be 1-120, got %d", c.API.RefreshTimeoutSecs),
		})
	}
	if c.API.MaxResponseMB < 1 || c.API.MaxResponseMB > 512 {
		errs = append(errs, ValidationError{
			Field:   "api.max_response_mb",
			Message: fmt.Sprintf("must be 1-512, got %d", c.API.MaxResponseMB),
		})
	}

	// Session
	validBackends := map[string]bool{BackendFile: true, BackendSQLite: true, BackendMemory: true}
	if !validBackends[strings.ToLower(c.Session.Backend)] {
		errs = append(errs, ValidationError{
			Field:   "session.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite, memory", c.Session.Backend),
		})
	}
	if c.Session.Encrypt && c.Session.Passphrase == "" {
		errs = append(errs, ValidationError{
			Field:   "session.passphrase",
			Message: "required when session.encrypt is true (set RAGCHAT_PASSPHRASE)",
		})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, ValidationError{Field: "metrics.listen", Message: "required when metrics.enabled is true"})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must be non-negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero-value fields with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.RequestTimeoutSecs == 0 {
		c.API.RequestTimeoutSecs = defaults.API.RequestTimeoutSecs
	}
	if c.API.RefreshTimeoutSecs == 0 {
		c.API.RefreshTimeoutSecs = defaults.API.RefreshTimeoutSecs
	}
	if c.API.MaxResponseMB == 0 {
		c.API.MaxResponseMB = defaults.API.MaxResponseMB
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaults.API.UserAgent
	}
	if c.Session.Backend == "" {
		c.Session.Backend = defaults.Session.Backend
	}
	c.Session.Backend = strings.ToLower(c.Session.Backend)
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RAGCHAT_API_URL: overrides api.base_url
//   - RAGCHAT_CATEGORY: overrides api.default_category
//   - RAGCHAT_SESSION_BACKEND: overrides session.backend
//   - RAGCHAT_SESSION_PATH: overrides session.path
//   - RAGCHAT_PASSPHRASE: sets session.passphrase and enables session.encrypt
//   - RAGCHAT_LOG_LEVEL: overrides log.level
//   - RAGCHAT_LOG_FORMAT: overrides log.format
//   - RAGCHAT_METRICS_LISTEN: sets metrics.listen and enables metrics
//   - RAGCHAT_REQUEST_TIMEOUT: overrides api.request_timeout_secs
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RAGCHAT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("RAGCHAT_CATEGORY"); v != "" {
		c.API.DefaultCategory = v
	}
	if v := os.Getenv("RAGCHAT_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("RAGCHAT_SESSION_PATH"); v != "" {
		c.Session.Path = v
	}
	if v := os.Getenv("RAGCHAT_PASSPHRASE"); v != "" {
		c.Session.Passphrase = v
		c.Session.Encrypt = true
	}
	if v := os.Getenv("RAGCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RAGCHAT_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("RAGCHAT_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}
	if v := os.Getenv("RAGCHAT_REQUEST_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.API.RequestTimeoutSecs = secs
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON representation with secrets redacted.
// SECURITY: The session passphrase never appears in output.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Session.Passphrase != "" {
		safe.Session.Passphrase = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
