// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// clearEnv unsets every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RAGCHAT_API_URL", "RAGCHAT_CATEGORY", "RAGCHAT_SESSION_BACKEND",
		"RAGCHAT_SESSION_PATH", "RAGCHAT_PASSPHRASE", "RAGCHAT_LOG_LEVEL",
		"RAGCHAT_LOG_FORMAT", "RAGCHAT_METRICS_LISTEN", "RAGCHAT_REQUEST_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("RAGCHAT_HOME", t.TempDir())
}

// TestConfig_Default tests that Default() returns a valid config with defaults.
func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if cfg.Version == "" {
		t.Error("Default config should have a version")
	}
	if cfg.API.BaseURL == "" {
		t.Error("Default config should have an API base URL")
	}
	if cfg.Session.Backend != BackendFile {
		t.Errorf("Expected default backend 'file', got '%s'", cfg.Session.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		field   string
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true, field: "api.base_url"},
		{name: "ftp base url", mutate: func(c *Config) { c.API.BaseURL = "ftp://example.com" }, wantErr: true, field: "api.base_url"},
		{name: "https base url", mutate: func(c *Config) { c.API.BaseURL = "https://chat.example.edu/api" }},
		{name: "zero request timeout", mutate: func(c *Config) { c.API.RequestTimeoutSecs = 0 }, wantErr: true, field: "api.request_timeout_secs"},
		{name: "refresh timeout too long", mutate: func(c *Config) { c.API.RefreshTimeoutSecs = 500 }, wantErr: true, field: "api.refresh_timeout_secs"},
		{name: "unknown backend", mutate: func(c *Config) { c.Session.Backend = "redis" }, wantErr: true, field: "session.backend"},
		{name: "sqlite backend", mutate: func(c *Config) { c.Session.Backend = BackendSQLite }},
		{name: "encrypt without passphrase", mutate: func(c *Config) { c.Session.Encrypt = true }, wantErr: true, field: "session.passphrase"},
		{name: "invalid log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: true, field: "log.level"},
		{name: "invalid log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true, field: "log.format"},
		{name: "metrics without listen", mutate: func(c *Config) { c.Metrics.Enabled = true }, wantErr: true, field: "metrics.listen"},
		{name: "invalid theme", mutate: func(c *Config) { c.UI.Theme = "neon" }, wantErr: true, field: "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidateErrors, got %T", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGCHAT_API_URL", "https://chat.example.edu/api")
	t.Setenv("RAGCHAT_PASSPHRASE", "s3cret")
	t.Setenv("RAGCHAT_LOG_LEVEL", "debug")
	t.Setenv("RAGCHAT_METRICS_LISTEN", "127.0.0.1:9464")
	t.Setenv("RAGCHAT_REQUEST_TIMEOUT", "45")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.API.BaseURL != "https://chat.example.edu/api" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if !cfg.Session.Encrypt || cfg.Session.Passphrase != "s3cret" {
		t.Error("RAGCHAT_PASSPHRASE should enable encryption")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Error("RAGCHAT_METRICS_LISTEN should enable metrics")
	}
	if cfg.API.RequestTimeoutSecs != 45 {
		t.Errorf("RequestTimeoutSecs = %d", cfg.API.RequestTimeoutSecs)
	}
}

func TestConfig_LoadFromPathTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://chat.example.edu/api/"
refresh_timeout_secs = 5

[session]
backend = "SQLite"

[log]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.API.BaseURL != "https://chat.example.edu/api" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.RefreshTimeoutSecs != 5 {
		t.Errorf("RefreshTimeoutSecs = %d", cfg.API.RefreshTimeoutSecs)
	}
	if cfg.API.RequestTimeoutSecs != 30 {
		t.Errorf("missing keys should keep defaults, got %d", cfg.API.RequestTimeoutSecs)
	}
	if cfg.Session.Backend != BackendSQLite {
		t.Errorf("Backend = %q", cfg.Session.Backend)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q", cfg.Log.Format)
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0600 {
			t.Errorf("loading should tighten permissions, got %o", info.Mode().Perm())
		}
	}
}

func TestConfig_LoadFromPathInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[session]\nbackend = \"redis\"\n"), 0600)

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfig_LoadFallsBackToDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != Default().API.BaseURL {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestConfig_LoadReportsBrokenFile(t *testing.T) {
	clearEnv(t)
	path, _ := ConfigPathTOML()
	os.MkdirAll(filepath.Dir(path), 0700)
	os.WriteFile(path, []byte("[api\nbase_url="), 0600)

	cfg, err := Load()
	if err == nil {
		t.Fatal("expected decode error")
	}
	if cfg == nil {
		t.Fatal("defaults should still be returned")
	}
}

func TestConfig_SaveTOMLRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.API.DefaultCategory = "reglamentos"
	cfg.UI.WordWrap = 100

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# ragchat configuration file") {
		t.Error("saved file should start with header comment")
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.API.DefaultCategory != "reglamentos" || loaded.UI.WordWrap != 100 {
		t.Errorf("round trip lost values: %+v", loaded.API)
	}
}

func TestConfig_SaveJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Log.Level = "info"
	if err := SaveJSON(cfg, path); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Log.Level != "info" {
		t.Errorf("Log.Level = %q", loaded.Log.Level)
	}
}

func TestConfig_SessionPath(t *testing.T) {
	clearEnv(t)
	home := os.Getenv("RAGCHAT_HOME")

	cfg := Default()
	p, _ := cfg.SessionPath()
	if p != filepath.Join(home, "session.json") {
		t.Errorf("file path = %q", p)
	}

	cfg.Session.Backend = BackendSQLite
	p, _ = cfg.SessionPath()
	if p != filepath.Join(home, "session.db") {
		t.Errorf("sqlite path = %q", p)
	}

	cfg.Session.Path = "/tmp/custom.db"
	p, _ = cfg.SessionPath()
	if p != "/tmp/custom.db" {
		t.Errorf("explicit path = %q", p)
	}
}

// TestConfig_GetSet tests Get and Set methods with dot notation.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("session.backend")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != BackendFile {
		t.Errorf("Get(session.backend) = %v", val)
	}

	if err := cfg.Set("api.refresh_timeout_secs", "20"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.API.RefreshTimeoutSecs != 20 {
		t.Errorf("RefreshTimeoutSecs = %d", cfg.API.RefreshTimeoutSecs)
	}

	if err := cfg.Set("ui.markdown", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.UI.Markdown {
		t.Error("ui.markdown should be false")
	}

	if err := cfg.Set("ui.markdown", "maybe"); err == nil {
		t.Error("expected parse error for bool")
	}
	if _, err := cfg.Get("api.nope"); err == nil {
		t.Error("expected unknown field error")
	}
	if _, err := cfg.Get("api"); err == nil {
		t.Error("expected error for section key")
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	want := map[string]bool{"api.base_url": false, "session.backend": false, "ui.theme": false, "version": false}
	for _, k := range keys {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("Keys() missing %s", k)
		}
	}
}

// TestConfig_StringRedacts ensures the passphrase never appears in output.
func TestConfig_StringRedacts(t *testing.T) {
	cfg := Default()
	cfg.Session.Passphrase = "hunter2"

	out := cfg.String()
	if strings.Contains(out, "hunter2") {
		t.Error("String() leaked the passphrase")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("String() should mark the passphrase as redacted")
	}
	if cfg.Session.Passphrase != "hunter2" {
		t.Error("String() must not modify the original")
	}
}
