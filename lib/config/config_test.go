// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Cache.MetadataEntries != 8 {
		t.Errorf("expected metadata_entries=8, got %d", cfg.Cache.MetadataEntries)
	}

	if cfg.Cache.FragmentEntries != 3 {
		t.Errorf("expected fragment_entries=3, got %d", cfg.Cache.FragmentEntries)
	}

	if cfg.Mount.AllowOther {
		t.Error("expected allow_other=false by default")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level=info, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "auto" {
		t.Errorf("expected log format=auto, got %s", cfg.Log.Format)
	}
}

func TestLoad_RequiresSqfsConfig(t *testing.T) {
	// Save and restore SQFS_CONFIG.
	origConfig := os.Getenv("SQFS_CONFIG")
	defer os.Setenv("SQFS_CONFIG", origConfig)

	// Unset SQFS_CONFIG - Load() should fail.
	os.Unsetenv("SQFS_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SQFS_CONFIG not set, got nil")
	}

	expectedMsg := "SQFS_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithSqfsConfig(t *testing.T) {
	// Save and restore SQFS_CONFIG.
	origConfig := os.Getenv("SQFS_CONFIG")
	defer os.Setenv("SQFS_CONFIG", origConfig)

	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sqfs.yaml")

	configContent := `
environment: staging
paths:
  root: /test/root
cache:
  metadata_entries: 16
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// Set SQFS_CONFIG and load.
	os.Setenv("SQFS_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}

	if cfg.Cache.MetadataEntries != 16 {
		t.Errorf("expected metadata_entries=16, got %d", cfg.Cache.MetadataEntries)
	}
}

func TestLoadFile(t *testing.T) {
	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sqfs.yaml")

	configContent := `
environment: staging

paths:
  root: /custom/root
  mountpoints: /custom/mnt

cache:
  metadata_entries: 32
  fragment_entries: 5

mount:
  allow_other: true

log:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Paths.Root != "/custom/root" {
		t.Errorf("expected root=/custom/root, got %s", cfg.Paths.Root)
	}

	if cfg.Paths.Mountpoints != "/custom/mnt" {
		t.Errorf("expected mountpoints=/custom/mnt, got %s", cfg.Paths.Mountpoints)
	}

	if cfg.Cache.MetadataEntries != 32 {
		t.Errorf("expected metadata_entries=32, got %d", cfg.Cache.MetadataEntries)
	}

	if cfg.Cache.FragmentEntries != 5 {
		t.Errorf("expected fragment_entries=5, got %d", cfg.Cache.FragmentEntries)
	}

	if !cfg.Mount.AllowOther {
		t.Error("expected allow_other=true")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level=debug, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("expected log format=json, got %s", cfg.Log.Format)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sqfs.yaml")

	configContent := `
environment: production

paths:
  root: /default/root

mount:
  allow_other: true

log:
  level: debug

production:
  paths:
    root: /prod/root
  mount:
    allow_other: false
  log:
    level: warn
    format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// Production overrides should be applied.
	if cfg.Paths.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.Paths.Root)
	}

	if cfg.Mount.AllowOther {
		t.Error("expected allow_other=false from production override")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level=warn, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("expected log format=json, got %s", cfg.Log.Format)
	}
}

func TestProductionDefaultsToJSONLogs(t *testing.T) {
	// A production config with no explicit production block still
	// gets machine-readable logs.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sqfs.yaml")

	configContent := `
environment: production
paths:
  root: /prod/root
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("expected log format=json for production, got %s", cfg.Log.Format)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// Verify that environment variables do NOT override config file values.
	// The config file is the single source of truth for deterministic configuration.

	// Save and restore env vars.
	origRoot := os.Getenv("SQFS_ROOT")
	origEnv := os.Getenv("SQFS_ENVIRONMENT")
	defer func() {
		os.Setenv("SQFS_ROOT", origRoot)
		os.Setenv("SQFS_ENVIRONMENT", origEnv)
	}()

	// Set env vars that should be ignored.
	os.Setenv("SQFS_ROOT", "/env/root")
	os.Setenv("SQFS_ENVIRONMENT", "staging")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sqfs.yaml")

	configContent := `
environment: development
paths:
  root: /file/root
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// File values should be used, NOT env vars.
	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s (env vars should not override)", cfg.Environment)
	}

	if cfg.Paths.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s (env vars should not override)", cfg.Paths.Root)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/sqfs",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/sqfs",
		},
		{
			input:    "${SQFS_ROOT}/mnt",
			vars:     map[string]string{"SQFS_ROOT": "/var/cache/sqfs"},
			expected: "/var/cache/sqfs/mnt",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "empty root path",
			modify: func(c *Config) {
				c.Paths.Root = ""
			},
			wantErr: true,
		},
		{
			name: "zero metadata cache entries",
			modify: func(c *Config) {
				c.Cache.MetadataEntries = 0
			},
			wantErr: true,
		},
		{
			name: "negative fragment cache entries",
			modify: func(c *Config) {
				c.Cache.FragmentEntries = -1
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Paths.Root = filepath.Join(tmpDir, "sqfs")
	cfg.Paths.Mountpoints = filepath.Join(cfg.Paths.Root, "mnt")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	// Verify directories were created.
	for _, path := range []string{cfg.Paths.Root, cfg.Paths.Mountpoints} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
