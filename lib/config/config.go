// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the sqfs tools.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Cache tunes the per-volume block caches.
	Cache CacheConfig `yaml:"cache"`

	// Mount configures FUSE mounts.
	Mount MountConfig `yaml:"mount"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Paths *PathsConfig `yaml:"paths,omitempty"`
	Cache *CacheConfig `yaml:"cache,omitempty"`
	Mount *MountConfig `yaml:"mount,omitempty"`
	Log   *LogConfig   `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for sqfs state.
	Root string `yaml:"root"`

	// Mountpoints is where mounts land when no explicit
	// mountpoint is given on the command line.
	Mountpoints string `yaml:"mountpoints"`
}

// CacheConfig tunes the per-volume block caches. Zero values keep
// the built-in sizes, which match the kernel driver's.
type CacheConfig struct {
	// MetadataEntries is the number of decompressed 8KiB metadata
	// blocks kept per volume. Default: 8.
	MetadataEntries int `yaml:"metadata_entries"`

	// FragmentEntries is the number of decompressed fragment
	// blocks kept per volume. Default: 3.
	FragmentEntries int `yaml:"fragment_entries"`
}

// MountConfig configures FUSE mounts.
type MountConfig struct {
	// AllowOther permits other users (including root) to access
	// mounts. Requires user_allow_other in /etc/fuse.conf.
	// Default: false.
	AllowOther bool `yaml:"allow_other"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or
	// error. Default: info.
	Level string `yaml:"level"`

	// Format selects the handler: auto (colored text on a
	// terminal, plain otherwise), text, or json.
	// Default: auto (development), json (production).
	Format string `yaml:"format"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; they exist to give every
// field a sensible zero-value, not as a substitute for the file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "sqfs")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:        defaultRoot,
			Mountpoints: filepath.Join(defaultRoot, "mnt"),
		},
		Cache: CacheConfig{
			MetadataEntries: 8,
			FragmentEntries: 3,
		},
		Mount: MountConfig{
			AllowOther: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the SQFS_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults - if SQFS_CONFIG is not
// set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("SQFS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SQFS_CONFIG environment variable not set; " +
			"set it to the path of your sqfs.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the
// current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific
// overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Mountpoints != "" {
			c.Paths.Mountpoints = overrides.Paths.Mountpoints
		}
	}

	if overrides.Cache != nil {
		if overrides.Cache.MetadataEntries != 0 {
			c.Cache.MetadataEntries = overrides.Cache.MetadataEntries
		}
		if overrides.Cache.FragmentEntries != 0 {
			c.Cache.FragmentEntries = overrides.Cache.FragmentEntries
		}
	}

	if overrides.Mount != nil {
		// AllowOther is a bool, so it always applies from
		// overrides.
		c.Mount.AllowOther = overrides.Mount.AllowOther
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SQFS_ROOT": c.Paths.Root,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["SQFS_ROOT"] = c.Paths.Root // update for dependent paths

	c.Paths.Mountpoints = expandVars(c.Paths.Mountpoints, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Cache.MetadataEntries < 1 {
		errs = append(errs, fmt.Errorf("cache.metadata_entries must be at least 1"))
	}
	if c.Cache.FragmentEntries < 1 {
		errs = append(errs, fmt.Errorf("cache.fragment_entries must be at least 1"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}

	formats := []string{"auto", "text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't
// exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Mountpoints} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
