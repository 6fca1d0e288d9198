// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"github.com/squashfs-tools/go-squashfs/lib/config"
)

// LoadConfig resolves the configuration for a CLI command. An explicit
// --config path wins; otherwise SQFS_CONFIG is consulted; otherwise the
// built-in defaults apply. Unlike daemon-style deployments, the CLI
// works without any config file at all — reading an image requires no
// configuration.
//
// The loaded config is always validated; a config file with bad values
// fails here rather than deep inside a command.
func LoadConfig(explicitPath string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	switch {
	case explicitPath != "":
		cfg, err = config.LoadFile(explicitPath)
	case os.Getenv("SQFS_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
