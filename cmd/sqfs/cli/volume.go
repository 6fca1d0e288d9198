// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"

	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

// ImageParams is the flag block shared by every command that opens a
// SquashFS image: configuration source, log verbosity, and cache
// sizing. Embed it in a command's params struct and call OpenVolume
// with the image path from the positional arguments.
type ImageParams struct {
	Config string `flag:"config" desc:"path to sqfs.yaml (overrides SQFS_CONFIG)"`
	Debug  bool   `flag:"debug" desc:"enable debug logging"`
	Silent bool   `flag:"silent" desc:"suppress the not-a-squashfs diagnostic when probing files"`
}

// OpenVolume loads configuration, builds the logger from it, and
// mounts the image at path. The caller owns the returned volume and
// must Close it; the logger is the same one wired into the volume, so
// command output and mount diagnostics share a stream.
func (p *ImageParams) OpenVolume(path string) (*squashfs.Volume, *slog.Logger, error) {
	cfg, err := LoadConfig(p.Config)
	if err != nil {
		return nil, nil, err
	}
	logger := NewLogger(cfg, p.Debug)
	vol, err := squashfs.MountFile(path, squashfs.Options{
		Silent:               p.Silent,
		Logger:               logger,
		MetadataCacheEntries: cfg.Cache.MetadataEntries,
		FragmentCacheEntries: cfg.Cache.FragmentEntries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mount %s: %w", path, err)
	}
	return vol, logger, nil
}
