// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount implements the "sqfs mount" subcommand: a foreground
// FUSE daemon exposing a SquashFS image read-only until interrupted.
package mount

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
	"github.com/squashfs-tools/go-squashfs/lib/config"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs/fuse"
)

type mountParams struct {
	cli.ImageParams
	AllowOther bool `flag:"allow-other" desc:"let other users access the mount (needs user_allow_other in /etc/fuse.conf)"`
}

// Command returns the "mount" command.
func Command() *cli.Command {
	var params mountParams

	return &cli.Command{
		Name:    "mount",
		Summary: "Mount an image as a read-only FUSE filesystem",
		Usage:   "sqfs mount <image> [mountpoint] [flags]",
		Description: `Mount a SquashFS image through FUSE and serve it in the foreground.

Without a mountpoint argument the mount lands under the configured
mountpoints directory (paths.mountpoints), in a subdirectory named
after the image file. The mountpoint is created if missing.

The process runs until SIGINT or SIGTERM, then unmounts and exits.
--allow-other opens the mount to other users, in addition to the
mount.allow_other configuration setting.`,
		Examples: []cli.Example{
			{
				Description: "Mount at an explicit mountpoint",
				Command:     "sqfs mount rootfs.squashfs /mnt/rootfs",
			},
			{
				Description: "Mount under the configured mountpoints directory",
				Command:     "sqfs mount rootfs.squashfs",
			},
			{
				Description: "Share the mount with other users",
				Command:     "sqfs mount rootfs.squashfs /mnt/rootfs --allow-other",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("mount", &params) },
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("image argument required\n\nUsage: sqfs mount <image> [mountpoint] [flags]")
			}
			imagePath := args[0]

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			logger := cli.NewLogger(cfg, params.Debug)

			mountpoint := ""
			if len(args) == 2 {
				mountpoint = args[1]
			} else {
				mountpoint = defaultMountpoint(cfg, imagePath)
			}

			return serve(cfg, logger, imagePath, mountpoint, params)
		},
	}
}

// serve mounts the image and the FUSE filesystem, then blocks until
// the process is signalled.
func serve(cfg *config.Config, logger *slog.Logger, imagePath, mountpoint string, params mountParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vol, err := squashfs.MountFile(imagePath, squashfs.Options{
		Silent:               params.Silent,
		Logger:               logger,
		MetadataCacheEntries: cfg.Cache.MetadataEntries,
		FragmentCacheEntries: cfg.Cache.FragmentEntries,
	})
	if err != nil {
		return fmt.Errorf("mount %s: %w", imagePath, err)
	}
	defer vol.Close()

	server, err := fuse.Mount(fuse.Options{
		Mountpoint: mountpoint,
		Volume:     vol,
		AllowOther: params.AllowOther || cfg.Mount.AllowOther,
		FSName:     filepath.Base(imagePath),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Unmount(); err != nil {
			logger.Error("failed to unmount FUSE filesystem", "error", err)
		} else {
			logger.Info("FUSE filesystem unmounted", "mountpoint", mountpoint)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// defaultMountpoint places the mount under the configured mountpoints
// directory, named after the image file minus its extension.
func defaultMountpoint(cfg *config.Config, imagePath string) string {
	base := filepath.Base(imagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(cfg.Paths.Mountpoints, base)
}
