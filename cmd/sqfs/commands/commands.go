// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete sqfs CLI command tree. The
// sqfs binary imports this package; keeping the tree in one place
// (rather than in main) keeps the binary's main.go down to flag
// dispatch and exit-code handling.
package commands

import (
	"fmt"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/browse"
	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/image"
	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/mount"
	"github.com/squashfs-tools/go-squashfs/lib/version"
)

// Root builds and returns the complete sqfs CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "sqfs",
		Description: `sqfs: read-only squashfs image tooling.

Inspect, list, extract, browse, and mount squashfs 4.0 images. All
commands operate directly on the image file; only mount needs FUSE.`,
		Subcommands: []*cli.Command{
			image.InfoCommand(),
			image.LsCommand(),
			image.CatCommand(),
			image.ExtractCommand(),
			mount.Command(),
			browse.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("sqfs %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show superblock details for an image",
				Command:     "sqfs info rootfs.squashfs",
			},
			{
				Description: "List a directory inside an image",
				Command:     "sqfs ls rootfs.squashfs /etc",
			},
			{
				Description: "Print a file from an image to stdout",
				Command:     "sqfs cat rootfs.squashfs /etc/os-release",
			},
			{
				Description: "Extract an image into a directory",
				Command:     "sqfs extract rootfs.squashfs --dest ./rootfs",
			},
			{
				Description: "Mount an image via FUSE (foreground, ctrl-c to unmount)",
				Command:     "sqfs mount rootfs.squashfs /mnt/rootfs",
			},
			{
				Description: "Browse an image interactively",
				Command:     "sqfs browse rootfs.squashfs",
			},
		},
	}
}
