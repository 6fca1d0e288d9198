// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

type catParams struct {
	cli.ImageParams
}

// CatCommand returns the "cat" command for streaming file contents
// to stdout.
func CatCommand() *cli.Command {
	var params catParams

	return &cli.Command{
		Name:    "cat",
		Summary: "Write file contents from an image to stdout",
		Usage:   "sqfs cat <image> <path>... [flags]",
		Description: `Stream one or more files out of a SquashFS image.

Paths are resolved the way the kernel resolves them: symlinks are
followed, with absolute targets restarting at the image root. With
several paths the contents are concatenated in argument order. A path
that cannot be read is reported on stderr, the rest still stream, and
the exit status is 1.`,
		Examples: []cli.Example{
			{
				Description: "Print a file",
				Command:     "sqfs cat rootfs.squashfs /etc/os-release",
			},
			{
				Description: "Concatenate two files",
				Command:     "sqfs cat rootfs.squashfs /etc/passwd /etc/group",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("cat", &params) },
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("image and path arguments required\n\nUsage: sqfs cat <image> <path>... [flags]")
			}
			imagePath := args[0]

			vol, _, err := params.OpenVolume(imagePath)
			if err != nil {
				return err
			}
			defer vol.Close()

			// A bad path does not stop the stream; it marks the
			// exit code once everything readable has been written.
			failed := false
			for _, arg := range args[1:] {
				if err := catOne(vol, fsPath(arg)); err != nil {
					fmt.Fprintln(os.Stderr, err)
					failed = true
				}
			}
			if failed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func catOne(vol *squashfs.Volume, name string) error {
	f, err := vol.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", name)
	}

	if _, err := io.Copy(os.Stdout, f); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}
