// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

type lsParams struct {
	cli.ImageParams
	cli.JSONOutput
	Long      bool `flag:"long,l"      desc:"long listing: mode, uid/gid, size, mtime"`
	Recursive bool `flag:"recursive,R" desc:"list subdirectories recursively"`
}

// lsEntry is one listed name. Paths are relative to the listing
// root; uid and gid are the numeric ids stored in the image.
type lsEntry struct {
	Path   string    `json:"path"`
	Type   string    `json:"type"`
	Mode   string    `json:"mode"`
	Size   int64     `json:"size"`
	UID    uint32    `json:"uid"`
	GID    uint32    `json:"gid"`
	MTime  time.Time `json:"mtime"`
	Target string    `json:"target,omitempty"`
}

// LsCommand returns the "ls" command for listing image contents.
func LsCommand() *cli.Command {
	var params lsParams

	return &cli.Command{
		Name:    "ls",
		Summary: "List directory contents of an image",
		Usage:   "sqfs ls <image> [path] [flags]",
		Description: `List the contents of a directory inside a SquashFS image.

Without a path, lists the image root. Symlinks on the way to the
path are followed; listed symlinks are shown as themselves with
their targets. Ownership is printed numerically, exactly as stored
in the image's id table.`,
		Examples: []cli.Example{
			{
				Description: "List the image root",
				Command:     "sqfs ls rootfs.squashfs",
			},
			{
				Description: "Long listing of a subdirectory",
				Command:     "sqfs ls rootfs.squashfs /usr/bin --long",
			},
			{
				Description: "Recursive listing as JSON",
				Command:     "sqfs ls rootfs.squashfs -R --json",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("ls", &params) },
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("image argument required\n\nUsage: sqfs ls <image> [path] [flags]")
			}
			imagePath := args[0]
			start := "."
			if len(args) == 2 {
				start = fsPath(args[1])
			}

			vol, _, err := params.OpenVolume(imagePath)
			if err != nil {
				return err
			}
			defer vol.Close()

			entries, err := listEntries(vol, start, params.Recursive)
			if err != nil {
				// The path is user input, not an image problem:
				// report it directly and exit 1.
				fmt.Fprintln(os.Stderr, err)
				return &cli.ExitError{Code: 1}
			}

			if done, err := params.EmitJSON(entries); done {
				return err
			}
			for _, entry := range entries {
				if params.Long {
					printLong(entry)
				} else {
					fmt.Println(entry.Path)
				}
			}
			return nil
		},
	}
}

// fsPath converts a user-supplied image path ("/usr/bin", "usr/bin",
// "") to the io/fs form: no leading slash, "." for the root.
func fsPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

// listEntries resolves start and lists it. A non-directory start
// lists as itself, the way ls treats a file argument.
func listEntries(vol *squashfs.Volume, start string, recursive bool) ([]lsEntry, error) {
	info, err := vol.Stat(start)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []lsEntry{entryFor(path.Base(start), info)}, nil
	}

	if !recursive {
		dirEntries, err := vol.ReadDir(start)
		if err != nil {
			return nil, err
		}
		entries := make([]lsEntry, 0, len(dirEntries))
		for _, dirEntry := range dirEntries {
			entryInfo, err := dirEntry.Info()
			if err != nil {
				return nil, err
			}
			entries = append(entries, entryFor(dirEntry.Name(), entryInfo))
		}
		return entries, nil
	}

	var entries []lsEntry
	err = fs.WalkDir(vol, start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == start {
			return nil
		}
		entryInfo, err := d.Info()
		if err != nil {
			return err
		}
		rel := p
		if start != "." {
			rel = strings.TrimPrefix(p, start+"/")
		}
		entries = append(entries, entryFor(rel, entryInfo))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func entryFor(name string, info fs.FileInfo) lsEntry {
	ino := info.Sys().(*squashfs.Inode)
	return lsEntry{
		Path:   name,
		Type:   typeString(info.Mode()),
		Mode:   info.Mode().String(),
		Size:   info.Size(),
		UID:    ino.UID,
		GID:    ino.GID,
		MTime:  info.ModTime(),
		Target: ino.Target,
	}
}

func typeString(mode fs.FileMode) string {
	switch mode.Type() {
	case 0:
		return "file"
	case fs.ModeDir:
		return "dir"
	case fs.ModeSymlink:
		return "symlink"
	case fs.ModeDevice:
		return "block-device"
	case fs.ModeDevice | fs.ModeCharDevice:
		return "char-device"
	case fs.ModeNamedPipe:
		return "fifo"
	case fs.ModeSocket:
		return "socket"
	}
	return "unknown"
}

func printLong(entry lsEntry) {
	name := entry.Path
	if entry.Target != "" {
		name += " -> " + entry.Target
	}
	owner := fmt.Sprintf("%d/%d", entry.UID, entry.GID)
	fmt.Printf("%s %-9s %9d %s %s\n",
		entry.Mode, owner, entry.Size,
		entry.MTime.Format("2006-01-02 15:04"), name)
}
