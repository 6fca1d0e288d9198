// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

type extractParams struct {
	cli.ImageParams
	Dest       string `flag:"dest,d"      desc:"destination directory" default:"."`
	NoProgress bool   `flag:"no-progress" desc:"disable the progress bar"`
}

// ExtractCommand returns the "extract" command for unpacking an
// image into a directory tree.
func ExtractCommand() *cli.Command {
	var params extractParams

	return &cli.Command{
		Name:    "extract",
		Summary: "Unpack an image into a directory",
		Usage:   "sqfs extract <image> [path] [flags]",
		Description: `Unpack a SquashFS image, or a subtree of it, into a directory.

Contents land directly in the destination (created if needed), like
tar: extracting /usr/bin puts its entries at the destination root.
Permissions, setuid/setgid/sticky bits, and modification times are
restored; hardlinked files are reconstructed by link count. Device
nodes, fifos, and sockets are skipped with a warning, and ownership
is left as the extracting user.

Extracting over an existing tree overwrites files in place.`,
		Examples: []cli.Example{
			{
				Description: "Unpack a whole image",
				Command:     "sqfs extract rootfs.squashfs --dest rootfs",
			},
			{
				Description: "Unpack one subtree",
				Command:     "sqfs extract rootfs.squashfs /etc -d etc-copy",
			},
			{
				Description: "Unpack quietly for scripting",
				Command:     "sqfs extract rootfs.squashfs -d rootfs --no-progress",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("extract", &params) },
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("image argument required\n\nUsage: sqfs extract <image> [path] [flags]")
			}
			imagePath := args[0]
			start := "."
			if len(args) == 2 {
				start = fsPath(args[1])
			}

			vol, logger, err := params.OpenVolume(imagePath)
			if err != nil {
				return err
			}
			defer vol.Close()

			return extract(vol, logger, extractOptions{
				start:      start,
				dest:       params.Dest,
				label:      filepath.Base(imagePath),
				noProgress: params.NoProgress,
			})
		},
	}
}

type extractOptions struct {
	start      string
	dest       string
	label      string
	noProgress bool
}

// extractor carries the state of one extraction walk.
type extractor struct {
	vol  *squashfs.Volume
	log  *slog.Logger
	dest string
	prog *progressbar.ProgressBar

	// seen maps inode number to the first extracted path of a
	// multiply-linked regular file, for hardlink reconstruction.
	seen map[uint32]string

	// dirs holds directory attribute fixups, parents before
	// children; applied in reverse once all children exist.
	dirs []dirAttrs

	files int
	bytes int64
}

type dirAttrs struct {
	path  string
	mode  fs.FileMode
	mtime time.Time
}

func extract(vol *squashfs.Volume, log *slog.Logger, opts extractOptions) error {
	// Measure first: the bar needs a total, and walking the whole
	// subtree up front surfaces tree corruption before anything is
	// written.
	var total int64
	err := fs.WalkDir(vol, opts.start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.dest, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", opts.dest, err)
	}

	prog := progressbar.DefaultBytes(total, "extracting "+opts.label)
	if opts.noProgress {
		prog = progressbar.DefaultBytesSilent(total)
	}
	defer prog.Close()

	ex := &extractor{
		vol:  vol,
		log:  log,
		dest: opts.dest,
		prog: prog,
		seen: make(map[uint32]string),
	}
	if err := fs.WalkDir(vol, opts.start, ex.visit(opts.start)); err != nil {
		return err
	}

	// Directory times change as children are created inside them;
	// restore attributes deepest-first once the tree is complete.
	for i := len(ex.dirs) - 1; i >= 0; i-- {
		dir := ex.dirs[i]
		if err := os.Chmod(dir.path, dir.mode); err != nil {
			return err
		}
		if err := os.Chtimes(dir.path, dir.mtime, dir.mtime); err != nil {
			return err
		}
	}

	fmt.Printf("extracted %d files (%s) to %s\n",
		ex.files, humanize.IBytes(uint64(ex.bytes)), opts.dest)
	return nil
}

func (ex *extractor) visit(start string) fs.WalkDirFunc {
	return func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel := relTo(start, p)
		if rel == "." && !d.IsDir() {
			rel = path.Base(p)
		}
		if rel == "." {
			// The subtree root maps to the destination itself,
			// already created; its attributes are left alone.
			return nil
		}
		// Entry names come off the wire; never let one escape the
		// destination.
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return fmt.Errorf("refusing to extract unsafe path %q", p)
		}
		target := filepath.Join(ex.dest, filepath.FromSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		ino := info.Sys().(*squashfs.Inode)

		switch {
		case d.IsDir():
			if err := os.Mkdir(target, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			ex.dirs = append(ex.dirs, dirAttrs{target, info.Mode(), info.ModTime()})

		case d.Type().IsRegular():
			if ino.NLink > 1 {
				if first, ok := ex.seen[ino.Number]; ok {
					os.Remove(target)
					if err := os.Link(first, target); err == nil {
						ex.prog.Add64(info.Size())
						ex.files++
						return nil
					}
					// Link failed (destination filesystem may not
					// support hardlinks); fall back to a plain copy.
				} else {
					ex.seen[ino.Number] = target
				}
			}
			if err := ex.copyFile(ino, target, info); err != nil {
				return err
			}
			ex.files++
			ex.bytes += info.Size()

		case d.Type() == fs.ModeSymlink:
			os.Remove(target)
			if err := os.Symlink(ino.Target, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}

		default:
			ex.log.Warn("skipping special file",
				"path", p, "type", typeString(d.Type()))
		}
		return nil
	}
}

func (ex *extractor) copyFile(ino *squashfs.Inode, target string, info fs.FileInfo) error {
	src, err := ex.vol.OpenInode(ino)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(io.MultiWriter(ex.prog, dst), src); err != nil {
		dst.Close()
		return fmt.Errorf("extract %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}

	// OpenFile's mode is masked by the umask; Chmod restores the
	// exact stored bits, setuid and friends included.
	if err := os.Chmod(target, info.Mode()); err != nil {
		return err
	}
	return os.Chtimes(target, info.ModTime(), info.ModTime())
}

// relTo rebases p, a walk path under start, to the listing root.
func relTo(start, p string) string {
	if start == "." {
		return p
	}
	if p == start {
		return "."
	}
	return strings.TrimPrefix(p, start+"/")
}
