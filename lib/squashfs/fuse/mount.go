// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Volume is the mounted image to expose.
	Volume *squashfs.Volume

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// FSName is the source name shown by df and /proc/mounts.
	// Defaults to "squashfs"; callers usually set the image file
	// name so concurrent mounts stay distinguishable.
	FSName string

	// Logger receives diagnostic messages. If nil, errors go to
	// stderr.
	Logger *slog.Logger
}

// Mount exposes the volume at the configured mountpoint. The caller
// must call Unmount on the returned server when done; the volume
// itself stays open and still belongs to the caller.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Volume == nil {
		return nil, fmt.Errorf("volume is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	if options.FSName == "" {
		options.FSName = "squashfs"
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &node{options: &options, ino: options.Volume.Root()}

	// The image is immutable, so cached attributes and entries
	// never go stale. Negative entries stay short in case the
	// mount namespace overlays something later.
	entryTimeout := time.Hour
	attrTimeout := time.Hour
	negativeTimeout := time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		RootStableAttr: &gofuse.StableAttr{
			Ino: uint64(options.Volume.Root().Number),
		},
		MountOptions: fuse.MountOptions{
			FsName:     options.FSName,
			Name:       "squashfs",
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("squashfs FUSE filesystem mounted",
		"mountpoint", options.Mountpoint,
		"inodes", options.Volume.Superblock().Inodes,
	)
	return server, nil
}

// node presents one image inode. All inode kinds share the type; the
// kernel only invokes the operations that make sense for the mode it
// was given at lookup.
type node struct {
	gofuse.Inode
	options *Options
	ino     *squashfs.Inode
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReadlinker = (*node)(nil)
var _ gofuse.NodeStatfser = (*node)(nil)

// errno maps volume errors onto FUSE errnos. Corruption reads as an
// I/O error; anything unexpected is logged so a damaged image names
// the structure that broke.
func (n *node) errno(op string, err error) syscall.Errno {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, squashfs.ErrClosed):
		return syscall.EBADF
	default:
		n.options.Logger.Error("squashfs "+op+" failed",
			"inode", n.ino.Number,
			"error", err,
		)
		return syscall.EIO
	}
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	child, err := n.options.Volume.Lookup(n.ino, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, syscall.ENOENT
		}
		return nil, n.errno("lookup", err)
	}
	fillAttr(child, &out.Attr)
	stable := gofuse.StableAttr{
		Mode: sysMode(child.Mode) & syscall.S_IFMT,
		Ino:  uint64(child.Number),
	}
	return n.NewInode(ctx, &node{options: n.options, ino: child}, stable), 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	ents, err := n.options.Volume.ListDir(n.ino)
	if err != nil {
		return nil, n.errno("readdir", err)
	}
	out := make([]fuse.DirEntry, len(ents))
	for i, e := range ents {
		out[i] = fuse.DirEntry{
			Name: e.Name,
			Ino:  uint64(e.Number),
			Mode: sysMode(e.Type) & syscall.S_IFMT,
		}
	}
	return gofuse.NewListDirStream(out), 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(n.ino, &out.Attr)
	return 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	f, err := n.options.Volume.OpenInode(n.ino)
	if err != nil {
		return nil, 0, n.errno("open", err)
	}
	// Immutable content: the kernel page cache stays valid across
	// opens.
	return &fileHandle{f: f, ra: f.(io.ReaderAt)}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	return []byte(n.ino.Target), 0
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	s := n.options.Volume.Stats()
	out.Blocks = s.Blocks
	out.Bfree = s.BlocksFree
	out.Bavail = s.BlocksAvail
	out.Files = uint64(s.Files)
	out.Ffree = uint64(s.FilesFree)
	out.Bsize = s.BlockSize
	out.Frsize = s.BlockSize
	out.NameLen = uint32(s.NameMax)
	return 0
}

// fileHandle wraps an open volume file. Reads are stateless ReadAt
// calls, so one handle serves concurrent kernel reads.
type fileHandle struct {
	f  fs.File
	ra io.ReaderAt
}

var _ gofuse.FileReader = (*fileHandle)(nil)
var _ gofuse.FileReleaser = (*fileHandle)(nil)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.ra.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	h.f.Close()
	return 0
}

// fillAttr populates a FUSE attr from a decoded inode. Device
// numbers pass through unchanged: the image stores them in the
// kernel's encoding already.
func fillAttr(ino *squashfs.Inode, out *fuse.Attr) {
	out.Ino = uint64(ino.Number)
	out.Size = uint64(ino.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Mode = sysMode(ino.Mode)
	out.Nlink = ino.NLink
	out.Owner = fuse.Owner{Uid: ino.UID, Gid: ino.GID}
	out.Rdev = ino.Rdev
	mtime := ino.ModTime
	out.SetTimes(&mtime, &mtime, &mtime)
}

// sysMode converts an fs.FileMode to the syscall mode word.
func sysMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= syscall.S_ISUID
	}
	if m&fs.ModeSetgid != 0 {
		mode |= syscall.S_ISGID
	}
	if m&fs.ModeSticky != 0 {
		mode |= syscall.S_ISVTX
	}
	switch m.Type() {
	case fs.ModeDir:
		mode |= syscall.S_IFDIR
	case fs.ModeSymlink:
		mode |= syscall.S_IFLNK
	case fs.ModeDevice | fs.ModeCharDevice:
		mode |= syscall.S_IFCHR
	case fs.ModeDevice:
		mode |= syscall.S_IFBLK
	case fs.ModeNamedPipe:
		mode |= syscall.S_IFIFO
	case fs.ModeSocket:
		mode |= syscall.S_IFSOCK
	default:
		mode |= syscall.S_IFREG
	}
	return mode
}
