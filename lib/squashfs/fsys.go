// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
	"time"
)

// The io/fs face of a volume. A Volume is an fs.FS (plus ReadDirFS,
// StatFS, and ReadLinkFS), so fs.WalkDir, fstest, http.FileServer,
// and everything else speaking io/fs works against a mounted image
// directly.

var (
	_ fs.FS         = (*Volume)(nil)
	_ fs.ReadDirFS  = (*Volume)(nil)
	_ fs.StatFS     = (*Volume)(nil)
	_ fs.ReadLinkFS = (*Volume)(nil)
)

// maxSymlinkHops bounds symlink expansion during path resolution,
// the usual ELOOP limit.
const maxSymlinkHops = 40

var (
	errTooManyLinks = errors.New("too many levels of symbolic links")
	errNotDir       = errors.New("not a directory")
	errIsDir        = errors.New("is a directory")
)

// resolve walks name from the root. Interior symlinks are always
// followed; the final element only when follow is set. Resolution is
// chroot-style: an absolute target restarts at the image root, and
// ".." at the root stays at the root.
func (v *Volume) resolve(name string, follow bool) (*Inode, error) {
	if err := v.alive(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	var rest []string
	if name != "." {
		rest = strings.Split(name, "/")
	}

	stack := []*Inode{v.root}
	hops := 0
	for len(rest) > 0 {
		elem := rest[0]
		rest = rest[1:]
		switch elem {
		// Valid fs paths never contain these; symlink targets can.
		case "", ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		dir := stack[len(stack)-1]
		if !dir.IsDir() {
			return nil, errNotDir
		}
		d, err := v.lookupName(dir, elem)
		if err != nil {
			return nil, err
		}

		if basicType(d.typ) == typeSymlink && (follow || len(rest) > 0) {
			hops++
			if hops > maxSymlinkHops {
				return nil, errTooManyLinks
			}
			link, err := v.readInode(d.ref)
			if err != nil {
				return nil, err
			}
			target := link.Target
			if target == "" {
				return nil, fs.ErrNotExist
			}
			if rel, ok := strings.CutPrefix(target, "/"); ok {
				stack = stack[:1]
				target = rel
			}
			rest = slices.Concat(strings.Split(target, "/"), rest)
			continue
		}

		ino, err := v.readInode(d.ref)
		if err != nil {
			return nil, err
		}
		stack = append(stack, ino)
	}
	return stack[len(stack)-1], nil
}

// Open implements fs.FS. Symlinks in name are followed, including a
// final one; the returned handle reads file data or, for
// directories, serves ReadDir.
func (v *Volume) Open(name string) (fs.File, error) {
	ino, err := v.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return v.newFile(ino, name), nil
}

// OpenInode opens a file by its already-resolved inode, the
// handle-first path export-style servers use after InodeByNumber.
func (v *Volume) OpenInode(ino *Inode) (fs.File, error) {
	if err := v.alive(); err != nil {
		return nil, &fs.PathError{Op: "open", Path: fmt.Sprintf("#%d", ino.Number), Err: err}
	}
	return v.newFile(ino, fmt.Sprintf("#%d", ino.Number)), nil
}

// ReadDir implements fs.ReadDirFS.
func (v *Volume) ReadDir(name string) ([]fs.DirEntry, error) {
	ino, err := v.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !ino.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errNotDir}
	}
	ents, err := v.readDir(ino)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	out := make([]fs.DirEntry, len(ents))
	for i, d := range ents {
		out[i] = dirEntry{v: v, d: d}
	}
	// Stored order is already sorted; restate the fs.ReadDirFS
	// guarantee regardless of what the image claims.
	slices.SortFunc(out, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return out, nil
}

// Stat implements fs.StatFS, following symlinks.
func (v *Volume) Stat(name string) (fs.FileInfo, error) {
	ino, err := v.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfo{name: path.Base(name), ino: ino}, nil
}

// Lstat implements fs.ReadLinkFS: like Stat but a final symlink is
// described, not followed.
func (v *Volume) Lstat(name string) (fs.FileInfo, error) {
	ino, err := v.resolve(name, false)
	if err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: err}
	}
	return fileInfo{name: path.Base(name), ino: ino}, nil
}

// ReadLink implements fs.ReadLinkFS.
func (v *Volume) ReadLink(name string) (string, error) {
	ino, err := v.resolve(name, false)
	if err != nil {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: err}
	}
	if ino.Mode.Type() != fs.ModeSymlink {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}
	return ino.Target, nil
}

// fileInfo implements fs.FileInfo for a decoded inode. Sys returns
// the *Inode itself, giving callers ownership, link count, and
// device numbers.
type fileInfo struct {
	name string
	ino  *Inode
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.ino.Size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.ino.Mode }
func (fi fileInfo) ModTime() time.Time { return fi.ino.ModTime }
func (fi fileInfo) IsDir() bool        { return fi.ino.IsDir() }
func (fi fileInfo) Sys() any           { return fi.ino }

// dirEntry implements fs.DirEntry straight off the wire entry,
// deferring the inode read until Info is asked for.
type dirEntry struct {
	v *Volume
	d dirent
}

func (e dirEntry) Name() string      { return e.d.name }
func (e dirEntry) IsDir() bool       { return basicType(e.d.typ) == typeDir }
func (e dirEntry) Type() fs.FileMode { return fileModeFor(e.d.typ, 0).Type() }

func (e dirEntry) Info() (fs.FileInfo, error) {
	ino, err := e.v.readInode(e.d.ref)
	if err != nil {
		return nil, err
	}
	return fileInfo{name: e.d.name, ino: ino}, nil
}

// filePool recycles handle structs across opens, process-wide.
var filePool = sync.Pool{New: func() any { return new(File) }}

// File is an open file or directory handle. It implements fs.File,
// fs.ReadDirFile, io.ReaderAt, and io.Seeker. Handles are pooled:
// Close recycles the struct, so a handle must be closed exactly once
// and never used afterwards.
type File struct {
	v       *Volume
	ino     *Inode
	name    string
	off     int64
	dirents []dirent
	dirPos  int
	loaded  bool
	closed  bool
}

func (v *Volume) newFile(ino *Inode, name string) *File {
	f := filePool.Get().(*File)
	*f = File{v: v, ino: ino, name: name}
	return f
}

// Stat returns the handle's inode description.
func (f *File) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, &fs.PathError{Op: "stat", Path: f.name, Err: fs.ErrClosed}
	}
	return fileInfo{name: path.Base(f.name), ino: f.ino}, nil
}

// Read reads file data sequentially from the handle position.
func (f *File) Read(p []byte) (int, error) {
	if err := f.readable(); err != nil {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	n, err := f.v.readFileRange(f.ino, p, f.off)
	f.off += int64(n)
	if err != nil {
		return n, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt reads file data at an absolute offset, independent of the
// handle position. Safe for concurrent use on one handle.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := f.readable(); err != nil {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	n, err := f.v.readFileRange(f.ino, p, off)
	if err != nil {
		return n, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) readable() error {
	switch {
	case f.closed:
		return fs.ErrClosed
	case f.ino.IsDir():
		return errIsDir
	case !f.ino.Mode.IsRegular():
		// Symlinks were followed at open; this is a device,
		// fifo, or socket node, which holds no data.
		return fs.ErrInvalid
	}
	return nil
}

// Seek repositions the handle.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fs.ErrClosed}
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.off + offset
	case io.SeekEnd:
		pos = f.ino.Size + offset
	default:
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fs.ErrInvalid}
	}
	if pos < 0 {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fs.ErrInvalid}
	}
	f.off = pos
	return pos, nil
}

// ReadDir implements fs.ReadDirFile on directory handles, paging
// through the entries in stored order.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.closed {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: fs.ErrClosed}
	}
	if !f.ino.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: errNotDir}
	}
	if !f.loaded {
		ents, err := f.v.readDir(f.ino)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: err}
		}
		f.dirents = ents
		f.loaded = true
	}
	rest := f.dirents[f.dirPos:]
	if n <= 0 {
		f.dirPos = len(f.dirents)
		out := make([]fs.DirEntry, len(rest))
		for i, d := range rest {
			out[i] = dirEntry{v: f.v, d: d}
		}
		return out, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if len(rest) > n {
		rest = rest[:n]
	}
	f.dirPos += len(rest)
	out := make([]fs.DirEntry, len(rest))
	for i, d := range rest {
		out[i] = dirEntry{v: f.v, d: d}
	}
	return out, nil
}

// Close releases the handle back to the pool.
func (f *File) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.name, Err: fs.ErrClosed}
	}
	*f = File{closed: true}
	filePool.Put(f)
	return nil
}
