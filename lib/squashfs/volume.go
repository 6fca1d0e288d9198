// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Options configures a mount. The zero value mounts with defaults:
// logging through slog.Default and standard cache geometry.
type Options struct {
	// Silent suppresses the diagnostic log line for the
	// "not a squashfs image" rejection. Callers probing a device
	// against several filesystem formats set it; every other
	// rejection still logs.
	Silent bool

	// Logger receives mount lifecycle, cache, and warning output.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// MetadataCacheEntries and FragmentCacheEntries override the
	// cache capacities, mainly for tests. Zero means the defaults
	// (8 metadata blocks, 3 fragment blocks).
	MetadataCacheEntries int
	FragmentCacheEntries int
}

// MountFlag is a bitmask of mount-level toggles. The package defines
// only MountReadOnly; other bits pass through Remount untouched for
// the embedding layer's use.
type MountFlag uint32

// MountReadOnly is set on every volume and cannot be cleared:
// squashfs images are immutable.
const MountReadOnly MountFlag = 1 << 0

// Volume is a mounted SquashFS image. It is created only by Mount or
// MountFile, fully initialized: a Volume in caller hands always has
// its superblock validated, caches live, id table loaded, and root
// inode attached.
//
// Concurrent readers are safe. Three independent mutexes serialize
// the three shared mutable resources — the decompression workspace,
// the data-block page buffer, and the file seek index — and are never
// held together except that a data-block read holds the page mutex
// while the decompress underneath takes the workspace mutex (always
// in that order).
//
// Close does not wait for in-flight readers; quiesce them first.
// Operations on a closed volume fail with ErrClosed.
type Volume struct {
	log *slog.Logger
	dev *device
	sb  Superblock

	// Compressed-read domain: the shared zlib workspace.
	readMu  sync.Mutex
	inflate *inflater

	// Page domain: the block-sized buffer data blocks decompress
	// into on their way to callers.
	pageMu sync.Mutex
	page   []byte

	// Seek-index domain: anchors into large files' block lists.
	seekMu sync.Mutex
	seek   *seekIndex

	metaCache *blockCache
	fragCache *blockCache // only when the image has fragments

	ids    *idTable
	frags  *fragmentTable // only when the image has fragments
	lookup *lookupTable   // only when the image has a lookup table
	export bool

	root *Inode

	stateMu    sync.Mutex
	mountFlags MountFlag
	closed     bool
}

// Mount mounts a SquashFS image read through r, whose total size is
// size bytes. The reader is borrowed: Close releases the volume's own
// resources but never closes r. Mounting is atomic — on error nothing
// stays allocated and there is no partially mounted state.
func Mount(r io.ReaderAt, size int64, opts Options) (*Volume, error) {
	return mount(&device{r: r, size: size}, opts)
}

// MountFile mounts the image file at path. The volume owns the file
// handle and closes it on Close.
func MountFile(path string, opts Options) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing image: %w", err)
	}
	return mount(&device{r: f, size: st.Size(), f: f}, opts)
}

func mount(dev *device, opts Options) (*Volume, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	// The volume exists before validation so that every failure,
	// however early, unwinds through the same release path.
	v := &Volume{log: log, dev: dev, mountFlags: MountReadOnly}
	if err := v.start(opts); err != nil {
		v.release()
		logMountFailure(log, err, opts.Silent)
		return nil, err
	}
	v.log.Debug("mounted squashfs image",
		"bytes_used", v.sb.BytesUsed,
		"block_size", v.sb.BlockSize,
		"inodes", v.sb.Inodes,
		"fragments", v.sb.Fragments,
		"export", v.export,
		"created", v.sb.Created)
	return v, nil
}

// start reads and validates the superblock, then acquires the mount
// resources. The raw superblock bytes are scratch; they die with this
// frame whether or not the mount succeeds.
func (v *Volume) start(opts Options) error {
	raw := make([]byte, superblockSize)
	if err := v.dev.readAt(raw, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %d-byte image is smaller than a superblock",
				ErrNotSquashfs, v.dev.size)
		}
		return fmt.Errorf("reading superblock: %w", err)
	}
	sb, magic := decodeSuperblock(raw)
	if err := validate(&sb, magic, v.dev.size, v.log); err != nil {
		return err
	}
	v.sb = sb
	return v.acquire(opts)
}

// acquire obtains every resource a mounted volume needs, in fixed
// dependency order. A failure at any point returns with exactly the
// resources acquired so far still attached; the caller unwinds them
// through release. The error propagates unchanged.
func (v *Volume) acquire(opts Options) error {
	metaEntries := opts.MetadataCacheEntries
	if metaEntries <= 0 {
		metaEntries = defaultMetadataCacheEntries
	}
	fragEntries := opts.FragmentCacheEntries
	if fragEntries <= 0 {
		fragEntries = defaultFragmentCacheEntries
	}

	// Decompression workspace, then the page buffer data blocks
	// decompress into.
	v.inflate = newInflater(v.sb.BlockSize)
	v.page = make([]byte, v.sb.BlockSize)

	// Metadata cache, then the id table, which every inode decode
	// needs.
	v.metaCache = newBlockCache("metadata", metaEntries, MetadataBlockSize, v.log, v.fetchMetadata)
	ids, err := v.loadIDTable()
	if err != nil {
		return err
	}
	v.ids = ids

	// Fragment cache and index exist only when the image has
	// fragment blocks.
	if v.sb.Fragments > 0 {
		v.fragCache = newBlockCache("fragment", fragEntries, int(v.sb.BlockSize), v.log, v.fetchData)
		frags, err := v.loadFragmentTable()
		if err != nil {
			return err
		}
		v.frags = frags
	}

	// The optional lookup table turns on export: resolving inodes
	// by bare number.
	if v.sb.HasLookupTable() {
		lookup, err := v.loadLookupTable()
		if err != nil {
			return err
		}
		v.lookup = lookup
		v.export = true
	}

	// Root inode last; everything above is needed to decode it.
	root, err := v.readInode(v.sb.RootInode)
	if err != nil {
		return fmt.Errorf("reading root inode: %w", err)
	}
	if !root.IsDir() {
		return corruptf("root inode is %v, not a directory", root.Mode.Type())
	}
	v.root = root
	return nil
}

// release frees whatever subset of mount resources exists. The
// failed-mount unwind and Close both come through here; every step
// tolerates absence, so a partially acquired volume and a fully
// mounted one release identically. The device reference is dropped
// last — it is what marks the volume as live.
func (v *Volume) release() error {
	if v.metaCache != nil {
		v.metaCache.release()
		v.metaCache = nil
	}
	if v.fragCache != nil {
		v.fragCache.release()
		v.fragCache = nil
	}
	v.page = nil
	v.ids = nil
	v.frags = nil
	v.lookup = nil
	v.export = false
	v.seek = nil
	if v.inflate != nil {
		v.inflate.release()
		v.inflate = nil
	}
	v.root = nil

	var err error
	if v.dev != nil {
		err = v.dev.close()
		v.dev = nil
	}
	return err
}

// logMountFailure reports an aborted mount. The not-squashfs
// rejection stays quiet under silent probing, other format rejections
// log as warnings (the caller may simply have the wrong driver), and
// corruption or device failures are errors.
func logMountFailure(log *slog.Logger, err error, silent bool) {
	switch {
	case errors.Is(err, ErrNotSquashfs):
		if !silent {
			log.Warn("squashfs mount rejected", "error", err)
		}
	case FormatRejected(err):
		log.Warn("squashfs mount rejected", "error", err)
	default:
		log.Error("squashfs mount failed", "error", err)
	}
}

// Close unmounts the volume: caches, tables, buffers, and the
// decompression workspace are released, and the image file is closed
// when the volume owns it. Closing again is a no-op. Close does not
// synchronize with concurrent readers.
func (v *Volume) Close() error {
	v.stateMu.Lock()
	if v.closed {
		v.stateMu.Unlock()
		return nil
	}
	v.closed = true
	v.stateMu.Unlock()

	v.log.Debug("unmounting squashfs image")
	return v.release()
}

// alive fails with ErrClosed once Close has begun.
func (v *Volume) alive() error {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	if v.closed {
		return ErrClosed
	}
	return nil
}

// Superblock returns the validated superblock.
func (v *Volume) Superblock() Superblock {
	return v.sb
}

// Root returns the root directory inode, or nil on a closed volume.
func (v *Volume) Root() *Inode {
	return v.root
}

// ExportEnabled reports whether the volume can resolve inodes by
// bare inode number (the image carries a lookup table).
func (v *Volume) ExportEnabled() bool {
	return v.export
}

// InodeByNumber resolves a dense inode number (1..Superblock.Inodes)
// to its inode through the lookup table. Volumes without the export
// capability fail with ErrNotExportable. This is the stateless-handle
// path: a file server can hand out inode numbers and resolve them
// later without holding anything open.
func (v *Volume) InodeByNumber(ino uint32) (*Inode, error) {
	if err := v.alive(); err != nil {
		return nil, err
	}
	if !v.export {
		return nil, ErrNotExportable
	}
	ref, err := v.lookupRef(ino)
	if err != nil {
		return nil, err
	}
	return v.readInode(ref)
}

// Stats reports capacity and usage in filesystem-statistics shape.
// The image is immutable, so every "free" figure is zero.
type Stats struct {
	// Type is the filesystem magic.
	Type uint32

	// BlockSize is the data block size in bytes.
	BlockSize uint32

	// Blocks is the image size in blocks, rounded up.
	Blocks uint64

	// BlocksFree and BlocksAvail are always zero.
	BlocksFree, BlocksAvail uint64

	// Files is the inode count; FilesFree is always zero.
	Files     uint32
	FilesFree uint32

	// NameMax is the longest representable entry name.
	NameMax int
}

// Stats returns the volume's capacity report.
func (v *Volume) Stats() Stats {
	return Stats{
		Type:      Magic,
		BlockSize: v.sb.BlockSize,
		Blocks:    uint64((v.sb.BytesUsed-1)>>v.sb.BlockLog) + 1,
		Files:     v.sb.Inodes,
		NameMax:   MaxNameLen,
	}
}

// Remount applies new mount flags and returns the effective set.
// Read-only is forced on no matter what was asked for; remounting
// never fails.
func (v *Volume) Remount(flags MountFlag) MountFlag {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	v.mountFlags = flags | MountReadOnly
	return v.mountFlags
}

// MountFlags returns the current mount flags.
func (v *Volume) MountFlags() MountFlag {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.mountFlags
}
