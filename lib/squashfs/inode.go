// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"encoding/binary"
	"io/fs"
	"time"
)

// Inode is a fully decoded inode. Every inode starts with a common
// 16-byte header; the rest of the record depends on the type, with
// "extended" variants widening sizes and adding fields this package
// reads past but does not use (xattr references, sparse accounting).
type Inode struct {
	// Number is the dense inode number, 1..Superblock.Inodes.
	Number uint32

	// Mode carries the file type and permission bits, including
	// setuid/setgid/sticky.
	Mode fs.FileMode

	// UID and GID are the numeric owner ids, already resolved
	// through the id table.
	UID, GID uint32

	// NLink is the link count. Basic regular files do not store
	// one; they report 1.
	NLink uint32

	// Size is the byte length for regular files and symlinks, and
	// the raw directory data length for directories (which counts
	// three virtual bytes for "." and "..").
	Size int64

	// ModTime is the inode modification time.
	ModTime time.Time

	// Rdev is the raw device number of block and character device
	// inodes; Device decodes it.
	Rdev uint32

	// Target is the symlink target, stored inline in the inode.
	Target string

	ref uint64 // this inode's own reference

	// Regular file layout.
	startBlock int64   // disk offset of the first data block
	fragment   uint32  // fragment block index, or invalidFragment
	fragOffset uint32  // tail offset inside the fragment block
	blockList  metaPos // where the block length words begin

	// Directory layout.
	dirStart  uint32 // metadata block of the entries, relative to the directory table
	dirOffset uint16 // offset within that block
	parent    uint32 // parent directory inode number
}

// Ref returns the inode's reference, the opaque handle that names it
// on disk. The root inode's reference appears in the superblock;
// every other reference comes from a directory entry or the lookup
// table.
func (i *Inode) Ref() uint64 { return i.ref }

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool { return i.Mode.IsDir() }

// Device decodes Rdev into major and minor device numbers.
func (i *Inode) Device() (major, minor uint32) {
	return (i.Rdev & 0xfff00) >> 8, (i.Rdev & 0xff) | ((i.Rdev >> 12) & 0xfff00)
}

// basicType folds the extended inode types onto their basic
// counterparts.
func basicType(typ uint16) uint16 {
	if typ > typeSocket {
		return typ - typeSocket
	}
	return typ
}

// fileModeFor combines an on-disk inode type and permission field
// into an fs.FileMode.
func fileModeFor(typ, perm uint16) fs.FileMode {
	mode := fs.FileMode(perm & 0o777)
	if perm&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if perm&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if perm&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	switch basicType(typ) {
	case typeDir:
		mode |= fs.ModeDir
	case typeSymlink:
		mode |= fs.ModeSymlink
	case typeBlockDev:
		mode |= fs.ModeDevice
	case typeCharDev:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case typeFifo:
		mode |= fs.ModeNamedPipe
	case typeSocket:
		mode |= fs.ModeSocket
	}
	return mode
}

// maxSymlinkTarget bounds inline symlink targets. Real targets are
// path-length sized; anything block-sized is a crafted image.
const maxSymlinkTarget = MetadataBlockSize

// readInode decodes the inode at ref.
func (v *Volume) readInode(ref uint64) (*Inode, error) {
	le := binary.LittleEndian
	mr := v.newMetaReader(metaPos{
		block: v.sb.InodeTableStart + refBlock(ref),
		off:   refOffset(ref),
	})

	var base [16]byte
	if err := mr.read(base[:]); err != nil {
		return nil, err
	}
	typ := le.Uint16(base[0:])
	perm := le.Uint16(base[2:])
	uidIdx := le.Uint16(base[4:])
	gidIdx := le.Uint16(base[6:])

	ino := &Inode{
		Number:  le.Uint32(base[12:]),
		ModTime: time.Unix(int64(le.Uint32(base[8:])), 0).UTC(),
		NLink:   1,
		ref:     ref,
	}

	var err error
	if ino.UID, err = v.id(uidIdx); err != nil {
		return nil, err
	}
	if ino.GID, err = v.id(gidIdx); err != nil {
		return nil, err
	}

	switch typ {
	case typeDir:
		var b [16]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.dirStart = le.Uint32(b[0:])
		ino.NLink = le.Uint32(b[4:])
		ino.Size = int64(le.Uint16(b[8:]))
		ino.dirOffset = le.Uint16(b[10:])
		ino.parent = le.Uint32(b[12:])

	case typeExtDir:
		var b [24]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.NLink = le.Uint32(b[0:])
		ino.Size = int64(le.Uint32(b[4:]))
		ino.dirStart = le.Uint32(b[8:])
		ino.parent = le.Uint32(b[12:])
		ino.dirOffset = le.Uint16(b[18:])
		// The directory index records that follow are an access
		// accelerator for very large directories; iteration works
		// without them.

	case typeFile:
		var b [16]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.startBlock = int64(le.Uint32(b[0:]))
		ino.fragment = le.Uint32(b[4:])
		ino.fragOffset = le.Uint32(b[8:])
		ino.Size = int64(le.Uint32(b[12:]))
		ino.blockList = mr.pos

	case typeExtFile:
		var b [40]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.startBlock = int64(le.Uint64(b[0:]))
		ino.Size = int64(le.Uint64(b[8:]))
		ino.NLink = le.Uint32(b[24:])
		ino.fragment = le.Uint32(b[28:])
		ino.fragOffset = le.Uint32(b[32:])
		ino.blockList = mr.pos
		if ino.Size < 0 || ino.startBlock < 0 {
			return nil, corruptf("inode %d has negative size or start", ino.Number)
		}

	case typeSymlink, typeExtSymlink:
		var b [8]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.NLink = le.Uint32(b[0:])
		size := le.Uint32(b[4:])
		if size > maxSymlinkTarget {
			return nil, corruptf("inode %d symlink target of %d bytes", ino.Number, size)
		}
		target := make([]byte, size)
		if err := mr.read(target); err != nil {
			return nil, err
		}
		ino.Target = string(target)
		ino.Size = int64(size)

	case typeBlockDev, typeCharDev, typeExtBlockDev, typeExtCharDev:
		var b [8]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.NLink = le.Uint32(b[0:])
		ino.Rdev = le.Uint32(b[4:])

	case typeFifo, typeSocket, typeExtFifo, typeExtSocket:
		var b [4]byte
		if err := mr.read(b[:]); err != nil {
			return nil, err
		}
		ino.NLink = le.Uint32(b[0:])

	default:
		return nil, corruptf("unknown inode type %d", typ)
	}

	ino.Mode = fileModeFor(typ, perm)
	return ino, nil
}
