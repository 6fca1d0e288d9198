// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"
)

// Superblock is the validated, host-endian view of the 96-byte header
// at the start of every SquashFS image. A Superblock handed out by
// this package has passed every compatibility and sanity check in
// validate; raw on-disk bytes are never exposed.
type Superblock struct {
	// Inodes is the number of inodes in the image. Inode numbers are
	// dense, running from 1 to Inodes.
	Inodes uint32

	// Created is the image creation (or last append) time.
	Created time.Time

	// BlockSize is the data block size in bytes.
	BlockSize uint32

	// BlockLog is log2(BlockSize) as recorded in the image. The two
	// fields are stored independently on disk; read paths shift by
	// BlockLog and bounds-check against real buffer sizes so a
	// mismatched pair degrades to a corruption error, never to
	// undefined behavior.
	BlockLog uint16

	// Fragments is the number of fragment blocks. Zero means the
	// image has no fragment subsystem.
	Fragments uint32

	// Compression identifies the compression algorithm. Always
	// CompressionZlib after validation.
	Compression Compression

	// Flags holds the decoded superblock flag bits.
	Flags Flags

	// IDCount is the number of entries in the id table.
	IDCount uint16

	// Major and Minor are the format version, always 4.0 after
	// validation.
	Major, Minor uint16

	// RootInode is the encoded reference of the root directory
	// inode: metadata block location in the upper 48 bits, byte
	// offset within the decompressed block in the lower 16.
	RootInode uint64

	// BytesUsed is the total number of image bytes. The image may be
	// padded beyond it (to a device block boundary) but nothing
	// after BytesUsed is ever read.
	BytesUsed int64

	// Table offsets, in bytes from the start of the image. The
	// xattr and lookup tables are optional; HasXattrs and
	// HasLookupTable report their presence.
	IDTableStart        int64
	XattrTableStart     int64
	InodeTableStart     int64
	DirectoryTableStart int64
	FragmentTableStart  int64
	LookupTableStart    int64
}

// Flags is the decoded superblock flag bitmask. The booleans describe
// how the image was written; readers only consult them for
// diagnostics, because every compressed unit also carries its own
// compressed-or-not marker.
type Flags struct {
	UncompressedInodes    bool
	UncompressedData      bool
	UncompressedFragments bool
	NoFragments           bool
	AlwaysFragments       bool
	Duplicates            bool
	Exportable            bool

	// Raw is the on-disk mask, kept for diagnostics output only.
	Raw uint16
}

func decodeFlags(raw uint16) Flags {
	return Flags{
		UncompressedInodes:    raw&flagUncompressedInodes != 0,
		UncompressedData:      raw&flagUncompressedData != 0,
		UncompressedFragments: raw&flagUncompressedFragments != 0,
		NoFragments:           raw&flagNoFragments != 0,
		AlwaysFragments:       raw&flagAlwaysFragments != 0,
		Duplicates:            raw&flagDuplicates != 0,
		Exportable:            raw&flagExportable != 0,
		Raw:                   raw,
	}
}

// HasLookupTable reports whether the image carries an inode lookup
// table. Its presence enables lookup by bare inode number
// (Volume.InodeByNumber), the stateless-handle resolution used by
// file servers.
func (s *Superblock) HasLookupTable() bool {
	return uint64(s.LookupTableStart) != invalidBlock
}

// HasXattrs reports whether the image carries an extended-attribute
// table. The table is never read; mounting such an image warns that
// the attributes are ignored.
func (s *Superblock) HasXattrs() bool {
	return uint64(s.XattrTableStart) != invalidBlock
}

// decodeSuperblock interprets the raw on-disk superblock bytes.
// Purely a byte-layout decode; validate applies the compatibility and
// sanity rules afterwards.
func decodeSuperblock(raw []byte) (Superblock, uint32) {
	le := binary.LittleEndian
	magic := le.Uint32(raw[0:])
	sb := Superblock{
		Inodes:              le.Uint32(raw[4:]),
		Created:             time.Unix(int64(le.Uint32(raw[8:])), 0).UTC(),
		BlockSize:           le.Uint32(raw[12:]),
		Fragments:           le.Uint32(raw[16:]),
		Compression:         Compression(le.Uint16(raw[20:])),
		BlockLog:            le.Uint16(raw[22:]),
		Flags:               decodeFlags(le.Uint16(raw[24:])),
		IDCount:             le.Uint16(raw[26:]),
		Major:               le.Uint16(raw[28:]),
		Minor:               le.Uint16(raw[30:]),
		RootInode:           le.Uint64(raw[32:]),
		BytesUsed:           int64(le.Uint64(raw[40:])),
		IDTableStart:        int64(le.Uint64(raw[48:])),
		XattrTableStart:     int64(le.Uint64(raw[56:])),
		InodeTableStart:     int64(le.Uint64(raw[64:])),
		DirectoryTableStart: int64(le.Uint64(raw[72:])),
		FragmentTableStart:  int64(le.Uint64(raw[80:])),
		LookupTableStart:    int64(le.Uint64(raw[88:])),
	}
	return sb, magic
}

// validate applies the mount-time superblock checks in order, each
// short-circuiting, to the decoded superblock. deviceSize is the byte
// length of the backing device or file. On success the superblock may
// be trusted by everything downstream; on failure it must be
// discarded.
func validate(sb *Superblock, magic uint32, deviceSize int64, log *slog.Logger) error {
	// Wrong magic means "some other filesystem", not a damaged one.
	if magic != Magic {
		return ErrNotSquashfs
	}

	// Version and compression gate: three independent rejection
	// causes. Older major versions use an incompatible layout;
	// newer images need a newer reader.
	if sb.Major < majorVersion {
		return fmt.Errorf("%w: squashfs %d.%d predates 4.0",
			ErrUnsupportedVersion, sb.Major, sb.Minor)
	}
	if sb.Major > majorVersion || sb.Minor > minorVersion {
		return fmt.Errorf("%w: squashfs %d.%d is newer than this reader supports",
			ErrUnsupportedVersion, sb.Major, sb.Minor)
	}
	if sb.Compression != CompressionZlib {
		return fmt.Errorf("%w: image uses %v", ErrUnsupportedCompression, sb.Compression)
	}

	// Extended attributes are not supported but their presence is
	// not fatal.
	if sb.HasXattrs() {
		log.Warn("image has extended attributes, ignoring them",
			"xattr_table_start", sb.XattrTableStart)
	}

	// Sanity bounds. The image cannot claim more bytes than its
	// container holds, blocks are capped by the format, and the
	// root inode offset must fall inside a metadata block.
	if sb.BytesUsed < 0 || sb.BytesUsed > deviceSize {
		return corruptf("image claims %d bytes but device holds %d",
			sb.BytesUsed, deviceSize)
	}
	if sb.BlockSize > MaxBlockSize {
		return corruptf("block size %d exceeds maximum %d", sb.BlockSize, MaxBlockSize)
	}
	if sb.BlockLog > MaxBlockLog {
		return corruptf("block log %d exceeds maximum %d", sb.BlockLog, MaxBlockLog)
	}
	if refOffset(sb.RootInode) > MetadataBlockSize {
		return corruptf("root inode offset %d exceeds metadata block size",
			refOffset(sb.RootInode))
	}
	return nil
}
