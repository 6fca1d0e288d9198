// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

// On-disk format constants for SquashFS 4.0. All multi-byte fields in
// the image are little-endian.

const (
	// Magic identifies a SquashFS image. Stored little-endian at
	// offset 0, it reads as the bytes "hsqs".
	Magic = 0x73717368

	// MetadataBlockSize is the decompressed size of one metadata
	// block. Inodes, directory entries, and index-table entries are
	// packed into blocks of this size before compression.
	MetadataBlockSize = 8192

	// MaxBlockSize is the largest data block size the format can
	// express (1 MiB).
	MaxBlockSize = 1 << MaxBlockLog

	// MaxBlockLog is log2 of MaxBlockSize.
	MaxBlockLog = 20

	// MaxNameLen is the longest directory entry name the format can
	// store.
	MaxNameLen = 256

	majorVersion = 4
	minorVersion = 0

	superblockSize = 96

	// invalidBlock marks an optional table offset as "table absent"
	// in the superblock.
	invalidBlock = ^uint64(0)

	// invalidFragment in a file inode means the file has no tail
	// fragment.
	invalidFragment = 0xffffffff

	// metadataUncompressedBit in a metadata block's length header
	// means the payload is stored uncompressed. The remaining bits
	// are the stored length.
	metadataUncompressedBit = 1 << 15

	// dataUncompressedBit in a data block length word means the
	// block is stored uncompressed. The low 24 bits are the stored
	// length.
	dataUncompressedBit = 1 << 24

	// dirCountLimit bounds the entry count of one directory header.
	// Larger counts start a new header.
	dirCountLimit = 256

	// Default cache geometry: a handful of metadata blocks covers
	// the hot inode and directory streams, and fragment blocks are
	// large enough that three entries already hold several files'
	// tails.
	defaultMetadataCacheEntries = 8
	defaultFragmentCacheEntries = 3
)

// Packing densities of the index tables: entries never straddle a
// metadata block boundary because each entry size divides
// MetadataBlockSize evenly.
const (
	idsPerBlock       = MetadataBlockSize / 4  // uint32 ids
	fragmentsPerBlock = MetadataBlockSize / 16 // fragment descriptors
	lookupsPerBlock   = MetadataBlockSize / 8  // uint64 inode references
)

// Compression identifies the algorithm an image was written with.
// Only CompressionZlib is supported for reading; the others are
// recognized so rejections can name the algorithm.
type Compression uint16

const (
	CompressionZlib Compression = 1
	CompressionLZMA Compression = 2
	CompressionLZO  Compression = 3
	CompressionXZ   Compression = 4
	CompressionLZ4  Compression = 5
	CompressionZstd Compression = 6
)

// String returns the conventional name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionZlib:
		return "zlib"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZO:
		return "lzo"
	case CompressionXZ:
		return "xz"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return "unknown"
}

// Inode types as stored in the base inode header. The extended
// variants carry the same payload kinds with wider fields (64-bit
// sizes, nlink on regular files, xattr references).
const (
	typeDir = iota + 1
	typeFile
	typeSymlink
	typeBlockDev
	typeCharDev
	typeFifo
	typeSocket
	typeExtDir
	typeExtFile
	typeExtSymlink
	typeExtBlockDev
	typeExtCharDev
	typeExtFifo
	typeExtSocket
)

// Superblock flag bits. Decoded into a Flags struct during
// validation; the raw mask is never consulted afterwards.
const (
	flagUncompressedInodes    = 1 << 0
	flagUncompressedData      = 1 << 1
	flagUncompressedFragments = 1 << 3
	flagNoFragments           = 1 << 4
	flagAlwaysFragments       = 1 << 5
	flagDuplicates            = 1 << 6
	flagExportable            = 1 << 7
)

// refBlock extracts the metadata block location from an inode
// reference: the byte offset of the block's compressed header,
// relative to the start of the inode table.
func refBlock(ref uint64) int64 {
	return int64(ref >> 16)
}

// refOffset extracts the byte offset within the decompressed metadata
// block from an inode reference.
func refOffset(ref uint64) int {
	return int(ref & 0xffff)
}
