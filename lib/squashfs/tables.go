// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"encoding/binary"
	"fmt"
)

// The three auxiliary index tables share one on-disk shape: entries
// packed into compressed metadata blocks, located by an uncompressed
// array of block offsets (the index) at the table's start offset.
// Mount loads the indexes; entry access afterwards goes through the
// metadata cache. The three loaders are deliberately uniform — each
// is a single idempotent call that either returns an owned table or
// an error, and a failed load leaves nothing behind.

// idTable maps compact on-disk id indices to numeric uids and gids.
type idTable struct {
	index []int64
	count int
}

// fragmentTable locates fragment blocks: packed tails of files
// smaller than a data block.
type fragmentTable struct {
	index []int64
	count int
}

// lookupTable maps dense inode numbers to inode references, enabling
// lookup by bare inode number (the export capability).
type lookupTable struct {
	index []int64
	count int
}

// loadIndex reads and validates a table's block-location index.
// entrySize is the packed size of one table entry, fixing how many
// metadata blocks the table occupies.
func (v *Volume) loadIndex(what string, start int64, count, entrySize int) ([]int64, error) {
	// The count comes off the superblock: size the index in 64-bit
	// arithmetic and bound it against the image before allocating
	// anything from it.
	blocks := (int64(count)*int64(entrySize) + MetadataBlockSize - 1) / MetadataBlockSize
	if start < 0 || 8*blocks > v.sb.BytesUsed-start {
		return nil, corruptf("%s index of %d blocks at offset %d does not fit the image",
			what, blocks, start)
	}
	raw := make([]byte, 8*blocks)
	if err := v.readRange(raw, start); err != nil {
		return nil, fmt.Errorf("loading %s index: %w", what, err)
	}
	index := make([]int64, blocks)
	for i := range index {
		loc := int64(binary.LittleEndian.Uint64(raw[8*i:]))
		if loc < 0 || loc >= v.sb.BytesUsed {
			return nil, corruptf("%s index block %d points to offset %d, outside the image",
				what, i, loc)
		}
		index[i] = loc
	}
	return index, nil
}

func (v *Volume) loadIDTable() (*idTable, error) {
	count := int(v.sb.IDCount)
	if count == 0 {
		return nil, corruptf("id table has no entries")
	}
	index, err := v.loadIndex("id table", v.sb.IDTableStart, count, 4)
	if err != nil {
		return nil, err
	}
	return &idTable{index: index, count: count}, nil
}

func (v *Volume) loadFragmentTable() (*fragmentTable, error) {
	count := int(v.sb.Fragments)
	index, err := v.loadIndex("fragment table", v.sb.FragmentTableStart, count, 16)
	if err != nil {
		return nil, err
	}
	return &fragmentTable{index: index, count: count}, nil
}

func (v *Volume) loadLookupTable() (*lookupTable, error) {
	count := int(v.sb.Inodes)
	index, err := v.loadIndex("inode lookup table", v.sb.LookupTableStart, count, 8)
	if err != nil {
		return nil, err
	}
	return &lookupTable{index: index, count: count}, nil
}

// id resolves an id-table index from an inode to a numeric uid/gid.
func (v *Volume) id(idx uint16) (uint32, error) {
	t := v.ids
	if t == nil {
		return 0, ErrClosed
	}
	if int(idx) >= t.count {
		return 0, corruptf("id index %d outside table of %d entries", idx, t.count)
	}
	pos := metaPos{
		block: t.index[int(idx)/idsPerBlock],
		off:   int(idx) % idsPerBlock * 4,
	}
	var b [4]byte
	if err := v.newMetaReader(pos).read(b[:]); err != nil {
		return 0, fmt.Errorf("reading id %d: %w", idx, err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// fragmentEntry returns the disk location and length word of fragment
// block i.
func (v *Volume) fragmentEntry(i uint32) (int64, uint32, error) {
	t := v.frags
	if t == nil {
		return 0, 0, corruptf("file references fragment %d but the image has none", i)
	}
	if uint64(i) >= uint64(t.count) {
		return 0, 0, corruptf("fragment %d outside table of %d entries", i, t.count)
	}
	pos := metaPos{
		block: t.index[int(i)/fragmentsPerBlock],
		off:   int(i) % fragmentsPerBlock * 16,
	}
	var b [16]byte
	if err := v.newMetaReader(pos).read(b[:]); err != nil {
		return 0, 0, fmt.Errorf("reading fragment entry %d: %w", i, err)
	}
	start := int64(binary.LittleEndian.Uint64(b[0:]))
	word := binary.LittleEndian.Uint32(b[8:])
	return start, word, nil
}

// lookupRef maps a dense inode number (1-based) to that inode's
// reference via the lookup table.
func (v *Volume) lookupRef(ino uint32) (uint64, error) {
	t := v.lookup
	if ino == 0 || uint64(ino) > uint64(t.count) {
		return 0, corruptf("inode number %d outside 1..%d", ino, t.count)
	}
	i := int(ino - 1)
	pos := metaPos{
		block: t.index[i/lookupsPerBlock],
		off:   i % lookupsPerBlock * 8,
	}
	var b [8]byte
	if err := v.newMetaReader(pos).read(b[:]); err != nil {
		return 0, fmt.Errorf("reading lookup entry %d: %w", ino, err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
