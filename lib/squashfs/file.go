// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"encoding/binary"
	"io/fs"
)

// Regular file data is a sequence of block-sized extents laid out
// consecutively from the inode's start block, described by one length
// word each in the inode's block list. A zero word is a hole (no
// bytes on disk, reads as zeros). A file whose length is not a block
// multiple either rounds its last extent down to the real size or
// parks the tail inside a shared fragment block.

const (
	// seekStride is the number of block-list words between seek
	// index anchors.
	seekStride = 256

	// seekIndexInodes caps how many files keep anchors at once.
	seekIndexInodes = 8
)

// seekAnchor is a resumable position in a file's block list: the
// disk offset where data block n starts and the block-list cursor
// sitting at word n.
type seekAnchor struct {
	disk int64
	pos  metaPos
}

// seekIndex remembers anchors for recently read files so that random
// and resumed reads need not walk the block list from word zero.
// anchors[ino][j] is the state just before data block j*seekStride.
type seekIndex struct {
	anchors map[uint32][]seekAnchor
}

// fileBlocks returns the number of entries in f's block list. Files
// with a fragment tail round down; whole-block files round up.
func (v *Volume) fileBlocks(f *Inode) int {
	if f.fragment != invalidFragment {
		return int(f.Size >> v.sb.BlockLog)
	}
	return int((f.Size + int64(1)<<v.sb.BlockLog - 1) >> v.sb.BlockLog)
}

// blockAt locates data block bi of file f: the disk offset where its
// bytes begin and its length word. The block list has no random
// access, so the walk is linear from the nearest seek anchor, laying
// down new anchors as it crosses stride boundaries.
func (v *Volume) blockAt(f *Inode, bi int) (int64, uint32, error) {
	disk := f.startBlock
	pos := f.blockList
	next := 0

	v.seekMu.Lock()
	if v.seek == nil {
		v.seek = &seekIndex{anchors: make(map[uint32][]seekAnchor)}
	}
	if _, ok := v.seek.anchors[f.Number]; !ok && len(v.seek.anchors) >= seekIndexInodes {
		// Recycle a slot. Anchors are only a shortcut; whichever
		// file loses them rebuilds on its next long walk.
		for ino := range v.seek.anchors {
			delete(v.seek.anchors, ino)
			break
		}
	}
	if anchors := v.seek.anchors[f.Number]; len(anchors) > 0 {
		j := min(bi/seekStride, len(anchors)-1)
		disk, pos, next = anchors[j].disk, anchors[j].pos, j*seekStride
	}
	v.seekMu.Unlock()

	mr := v.newMetaReader(pos)
	var w [4]byte
	for {
		if next%seekStride == 0 {
			v.seekMu.Lock()
			anchors := v.seek.anchors[f.Number]
			if next/seekStride == len(anchors) {
				v.seek.anchors[f.Number] = append(anchors, seekAnchor{disk: disk, pos: mr.pos})
			}
			v.seekMu.Unlock()
		}
		if err := mr.read(w[:]); err != nil {
			return 0, 0, err
		}
		word := binary.LittleEndian.Uint32(w[:])
		if next == bi {
			return disk, word, nil
		}
		disk += int64(word &^ uint32(dataUncompressedBit))
		next++
	}
}

// readFileRange reads f's bytes [off, off+len(p)) into p and returns
// how many bytes it produced. Reads past the end come back short;
// callers translate that to io.EOF. Holes materialize as zeros.
func (v *Volume) readFileRange(f *Inode, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if off >= f.Size {
		return 0, nil
	}
	if rest := f.Size - off; int64(len(p)) > rest {
		p = p[:rest]
	}

	blocks := v.fileBlocks(f)
	region := int64(blocks) << v.sb.BlockLog

	total := 0
	for len(p) > 0 {
		var n int
		var err error
		if off < region {
			n, err = v.readFileBlock(f, p, off)
		} else {
			n, err = v.readFragmentTail(f, p, off, region)
		}
		if err != nil {
			return total, err
		}
		total += n
		off += int64(n)
		p = p[n:]
	}
	return total, nil
}

// readFileBlock copies from the data block containing offset off,
// staging compressed blocks through the volume's page buffer. It
// returns how much of p it filled, at most up to the block boundary.
func (v *Volume) readFileBlock(f *Inode, p []byte, off int64) (int, error) {
	bi := int(off >> v.sb.BlockLog)
	inner := int(off & (int64(1)<<v.sb.BlockLog - 1))

	// The last listed block of a file without a fragment tail is
	// logically short.
	blockLen := int64(1) << v.sb.BlockLog
	if rest := f.Size - (off - int64(inner)); rest < blockLen {
		blockLen = rest
	}

	disk, word, err := v.blockAt(f, bi)
	if err != nil {
		return 0, err
	}

	if word == 0 {
		n := min(len(p), int(blockLen)-inner)
		clear(p[:n])
		return n, nil
	}

	v.pageMu.Lock()
	defer v.pageMu.Unlock()
	got, _, err := v.fetchData(v.page, disk, word)
	if err != nil {
		return 0, err
	}
	if int64(got) < blockLen {
		return 0, corruptf("data block %d of inode %d holds %d bytes, expected %d",
			bi, f.Number, got, blockLen)
	}
	return copy(p, v.page[inner:blockLen]), nil
}

// readFragmentTail copies from f's tail bytes inside its fragment
// block. region is where the block-list extents end; everything from
// there to f.Size lives at fragOffset inside the shared fragment.
func (v *Volume) readFragmentTail(f *Inode, p []byte, off, region int64) (int, error) {
	start, word, err := v.fragmentEntry(f.fragment)
	if err != nil {
		return 0, err
	}
	e, err := v.fragCache.get(start, word)
	if err != nil {
		return 0, err
	}
	defer v.fragCache.put(e)

	tail := f.Size - region
	lo := int64(f.fragOffset)
	if lo+tail > int64(e.length) {
		return 0, corruptf("fragment %d holds %d bytes, inode %d tail needs %d at offset %d",
			f.fragment, e.length, f.Number, tail, lo)
	}
	skip := off - region
	return copy(p, e.data[lo+skip:lo+tail]), nil
}
