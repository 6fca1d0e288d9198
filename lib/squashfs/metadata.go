// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

// metaPos addresses a byte inside a metadata stream: the absolute
// disk offset of a metadata block's length header, and a position
// within that block's decompressed payload.
type metaPos struct {
	block int64
	off   int
}

// metaReader reads a logical byte stream stored as a chain of
// metadata blocks, advancing across block boundaries via the
// next-block offsets the cache records. Inode records, directory
// data, and index-table entries are all read through metaReaders.
// Not safe for concurrent use; each reader is a short-lived cursor.
type metaReader struct {
	v   *Volume
	pos metaPos
}

// newMetaReader positions a cursor at pos.
func (v *Volume) newMetaReader(pos metaPos) *metaReader {
	return &metaReader{v: v, pos: pos}
}

// read fills p completely or fails. Reads pin one cached metadata
// block at a time, so concurrent cursors interleave freely.
func (r *metaReader) read(p []byte) error {
	for len(p) > 0 {
		e, err := r.v.metaCache.get(r.pos.block, 0)
		if err != nil {
			return err
		}
		if r.pos.off >= e.length {
			// The cursor sits exactly at the end of this block
			// (legal: a reference may point one past the last
			// byte, meaning "start of the next block"). Anything
			// further is a corrupt reference, as is an empty
			// block, which could never make progress.
			bad := r.pos.off > e.length || e.length == 0
			next := e.next
			r.v.metaCache.put(e)
			if bad {
				return corruptf("metadata position %d outside %d-byte block at offset %d",
					r.pos.off, e.length, r.pos.block)
			}
			r.pos = metaPos{block: next, off: 0}
			continue
		}
		n := copy(p, e.data[r.pos.off:e.length])
		r.v.metaCache.put(e)
		r.pos.off += n
		p = p[n:]
	}
	return nil
}
