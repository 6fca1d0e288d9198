// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"encoding/binary"
)

// Compressed block reads. The image stores two kinds of compressed
// unit: metadata blocks, prefixed by a two-byte length header whose
// top bit means "stored uncompressed", and data blocks, whose length
// word lives elsewhere (a file's block list or a fragment descriptor)
// with bit 24 meaning "stored uncompressed". Both kinds stage their
// compressed bytes in the volume's shared workspace under the
// compressed-read mutex.

// readRange reads image bytes [off, off+len(p)). The range must lie
// inside the validated image size; table pointers and block headers
// that point outside it are corruption, caught here before touching
// the device.
func (v *Volume) readRange(p []byte, off int64) error {
	if off < 0 || int64(len(p)) > v.sb.BytesUsed-off {
		return corruptf("read of %d bytes at offset %d outside %d-byte image",
			len(p), off, v.sb.BytesUsed)
	}
	return v.dev.readAt(p, off)
}

// fetchMetadata reads the metadata block whose length header sits at
// offset, decompressing into dst. Returns the payload length and the
// offset of the next metadata block. Shaped as a fetchFunc for the
// metadata cache; the length argument is unused because metadata
// blocks are self-describing.
func (v *Volume) fetchMetadata(dst []byte, offset int64, _ uint32) (int, int64, error) {
	var hdr [2]byte
	if err := v.readRange(hdr[:], offset); err != nil {
		return 0, 0, err
	}
	word := binary.LittleEndian.Uint16(hdr[:])
	stored := int(word &^ uint16(metadataUncompressedBit))
	compressed := word&metadataUncompressedBit == 0

	// A metadata block never stores more than its decompressed
	// size: the writer keeps incompressible blocks raw.
	if stored == 0 || stored > MetadataBlockSize || stored > len(dst) {
		return 0, 0, corruptf("metadata block at offset %d stores %d bytes", offset, stored)
	}
	next := offset + 2 + int64(stored)

	if !compressed {
		if err := v.readRange(dst[:stored], offset+2); err != nil {
			return 0, 0, err
		}
		return stored, next, nil
	}

	v.readMu.Lock()
	defer v.readMu.Unlock()
	src := v.inflate.scratch[:stored]
	if err := v.readRange(src, offset+2); err != nil {
		return 0, 0, err
	}
	n, err := v.inflate.inflate(dst, src)
	if err != nil {
		return 0, 0, err
	}
	return n, next, nil
}

// fetchData reads the data block at offset into dst, given its length
// word. Used directly for file blocks (into the volume's page buffer)
// and as the fragment cache's fetchFunc. Length word zero is a hole
// and never reaches here; callers materialize holes as zeros.
func (v *Volume) fetchData(dst []byte, offset int64, word uint32) (int, int64, error) {
	stored := int(word &^ uint32(dataUncompressedBit))
	compressed := word&dataUncompressedBit == 0

	if stored == 0 || stored > len(dst) {
		return 0, 0, corruptf("data block at offset %d stores %d bytes", offset, stored)
	}

	if !compressed {
		if err := v.readRange(dst[:stored], offset); err != nil {
			return 0, 0, err
		}
		return stored, 0, nil
	}

	v.readMu.Lock()
	defer v.readMu.Unlock()
	src := v.inflate.scratch[:stored]
	if err := v.readRange(src, offset); err != nil {
		return 0, 0, err
	}
	n, err := v.inflate.inflate(dst, src)
	if err != nil {
		return 0, 0, err
	}
	return n, 0, nil
}
