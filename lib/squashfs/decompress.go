// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// inflater is the volume's decompression workspace: a staging buffer
// for compressed bytes read off the device, and one reusable zlib
// stream. There is exactly one per volume, guarded by the volume's
// compressed-read mutex, so steady-state decompression does not
// allocate.
type inflater struct {
	// scratch stages compressed bytes between the device read and
	// the inflate. A stored block is never larger than its
	// decompressed form (the writer keeps incompressible blocks
	// uncompressed), so max(MetadataBlockSize, block size) covers
	// both block kinds.
	scratch []byte

	// zr is the zlib stream, created on first use and Reset for
	// every stream after that. It always satisfies zlib.Resetter.
	zr io.ReadCloser

	released bool
}

// newInflater allocates the workspace for a volume with the given
// data block size.
func newInflater(blockSize uint32) *inflater {
	n := MetadataBlockSize
	if int(blockSize) > n {
		n = int(blockSize)
	}
	return &inflater{scratch: make([]byte, n)}
}

// inflate decompresses the zlib stream in src into dst and returns
// the decompressed length. The stream may end before dst is full (the
// final block of a file or table is short) but must not keep going
// past it; overflow and any zlib-level failure, including a bad
// checksum, are corruption.
func (z *inflater) inflate(dst, src []byte) (int, error) {
	br := bytes.NewReader(src)
	if z.zr == nil {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return 0, corruptf("bad zlib stream: %v", err)
		}
		z.zr = zr
	} else if err := z.zr.(zlib.Resetter).Reset(br, nil); err != nil {
		return 0, corruptf("bad zlib stream: %v", err)
	}

	total := 0
	for total < len(dst) {
		n, err := z.zr.Read(dst[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, corruptf("inflating block: %v", err)
		}
	}

	// dst is full; the stream must end exactly here.
	var probe [1]byte
	n, err := z.zr.Read(probe[:])
	if n != 0 || err == nil {
		return 0, corruptf("block decompresses past its %d-byte bound", len(dst))
	}
	if err != io.EOF {
		return 0, corruptf("inflating block: %v", err)
	}
	return total, nil
}

// release frees the workspace. The volume calls it exactly once;
// the released flag exists so tests can verify that.
func (z *inflater) release() {
	z.scratch = nil
	if z.zr != nil {
		z.zr.Close()
		z.zr = nil
	}
	z.released = true
}
