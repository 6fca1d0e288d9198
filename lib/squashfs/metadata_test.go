// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// rawMeta encodes payload as an uncompressed metadata block.
func rawMeta(payload []byte) []byte {
	b := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(b, uint16(len(payload))|metadataUncompressedBit)
	copy(b[2:], payload)
	return b
}

// compMeta encodes payload as a compressed metadata block.
func compMeta(t *testing.T, payload []byte) []byte {
	t.Helper()
	c := deflate(t, payload)
	b := make([]byte, 2+len(c))
	binary.LittleEndian.PutUint16(b, uint16(len(c)))
	copy(b[2:], c)
	return b
}

// metaVolume wraps a hand-built run of metadata blocks in just
// enough volume to read them: a device, the decompression workspace,
// and the metadata cache.
func metaVolume(t *testing.T, img []byte) *Volume {
	t.Helper()
	v := &Volume{
		log:     testLogger(),
		dev:     &device{r: bytes.NewReader(img), size: int64(len(img))},
		sb:      Superblock{BytesUsed: int64(len(img))},
		inflate: newInflater(4096),
	}
	v.metaCache = newBlockCache("metadata", 8, MetadataBlockSize, v.log, v.fetchMetadata)
	t.Cleanup(func() { v.release() })
	return v
}

func TestMetaReaderSpansBlocks(t *testing.T) {
	// A logical record can straddle block boundaries, and the
	// middle block being compressed must not matter to the cursor.
	a := []byte("0123456789")
	b := bytes.Repeat([]byte("abcde"), 4)
	c := []byte("VWXYZ")
	img := append(rawMeta(a), compMeta(t, b)...)
	img = append(img, rawMeta(c)...)
	v := metaVolume(t, img)

	all := append(append(append([]byte(nil), a...), b...), c...)
	got := make([]byte, len(all))
	if err := v.newMetaReader(metaPos{}).read(got); err != nil {
		t.Fatalf("read across blocks failed: %v", err)
	}
	if !bytes.Equal(got, all) {
		t.Errorf("read = %q, want %q", got, all)
	}

	// The same bytes one at a time, exercising the boundary on
	// every crossing.
	r := v.newMetaReader(metaPos{})
	for i := range all {
		var one [1]byte
		if err := r.read(one[:]); err != nil {
			t.Fatalf("read of byte %d failed: %v", i, err)
		}
		if one[0] != all[i] {
			t.Fatalf("byte %d = %q, want %q", i, one[0], all[i])
		}
	}
}

func TestMetaReaderStartsMidBlock(t *testing.T) {
	img := rawMeta([]byte("0123456789"))
	v := metaVolume(t, img)

	got := make([]byte, 4)
	if err := v.newMetaReader(metaPos{block: 0, off: 3}).read(got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "3456" {
		t.Errorf("read = %q, want %q", got, "3456")
	}
}

func TestMetaReaderCursorAtExactBlockEnd(t *testing.T) {
	// A reference may point one byte past a block's payload,
	// meaning the start of the next block.
	img := append(rawMeta([]byte("0123456789")), rawMeta([]byte("abc"))...)
	v := metaVolume(t, img)

	got := make([]byte, 3)
	if err := v.newMetaReader(metaPos{block: 0, off: 10}).read(got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("read = %q, want %q", got, "abc")
	}
}

func TestMetaReaderRejectsOffsetPastBlock(t *testing.T) {
	img := rawMeta([]byte("0123456789"))
	v := metaVolume(t, img)

	err := v.newMetaReader(metaPos{block: 0, off: 11}).read(make([]byte, 1))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("read error = %v, want ErrCorrupt", err)
	}
}

func TestFetchMetadataRejectsBadBlocks(t *testing.T) {
	tests := []struct {
		name string
		img  []byte
	}{
		{"zero stored length", rawMeta(nil)},
		{"stored length over block size", func() []byte {
			b := make([]byte, 2)
			binary.LittleEndian.PutUint16(b, uint16(MetadataBlockSize+1)|metadataUncompressedBit)
			return b
		}()},
		{"payload past image end", func() []byte {
			// Header claims 100 bytes, image holds 5.
			b := make([]byte, 7)
			binary.LittleEndian.PutUint16(b, 100|metadataUncompressedBit)
			return b
		}()},
		{"garbage compressed payload", func() []byte {
			b := make([]byte, 2+8)
			binary.LittleEndian.PutUint16(b, 8)
			copy(b[2:], "notzlib!")
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := metaVolume(t, tt.img)
			err := v.newMetaReader(metaPos{}).read(make([]byte, 1))
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("read error = %v, want ErrCorrupt", err)
			}
		})
	}
}
