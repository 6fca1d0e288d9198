// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/squashfs-tools/go-squashfs/lib/squashfs/sqfstest"
)

// tenInodeImage builds the reference image: ten inodes (root plus
// nine entries), no fragments, no lookup table, default 128KiB
// blocks.
func tenInodeImage(t *testing.T) []byte {
	im := sqfstest.New()
	im.NoFragments = true
	im.NoLookup = true
	im.Dir("bin", 0o755)
	im.File("bin/true", []byte{0x7f, 'E', 'L', 'F'}, 0o755)
	im.Dir("etc", 0o755)
	im.File("etc/hostname", []byte("testhost\n"), 0o644)
	im.File("etc/os-release", []byte("NAME=test\n"), 0o644)
	im.Symlink("init", "bin/true")
	im.CharDev("null", 1, 3, 0o666)
	im.Fifo("pipe", 0o644)
	im.File("version", []byte("1.0\n"), 0o444)
	return im.Build(t)
}

func mountBytes(t *testing.T, img []byte) *Volume {
	t.Helper()
	v, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestMountTenInodeImage(t *testing.T) {
	img := tenInodeImage(t)
	v := mountBytes(t, img)

	sb := v.Superblock()
	if sb.Inodes != 10 {
		t.Errorf("Inodes = %d, want 10", sb.Inodes)
	}
	if sb.BlockSize != 131072 || sb.BlockLog != 17 {
		t.Errorf("block size/log = %d/%d, want 131072/17", sb.BlockSize, sb.BlockLog)
	}
	if sb.Fragments != 0 {
		t.Errorf("Fragments = %d, want 0", sb.Fragments)
	}
	if sb.RootInode != 0 {
		t.Errorf("RootInode = %#x, want block 0 offset 0", sb.RootInode)
	}
	if sb.BytesUsed != int64(len(img)) {
		t.Errorf("BytesUsed = %d, want %d", sb.BytesUsed, len(img))
	}

	// No fragment machinery and no export on this image.
	if v.fragCache != nil || v.frags != nil {
		t.Error("fragment cache or table allocated for a fragment-free image")
	}
	if v.lookup != nil || v.ExportEnabled() {
		t.Error("lookup table allocated for an image without one")
	}
	if _, err := v.InodeByNumber(3); !errors.Is(err, ErrNotExportable) {
		t.Errorf("InodeByNumber = %v, want ErrNotExportable", err)
	}

	root := v.Root()
	if root == nil || !root.IsDir() {
		t.Fatalf("root inode = %+v, want a directory", root)
	}
	if root.Number != 10 {
		t.Errorf("root inode number = %d, want 10", root.Number)
	}

	stats := v.Stats()
	if stats.Type != Magic {
		t.Errorf("Stats.Type = %#x, want %#x", stats.Type, Magic)
	}
	if stats.BlockSize != 131072 {
		t.Errorf("Stats.BlockSize = %d, want 131072", stats.BlockSize)
	}
	wantBlocks := uint64((int64(len(img))-1)>>17) + 1
	if stats.Blocks != wantBlocks {
		t.Errorf("Stats.Blocks = %d, want %d", stats.Blocks, wantBlocks)
	}
	if stats.BlocksFree != 0 || stats.BlocksAvail != 0 || stats.FilesFree != 0 {
		t.Error("free counts must be zero on a read-only filesystem")
	}
	if stats.Files != 10 {
		t.Errorf("Stats.Files = %d, want 10", stats.Files)
	}
	if stats.NameMax != MaxNameLen {
		t.Errorf("Stats.NameMax = %d, want %d", stats.NameMax, MaxNameLen)
	}
}

func TestMountFragmentImage(t *testing.T) {
	// Five 3000-byte files with 4KiB blocks: every file is a pure
	// tail, too big to share a fragment block, so the image carries
	// exactly five fragments.
	im := sqfstest.New()
	im.BlockSize = 4096
	contents := make([][]byte, 5)
	for i := range contents {
		data := make([]byte, 3000)
		for j := range data {
			data[j] = byte(i*31 + j)
		}
		contents[i] = data
		im.File(fmt.Sprintf("file%d", i), data, 0o644)
	}
	v := mountBytes(t, im.Build(t))

	if v.Superblock().Fragments != 5 {
		t.Fatalf("Fragments = %d, want 5", v.Superblock().Fragments)
	}
	if v.fragCache == nil {
		t.Fatal("fragment cache missing on an image with fragments")
	}
	if v.frags == nil || v.frags.count != 5 {
		t.Fatalf("fragment table count = %v, want 5 entries", v.frags)
	}
	if len(v.frags.index) != 1 {
		t.Errorf("fragment index blocks = %d, want 1", len(v.frags.index))
	}

	for i, want := range contents {
		name := fmt.Sprintf("file%d", i)
		got, err := readAll(v, name)
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s content mismatch (%d bytes read)", name, len(got))
		}
	}
}

func readAll(v *Volume, name string) ([]byte, error) {
	f, err := v.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func TestMountRejectsOldMajorVersion(t *testing.T) {
	img := tenInodeImage(t)
	binary.LittleEndian.PutUint16(img[28:], 3)

	_, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger()})
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Mount error = %v, want ErrUnsupportedVersion", err)
	}
	if !FormatRejected(err) {
		t.Error("old-major rejection is not a format rejection")
	}
	if !strings.Contains(err.Error(), "predates") {
		t.Errorf("error %q does not say the image predates 4.0", err)
	}
}

func TestMountRejectsPatchedSuperblocks(t *testing.T) {
	tests := []struct {
		name    string
		patch   func(img []byte)
		wantErr error
	}{
		{
			"wrong magic",
			func(img []byte) { binary.LittleEndian.PutUint32(img[0:], 0xdeadbeef) },
			ErrNotSquashfs,
		},
		{
			"zstd compression",
			func(img []byte) { binary.LittleEndian.PutUint16(img[20:], 6) },
			ErrUnsupportedCompression,
		},
		{
			"image larger than device",
			func(img []byte) { binary.LittleEndian.PutUint64(img[40:], uint64(len(img)+1)) },
			ErrCorrupt,
		},
		{
			"oversized block log",
			func(img []byte) { binary.LittleEndian.PutUint16(img[22:], 30) },
			ErrCorrupt,
		},
		{
			"root offset outside metadata block",
			func(img []byte) { binary.LittleEndian.PutUint64(img[32:], 9000) },
			ErrCorrupt,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := tenInodeImage(t)
			tt.patch(img)
			_, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger()})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Mount error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMountShortDevice(t *testing.T) {
	// A device smaller than a superblock is "not squashfs", the
	// same answer a format-probing caller gets for wrong magic.
	img := []byte("definitely not a filesystem")
	_, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger(), Silent: true})
	if !errors.Is(err, ErrNotSquashfs) {
		t.Fatalf("Mount error = %v, want ErrNotSquashfs", err)
	}
}

func TestMountSilentSuppressesMagicDiagnostics(t *testing.T) {
	img := tenInodeImage(t)
	binary.LittleEndian.PutUint32(img[0:], 0x12345678)

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	// Silent probing: the magic mismatch logs nothing.
	_, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: log, Silent: true})
	if !errors.Is(err, ErrNotSquashfs) {
		t.Fatalf("Mount error = %v, want ErrNotSquashfs", err)
	}
	if buf.Len() != 0 {
		t.Errorf("silent mount logged: %q", buf.String())
	}

	// The same failure without Silent is diagnosed.
	_, _ = Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: log})
	if !strings.Contains(buf.String(), "rejected") {
		t.Errorf("non-silent mount logged %q, want a rejection diagnostic", buf.String())
	}

	// Corruption is logged as an error even when Silent is set.
	buf.Reset()
	img = tenInodeImage(t)
	binary.LittleEndian.PutUint64(img[40:], uint64(len(img)+1))
	_, _ = Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: log, Silent: true})
	if !strings.Contains(buf.String(), "failed") {
		t.Errorf("corrupt mount logged %q, want a failure diagnostic", buf.String())
	}
}

func TestCloseIdempotent(t *testing.T) {
	v := mountBytes(t, tenInodeImage(t))

	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if v.Root() != nil {
		t.Error("Root is non-nil after Close")
	}
	if _, err := v.Open("etc/hostname"); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v, want ErrClosed", err)
	}
	if _, err := v.ReadDir("."); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadDir after Close = %v, want ErrClosed", err)
	}
}

func TestMountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.squashfs")
	if err := os.WriteFile(path, tenInodeImage(t), 0o644); err != nil {
		t.Fatalf("writing image: %v", err)
	}

	v, err := MountFile(path, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("MountFile failed: %v", err)
	}
	got, err := readAll(v, "etc/hostname")
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if string(got) != "testhost\n" {
		t.Errorf("content = %q, want %q", got, "testhost\n")
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := MountFile(filepath.Join(t.TempDir(), "missing"), Options{Logger: testLogger()}); err == nil {
		t.Fatal("MountFile succeeded on a missing path")
	}
}

func TestRemountForcesReadOnly(t *testing.T) {
	v := mountBytes(t, tenInodeImage(t))

	if got := v.MountFlags(); got != MountReadOnly {
		t.Errorf("initial flags = %#x, want %#x", got, MountReadOnly)
	}
	// Asking for anything, including nothing, keeps read-only set.
	if got := v.Remount(0); got&MountReadOnly == 0 {
		t.Errorf("Remount(0) = %#x, read-only bit missing", got)
	}
	const callerBit MountFlag = 1 << 8
	got := v.Remount(callerBit)
	if got&MountReadOnly == 0 || got&callerBit == 0 {
		t.Errorf("Remount = %#x, want read-only plus caller bit", got)
	}
	if v.MountFlags() != got {
		t.Errorf("MountFlags = %#x, want %#x", v.MountFlags(), got)
	}
}

func TestInodeByNumber(t *testing.T) {
	// The default builder image carries a lookup table, so every
	// dense inode number resolves.
	im := sqfstest.New()
	im.Dir("a", 0o755)
	im.File("a/b", []byte("payload"), 0o600)
	im.Symlink("c", "a/b")
	v := mountBytes(t, im.Build(t))

	if !v.ExportEnabled() {
		t.Fatal("export disabled on an image with a lookup table")
	}
	n := v.Superblock().Inodes
	for ino := uint32(1); ino <= n; ino++ {
		got, err := v.InodeByNumber(ino)
		if err != nil {
			t.Fatalf("InodeByNumber(%d) failed: %v", ino, err)
		}
		if got.Number != ino {
			t.Errorf("InodeByNumber(%d).Number = %d", ino, got.Number)
		}
	}
	if _, err := v.InodeByNumber(0); !errors.Is(err, ErrCorrupt) {
		t.Errorf("InodeByNumber(0) = %v, want ErrCorrupt", err)
	}
	if _, err := v.InodeByNumber(n + 1); !errors.Is(err, ErrCorrupt) {
		t.Errorf("InodeByNumber(%d) = %v, want ErrCorrupt", n+1, err)
	}
}

// faultReader fails any read that covers the deny offset, simulating
// a device error at one precise structure.
type faultReader struct {
	r    io.ReaderAt
	deny int64
}

var errInjected = errors.New("injected read failure")

func (f *faultReader) ReadAt(p []byte, off int64) (int, error) {
	if f.deny >= off && f.deny < off+int64(len(p)) {
		return 0, errInjected
	}
	return f.r.ReadAt(p, off)
}

func TestMountFaultInjection(t *testing.T) {
	// Fail resource acquisition at each stage in turn and verify
	// the unwind: exactly the resources acquired before the failing
	// step exist, release frees each exactly once, and a second
	// release is a no-op.
	im := sqfstest.New()
	im.BlockSize = 4096
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i)
	}
	im.File("tail", data, 0o644)
	img := im.Build(t)
	sb, _ := decodeSuperblock(img[:superblockSize])

	tests := []struct {
		name string
		deny int64
		// Resources expected at failure time.
		wantIDs       bool
		wantFragCache bool
		wantFrags     bool
		wantLookup    bool
	}{
		{"id table load fails", sb.IDTableStart, false, false, false, false},
		{"fragment table load fails", sb.FragmentTableStart, true, true, false, false},
		{"lookup table load fails", sb.LookupTableStart, true, true, true, false},
		{"root inode read fails", sb.InodeTableStart, true, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &device{
				r:    &faultReader{r: bytes.NewReader(img), deny: tt.deny},
				size: int64(len(img)),
			}
			v := &Volume{log: testLogger(), dev: dev, mountFlags: MountReadOnly}

			err := v.start(Options{})
			if !errors.Is(err, errInjected) {
				t.Fatalf("start error = %v, want the injected failure", err)
			}

			// Steps before the failing one are acquired, later ones
			// are not, and the root is never attached.
			if v.inflate == nil || v.page == nil || v.metaCache == nil {
				t.Fatal("workspace, page buffer, or metadata cache missing at failure")
			}
			if got := v.ids != nil; got != tt.wantIDs {
				t.Errorf("id table present = %v, want %v", got, tt.wantIDs)
			}
			if got := v.fragCache != nil; got != tt.wantFragCache {
				t.Errorf("fragment cache present = %v, want %v", got, tt.wantFragCache)
			}
			if got := v.frags != nil; got != tt.wantFrags {
				t.Errorf("fragment table present = %v, want %v", got, tt.wantFrags)
			}
			if got := v.lookup != nil; got != tt.wantLookup {
				t.Errorf("lookup table present = %v, want %v", got, tt.wantLookup)
			}
			if v.root != nil {
				t.Error("root attached despite mount failure")
			}
			if v.export {
				t.Error("export enabled despite mount failure")
			}

			// Unwind releases each acquired resource exactly once.
			meta, frag, inf := v.metaCache, v.fragCache, v.inflate
			if err := v.release(); err != nil {
				t.Fatalf("release failed: %v", err)
			}
			if v.metaCache != nil || v.fragCache != nil || v.page != nil ||
				v.ids != nil || v.frags != nil || v.lookup != nil ||
				v.inflate != nil || v.root != nil || v.dev != nil {
				t.Error("release left resources attached")
			}
			if meta.releases != 1 {
				t.Errorf("metadata cache released %d times, want 1", meta.releases)
			}
			if frag != nil && frag.releases != 1 {
				t.Errorf("fragment cache released %d times, want 1", frag.releases)
			}
			if !inf.released {
				t.Error("decompression workspace not released")
			}

			// Releasing again must not touch the caches a second
			// time.
			if err := v.release(); err != nil {
				t.Fatalf("second release failed: %v", err)
			}
			if meta.releases != 1 {
				t.Errorf("metadata cache released %d times after double release, want 1", meta.releases)
			}
		})
	}
}

func TestMountInvalidSuperblockAcquiresNothing(t *testing.T) {
	// Validation failures happen before any acquisition: the unwind
	// has nothing to free beyond the transient superblock bytes.
	img := tenInodeImage(t)
	binary.LittleEndian.PutUint32(img[0:], 0xbadc0de)

	dev := &device{r: bytes.NewReader(img), size: int64(len(img))}
	v := &Volume{log: testLogger(), dev: dev, mountFlags: MountReadOnly}
	if err := v.start(Options{Silent: true}); !errors.Is(err, ErrNotSquashfs) {
		t.Fatalf("start error = %v, want ErrNotSquashfs", err)
	}
	if v.inflate != nil || v.page != nil || v.metaCache != nil || v.ids != nil {
		t.Error("validation failure left resources acquired")
	}
	if err := v.release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}

func TestMountCorruptRootInode(t *testing.T) {
	// Step 7 failure: the root inode record is damaged. Raw
	// metadata keeps the on-disk offsets patchable.
	im := sqfstest.New()
	im.RawMetadata = true
	im.File("a", []byte("x"), 0o644)
	img := im.Build(t)
	sb, _ := decodeSuperblock(img[:superblockSize])

	// The root inode is first in the table; its type field sits
	// right after the two-byte block header.
	binary.LittleEndian.PutUint16(img[sb.InodeTableStart+2:], 99)
	_, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger()})
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Mount error = %v, want ErrCorrupt", err)
	}
	if !strings.Contains(err.Error(), "root inode") {
		t.Errorf("error %q does not mention the root inode", err)
	}

	// A root that decodes fine but is not a directory also fails.
	img = im.Build(t)
	binary.LittleEndian.PutUint16(img[sb.InodeTableStart+2:], 2) // regular file
	_, err = Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger()})
	if !errors.Is(err, ErrCorrupt) || !strings.Contains(err.Error(), "not a directory") {
		t.Fatalf("Mount error = %v, want corrupt non-directory root", err)
	}
}

func TestMountMissingIDTable(t *testing.T) {
	// no_ids of zero is structurally invalid: every inode carries
	// id indices, so an empty table cannot be right.
	img := tenInodeImage(t)
	binary.LittleEndian.PutUint16(img[26:], 0)
	_, err := Mount(bytes.NewReader(img), int64(len(img)), Options{Logger: testLogger()})
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Mount error = %v, want ErrCorrupt", err)
	}
}
