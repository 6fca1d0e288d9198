// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqfstest builds small SquashFS 4.0 images in memory for
// tests. The writer is deliberately minimal: every metadata stream
// must fit in one metadata block and directories hold at most one
// entry run. That is enough to express every shape the reader cares
// about (fragments, holes, symlink chains, hard links, device nodes,
// export tables) while keeping the output predictable enough to
// assert on.
//
// Build misuse (duplicate paths, oversized streams) fails the test;
// structural misuse of the API panics.
package sqfstest

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"math/bits"
	"path"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
)

// Writer-side copies of the on-disk constants.
const (
	magic          = 0x73717368
	metaBlockSize  = 8192
	superblockSize = 96
	invalidBlock   = ^uint64(0)
	invalidFrag    = 0xffffffff
	rawMetaBit     = 1 << 15
	rawDataBit     = 1 << 24
)

const (
	typeDir = iota + 1
	typeFile
	typeSymlink
	typeBlockDev
	typeCharDev
	typeFifo
	typeSocket
)

// Extended variants sit 7 above their basic type. The writer emits
// only the file one, for link counts above 1.
const typeExtFile = typeFile + 7

const (
	flagNoFragments = 1 << 4
	flagDuplicates  = 1 << 6
	flagExportable  = 1 << 7
)

// DefaultModTime is the fixed timestamp stamped on images and inodes
// unless overridden, so image bytes are reproducible across runs.
var DefaultModTime = time.Unix(1735689600, 0).UTC()

type kind int

const (
	kindDir kind = iota
	kindFile
	kindSymlink
	kindBlockDev
	kindCharDev
	kindFifo
	kindSocket
	kindLink // extra dirent for an existing file, no inode of its own
)

type entry struct {
	name     string
	kind     kind
	mode     fs.FileMode
	uid, gid uint32
	data     []byte
	target   string
	rdev     uint32
	linkTo   *entry // kindLink only

	parent   *entry
	children []*entry

	// Assigned during Build.
	num        uint32
	links      int // extra names pointing at this file
	inodeOff   int
	startBlock int64
	words      []uint32
	fragIndex  uint32
	fragOffset uint32
	dirOff     int
	dirSize    int
}

// record resolves a hard link to the entry whose inode record it
// shares; every other entry is its own record.
func (e *entry) record() *entry {
	if e.linkTo != nil {
		return e.linkTo
	}
	return e
}

// Image accumulates entries and assembles them into image bytes.
// The zero value is not ready; use New.
type Image struct {
	// BlockSize is the data block size, a power of two. Defaults
	// to 131072.
	BlockSize uint32

	// NoFragments stores file tails as short data blocks instead
	// of packing them into fragment blocks.
	NoFragments bool

	// NoLookup omits the inode lookup table, disabling export.
	NoLookup bool

	// RawMetadata and RawData store blocks uncompressed.
	RawMetadata bool
	RawData     bool

	// Xattrs advertises an extended-attribute table in the
	// superblock. No table is written; readers are expected to
	// warn and ignore.
	Xattrs bool

	// ModTime stamps the image and every inode. Defaults to
	// DefaultModTime.
	ModTime time.Time

	uid, gid uint32
	root     *entry
	byPath   map[string]*entry
	added    []*entry
	ids      []uint32
}

// New returns an empty image containing only the root directory,
// owned by uid/gid 0 with mode 0755.
func New() *Image {
	im := &Image{
		root:   &entry{kind: kindDir, mode: fs.ModeDir | 0o755},
		byPath: map[string]*entry{},
	}
	im.idIndex(0)
	return im
}

// Chown sets the owner applied to entries added from now on.
func (im *Image) Chown(uid, gid uint32) {
	im.uid, im.gid = uid, gid
}

// Dir adds a directory. Parent directories are created as needed
// with mode 0755, here and in every other add method.
func (im *Image) Dir(p string, mode fs.FileMode) {
	im.add(p, &entry{kind: kindDir, mode: fs.ModeDir | mode.Perm()})
}

// File adds a regular file with the given contents. Runs of
// block-aligned zeros become holes, as a real writer would emit.
func (im *Image) File(p string, data []byte, mode fs.FileMode) {
	im.add(p, &entry{kind: kindFile, mode: mode.Perm(), data: data})
}

// Link adds a hard link: another directory entry for a file already
// added with File. The file keeps a single inode record, written in
// extended form to carry the link count; extra names never consume
// inode numbers.
func (im *Image) Link(p, target string) {
	to := im.byPath[target]
	if to == nil {
		panic("sqfstest: hard link target " + target + " does not exist")
	}
	if to.kind != kindFile {
		panic("sqfstest: hard link target " + target + " is not a regular file")
	}
	im.add(p, &entry{kind: kindLink, linkTo: to})
}

// Symlink adds a symbolic link to target.
func (im *Image) Symlink(p, target string) {
	im.add(p, &entry{kind: kindSymlink, mode: fs.ModeSymlink | 0o777, target: target})
}

// CharDev adds a character device node.
func (im *Image) CharDev(p string, major, minor uint32, mode fs.FileMode) {
	im.add(p, &entry{
		kind: kindCharDev,
		mode: fs.ModeDevice | fs.ModeCharDevice | mode.Perm(),
		rdev: encodeDev(major, minor),
	})
}

// BlockDev adds a block device node.
func (im *Image) BlockDev(p string, major, minor uint32, mode fs.FileMode) {
	im.add(p, &entry{
		kind: kindBlockDev,
		mode: fs.ModeDevice | mode.Perm(),
		rdev: encodeDev(major, minor),
	})
}

// Fifo adds a named pipe.
func (im *Image) Fifo(p string, mode fs.FileMode) {
	im.add(p, &entry{kind: kindFifo, mode: fs.ModeNamedPipe | mode.Perm()})
}

// Socket adds a unix socket node.
func (im *Image) Socket(p string, mode fs.FileMode) {
	im.add(p, &entry{kind: kindSocket, mode: fs.ModeSocket | mode.Perm()})
}

func (im *Image) add(p string, e *entry) *entry {
	if !fs.ValidPath(p) || p == "." {
		panic("sqfstest: invalid path " + p)
	}
	if im.byPath[p] != nil {
		panic("sqfstest: duplicate path " + p)
	}
	parent := im.dirOf(path.Dir(p))
	e.name = path.Base(p)
	e.uid, e.gid = im.uid, im.gid
	e.parent = parent
	parent.children = append(parent.children, e)
	im.byPath[p] = e
	im.added = append(im.added, e)
	im.idIndex(e.uid)
	im.idIndex(e.gid)
	return e
}

func (im *Image) dirOf(p string) *entry {
	if p == "." {
		return im.root
	}
	if e := im.byPath[p]; e != nil {
		if e.kind != kindDir {
			panic("sqfstest: " + p + " is not a directory")
		}
		return e
	}
	return im.add(p, &entry{kind: kindDir, mode: fs.ModeDir | 0o755})
}

// idIndex interns an owner id, returning its id-table index.
func (im *Image) idIndex(id uint32) uint16 {
	if i := slices.Index(im.ids, id); i >= 0 {
		return uint16(i)
	}
	im.ids = append(im.ids, id)
	return uint16(len(im.ids) - 1)
}

// Build assembles the image. The returned slice is exactly
// bytes_used long; tests that want a device larger than the image
// append padding themselves.
func (im *Image) Build(t testing.TB) []byte {
	t.Helper()

	blockSize := im.BlockSize
	if blockSize == 0 {
		blockSize = 131072
	}
	if bits.OnesCount32(blockSize) != 1 || blockSize < 4096 || blockSize > 1<<20 {
		t.Fatalf("sqfstest: block size %d is not a power of two in [4096, 1MiB]", blockSize)
	}
	blockLog := uint16(bits.TrailingZeros32(blockSize))
	modTime := im.ModTime
	if modTime.IsZero() {
		modTime = DefaultModTime
	}

	// Inode numbering: added entries count up from 1 in insertion
	// order, the root takes the highest number. Hard links are extra
	// names, not inodes; they reuse their target's number. Link
	// counts are recomputed so Build stays repeatable.
	var num uint32
	for _, e := range im.added {
		e.links = 0
	}
	for _, e := range im.added {
		if e.linkTo != nil {
			e.linkTo.links++
			continue
		}
		num++
		e.num = num
	}
	im.root.num = num + 1
	inodes := im.root.num
	for _, e := range im.added {
		if e.linkTo != nil {
			e.num = e.linkTo.num
		}
	}

	for _, e := range append([]*entry{im.root}, im.added...) {
		slices.SortFunc(e.children, func(a, b *entry) int {
			return strings.Compare(a.name, b.name)
		})
	}

	// Data region: file blocks in insertion order, then the packed
	// fragment blocks.
	var data bytes.Buffer
	var fragBufs [][]byte
	for _, e := range im.added {
		if e.kind != kindFile {
			continue
		}
		im.layoutFile(e, &data, &fragBufs, blockSize)
	}
	type fragEntry struct {
		start int64
		word  uint32
	}
	fragEntries := make([]fragEntry, len(fragBufs))
	for i, buf := range fragBufs {
		start := superblockSize + int64(data.Len())
		word := im.writeDataBlock(&data, buf, false)
		fragEntries[i] = fragEntry{start: start, word: word}
	}
	if len(fragEntries) > metaBlockSize/16 {
		t.Fatalf("sqfstest: %d fragments exceed one index block", len(fragEntries))
	}

	// Inode offsets within the single inode metadata block: root
	// first, so the root reference is (block 0, offset 0). Links have
	// no record of their own and stay out of the encode order.
	encodeOrder := []*entry{im.root}
	for _, e := range im.added {
		if e.linkTo == nil {
			encodeOrder = append(encodeOrder, e)
		}
	}
	off := 0
	for _, e := range encodeOrder {
		e.inodeOff = off
		off += im.inodeSize(e)
	}
	if off > metaBlockSize {
		t.Fatalf("sqfstest: %d bytes of inodes exceed one metadata block", off)
	}

	// Directory payload and per-directory positions.
	var dirPayload bytes.Buffer
	for _, e := range encodeOrder {
		if e.kind != kindDir {
			continue
		}
		im.layoutDir(t, e, &dirPayload)
	}
	if dirPayload.Len() > metaBlockSize {
		t.Fatalf("sqfstest: %d bytes of directory data exceed one metadata block", dirPayload.Len())
	}

	var inodePayload bytes.Buffer
	for _, e := range encodeOrder {
		im.encodeInode(&inodePayload, e, modTime)
	}

	// Assemble: superblock, data, inode table, directory table,
	// fragment table, lookup table, id table.
	out := make([]byte, superblockSize, superblockSize+data.Len()+4096)
	out = append(out, data.Bytes()...)

	inodeTableStart := int64(len(out))
	out = append(out, im.metaBlock(inodePayload.Bytes())...)
	dirTableStart := int64(len(out))
	out = append(out, im.metaBlock(dirPayload.Bytes())...)

	fragTableStart := int64(-1)
	if len(fragEntries) > 0 {
		payload := make([]byte, 0, 16*len(fragEntries))
		for _, fe := range fragEntries {
			payload = binary.LittleEndian.AppendUint64(payload, uint64(fe.start))
			payload = binary.LittleEndian.AppendUint32(payload, fe.word)
			payload = binary.LittleEndian.AppendUint32(payload, 0)
		}
		blockStart := uint64(len(out))
		out = append(out, im.metaBlock(payload)...)
		fragTableStart = int64(len(out))
		out = binary.LittleEndian.AppendUint64(out, blockStart)
	}

	lookupTableStart := int64(-1)
	if !im.NoLookup {
		if int(inodes) > metaBlockSize/8 {
			t.Fatalf("sqfstest: %d inodes exceed one lookup block", inodes)
		}
		refs := make([]byte, 8*inodes)
		for _, e := range encodeOrder {
			binary.LittleEndian.PutUint64(refs[8*(e.num-1):], uint64(e.inodeOff))
		}
		blockStart := uint64(len(out))
		out = append(out, im.metaBlock(refs)...)
		lookupTableStart = int64(len(out))
		out = binary.LittleEndian.AppendUint64(out, blockStart)
	}

	idPayload := make([]byte, 0, 4*len(im.ids))
	for _, id := range im.ids {
		idPayload = binary.LittleEndian.AppendUint32(idPayload, id)
	}
	idBlockStart := uint64(len(out))
	out = append(out, im.metaBlock(idPayload)...)
	idTableStart := int64(len(out))
	out = binary.LittleEndian.AppendUint64(out, idBlockStart)

	bytesUsed := int64(len(out))

	flags := uint16(flagDuplicates)
	if im.NoFragments {
		flags |= flagNoFragments
	}
	if !im.NoLookup {
		flags |= flagExportable
	}
	xattrStart := invalidBlock
	if im.Xattrs {
		xattrStart = uint64(idTableStart)
	}

	le := binary.LittleEndian
	sb := out[:superblockSize]
	le.PutUint32(sb[0:], magic)
	le.PutUint32(sb[4:], inodes)
	le.PutUint32(sb[8:], uint32(modTime.Unix()))
	le.PutUint32(sb[12:], blockSize)
	le.PutUint32(sb[16:], uint32(len(fragEntries)))
	le.PutUint16(sb[20:], 1) // zlib
	le.PutUint16(sb[22:], blockLog)
	le.PutUint16(sb[24:], flags)
	le.PutUint16(sb[26:], uint16(len(im.ids)))
	le.PutUint16(sb[28:], 4)
	le.PutUint16(sb[30:], 0)
	le.PutUint64(sb[32:], 0) // root ref: block 0, offset 0
	le.PutUint64(sb[40:], uint64(bytesUsed))
	le.PutUint64(sb[48:], uint64(idTableStart))
	le.PutUint64(sb[56:], xattrStart)
	le.PutUint64(sb[64:], uint64(inodeTableStart))
	le.PutUint64(sb[72:], uint64(dirTableStart))
	le.PutUint64(sb[80:], sentinelOr(fragTableStart))
	le.PutUint64(sb[88:], sentinelOr(lookupTableStart))
	return out
}

func sentinelOr(off int64) uint64 {
	if off < 0 {
		return invalidBlock
	}
	return uint64(off)
}

// layoutFile writes e's full data blocks and parks its tail in the
// current fragment block (or a trailing short block when fragments
// are disabled).
func (im *Image) layoutFile(e *entry, data *bytes.Buffer, fragBufs *[][]byte, blockSize uint32) {
	e.startBlock = superblockSize + int64(data.Len())
	e.fragIndex = invalidFrag

	rest := e.data
	bs := int(blockSize)
	for len(rest) >= bs {
		e.words = append(e.words, im.writeDataBlock(data, rest[:bs], true))
		rest = rest[bs:]
	}
	if len(rest) == 0 {
		return
	}
	if im.NoFragments {
		e.words = append(e.words, im.writeDataBlock(data, rest, true))
		return
	}
	// Pack the tail into the open fragment block, starting a new
	// one when it does not fit.
	n := len(*fragBufs)
	if n == 0 || len((*fragBufs)[n-1])+len(rest) > bs {
		*fragBufs = append(*fragBufs, nil)
		n++
	}
	e.fragIndex = uint32(n - 1)
	e.fragOffset = uint32(len((*fragBufs)[n-1]))
	(*fragBufs)[n-1] = append((*fragBufs)[n-1], rest...)
}

// writeDataBlock appends one data block and returns its length word.
// Full blocks of zeros become holes when sparse is set.
func (im *Image) writeDataBlock(data *bytes.Buffer, b []byte, sparse bool) uint32 {
	if sparse && isZero(b) {
		return 0
	}
	if !im.RawData {
		if c := deflate(b); len(c) < len(b) {
			data.Write(c)
			return uint32(len(c))
		}
	}
	data.Write(b)
	return uint32(len(b)) | rawDataBit
}

// layoutDir appends e's entry run to the directory payload and
// records its position and wire size on the entry.
func (im *Image) layoutDir(t testing.TB, e *entry, payload *bytes.Buffer) {
	t.Helper()
	e.dirOff = payload.Len()
	e.dirSize = 3
	if len(e.children) == 0 {
		return
	}
	if len(e.children) > 256 {
		t.Fatalf("sqfstest: directory with %d entries exceeds one run", len(e.children))
	}

	le := binary.LittleEndian
	base := e.children[0].record().num
	var hdr [12]byte
	le.PutUint32(hdr[0:], uint32(len(e.children)-1))
	le.PutUint32(hdr[4:], 0) // all inodes live in metadata block 0
	le.PutUint32(hdr[8:], base)
	payload.Write(hdr[:])
	e.dirSize += 12

	for _, c := range e.children {
		// A hard link writes its target's record location and basic
		// type under its own name.
		rec := c.record()
		delta := int64(rec.num) - int64(base)
		if delta < -32768 || delta > 32767 {
			t.Fatalf("sqfstest: inode delta %d overflows a directory entry", delta)
		}
		var ent [8]byte
		le.PutUint16(ent[0:], uint16(rec.inodeOff))
		le.PutUint16(ent[2:], uint16(int16(delta)))
		le.PutUint16(ent[4:], uint16(onDiskType(rec.kind)))
		le.PutUint16(ent[6:], uint16(len(c.name)-1))
		payload.Write(ent[:])
		payload.WriteString(c.name)
		e.dirSize += 8 + len(c.name)
	}
}

func (im *Image) inodeSize(e *entry) int {
	switch e.kind {
	case kindDir:
		return 32
	case kindFile:
		if e.links > 0 {
			return 56 + 4*len(e.words)
		}
		return 32 + 4*len(e.words)
	case kindSymlink:
		return 24 + len(e.target)
	case kindBlockDev, kindCharDev:
		return 24
	default: // fifo, socket
		return 20
	}
}

func (im *Image) encodeInode(w *bytes.Buffer, e *entry, modTime time.Time) {
	typ := onDiskType(e.kind)
	if e.links > 0 {
		typ = typeExtFile
	}
	le := binary.LittleEndian
	var base [16]byte
	le.PutUint16(base[0:], uint16(typ))
	le.PutUint16(base[2:], onDiskPerm(e.mode))
	le.PutUint16(base[4:], im.idIndex(e.uid))
	le.PutUint16(base[6:], im.idIndex(e.gid))
	le.PutUint32(base[8:], uint32(modTime.Unix()))
	le.PutUint32(base[12:], e.num)
	w.Write(base[:])

	switch e.kind {
	case kindDir:
		nlink := uint32(2)
		for _, c := range e.children {
			if c.kind == kindDir {
				nlink++
			}
		}
		parent := im.root.num + 1
		if e.parent != nil {
			parent = e.parent.num
		}
		var b [16]byte
		le.PutUint32(b[0:], 0) // directory data is all in block 0
		le.PutUint32(b[4:], nlink)
		le.PutUint16(b[8:], uint16(e.dirSize))
		le.PutUint16(b[10:], uint16(e.dirOff))
		le.PutUint32(b[12:], parent)
		w.Write(b[:])

	case kindFile:
		if e.links > 0 {
			// Extended form: the only one with room for a link count.
			var b [40]byte
			le.PutUint64(b[0:], uint64(e.startBlock))
			le.PutUint64(b[8:], uint64(len(e.data)))
			le.PutUint64(b[16:], 0) // no sparse accounting
			le.PutUint32(b[24:], uint32(1+e.links))
			le.PutUint32(b[28:], e.fragIndex)
			le.PutUint32(b[32:], e.fragOffset)
			le.PutUint32(b[36:], invalidFrag) // no xattrs
			w.Write(b[:])
		} else {
			var b [16]byte
			le.PutUint32(b[0:], uint32(e.startBlock))
			le.PutUint32(b[4:], e.fragIndex)
			le.PutUint32(b[8:], e.fragOffset)
			le.PutUint32(b[12:], uint32(len(e.data)))
			w.Write(b[:])
		}
		for _, word := range e.words {
			var wb [4]byte
			le.PutUint32(wb[0:], word)
			w.Write(wb[:])
		}

	case kindSymlink:
		var b [8]byte
		le.PutUint32(b[0:], 1)
		le.PutUint32(b[4:], uint32(len(e.target)))
		w.Write(b[:])
		w.WriteString(e.target)

	case kindBlockDev, kindCharDev:
		var b [8]byte
		le.PutUint32(b[0:], 1)
		le.PutUint32(b[4:], e.rdev)
		w.Write(b[:])

	default:
		var b [4]byte
		le.PutUint32(b[0:], 1)
		w.Write(b[:])
	}
}

// metaBlock wraps a payload in a metadata block: two-byte length
// header plus body, compressed when that actually saves bytes.
func (im *Image) metaBlock(payload []byte) []byte {
	if !im.RawMetadata {
		if c := deflate(payload); len(c) < len(payload) {
			out := make([]byte, 2, 2+len(c))
			binary.LittleEndian.PutUint16(out, uint16(len(c)))
			return append(out, c...)
		}
	}
	out := make([]byte, 2, 2+len(payload))
	binary.LittleEndian.PutUint16(out, uint16(len(payload))|rawMetaBit)
	return append(out, payload...)
}

func onDiskType(k kind) int {
	switch k {
	case kindDir:
		return typeDir
	case kindFile:
		return typeFile
	case kindSymlink:
		return typeSymlink
	case kindBlockDev:
		return typeBlockDev
	case kindCharDev:
		return typeCharDev
	case kindFifo:
		return typeFifo
	default:
		return typeSocket
	}
}

func onDiskPerm(mode fs.FileMode) uint16 {
	perm := uint16(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		perm |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		perm |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		perm |= 0o1000
	}
	return perm
}

// encodeDev packs major/minor the way Linux does.
func encodeDev(major, minor uint32) uint32 {
	return (minor & 0xff) | (major << 8) | ((minor &^ 0xff) << 12)
}

func deflate(src []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(src)
	zw.Close()
	return buf.Bytes()
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
