// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"encoding/binary"
	"io/fs"
)

// Directory listings live in the directory table as runs: a 12-byte
// header naming a metadata block and a base inode number, followed by
// up to 256 entries relative to that header. Entry names are sorted,
// which is what makes the early-exit lookup below valid.

// dirent is one decoded directory entry.
type dirent struct {
	name string
	ref  uint64 // inode reference for readInode
	ino  uint32 // dense inode number
	typ  uint16 // basic on-disk type
}

const (
	dirHeaderSize = 12
	direntSize    = 8
)

// iterDir streams dir's entries in stored order. fn returning false
// stops the walk without error.
func (v *Volume) iterDir(dir *Inode, fn func(dirent) bool) error {
	// A directory's size counts three virtual bytes for "." and
	// "..", which are never stored.
	remaining := dir.Size - 3
	if remaining <= 0 {
		return nil
	}

	le := binary.LittleEndian
	mr := v.newMetaReader(metaPos{
		block: v.sb.DirectoryTableStart + int64(dir.dirStart),
		off:   int(dir.dirOffset),
	})

	var hdr [dirHeaderSize]byte
	var ent [direntSize]byte
	var name [MaxNameLen]byte
	for remaining > 0 {
		if remaining < dirHeaderSize {
			return corruptf("directory %d listing truncated mid-header", dir.Number)
		}
		if err := mr.read(hdr[:]); err != nil {
			return err
		}
		remaining -= dirHeaderSize

		count := int(le.Uint32(hdr[0:4])) + 1
		start := le.Uint32(hdr[4:8])
		base := le.Uint32(hdr[8:12])
		if count > dirCountLimit {
			return corruptf("directory %d run of %d entries exceeds the %d-entry limit",
				dir.Number, count, dirCountLimit)
		}

		for range count {
			if remaining < direntSize {
				return corruptf("directory %d listing truncated mid-entry", dir.Number)
			}
			if err := mr.read(ent[:]); err != nil {
				return err
			}
			remaining -= direntSize

			offset := le.Uint16(ent[0:2])
			delta := int16(le.Uint16(ent[2:4]))
			typ := le.Uint16(ent[4:6])
			nameLen := int(le.Uint16(ent[6:8])) + 1
			if nameLen > MaxNameLen {
				return corruptf("directory %d entry name of %d bytes exceeds the %d-byte limit",
					dir.Number, nameLen, MaxNameLen)
			}
			if int64(nameLen) > remaining {
				return corruptf("directory %d listing truncated mid-name", dir.Number)
			}
			if err := mr.read(name[:nameLen]); err != nil {
				return err
			}
			remaining -= int64(nameLen)

			d := dirent{
				name: string(name[:nameLen]),
				ref:  uint64(start)<<16 | uint64(offset),
				ino:  uint32(int32(base) + int32(delta)),
				typ:  typ,
			}
			if !fn(d) {
				return nil
			}
		}
	}
	return nil
}

// readDir returns all of dir's entries in stored (sorted) order.
func (v *Volume) readDir(dir *Inode) ([]dirent, error) {
	var out []dirent
	err := v.iterDir(dir, func(d dirent) bool {
		out = append(out, d)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lookupName finds the entry called name in dir. Entries are stored
// sorted, so the scan ends at the first name that sorts after the
// target; a miss reports fs.ErrNotExist.
func (v *Volume) lookupName(dir *Inode, name string) (dirent, error) {
	var found dirent
	var ok bool
	err := v.iterDir(dir, func(d dirent) bool {
		if d.name == name {
			found, ok = d, true
			return false
		}
		return d.name < name
	})
	if err != nil {
		return dirent{}, err
	}
	if !ok {
		return dirent{}, fs.ErrNotExist
	}
	return found, nil
}

// DirEntry is one directory entry as stored on disk: the name, the
// dense inode number, and the file type. Listing does not decode the
// child inodes; Lookup resolves a name to a full Inode.
type DirEntry struct {
	Name   string
	Number uint32
	Type   fs.FileMode
}

// ListDir returns dir's entries in stored order, straight off the
// wire. Handle-first callers (FUSE servers, archive walkers) use
// this instead of the path-based fs.ReadDirFS surface.
func (v *Volume) ListDir(dir *Inode) ([]DirEntry, error) {
	if err := v.alive(); err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, errNotDir
	}
	var out []DirEntry
	err := v.iterDir(dir, func(d dirent) bool {
		out = append(out, DirEntry{
			Name:   d.name,
			Number: d.ino,
			Type:   fileModeFor(d.typ, 0).Type(),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup finds name in the directory dir and decodes its inode. A
// missing name reports fs.ErrNotExist. Symlinks are returned as
// themselves; the caller decides whether to follow.
func (v *Volume) Lookup(dir *Inode, name string) (*Inode, error) {
	if err := v.alive(); err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, errNotDir
	}
	d, err := v.lookupName(dir, name)
	if err != nil {
		return nil, err
	}
	return v.readInode(d.ref)
}
