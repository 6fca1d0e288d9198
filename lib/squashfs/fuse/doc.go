// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes a mounted SquashFS volume as a FUSE
// filesystem, for processes that want an image visible in the real
// directory tree rather than behind an io/fs value.
//
// # Node Mapping
//
// FUSE nodes map one-to-one onto image inodes, keyed by the image's
// own inode numbers, so st_ino and d_ino match what the image
// carries. Directories serve Lookup and Readdir straight off the
// on-disk directory runs; regular files serve reads through the
// volume's block and fragment caches; symlinks, device nodes, fifos,
// and sockets present their stored attributes.
//
// # Caching
//
// The image is immutable, so attribute and entry caching is turned
// up high and opened files keep the kernel page cache across opens.
// Decompressed metadata and fragment blocks are shared process-wide
// through the volume's caches regardless of how many FUSE handles
// are open.
//
// # Write Path
//
// None. The filesystem mounts with the read-only option, and opens
// for writing are rejected with EROFS.
package fuse
