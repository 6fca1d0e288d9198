// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package squashfs reads SquashFS 4.0 filesystem images.
//
// A SquashFS image is a read-only, compressed filesystem: a 96-byte
// superblock at offset zero describes the image geometry, followed by
// compressed data blocks, compressed metadata streams holding inodes
// and directory entries, and three auxiliary index tables (owner ids,
// fragment locations, and an optional inode lookup table used for
// stateless handle resolution). Nothing in the image is trusted until
// the superblock has been validated.
//
// [Mount] (or [MountFile]) validates the superblock and acquires the
// runtime resources a mounted volume needs — decompression workspace,
// block caches, index tables — in a fixed order, unwinding everything
// already acquired if any step fails. A successful mount returns a
// [Volume] whose contents are exposed through the standard [io/fs]
// interfaces. [Volume.Close] releases all of it; closing twice is a
// safe no-op.
//
// Only zlib-compressed images are supported. Images using lzma, lzo,
// xz, lz4, or zstd compression are rejected at mount time, as are
// images written by squashfs versions other than 4.0. Extended
// attributes present in an image are ignored with a warning.
//
// Volumes are safe for concurrent readers. The package never writes
// to the image.
package squashfs
