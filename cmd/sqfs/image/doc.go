// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package image implements the "sqfs info", "sqfs ls", "sqfs cat",
// and "sqfs extract" subcommands for inspecting and unpacking
// SquashFS images without mounting them.
//
// All four commands mount the image in-process through lib/squashfs
// and operate on the resulting volume; nothing here needs FUSE or
// root. Cache sizing and log output follow the resolved configuration
// (see the cli package for the resolution order).
//
// InfoCommand prints the validated superblock: format version,
// compression, block geometry, table locations, and the feature
// flags the image was written with.
//
// LsCommand lists directory contents, with --long for an ls -l style
// listing (numeric uid/gid, as stored) and --recursive for a full
// tree walk printing paths relative to the listing root.
//
// CatCommand streams file contents to stdout, following symlinks
// inside the image the way the kernel would.
//
// ExtractCommand unpacks the image (or a subtree) into a destination
// directory, restoring permissions, timestamps, symlinks, and
// hardlinks. Device nodes, fifos, and sockets are skipped with a
// warning since creating them needs privileges an unpacker should
// not assume.
package image
