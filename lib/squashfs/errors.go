// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"errors"
	"fmt"
)

// Mount failures fall into four categories: format rejection (the
// image is not a SquashFS 4.0 zlib image — a caller probing for
// filesystem types should try the next format), corruption (the image
// is recognizably SquashFS but structurally damaged), device I/O
// failure (the underlying reader failed; its error is wrapped and
// reachable through errors.Is/As), and misuse of an already-closed
// volume. The first three can only surface before or during reads;
// teardown never fails.
var (
	// ErrNotSquashfs reports that the image does not begin with the
	// SquashFS magic, or is too short to hold a superblock.
	ErrNotSquashfs = errors.New("not a squashfs image")

	// ErrUnsupportedVersion reports a SquashFS major/minor version
	// other than 4.0. The wrapped message says whether the image
	// predates 4.0 or is newer than this package understands.
	ErrUnsupportedVersion = errors.New("unsupported squashfs version")

	// ErrUnsupportedCompression reports an image compressed with an
	// algorithm other than zlib.
	ErrUnsupportedCompression = errors.New("unsupported squashfs compression")

	// ErrCorrupt reports structural damage: superblock bounds
	// violations, malformed index tables, truncated or oversized
	// compressed blocks, or directory records that contradict the
	// format.
	ErrCorrupt = errors.New("corrupt squashfs image")

	// ErrClosed reports an operation on an unmounted volume.
	ErrClosed = errors.New("squashfs volume is closed")

	// ErrNotExportable reports a lookup-by-inode-number on an image
	// without an inode lookup table.
	ErrNotExportable = errors.New("squashfs image has no inode lookup table")
)

// FormatRejected reports whether err means the image is not a
// mountable SquashFS 4.0 image at all, as opposed to a damaged one or
// a device failure. Format-probing callers use this to fall through
// to other filesystem types.
func FormatRejected(err error) bool {
	return errors.Is(err, ErrNotSquashfs) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrUnsupportedCompression)
}

// corruptf builds an ErrCorrupt with positional detail.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
