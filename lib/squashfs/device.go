// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"fmt"
	"io"
	"os"
)

// device is the backing store of a mounted image: any io.ReaderAt
// plus its known size. When the volume opened the file itself
// (MountFile), it owns the handle and closes it on release.
type device struct {
	r    io.ReaderAt
	size int64
	f    *os.File // non-nil only when owned by the volume
}

// readAt fills p from the device at off. Reads are full-or-error; a
// short read from the underlying reader is surfaced as a device
// failure, not silently padded.
func (d *device) readAt(p []byte, off int64) error {
	n, err := d.r.ReadAt(p, off)
	if err != nil && !(err == io.EOF && n == len(p)) {
		return fmt.Errorf("reading %d bytes at offset %d: %w", len(p), off, err)
	}
	return nil
}

// close releases an owned file handle. Safe on a borrowed reader.
func (d *device) close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	if err != nil {
		return fmt.Errorf("closing image file: %w", err)
	}
	return nil
}
