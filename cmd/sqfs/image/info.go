// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

type infoParams struct {
	cli.ImageParams
	cli.JSONOutput
}

// imageInfo is the JSON shape of "sqfs info --json". Table offsets
// are byte positions from the start of the image; optional tables
// that are absent report -1.
type imageInfo struct {
	Path        string    `json:"path"`
	FileSize    int64     `json:"file_size"`
	Version     string    `json:"version"`
	Compression string    `json:"compression"`
	BlockSize   uint32    `json:"block_size"`
	BytesUsed   int64     `json:"bytes_used"`
	Inodes      uint32    `json:"inodes"`
	Fragments   uint32    `json:"fragments"`
	IDCount     uint16    `json:"id_count"`
	Created     time.Time `json:"created"`
	Flags       []string  `json:"flags"`
	Exportable  bool      `json:"exportable"`

	InodeTable     int64 `json:"inode_table"`
	DirectoryTable int64 `json:"directory_table"`
	FragmentTable  int64 `json:"fragment_table"`
	IDTable        int64 `json:"id_table"`
	LookupTable    int64 `json:"lookup_table"`
	XattrTable     int64 `json:"xattr_table"`
}

// InfoCommand returns the "info" command for printing superblock
// details of an image.
func InfoCommand() *cli.Command {
	var params infoParams

	return &cli.Command{
		Name:    "info",
		Summary: "Print superblock and layout information for an image",
		Usage:   "sqfs info <image> [flags]",
		Description: `Print the validated superblock of a SquashFS image.

Shows the format version, compression algorithm, block geometry,
inode and fragment counts, creation time, feature flags, and the
byte offsets of the on-disk tables. The image is fully mounted to
produce this output, so a successful "sqfs info" also means the
image passes every mount-time check.`,
		Examples: []cli.Example{
			{
				Description: "Inspect an image",
				Command:     "sqfs info rootfs.squashfs",
			},
			{
				Description: "Machine-readable output",
				Command:     "sqfs info rootfs.squashfs --json",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("info", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("image argument required\n\nUsage: sqfs info <image> [flags]")
			}
			path := args[0]

			vol, _, err := params.OpenVolume(path)
			if err != nil {
				return err
			}
			defer vol.Close()

			fileInfo, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			info := buildInfo(path, fileInfo.Size(), vol)
			if done, err := params.EmitJSON(info); done {
				return err
			}
			printInfo(info)
			return nil
		},
	}
}

func buildInfo(path string, fileSize int64, vol *squashfs.Volume) *imageInfo {
	sb := vol.Superblock()
	info := &imageInfo{
		Path:        path,
		FileSize:    fileSize,
		Version:     fmt.Sprintf("%d.%d", sb.Major, sb.Minor),
		Compression: sb.Compression.String(),
		BlockSize:   sb.BlockSize,
		BytesUsed:   sb.BytesUsed,
		Inodes:      sb.Inodes,
		Fragments:   sb.Fragments,
		IDCount:     sb.IDCount,
		Created:     sb.Created,
		Flags:       flagNames(sb.Flags),
		Exportable:  vol.ExportEnabled(),

		InodeTable:     sb.InodeTableStart,
		DirectoryTable: sb.DirectoryTableStart,
		FragmentTable:  sb.FragmentTableStart,
		IDTable:        sb.IDTableStart,
		LookupTable:    -1,
		XattrTable:     -1,
	}
	if sb.HasLookupTable() {
		info.LookupTable = sb.LookupTableStart
	}
	if sb.HasXattrs() {
		info.XattrTable = sb.XattrTableStart
	}
	return info
}

// flagNames renders the set superblock flags as short names, in
// on-disk bit order.
func flagNames(flags squashfs.Flags) []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(flags.UncompressedInodes, "uncompressed-inodes")
	add(flags.UncompressedData, "uncompressed-data")
	add(flags.UncompressedFragments, "uncompressed-fragments")
	add(flags.NoFragments, "no-fragments")
	add(flags.AlwaysFragments, "always-fragments")
	add(flags.Duplicates, "duplicates")
	add(flags.Exportable, "exportable")
	return names
}

func printInfo(info *imageInfo) {
	fmt.Printf("%s: squashfs %s\n", info.Path, info.Version)
	fmt.Printf("  %-16s %s\n", "compression", info.Compression)
	fmt.Printf("  %-16s %d (%s)\n", "block size", info.BlockSize, humanize.IBytes(uint64(info.BlockSize)))
	fmt.Printf("  %-16s %d (%s)\n", "bytes used", info.BytesUsed, humanize.IBytes(uint64(info.BytesUsed)))
	if info.FileSize != info.BytesUsed {
		fmt.Printf("  %-16s %d (%s)\n", "file size", info.FileSize, humanize.IBytes(uint64(info.FileSize)))
	}
	fmt.Printf("  %-16s %d\n", "inodes", info.Inodes)
	fmt.Printf("  %-16s %d\n", "fragments", info.Fragments)
	fmt.Printf("  %-16s %d\n", "ids", info.IDCount)
	fmt.Printf("  %-16s %s\n", "created", info.Created.Format(time.RFC3339))
	if len(info.Flags) > 0 {
		fmt.Printf("  %-16s %s\n", "flags", strings.Join(info.Flags, ", "))
	}

	fmt.Printf("  %-16s 0x%x\n", "inode table", info.InodeTable)
	fmt.Printf("  %-16s 0x%x\n", "directory table", info.DirectoryTable)
	fmt.Printf("  %-16s 0x%x\n", "fragment table", info.FragmentTable)
	fmt.Printf("  %-16s 0x%x\n", "id table", info.IDTable)
	printOptionalTable("lookup table", info.LookupTable)
	printOptionalTable("xattr table", info.XattrTable)
}

func printOptionalTable(name string, offset int64) {
	if offset < 0 {
		fmt.Printf("  %-16s absent\n", name)
		return
	}
	fmt.Printf("  %-16s 0x%x\n", name, offset)
}
