// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package browse

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

const (
	// previewMaxBytes bounds how much of a file the preview reads.
	previewMaxBytes = 128 * 1024

	// previewHexBytes is how much of a binary file the hex dump
	// shows.
	previewHexBytes = 512

	// previewMaxEntries bounds the directory child listing.
	previewMaxEntries = 500
)

// renderPreview builds the preview pane content for one entry: a
// stat header followed by kind-specific content (directory listing,
// highlighted text, or a hex dump).
func renderPreview(vol *squashfs.Volume, dir *squashfs.Inode, entry squashfs.DirEntry, theme Theme, width int) string {
	errStyle := lipgloss.NewStyle().Foreground(theme.ErrorText)

	ino, err := vol.Lookup(dir, entry.Name)
	if err != nil {
		return errStyle.Render(" " + err.Error())
	}

	titleStyle := lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)

	var b strings.Builder
	b.WriteString(titleStyle.Render(" " + entry.Name))
	b.WriteByte('\n')
	for _, line := range statLines(ino) {
		b.WriteString(faint.Render(" " + line))
		b.WriteByte('\n')
	}
	b.WriteString(lipgloss.NewStyle().
		Foreground(theme.BorderColor).
		Render(strings.Repeat("─", max(width, 1))))
	b.WriteByte('\n')

	switch {
	case ino.Mode.IsDir():
		writeDirPreview(&b, vol, ino, theme)
	case ino.Mode.IsRegular():
		writeFilePreview(&b, vol, ino, entry.Name, theme)
	}
	return b.String()
}

// statLines renders the inode metadata lines of the preview header.
func statLines(ino *squashfs.Inode) []string {
	first := fmt.Sprintf("%s  %d/%d", ino.Mode, ino.UID, ino.GID)
	if ino.Mode.IsRegular() {
		first += "  " + humanize.IBytes(uint64(ino.Size))
	}
	lines := []string{
		first,
		fmt.Sprintf("inode %d  links %d  modified %s",
			ino.Number, ino.NLink, ino.ModTime.Format("2006-01-02 15:04:05")),
	}
	if ino.Mode&fs.ModeDevice != 0 {
		major, minor := ino.Device()
		lines = append(lines, fmt.Sprintf("device %d:%d", major, minor))
	}
	if ino.Mode&fs.ModeSymlink != 0 {
		lines = append(lines, "-> "+ino.Target)
	}
	return lines
}

// writeDirPreview lists the directory's children, capped at
// previewMaxEntries.
func writeDirPreview(b *strings.Builder, vol *squashfs.Volume, ino *squashfs.Inode, theme Theme) {
	entries, err := vol.ListDir(ino)
	if err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ErrorText).Render(" " + err.Error()))
		return
	}
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	fmt.Fprintf(b, "%s\n\n", faint.Render(fmt.Sprintf(" %d entries", len(entries))))

	shown := entries
	if len(shown) > previewMaxEntries {
		shown = shown[:previewMaxEntries]
	}
	for _, child := range shown {
		name := child.Name
		switch {
		case child.Type.IsDir():
			name += "/"
		case child.Type&fs.ModeSymlink != 0:
			name += "@"
		}
		b.WriteString(" " + name + "\n")
	}
	if len(entries) > previewMaxEntries {
		fmt.Fprintf(b, "%s\n", faint.Render(fmt.Sprintf(" … and %d more", len(entries)-previewMaxEntries)))
	}
}

// writeFilePreview shows file content: syntax-highlighted text, or a
// hex dump of the leading bytes for binary data.
func writeFilePreview(b *strings.Builder, vol *squashfs.Volume, ino *squashfs.Inode, name string, theme Theme) {
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)

	f, err := vol.OpenInode(ino)
	if err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ErrorText).Render(" " + err.Error()))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, previewMaxBytes))
	if err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ErrorText).Render(" " + err.Error()))
		return
	}

	if looksBinary(data) {
		dump := data
		if len(dump) > previewHexBytes {
			dump = dump[:previewHexBytes]
		}
		fmt.Fprintf(b, "%s\n\n", faint.Render(fmt.Sprintf(" binary file — first %d bytes", len(dump))))
		b.WriteString(hex.Dump(dump))
		return
	}

	b.WriteString(highlightCode(string(data), languageFor(name)))
	if ino.Size > previewMaxBytes {
		fmt.Fprintf(b, "\n%s\n", faint.Render(fmt.Sprintf(" … truncated at %s", humanize.IBytes(previewMaxBytes))))
	}
}

// looksBinary reports whether data's head contains a NUL byte, the
// usual text-or-binary heuristic.
func looksBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// languageFor derives the highlighter language from the file
// extension. Empty means no highlighting.
func languageFor(name string) string {
	return strings.TrimPrefix(path.Ext(name), ".")
}

// highlightCode renders source text with terminal colors. Unknown
// languages and highlighter errors fall back to the plain text.
func highlightCode(code, language string) string {
	if language == "" {
		return code
	}
	var buffer strings.Builder
	err := quick.Highlight(&buffer, code, language, "terminal256", "monokai")
	if err != nil {
		return code
	}
	return buffer.String()
}
