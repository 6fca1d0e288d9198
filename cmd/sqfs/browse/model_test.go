// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package browse

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
	"github.com/squashfs-tools/go-squashfs/lib/squashfs/sqfstest"
)

// testVolume mounts a small image with a nested directory, a text
// file, a binary file, and a symlink.
func testVolume(t *testing.T) *squashfs.Volume {
	t.Helper()
	im := sqfstest.New()
	im.Dir("docs", 0o755)
	im.File("docs/readme.md", []byte("# Hello\n\nSome text.\n"), 0o644)
	im.File("main.go", []byte("package main\n\nfunc main() {}\n"), 0o644)
	im.File("blob.bin", append([]byte{0x7f, 'E', 'L', 'F', 0x00}, bytes.Repeat([]byte{0xff}, 64)...), 0o755)
	im.Symlink("docs-link", "docs")
	img := im.Build(t)

	vol, err := squashfs.Mount(bytes.NewReader(img), int64(len(img)), squashfs.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(func() { vol.Close() })
	return vol
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	model, err := NewModel(testVolume(t), "test.squashfs")
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	return model
}

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestNewModel(t *testing.T) {
	model := newTestModel(t)

	// Root entries in stored (sorted) order.
	want := []string{"blob.bin", "docs", "docs-link", "main.go"}
	if len(model.entries) != len(want) {
		t.Fatalf("got %d root entries, want %d", len(model.entries), len(want))
	}
	for i, name := range want {
		if model.entries[i].Name != name {
			t.Errorf("entry %d = %q, want %q", i, model.entries[i].Name, name)
		}
	}
	if model.cursor != 0 {
		t.Errorf("initial cursor = %d, want 0", model.cursor)
	}
	if model.displayPath() != "/" {
		t.Errorf("initial path = %q, want /", model.displayPath())
	}
}

func TestModelNavigation(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// Move down three times to the last entry.
	for range 3 {
		updated, _ = model.Update(keyMsg('j'))
		model = updated.(Model)
	}
	if model.cursor != 3 {
		t.Errorf("cursor after three j = %d, want 3", model.cursor)
	}

	// Down again stays on the last entry.
	updated, _ = model.Update(keyMsg('j'))
	model = updated.(Model)
	if model.cursor != 3 {
		t.Errorf("cursor past end = %d, want 3", model.cursor)
	}

	// G jumps nowhere new; g returns to the top.
	updated, _ = model.Update(keyMsg('g'))
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor after g = %d, want 0", model.cursor)
	}
	updated, _ = model.Update(keyMsg('G'))
	model = updated.(Model)
	if model.cursor != 3 {
		t.Errorf("cursor after G = %d, want 3", model.cursor)
	}

	// Up from the top stays put.
	updated, _ = model.Update(keyMsg('g'))
	model = updated.(Model)
	updated, _ = model.Update(keyMsg('k'))
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor above start = %d, want 0", model.cursor)
	}
}

func TestModelDescendAscend(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// Select "docs" (index 1) and enter it.
	updated, _ = model.Update(keyMsg('j'))
	model = updated.(Model)
	updated, _ = model.Update(keyMsg('l'))
	model = updated.(Model)

	if model.displayPath() != "/docs" {
		t.Fatalf("path after descend = %q, want /docs", model.displayPath())
	}
	if len(model.entries) != 1 || model.entries[0].Name != "readme.md" {
		t.Fatalf("docs entries = %+v, want [readme.md]", model.entries)
	}

	// Ascend restores the parent listing with "docs" reselected.
	updated, _ = model.Update(keyMsg('h'))
	model = updated.(Model)
	if model.displayPath() != "/" {
		t.Errorf("path after ascend = %q, want /", model.displayPath())
	}
	if got, _ := model.selected(); got.Name != "docs" {
		t.Errorf("selection after ascend = %q, want docs", got.Name)
	}

	// Ascending from the root is a no-op.
	updated, _ = model.Update(keyMsg('h'))
	model = updated.(Model)
	if model.displayPath() != "/" {
		t.Errorf("path after ascend at root = %q, want /", model.displayPath())
	}
}

func TestModelDescendSymlinkToDir(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// Select "docs-link" (index 2) and enter it; the symlink is
	// followed into the directory.
	updated, _ = model.Update(keyMsg('j'))
	model = updated.(Model)
	updated, _ = model.Update(keyMsg('j'))
	model = updated.(Model)
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)

	if model.displayPath() != "/docs-link" {
		t.Errorf("path = %q, want /docs-link", model.displayPath())
	}
	if len(model.entries) != 1 || model.entries[0].Name != "readme.md" {
		t.Errorf("entries through symlink = %+v, want [readme.md]", model.entries)
	}
}

func TestModelDescendFileFocusesPreview(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// Cursor starts on "blob.bin", a regular file.
	updated, _ = model.Update(keyMsg('l'))
	model = updated.(Model)
	if model.focus != FocusPreview {
		t.Errorf("focus = %v, want FocusPreview", model.focus)
	}
	if model.displayPath() != "/" {
		t.Errorf("path changed on file open: %q", model.displayPath())
	}

	// h hands focus back to the list.
	updated, _ = model.Update(keyMsg('h'))
	model = updated.(Model)
	if model.focus != FocusList {
		t.Errorf("focus after h = %v, want FocusList", model.focus)
	}
}

func TestModelFocusToggle(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focus != FocusPreview {
		t.Errorf("focus after tab = %v, want FocusPreview", model.focus)
	}
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focus != FocusList {
		t.Errorf("focus after second tab = %v, want FocusList", model.focus)
	}
}

func TestModelSplitResize(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	model = updated.(Model)

	before := model.listWidth()
	updated, _ = model.Update(keyMsg(']'))
	model = updated.(Model)
	if model.listWidth() <= before {
		t.Errorf("listWidth after ] = %d, want > %d", model.listWidth(), before)
	}

	// Shrinking repeatedly stops at the lower bound.
	for range 50 {
		updated, _ = model.Update(keyMsg('['))
		model = updated.(Model)
	}
	if model.splitRatio < splitRatioMin-1e-9 {
		t.Errorf("splitRatio = %v, below minimum %v", model.splitRatio, splitRatioMin)
	}
}

func TestModelMouseWheelScrollsList(t *testing.T) {
	model := newTestModel(t)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	wheel := tea.MouseMsg{X: 2, Y: 5, Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress}
	updated, _ = model.Update(wheel)
	model = updated.(Model)
	if model.cursor != 1 {
		t.Errorf("cursor after wheel down = %d, want 1", model.cursor)
	}

	wheel.Button = tea.MouseButtonWheelUp
	updated, _ = model.Update(wheel)
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor after wheel up = %d, want 0", model.cursor)
	}
}

func TestModelQuit(t *testing.T) {
	model := newTestModel(t)

	_, command := model.Update(keyMsg('q'))
	if command == nil {
		t.Fatal("q key should return a command")
	}
	message := command()
	if _, isQuit := message.(tea.QuitMsg); !isQuit {
		t.Errorf("expected QuitMsg, got %T", message)
	}
}

func TestModelView(t *testing.T) {
	model := newTestModel(t)

	// Before receiving WindowSizeMsg, View returns loading text.
	if view := model.View(); view != "Loading..." {
		t.Errorf("expected 'Loading...' before WindowSizeMsg, got %q", view)
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 30})
	model = updated.(Model)

	view := model.View()
	if !strings.Contains(view, "test.squashfs") {
		t.Error("view should contain the image name")
	}
	if !strings.Contains(view, "docs/") {
		t.Error("view should mark directories with a trailing slash")
	}
	if !strings.Contains(view, "docs-link@") {
		t.Error("view should mark symlinks with a trailing at sign")
	}
	if !strings.Contains(view, "main.go") {
		t.Error("view should contain file names")
	}
	if !strings.Contains(view, "q quit") {
		t.Error("view should contain help text")
	}
	if !strings.Contains(view, "1/4") {
		t.Error("view should contain the list position")
	}
}

func TestRenderPreviewTextFile(t *testing.T) {
	vol := testVolume(t)
	entry := squashfs.DirEntry{Name: "main.go"}

	// Highlighting may interleave escape codes between tokens, so
	// check individual tokens rather than whole lines.
	content := renderPreview(vol, vol.Root(), entry, DefaultTheme, 80)
	if !strings.Contains(content, "package") {
		t.Error("preview should contain the file text")
	}
	if !strings.Contains(content, "main.go") {
		t.Error("preview should contain the file name")
	}
}

func TestRenderPreviewBinaryFile(t *testing.T) {
	vol := testVolume(t)
	entry := squashfs.DirEntry{Name: "blob.bin"}

	content := renderPreview(vol, vol.Root(), entry, DefaultTheme, 80)
	if !strings.Contains(content, "binary file") {
		t.Error("preview should flag binary content")
	}
	// hex.Dump output includes the offset column.
	if !strings.Contains(content, "00000000") {
		t.Error("preview should contain a hex dump")
	}
}

func TestRenderPreviewDirectory(t *testing.T) {
	vol := testVolume(t)
	entry := squashfs.DirEntry{Name: "docs"}

	content := renderPreview(vol, vol.Root(), entry, DefaultTheme, 80)
	if !strings.Contains(content, "1 entries") {
		t.Error("preview should contain the entry count")
	}
	if !strings.Contains(content, "readme.md") {
		t.Error("preview should list the children")
	}
}

func TestRenderPreviewMissingEntry(t *testing.T) {
	vol := testVolume(t)
	entry := squashfs.DirEntry{Name: "no-such-entry"}

	content := renderPreview(vol, vol.Root(), entry, DefaultTheme, 80)
	if content == "" {
		t.Fatal("preview of a missing entry should render an error")
	}
}

func TestLooksBinary(t *testing.T) {
	if looksBinary([]byte("plain text\nwith lines\n")) {
		t.Error("plain text flagged as binary")
	}
	if !looksBinary([]byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}) {
		t.Error("NUL-bearing data not flagged as binary")
	}
}

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"main.go", "go"},
		{"script.sh", "sh"},
		{"config.yaml", "yaml"},
		{"README", ""},
		{"archive.tar.gz", "gz"},
	}
	for _, tt := range tests {
		if got := languageFor(tt.name); got != tt.want {
			t.Errorf("languageFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
