// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package browse

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/squashfs-tools/go-squashfs/lib/squashfs"
)

// FocusRegion identifies which pane has keyboard focus.
type FocusRegion int

const (
	// FocusList means navigation keys move the entry list cursor.
	FocusList FocusRegion = iota
	// FocusPreview means navigation keys scroll the preview viewport.
	FocusPreview
)

// Split ratio bounds and step size.
const (
	splitRatioMin  = 0.20
	splitRatioMax  = 0.80
	splitRatioStep = 0.05
)

// crumb is one level of the directory stack: a directory inode and
// the name it was entered under.
type crumb struct {
	ino  *squashfs.Inode
	name string
}

// Model is the bubbletea model for the image browser: the listed
// directory on the left, a preview of the selected entry on the
// right.
type Model struct {
	vol   *squashfs.Volume
	image string // image file name, shown in the header
	theme Theme
	keys  KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// Directory stack, root first. The last element is the listed
	// directory.
	stack   []crumb
	entries []squashfs.DirEntry

	cursor       int
	scrollOffset int

	// Two-pane layout.
	focus      FocusRegion
	splitRatio float64
	preview    viewport.Model

	// status holds a transient error shown in the help bar; cleared
	// on the next keypress.
	status string
}

// NewModel creates a browser rooted at the volume's root directory.
func NewModel(vol *squashfs.Volume, image string) (Model, error) {
	entries, err := vol.ListDir(vol.Root())
	if err != nil {
		return Model{}, err
	}
	model := Model{
		vol:        vol,
		image:      image,
		theme:      DefaultTheme,
		keys:       DefaultKeyMap,
		stack:      []crumb{{ino: vol.Root()}},
		entries:    entries,
		splitRatio: 0.40,
	}
	return model, nil
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd { return nil }

// Update implements tea.Model. Routes keyboard events based on the
// focused pane and handles layout changes.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.layout()
		model.refreshPreview()
		return model, nil

	case tea.MouseMsg:
		model.handleMouse(message)
		return model, nil

	case tea.KeyMsg:
		model.status = ""
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit
		case key.Matches(message, model.keys.FocusToggle):
			if model.focus == FocusList {
				model.focus = FocusPreview
			} else {
				model.focus = FocusList
			}
			return model, nil
		case key.Matches(message, model.keys.SplitGrow):
			model.setSplit(model.splitRatio + splitRatioStep)
			return model, nil
		case key.Matches(message, model.keys.SplitShrink):
			model.setSplit(model.splitRatio - splitRatioStep)
			return model, nil
		}

		if model.focus == FocusPreview {
			return model.handlePreviewKeys(message)
		}
		return model.handleListKeys(message)
	}
	return model, nil
}

func (model Model) handleListKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.PageUp):
		model.moveCursor(-model.contentHeight() / 2)
	case key.Matches(message, model.keys.PageDown):
		model.moveCursor(model.contentHeight() / 2)
	case key.Matches(message, model.keys.Home):
		model.moveCursor(-len(model.entries))
	case key.Matches(message, model.keys.End):
		model.moveCursor(len(model.entries))
	case key.Matches(message, model.keys.Parent):
		model.ascend()
	case key.Matches(message, model.keys.Enter):
		model.descend()
	}
	return model, nil
}

// handlePreviewKeys routes keys to the preview viewport; Parent hands
// focus back to the list.
func (model Model) handlePreviewKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, model.keys.Parent) {
		model.focus = FocusList
		return model, nil
	}
	var cmd tea.Cmd
	model.preview, cmd = model.preview.Update(message)
	return model, cmd
}

// handleMouse routes wheel scrolling to the pane under the pointer.
func (model *Model) handleMouse(message tea.MouseMsg) {
	inList := message.X <= model.listWidth()
	switch message.Button {
	case tea.MouseButtonWheelUp:
		if inList {
			model.moveCursor(-1)
		} else {
			model.preview.LineUp(3)
		}
	case tea.MouseButtonWheelDown:
		if inList {
			model.moveCursor(1)
		} else {
			model.preview.LineDown(3)
		}
	}
}

// moveCursor moves the list cursor by delta, clamped to the entry
// range, and refreshes the preview for the new selection.
func (model *Model) moveCursor(delta int) {
	if len(model.entries) == 0 {
		model.cursor = 0
		return
	}
	model.cursor += delta
	if model.cursor < 0 {
		model.cursor = 0
	}
	if model.cursor >= len(model.entries) {
		model.cursor = len(model.entries) - 1
	}
	model.ensureCursorVisible()
	model.refreshPreview()
}

// ensureCursorVisible adjusts scrollOffset so the cursor is within
// the visible window.
func (model *Model) ensureCursorVisible() {
	visible := model.contentHeight()
	if visible <= 0 {
		return
	}
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
}

// descend opens the selected entry: directories (and symlinks to
// directories) are entered, anything else moves focus to the preview.
func (model *Model) descend() {
	entry, ok := model.selected()
	if !ok {
		return
	}
	info, err := model.vol.Stat(model.childFsPath(entry.Name))
	if err != nil {
		model.status = err.Error()
		return
	}
	if !info.IsDir() {
		model.focus = FocusPreview
		return
	}
	ino := info.Sys().(*squashfs.Inode)
	entries, err := model.vol.ListDir(ino)
	if err != nil {
		model.status = err.Error()
		return
	}
	model.stack = append(model.stack, crumb{ino: ino, name: entry.Name})
	model.entries = entries
	model.cursor = 0
	model.scrollOffset = 0
	model.refreshPreview()
}

// ascend returns to the parent directory, reselecting the entry the
// browser came from.
func (model *Model) ascend() {
	if len(model.stack) == 1 {
		return
	}
	from := model.stack[len(model.stack)-1].name
	model.stack = model.stack[:len(model.stack)-1]
	entries, err := model.vol.ListDir(model.top())
	if err != nil {
		model.status = err.Error()
		return
	}
	model.entries = entries
	model.cursor = 0
	for index, entry := range entries {
		if entry.Name == from {
			model.cursor = index
			break
		}
	}
	model.scrollOffset = 0
	model.ensureCursorVisible()
	model.refreshPreview()
}

func (model Model) top() *squashfs.Inode {
	return model.stack[len(model.stack)-1].ino
}

func (model Model) selected() (squashfs.DirEntry, bool) {
	if model.cursor < 0 || model.cursor >= len(model.entries) {
		return squashfs.DirEntry{}, false
	}
	return model.entries[model.cursor], true
}

// fsDir returns the io/fs path of the listed directory ("." for the
// root).
func (model Model) fsDir() string {
	if len(model.stack) == 1 {
		return "."
	}
	names := make([]string, 0, len(model.stack)-1)
	for _, c := range model.stack[1:] {
		names = append(names, c.name)
	}
	return strings.Join(names, "/")
}

func (model Model) childFsPath(name string) string {
	dir := model.fsDir()
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// displayPath returns the slash-prefixed path for the header line.
func (model Model) displayPath() string {
	dir := model.fsDir()
	if dir == "." {
		return "/"
	}
	return "/" + dir
}

func (model *Model) setSplit(ratio float64) {
	if ratio < splitRatioMin {
		ratio = splitRatioMin
	}
	if ratio > splitRatioMax {
		ratio = splitRatioMax
	}
	model.splitRatio = ratio
	model.layout()
	model.refreshPreview()
}

// listWidth returns the width of the list pane in columns.
func (model Model) listWidth() int {
	return int(float64(model.width) * model.splitRatio)
}

// previewWidth returns the width of the preview pane: everything to
// the right of the list pane and the one-column divider.
func (model Model) previewWidth() int {
	return model.width - model.listWidth() - 1
}

// contentHeight returns the rows available to the panes: full height
// minus the header, bottom separator, and help bar.
func (model Model) contentHeight() int {
	h := model.height - 3
	if h < 0 {
		return 0
	}
	return h
}

func (model *Model) layout() {
	model.preview.Width = model.previewWidth()
	model.preview.Height = model.contentHeight()
	model.ensureCursorVisible()
}

// refreshPreview rebuilds the preview pane for the selected entry.
func (model *Model) refreshPreview() {
	if !model.ready {
		return
	}
	entry, ok := model.selected()
	if !ok {
		model.preview.SetContent(lipgloss.NewStyle().
			Foreground(model.theme.FaintText).Render("empty directory"))
		model.preview.GotoTop()
		return
	}
	content := renderPreview(model.vol, model.top(), entry, model.theme, model.previewWidth())
	model.preview.SetContent(content)
	model.preview.GotoTop()
}

// View implements tea.Model. Renders the full frame: header, the two
// panes with a divider, a separator, and the help bar.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, model.renderHeader())

	listView := model.renderListPane()
	divider := model.renderDivider()
	contentArea := lipgloss.JoinHorizontal(lipgloss.Top, listView, divider, model.preview.View())
	sections = append(sections, contentArea)

	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))
	sections = append(sections, separator)

	sections = append(sections, model.renderHelp())

	return strings.Join(sections, "\n")
}

// renderHeader renders the top line: image name and current path.
func (model Model) renderHeader() string {
	style := lipgloss.NewStyle().
		Foreground(model.theme.HeaderForeground).
		Bold(true)
	header := fmt.Sprintf(" %s — %s", model.image, model.displayPath())
	return style.MaxWidth(model.width).Render(header)
}

// renderListPane renders the visible window of directory entries.
func (model Model) renderListPane() string {
	listWidth := model.listWidth()
	visible := model.contentHeight()

	rows := make([]string, 0, visible)
	for index := model.scrollOffset; index < model.scrollOffset+visible && index < len(model.entries); index++ {
		rows = append(rows, model.renderRow(model.entries[index], index == model.cursor, listWidth))
	}
	pane := strings.Join(rows, "\n")
	return lipgloss.NewStyle().Width(listWidth).Height(visible).MaxWidth(listWidth).Render(pane)
}

// renderRow renders one entry line: a name colored by kind, with the
// conventional type suffix (/ for directories, @ for symlinks).
func (model Model) renderRow(entry squashfs.DirEntry, selected bool, width int) string {
	name := entry.Name
	style := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	switch {
	case entry.Type.IsDir():
		name += "/"
		style = style.Foreground(model.theme.DirColor).Bold(true)
	case entry.Type&fs.ModeSymlink != 0:
		name += "@"
		style = style.Foreground(model.theme.SymlinkColor)
	case entry.Type&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket) != 0:
		style = style.Foreground(model.theme.SpecialColor)
	}

	if selected {
		style = style.
			Background(model.theme.SelectedBackground).
			Foreground(model.theme.SelectedForeground).
			Bold(true)
	}

	row := " " + name
	if runes := []rune(row); len(runes) > width && width > 1 {
		row = string(runes[:width-1]) + "…"
	}
	return style.Width(width).MaxWidth(width).Render(row)
}

// renderDivider renders the single-column vertical divider between
// the panes.
func (model Model) renderDivider() string {
	visible := model.contentHeight()
	lines := make([]string, visible)
	for index := range lines {
		lines[index] = "│"
	}
	return lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Width(1).Height(visible).
		Render(strings.Join(lines, "\n"))
}

// renderHelp renders the bottom help bar with key hints and the list
// position; a pending status error replaces the hints.
func (model Model) renderHelp() string {
	if model.status != "" {
		return lipgloss.NewStyle().
			Foreground(model.theme.ErrorText).
			MaxWidth(model.width).
			Render(" " + model.status)
	}

	style := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	focusIndicator := "LIST"
	if model.focus == FocusPreview {
		focusIndicator = "PREVIEW"
	}

	help := fmt.Sprintf(" [%s] q quit  ↑↓ navigate  ←→ parent/open  Tab focus  ]/[ resize",
		focusIndicator)
	if len(model.entries) > 0 {
		help += fmt.Sprintf("  %d/%d", model.cursor+1, len(model.entries))
	}
	return style.MaxWidth(model.width).Render(help)
}
