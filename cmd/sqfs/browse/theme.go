// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package browse

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the image browser. All colors
// use lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Entry kind colors, following the usual ls conventions.
	DirColor     lipgloss.Color
	SymlinkColor lipgloss.Color
	ExecColor    lipgloss.Color
	SpecialColor lipgloss.Color // devices, fifos, sockets

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	ErrorText        lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed
// for 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	DirColor:     lipgloss.Color("75"),  // blue
	SymlinkColor: lipgloss.Color("80"),  // cyan
	ExecColor:    lipgloss.Color("114"), // green
	SpecialColor: lipgloss.Color("220"), // yellow/amber

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	ErrorText:        lipgloss.Color("196"), // bright red
}
