// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package browse implements the "sqfs browse" subcommand: an
// interactive two-pane terminal browser for SquashFS images.
//
// The left pane lists the current directory; the right pane previews
// the selection. Directory previews show the child listing, text
// files are syntax-highlighted by extension, and binary files get a
// hex dump of their leading bytes. Navigation is vim-style (j/k/h/l)
// with arrow keys, mouse wheel, and a resizable splitter.
//
// Everything renders from the mounted volume through lib/squashfs;
// the browser never extracts to disk. The bubbletea program and its
// rendering stack live only in this package, so binaries that skip
// the browser do not link them.
package browse
