// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the sqfs CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/sqfs/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Command parameter structs bind flags declaratively via struct tags
// (see [BindFlags]); embedding [JSONOutput] adds a --json flag and the
// EmitJSON helper for machine-readable output.
//
// [LoadConfig] resolves the active configuration (explicit --config
// path, then $SQFS_CONFIG, then defaults) and [NewLogger] builds the
// slog handler it describes: tint text output with terminal color
// detection, or JSON for pipelines.
package cli
