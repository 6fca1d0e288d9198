// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/squashfs-tools/go-squashfs/lib/config"
)

// NewLogger creates the structured logger for CLI command operations
// from the config's log section. The debug flag forces LevelDebug
// regardless of the configured level.
//
// The format selects the handler:
//
//   - "auto": colored tint output when stderr is a terminal, plain
//     tint output when piped or redirected
//   - "text": plain tint output unconditionally
//   - "json": slog.JSONHandler for machine-parseable output
//
// Unrecognized formats fall back to "auto". Validation rejects them
// earlier when the config came from a file.
func NewLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := parseLevel(cfg.Log.Level)
	if debug {
		level = slog.LevelDebug
	}

	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	noColor := cfg.Log.Format == "text" || !isatty.IsTerminal(os.Stderr.Fd())
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
}

// parseLevel maps a config level string to a slog.Level. Unknown
// strings map to info.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
