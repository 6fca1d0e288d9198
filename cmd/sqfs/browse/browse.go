// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package browse

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/squashfs-tools/go-squashfs/cmd/sqfs/cli"
)

type browseParams struct {
	cli.ImageParams
}

// Command returns the "browse" command.
func Command() *cli.Command {
	var params browseParams

	return &cli.Command{
		Name:    "browse",
		Summary: "Browse an image interactively in the terminal",
		Usage:   "sqfs browse <image> [flags]",
		Description: `Open an interactive browser for a SquashFS image.

Navigate with j/k or the arrow keys, enter directories with l/→/Enter,
and go back up with h/←. The right pane previews the selection:
directory listings, syntax-highlighted text, or a hex dump for binary
content. Tab switches focus to the preview for scrolling; q quits.`,
		Examples: []cli.Example{
			{
				Description: "Browse an image",
				Command:     "sqfs browse rootfs.squashfs",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("browse", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("image argument required\n\nUsage: sqfs browse <image> [flags]")
			}

			vol, _, err := params.OpenVolume(args[0])
			if err != nil {
				return err
			}
			defer vol.Close()

			model, err := NewModel(vol, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
			_, err = program.Run()
			return err
		},
	}
}
