// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The zipnote command reads and writes archive and entry comments as
// an editable text stream.
package main

import (
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/zipkit/zipkit"
	"github.com/zipkit/zipkit/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "zipnote [flags] archive",
	Short: "Edit ZIP archive comments",
	Long: heredoc.Doc(`
		zipnote writes the comments in an archive to stdout as a text
		stream: each entry opens with "@ name", its comment follows up to
		the marker line, and the archive comment trails the final marker.

		With --write the stream is read back from stdin and applied.
		Adding "@=newname" directly under an entry's "@ name" line renames
		that entry.
	`),
	Example: heredoc.Doc(`
		zipnote backup.zip > comments
		zipnote --write backup.zip < comments
	`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		quiet, _ := f.GetCount("quiet")
		logfile, _ := f.GetString("logfile")
		o := &zipkit.Options{
			Archive: args[0],
			Quiet:   quiet,
			Sink:    cli.NewConsole(quiet, 0, logfile),
		}
		if write, _ := f.GetBool("write"); write {
			return zipkit.ApplyNotes(o, os.Stdin)
		}
		return zipkit.DumpNotes(o)
	},
}

func init() {
	cli.Install(rootCmd)
	f := rootCmd.Flags()
	f.BoolP("write", "w", false, "apply a comment stream from stdin")
	f.CountP("quiet", "q", "suppress warnings")
	f.String("logfile", "", "append diagnostics to a size-rotated log file")
}

func main() {
	cli.Exit("zipnote", rootCmd.Execute())
}
