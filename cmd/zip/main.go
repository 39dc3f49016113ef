// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The zip command creates and modifies ZIP archives.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/zipkit/zipkit"
	"github.com/zipkit/zipkit/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "zip [flags] archive [path ...]",
	Short: "Create and modify ZIP archives",
	Long: heredoc.Doc(`
		zip packs files and directories into a ZIP archive. The archive is
		rebuilt in a sibling temp file and renamed into place, so a failed
		run never damages the original. A missing archive is created.

		The default operation adds or replaces the named paths. With
		--update only newer files replace their entries; with --freshen no
		new entries are added; with --filesync entries whose file vanished
		are dropped as well. With --delete the paths are patterns naming
		entries to remove. When --freshen or --filesync get no paths, the
		candidates come from the archive itself.
	`),
	Example: heredoc.Doc(`
		zip -r backup.zip src docs
		zip -u backup.zip src/main.go
		zip -d backup.zip "*.tmp"
	`),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := loadOptions(cmd, args)
		if err != nil {
			return err
		}
		return zipkit.Modify(o)
	},
}

func init() {
	cli.Install(rootCmd)
	f := rootCmd.Flags()
	f.BoolP("recurse-paths", "r", false, "recurse into directories")
	f.BoolP("move", "m", false, "delete the source files after a successful write")
	f.BoolP("update", "u", false, "replace entries only when the file is newer")
	f.BoolP("freshen", "f", false, "like --update, but add no new entries")
	f.BoolP("delete", "d", false, "delete the entries matching the given patterns")
	f.Bool("filesync", false, "synchronize the archive with the files on disk")
	f.Bool("fix", false, "rebuild the entry list from local headers")
	f.Bool("fixfix", false, "like --fix, probing for data descriptors as well")
	f.StringP("compression-method", "Z", "deflate", "store, deflate or bzip2")
	f.Int("level", 6, "compression level (0 stores, 1..9 deflate)")
	f.BoolP("encrypt", "e", false, "encrypt added entries (requires --password)")
	f.StringP("password", "P", "", "password for --encrypt")
	f.BoolP("archive-comment", "z", false, "read a new archive comment from stdin")
	f.BoolP("test", "T", false, "test the rewritten archive before committing it")
	f.String("unzip-command", "unzip -tqq", "verifier run by --test, given the archive path")
	f.BoolP("latest-time", "o", false, "stamp the archive with its newest entry time")
	f.BoolP("symlinks", "y", false, "store symbolic links instead of following them")
	f.Bool("fifo", false, "read named pipes as entry content")
	f.StringArrayP("include", "i", nil, "only take source names matching a pattern")
	f.StringArrayP("exclude", "x", nil, "skip source names matching a pattern")
	f.Bool("ignore-case", false, "match patterns case-insensitively")
	f.CountP("quiet", "q", "suppress progress, twice for warnings too")
	f.CountP("verbose", "v", "diagnostic logging, twice for debug")
	f.String("logfile", "", "append diagnostics to a size-rotated log file")
}

func loadOptions(cmd *cobra.Command, args []string) (*zipkit.Options, error) {
	f := cmd.Flags()
	o := &zipkit.Options{Archive: args[0]}

	update, _ := f.GetBool("update")
	freshen, _ := f.GetBool("freshen")
	del, _ := f.GetBool("delete")
	sync, _ := f.GetBool("filesync")
	modes := 0
	for _, set := range []bool{update, freshen, del, sync} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return nil, fmt.Errorf("%w: pick one of --update, --freshen, --delete, --filesync", zipkit.ErrUsage)
	}
	switch {
	case del:
		o.Op = zipkit.OpDelete
		o.Include = args[1:]
	case sync:
		o.Op = zipkit.OpFilesync
		o.Sources = args[1:]
	case freshen:
		o.Op = zipkit.OpFreshen
		o.Sources = args[1:]
	case update:
		// update with no paths behaves as freshen
		o.Op = zipkit.OpUpdate
		if len(args) == 1 {
			o.Op = zipkit.OpFreshen
		}
		o.Sources = args[1:]
	default:
		o.Op = zipkit.OpAdd
		o.Sources = args[1:]
	}

	methodName, _ := f.GetString("compression-method")
	switch strings.ToLower(methodName) {
	case "store":
		o.Method = zipkit.Store
	case "deflate":
		o.Method = zipkit.Deflate
	case "bzip2":
		o.Method = zipkit.Bzip2
	default:
		return nil, fmt.Errorf("%w: compression method %q", zipkit.ErrUsage, methodName)
	}
	o.Level, _ = f.GetInt("level")
	if o.Level == 0 {
		o.Method = zipkit.Store
	}

	o.Move, _ = f.GetBool("move")
	o.Recurse, _ = f.GetBool("recurse-paths")
	o.StoreLinks, _ = f.GetBool("symlinks")
	o.AllowFIFO, _ = f.GetBool("fifo")
	o.ArchiveTime, _ = f.GetBool("latest-time")
	o.CaseFold, _ = f.GetBool("ignore-case")
	o.Encrypt, _ = f.GetBool("encrypt")
	o.Password, _ = f.GetString("password")

	inc, _ := f.GetStringArray("include")
	o.Include = append(o.Include, inc...)
	o.Exclude, _ = f.GetStringArray("exclude")

	if fixfix, _ := f.GetBool("fixfix"); fixfix {
		o.Recovery = zipkit.RecoverFixHard
	} else if fix, _ := f.GetBool("fix"); fix {
		o.Recovery = zipkit.RecoverFix
	}

	if test, _ := f.GetBool("test"); test || f.Changed("unzip-command") {
		o.TestHook = cli.ExecTest
		o.TestCommand, _ = f.GetString("unzip-command")
	}

	if z, _ := f.GetBool("archive-comment"); z {
		comment, err := readComment(os.Stdin, os.Stderr)
		if err != nil {
			return nil, err
		}
		o.Comment, o.SetComment = comment, true
	}

	o.Quiet, _ = f.GetCount("quiet")
	o.Verbose, _ = f.GetCount("verbose")
	logfile, _ := f.GetString("logfile")
	o.Sink = cli.NewConsole(o.Quiet, o.Verbose, logfile)
	return o, nil
}

// readComment collects the new archive comment, ending at EOF or a
// line holding a single period.
func readComment(in *os.File, prompt io.Writer) (string, error) {
	if isatty.IsTerminal(in.Fd()) {
		fmt.Fprintln(prompt, "enter new zip file comment (end with . or EOF):")
	}
	var lines []string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if sc.Text() == "." {
			break
		}
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func main() {
	rootCmd.SetArgs(cli.ArgsWithEnv("ZIPOPT", os.Args[1:]))
	cli.Exit("zip", rootCmd.Execute())
}
