// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The unzip command lists, tests and extracts ZIP archives, with a
// zipinfo-style listing mode.
package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zipkit/zipkit"
	"github.com/zipkit/zipkit/internal/cli"
)

type runMode int

const (
	modeExtract runMode = iota
	modeList
	modeTest
)

var rootCmd = &cobra.Command{
	Use:   "unzip [flags] archive [pattern ...]",
	Short: "List, test and extract ZIP archives",
	Long: heredoc.Doc(`
		unzip extracts the entries of a ZIP archive into the current
		directory, or into --directory. Patterns after the archive select
		entries; without any, everything is taken. Entry names that are
		absolute or escape the target directory are refused.

		--list prints entry names. --zipinfo switches to the zipinfo
		formats: --names-only, --short, --medium, --verbose, and --list
		for the long form. --test decompresses everything and verifies
		checksums without writing files.
	`),
	Example: heredoc.Doc(`
		unzip backup.zip
		unzip -o backup.zip "docs/**" -d /tmp/restore
		unzip -Z -m backup.zip
	`),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, mode, err := loadOptions(cmd, args)
		if err != nil {
			return err
		}
		switch mode {
		case modeList:
			return zipkit.List(o)
		case modeTest:
			return zipkit.Test(o)
		default:
			return zipkit.Extract(o)
		}
	},
}

func init() {
	cli.Install(rootCmd)
	f := rootCmd.Flags()
	f.BoolP("list", "l", false, "list entries instead of extracting")
	f.BoolP("zipinfo", "Z", false, "zipinfo listing mode")
	f.BoolP("names-only", "1", false, "with --zipinfo, print bare entry names")
	f.BoolP("short", "s", false, "with --zipinfo, the short format")
	f.BoolP("medium", "m", false, "with --zipinfo, the medium format (adds percent saved)")
	f.BoolP("verbose", "v", false, "per-entry breakdown listing")
	f.BoolP("test", "t", false, "decompress and verify without writing files")
	f.Bool("tolerant", false, "with --test, skip password failures instead of aborting")
	f.BoolP("pipe", "p", false, "write entry payloads to stdout")
	f.BoolP("junk-paths", "j", false, "flatten directory components on extraction")
	f.StringP("directory", "d", "", "extract into this directory")
	f.BoolP("overwrite", "o", false, "overwrite existing files")
	f.BoolP("never-overwrite", "n", false, "skip existing files")
	f.StringP("password", "P", "", "password for encrypted entries")
	f.StringArrayP("exclude", "x", nil, "skip entries matching a pattern")
	f.BoolP("ignore-case", "C", false, "match patterns case-insensitively")
	f.BoolP("comments", "z", false, "include archive and entry comments in listings")
	f.BoolP("decimal-time", "T", false, "timestamps as yyyymmdd.hhmmss")
	f.Bool("header", true, "listing header with archive path and size")
	f.Bool("totals", true, "listing totals footer")
	f.BoolP("pager", "M", false, "page listing output, --More-- every screenful")
	f.CountP("quiet", "q", "suppress progress, twice for warnings too")
	f.String("logfile", "", "append diagnostics to a size-rotated log file")
}

// toggle maps an explicitly set bool flag onto the engine's tri-state;
// an untouched flag leaves the format's own default in charge.
func toggle(f *pflag.FlagSet, name string) zipkit.Toggle {
	if !f.Changed(name) {
		return zipkit.ToggleAuto
	}
	if on, _ := f.GetBool(name); on {
		return zipkit.ToggleOn
	}
	return zipkit.ToggleOff
}

func loadOptions(cmd *cobra.Command, args []string) (*zipkit.Options, runMode, error) {
	f := cmd.Flags()
	o := &zipkit.Options{Archive: args[0], Include: args[1:]}

	zi, _ := f.GetBool("zipinfo")
	list, _ := f.GetBool("list")
	verbose, _ := f.GetBool("verbose")
	test, _ := f.GetBool("test")

	mode := modeExtract
	switch {
	case zi, list, verbose:
		mode = modeList
	case test:
		mode = modeTest
	}

	o.Format = zipkit.FormatPlain
	if zi {
		names1, _ := f.GetBool("names-only")
		medium, _ := f.GetBool("medium")
		switch {
		case names1:
			o.Format = zipkit.FormatNames
		case medium:
			o.Format = zipkit.FormatMedium
		case verbose:
			o.Format = zipkit.FormatVerbose
		case list:
			o.Format = zipkit.FormatLong
		default:
			o.Format = zipkit.FormatShort
		}
	} else if verbose {
		o.Format = zipkit.FormatVerbose
	}

	over, _ := f.GetBool("overwrite")
	never, _ := f.GetBool("never-overwrite")
	if over && never {
		return nil, mode, fmt.Errorf("%w: --overwrite conflicts with --never-overwrite", zipkit.ErrUsage)
	}
	switch {
	case over:
		o.Overwrite = zipkit.AlwaysOverwrite
	case never:
		o.Overwrite = zipkit.NeverOverwrite
	}

	o.TargetDir, _ = f.GetString("directory")
	o.JunkPaths, _ = f.GetBool("junk-paths")
	o.ToStdout, _ = f.GetBool("pipe")
	o.Password, _ = f.GetString("password")
	o.TolerantTest, _ = f.GetBool("tolerant")
	o.Exclude, _ = f.GetStringArray("exclude")
	o.CaseFold, _ = f.GetBool("ignore-case")
	o.ListComments, _ = f.GetBool("comments")
	o.DecimalTime, _ = f.GetBool("decimal-time")
	o.Header = toggle(f, "header")
	o.Totals = toggle(f, "totals")
	o.Quiet, _ = f.GetCount("quiet")

	logfile, _ := f.GetString("logfile")
	o.Sink = cli.NewConsole(o.Quiet, 0, logfile)

	if pager, _ := f.GetBool("pager"); pager && mode == modeList && cli.Interactive() {
		o.Line = cli.StdPager().Line
	}
	return o, mode, nil
}

func main() {
	rootCmd.SetArgs(cli.ArgsWithEnv("UNZIP", os.Args[1:]))
	cli.Exit("unzip", rootCmd.Execute())
}
