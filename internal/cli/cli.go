// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cli carries the plumbing shared by the zip, unzip and
// zipnote personalities: the console sink, environment option
// injection, the listing pager, and exit-status mapping.
package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	log "charm.land/log/v2"
	"github.com/spf13/cobra"
	"github.com/zipkit/zipkit"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ zipkit.Sink = (*Console)(nil)

// Console is the personalities' message sink: progress on stdout,
// warnings on stderr, typed notices to a leveled logger. The logger
// stays off the terminal unless the operator asked for debug output or
// a log file.
type Console struct {
	Out    io.Writer
	ErrOut io.Writer
	Logger *log.Logger
}

// NewConsole builds the standard sink. Verbosity picks the log level;
// logfile, when non-empty, routes the logger to a size-rotated file.
func NewConsole(quiet, verbose int, logfile string) *Console {
	level := log.WarnLevel
	switch {
	case verbose > 1:
		level = log.DebugLevel
	case verbose > 0:
		level = log.InfoLevel
	case quiet > 0:
		level = log.ErrorLevel
	}

	var w io.Writer = io.Discard
	switch {
	case logfile != "":
		w = &lumberjack.Logger{Filename: logfile, MaxSize: 10, MaxBackups: 3, MaxAge: 28}
	case verbose > 1:
		w = os.Stderr
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: logfile != "",
	})
	return &Console{Out: os.Stdout, ErrOut: os.Stderr, Logger: logger}
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Console) Warnf(format string, args ...any) {
	fmt.Fprintf(c.ErrOut, format, args...)
}

// Record logs one typed notice with its entry name and classification.
func (c *Console) Record(n zipkit.Notice) {
	if c.Logger == nil {
		return
	}
	kv := make([]any, 0, 4)
	if n.Name != "" {
		kv = append(kv, "name", n.Name)
	}
	if n.Err != nil {
		kv = append(kv, "kind", strings.TrimPrefix(n.Err.Error(), "zip: "))
	}
	c.Logger.Warn(n.Detail, kv...)
}

// Install applies the shared cobra conventions: errors print once, in
// Exit, and flag mistakes classify as usage errors.
func Install(cmd *cobra.Command) {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", zipkit.ErrUsage, err)
	})
}

// Exit reports err in the personality's voice and terminates with the
// matching status code. No-files-matched runs have already warned
// through the sink, so they only carry the code.
func Exit(name string, err error) {
	st := zipkit.StatusOf(err)
	if err != nil && st != zipkit.StatusNoFilesMatched {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", name, err)
	}
	os.Exit(st.Code())
}

// ExecTest runs an external verifier over a freshly written archive,
// with the archive path appended to the command line. Suitable as the
// engine's test hook.
func ExecTest(cmdline, target string) error {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty test command", zipkit.ErrUsage)
	}
	c := exec.Command(fields[0], append(fields[1:], target)...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
