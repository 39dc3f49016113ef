// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Method is a ZIP compression method id.
type Method uint16

const (
	Store   Method = 0
	Deflate Method = 8
	Bzip2   Method = 12
)

func (m Method) String() string {
	switch m {
	case Store:
		return "stored"
	case Deflate:
		return "deflated"
	case Bzip2:
		return "bzipped"
	default:
		return fmt.Sprintf("method %d", uint16(m))
	}
}

// OverwritePolicy decides what extraction does when the target path
// already exists. The zero value aborts, matching the rule that the
// engine never prompts.
type OverwritePolicy int

const (
	AbortOnConflict OverwritePolicy = iota
	AlwaysOverwrite
	NeverOverwrite
)

// ModifyOp selects the modification operation.
type ModifyOp int

const (
	OpAdd ModifyOp = iota
	OpUpdate
	OpFreshen
	OpDelete
	OpFilesync
)

func (op ModifyOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpFreshen:
		return "freshen"
	case OpDelete:
		return "delete"
	case OpFilesync:
		return "filesync"
	default:
		return "unknown"
	}
}

// RecoveryMode routes entry loading through the forward scanner when
// the trailer or central directory is unreadable.
type RecoveryMode int

const (
	RecoverNone    RecoveryMode = iota
	RecoverFix                  // scan for local headers instead of reading the trailer
	RecoverFixHard              // additionally probe for data descriptors
)

// ListFormat selects the listing layout.
type ListFormat int

const (
	FormatPlain ListFormat = iota
	FormatNames
	FormatShort
	FormatMedium
	FormatLong
	FormatVerbose
)

// Toggle is a tri-state switch whose zero value defers to the engine's
// defaulting rules.
type Toggle int

const (
	ToggleAuto Toggle = iota
	ToggleOn
	ToggleOff
)

// Notice is one accumulated warning: a classifying sentinel error, the
// entry it concerns, and free-form detail.
type Notice struct {
	Err    error
	Name   string
	Detail string
}

// Sink receives the engine's human-readable progress, diagnostics, and
// typed warning records. Implementations decide where lines go and how
// quiet/verbose levels map to their output.
type Sink interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
	Record(n Notice)
}

// ErrStopOutput may be returned by a line closure to end a listing
// early without failing the operation.
var ErrStopOutput = errors.New("zip: output stopped")

// WriterSink is a minimal Sink over two writers.
type WriterSink struct {
	Out io.Writer
	Err io.Writer
}

func (s WriterSink) Printf(format string, args ...any) {
	if s.Out != nil {
		fmt.Fprintf(s.Out, format, args...)
	}
}

func (s WriterSink) Warnf(format string, args ...any) {
	if s.Err != nil {
		fmt.Fprintf(s.Err, format, args...)
	}
}

func (s WriterSink) Record(Notice) {}

type nopSink struct{}

func (nopSink) Printf(string, ...any) {}
func (nopSink) Warnf(string, ...any)  {}
func (nopSink) Record(Notice)        {}

// Options is the bundle every operation consumes. The CLI layer
// populates it; the engine never reads configuration from anywhere
// else.
type Options struct {
	// Archive is the path of the archive being operated on.
	Archive string

	// Op selects the modification operation for Modify; Move unlinks
	// consumed source files after a successful commit.
	Op   ModifyOp
	Move bool

	// Recovery rebuilds the entry list with the forward scanner.
	Recovery RecoveryMode

	// Include and Exclude filter entry names with shell globs. An
	// empty include list matches everything not excluded; exclude
	// wins. CaseFold matches case-insensitively.
	Include  []string
	Exclude  []string
	CaseFold bool

	// Sources are the filesystem paths consumed by Modify. Recurse
	// descends into directories. StoreLinks stores symbolic links
	// as-is instead of following them; AllowFIFO opts into reading
	// named pipes.
	Sources    []string
	Recurse    bool
	StoreLinks bool
	AllowFIFO  bool

	// Extraction targets. ToStdout streams payloads to Stdout in entry
	// order; JunkPaths drops directory components.
	TargetDir string
	JunkPaths bool
	ToStdout  bool
	Stdout    io.Writer
	Overwrite OverwritePolicy

	// Write-side codec selection. A zero Level means the default (6).
	Method Method
	Level  int

	// Password unlocks encrypted entries on read; Encrypt turns on
	// write-side ZipCrypto, which is otherwise disabled.
	Password string
	Encrypt  bool

	// TolerantTest makes test mode skip password failures with a
	// warning instead of aborting.
	TolerantTest bool

	// Comment replaces the archive comment when SetComment is true;
	// the flag distinguishes clearing a comment from leaving it alone.
	Comment    string
	SetComment bool

	// Listing controls.
	Format       ListFormat
	Header       Toggle
	Totals       Toggle
	DecimalTime  bool
	ListComments bool

	// Quiet suppresses progress; Verbose adds diagnostics. Levels
	// stack, so 2 is quieter or noisier than 1.
	Quiet   int
	Verbose int

	// Zip64Threshold overrides the promotion boundary of 1<<32.
	// Intended for tests; zero means the real boundary.
	Zip64Threshold uint64

	// Sink receives progress and warnings; nil discards them. Line,
	// when set, receives formatted listing lines instead of the sink.
	Sink Sink
	Line func(string) error

	// TestHook runs an external verifier over the freshly written
	// archive; a non-zero result aborts the commit. TestCommand is
	// passed through as the command name.
	TestHook    func(cmd, target string) error
	TestCommand string

	// ArchiveTime stamps the finished archive with its newest entry
	// mtime.
	ArchiveTime bool
}

func (o *Options) sink() Sink {
	if o.Sink == nil {
		return nopSink{}
	}
	return o.Sink
}

func (o *Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

// emit routes one listing line to the line closure or, failing that,
// the sink.
func (o *Options) emit(line string) error {
	if o.Line != nil {
		return o.Line(line)
	}
	o.sink().Printf("%s\n", line)
	return nil
}

// progress prints unless the operator asked for quiet.
func (o *Options) progress(format string, args ...any) {
	if o.Quiet > 0 {
		return
	}
	o.sink().Printf(format, args...)
}

func (o *Options) warn(format string, args ...any) {
	if o.Quiet > 1 {
		return
	}
	o.sink().Warnf(format, args...)
}

func (o *Options) zip64Threshold() uint64 {
	if o.Zip64Threshold != 0 {
		return o.Zip64Threshold
	}
	return 1 << 32
}

func (o *Options) level() int {
	if o.Level == 0 {
		return 6
	}
	return min(max(o.Level, 1), 9)
}

// validate refuses malformed or unsupported bundles up front.
func (o *Options) validate() error {
	if o.Archive == "" {
		return fmt.Errorf("%w: no archive path", ErrUsage)
	}
	switch o.Method {
	case Store, Deflate, Bzip2:
	default:
		return fmt.Errorf("%w: compression method %d", ErrNotImplemented, uint16(o.Method))
	}
	if o.Level < 0 || o.Level > 9 {
		return fmt.Errorf("%w: compression level %d", ErrUsage, o.Level)
	}
	if len(o.Comment) > math.MaxUint16 {
		return ErrCommentTooLong
	}
	if o.Encrypt && o.Password == "" {
		return fmt.Errorf("%w: encryption requires a password", ErrUsage)
	}
	return nil
}
