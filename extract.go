// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// extractVerb is the progress verb for a method, padded by the caller
// so the colons line up.
func extractVerb(m Method) string {
	switch m {
	case Deflate:
		return "inflating"
	case Bzip2:
		return "bunzipping"
	default:
		return "extracting"
	}
}

// unsafeName reports a stored name that must never touch the
// filesystem: absolute, or containing a parent-directory segment.
func unsafeName(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// dirStamp defers a directory mtime until extraction is done, so files
// landing inside do not bump it afterwards.
type dirStamp struct {
	path string
	mod  time.Time
}

type extractor struct {
	o    *Options
	a    *archive
	dirs []dirStamp
}

// runExtract materializes the selected entries. Names are vetted up
// front so an archive with any unsafe selected name materializes
// nothing at all.
func runExtract(o *Options) error {
	if err := o.validate(); err != nil {
		return err
	}
	m, err := newMatcher(o)
	if err != nil {
		return err
	}

	a, err := openArchive(o.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	dir, err := loadEntryList(a, o)
	if err != nil {
		return err
	}

	var selected []*Entry
	for _, e := range dir.Entries {
		if m.match(e.Name) {
			selected = append(selected, e)
		}
	}
	for _, e := range selected {
		if unsafeName(e.Name) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, e.Name)
		}
	}

	if !o.ToStdout {
		o.progress("Archive:  %s\n", o.Archive)
	}

	x := &extractor{o: o, a: a}
	for _, e := range selected {
		if err := x.extractEntry(e); err != nil {
			return err
		}
	}
	x.restoreDirStamps()

	return m.reportMisses(o)
}

func (x *extractor) extractEntry(e *Entry) error {
	o := x.o
	if e.Name == "" {
		o.warn("warning: skipping entry with empty name\n")
		o.sink().Record(Notice{Err: ErrFormat, Detail: "empty entry name"})
		return nil
	}

	if e.IsDir() {
		if o.ToStdout || o.JunkPaths {
			return nil
		}
		return x.extractDir(e)
	}

	if o.ToStdout {
		return x.streamEntry(e, o.stdout())
	}

	target := x.targetPath(e.Name)
	if st, err := os.Lstat(target); err == nil {
		switch o.Overwrite {
		case NeverOverwrite:
			o.warn("warning: %s exists, not overwritten\n", target)
			o.sink().Record(Notice{Err: ErrExists, Name: e.Name, Detail: "target exists"})
			return nil
		case AbortOnConflict:
			return fmt.Errorf("%w: %s", ErrExists, target)
		case AlwaysOverwrite:
			if st.IsDir() {
				return fmt.Errorf("cannot overwrite directory %s with a file", target)
			}
		}
	}
	if parent := filepath.Dir(target); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return err
		}
	}

	if e.Mode()&fs.ModeSymlink != 0 {
		return x.extractSymlink(e, target)
	}
	return x.extractFile(e, target)
}

func (x *extractor) extractDir(e *Entry) error {
	target := x.targetPath(e.Name)
	mode := e.Mode().Perm()
	if mode == 0 {
		mode = 0755
	}
	if err := os.MkdirAll(target, mode); err != nil {
		return err
	}
	x.o.progress("%11s: %s/\n", "creating", target)
	x.dirs = append(x.dirs, dirStamp{path: target, mod: e.Modified()})
	return nil
}

func (x *extractor) extractFile(e *Entry, target string) error {
	// Open the payload before touching the target so password and
	// format failures leave existing files alone.
	rc, err := x.a.openEntry(e, x.o.Password)
	if err != nil {
		return err
	}

	perm := e.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		rc.Close()
		return err
	}

	x.o.progress("%11s: %s\n", extractVerb(e.Method), target)

	_, copyErr := io.CopyBuffer(f, rc, x.a.ioBuf())
	verifyErr := rc.Close()
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if verifyErr != nil {
		return fmt.Errorf("%s: %w", e.Name, verifyErr)
	}
	if closeErr != nil {
		return closeErr
	}

	if m := e.Mode(); m != 0 {
		if err := os.Chmod(target, m.Perm()); err != nil {
			return err
		}
	}
	if mod := e.Modified(); !mod.IsZero() {
		if err := os.Chtimes(target, mod, mod); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) extractSymlink(e *Entry, target string) error {
	rc, err := x.a.openEntry(e, x.o.Password)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	verifyErr := rc.Close()
	if err != nil {
		return err
	}
	if verifyErr != nil {
		return fmt.Errorf("%s: %w", e.Name, verifyErr)
	}

	if x.o.Overwrite == AlwaysOverwrite {
		os.Remove(target)
	}
	if err := os.Symlink(string(data), target); err != nil {
		return err
	}
	x.o.progress("%11s: %s -> %s\n", "linking", target, string(data))
	return nil
}

func (x *extractor) streamEntry(e *Entry, w io.Writer) error {
	rc, err := x.a.openEntry(e, x.o.Password)
	if err != nil {
		return err
	}
	_, copyErr := io.CopyBuffer(w, rc, x.a.ioBuf())
	verifyErr := rc.Close()
	if copyErr != nil {
		return copyErr
	}
	if verifyErr != nil {
		return fmt.Errorf("%s: %w", e.Name, verifyErr)
	}
	return nil
}

// restoreDirStamps applies deferred directory mtimes, children first.
func (x *extractor) restoreDirStamps() {
	for i := len(x.dirs) - 1; i >= 0; i-- {
		d := x.dirs[i]
		if d.mod.IsZero() {
			continue
		}
		os.Chtimes(d.path, d.mod, d.mod)
	}
}

// targetPath composes the filesystem destination for a stored name.
func (x *extractor) targetPath(name string) string {
	n := strings.TrimSuffix(name, "/")
	if x.o.JunkPaths {
		n = path.Base(n)
	}
	n = filepath.FromSlash(n)
	if x.o.TargetDir != "" {
		return filepath.Join(x.o.TargetDir, n)
	}
	return n
}

// runTest decodes every selected entry, discarding output. Integrity
// failures are reported per entry and do not stop the pass, so one run
// lists every bad entry.
func runTest(o *Options) error {
	if err := o.validate(); err != nil {
		return err
	}
	m, err := newMatcher(o)
	if err != nil {
		return err
	}

	a, err := openArchive(o.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	dir, err := loadEntryList(a, o)
	if err != nil {
		return err
	}

	o.progress("Archive:  %s\n", o.Archive)

	var bad int
	var firstErr error
	for _, e := range dir.Entries {
		if !m.match(e.Name) {
			continue
		}
		err := testEntry(a, o, e)
		if err == nil {
			o.progress("%11s: %-22s OK\n", "testing", e.Name)
			continue
		}
		if errors.Is(err, ErrPasswordRequired) || errors.Is(err, ErrBadPassword) {
			if !o.TolerantTest {
				return err
			}
			o.warn("warning: %v, skipped\n", err)
			o.sink().Record(Notice{Err: err, Name: e.Name, Detail: "skipped"})
			continue
		}
		bad++
		if firstErr == nil {
			firstErr = err
		}
		o.progress("%11s: %-22s error: %v\n", "testing", e.Name, err)
		o.sink().Record(Notice{Err: err, Name: e.Name, Detail: "failed integrity check"})
	}

	if bad > 0 {
		o.warn("At least one error was detected in %s.\n", o.Archive)
		return firstErr
	}
	o.progress("No errors detected in compressed data of %s.\n", o.Archive)
	return m.reportMisses(o)
}

func testEntry(a *archive, o *Options, e *Entry) error {
	rc, err := a.openEntry(e, o.Password)
	if err != nil {
		return err
	}
	_, copyErr := io.CopyBuffer(io.Discard, rc, a.ioBuf())
	verifyErr := rc.Close()
	if copyErr != nil {
		return copyErr
	}
	return verifyErr
}
