// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipkit reads, writes and repairs PKWARE ZIP archives.
//
// The package covers the working surface of the classic zip, unzip and
// zipnote commands behind a single Options bundle: listing, testing and
// extraction, archive creation and rewriting (add, update, freshen,
// sync, delete, move), comment and name editing, and salvage of
// archives with damaged or missing central directories. Store, Deflate
// and Bzip2 payloads are supported, along with ZipCrypto encryption and
// the Zip64 large-archive extensions.
//
// Every operation validates its Options, reports progress and warnings
// through the configured Sink, and returns an error chain that
// StatusOf collapses to a process exit status.
package zipkit

import "io"

// List prints the selected entries in the configured format.
func List(o *Options) error { return runList(o) }

// Test decompresses every selected entry and verifies lengths and
// checksums without writing any file.
func Test(o *Options) error { return runTest(o) }

// Extract writes the selected entries beneath the target directory, or
// to the configured stream.
func Extract(o *Options) error { return runExtract(o) }

// Modify rewrites the archive according to the configured operation,
// building the output in a sibling temp file and renaming it over the
// target on success.
func Modify(o *Options) error { return runModify(o) }

// LoadDirectory reads the archive's entry table and comment without
// touching payloads. In recovery modes the table is rebuilt by
// scanning for local headers instead of trusting the trailer.
func LoadDirectory(o *Options) (*Directory, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	a, err := openArchive(o.Archive)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return loadEntryList(a, o)
}

// WriteDirectory commits an edited directory over the archive, carrying
// payloads byte for byte. The directory must come from LoadDirectory on
// the same archive, unchanged in between.
func WriteDirectory(o *Options, dir *Directory) error {
	if err := o.validate(); err != nil {
		return err
	}
	a, err := openArchive(o.Archive)
	if err != nil {
		return err
	}
	defer a.Close()
	_, err = commitArchive(o, a, dir, nil, nil, dir.Comment)
	return err
}

// DumpNotes prints the archive's names and comments in the editable
// note format.
func DumpNotes(o *Options) error { return runNoteDump(o) }

// ApplyNotes parses an edited note stream and rewrites the archive with
// the new names and comments.
func ApplyNotes(o *Options, notes io.Reader) error { return runNoteApply(o, notes) }

// loadEntryList reads the entry table through the trailer, or by
// scanning in recovery modes.
func loadEntryList(a *archive, o *Options) (*Directory, error) {
	if o.Recovery == RecoverNone {
		return a.loadDirectory()
	}
	return a.scanDirectory(o)
}
