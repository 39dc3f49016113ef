// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/zipkit/zipkit/internal/record"
)

// The note stream is line oriented. Lines starting with "@ " name an
// entry, "@=" renames the entry above, and everything else up to the
// closing marker is that entry's comment. The archive comment follows
// the final marker.
const (
	noteEntryMark   = "@ (comment above this line)"
	noteArchiveMark = "@ (zip file comment below this line)"
)

// runNoteDump prints every entry name with its comment in the editable
// note format.
func runNoteDump(o *Options) error {
	dir, err := LoadDirectory(o)
	if err != nil {
		return err
	}

	for _, e := range dir.Entries {
		if err := o.emit("@ " + e.Name); err != nil {
			return err
		}
		if e.Comment != "" {
			for _, line := range strings.Split(e.Comment, "\n") {
				if err := o.emit(line); err != nil {
					return err
				}
			}
		}
		if err := o.emit(noteEntryMark); err != nil {
			return err
		}
	}
	if err := o.emit(noteArchiveMark); err != nil {
		return err
	}
	if dir.Comment != "" {
		for _, line := range strings.Split(dir.Comment, "\n") {
			if err := o.emit(line); err != nil {
				return err
			}
		}
	}
	return nil
}

type noteEdit struct {
	rename  string
	comment []string
}

// parseNotes reads an edited note stream back into per-entry edits,
// preserving the order names appeared for reporting.
func parseNotes(notes io.Reader) (map[string]*noteEdit, []string, string, bool, error) {
	edits := make(map[string]*noteEdit)
	var order []string
	var archiveComment []string
	seenArchive := false
	var cur *noteEdit

	sc := bufio.NewScanner(notes)
	sc.Buffer(make([]byte, 0, ioChunkSize), 2*ioChunkSize)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case seenArchive:
			archiveComment = append(archiveComment, line)
		case line == noteEntryMark:
			cur = nil
		case line == noteArchiveMark:
			cur = nil
			seenArchive = true
		case strings.HasPrefix(line, "@="):
			if cur != nil {
				cur.rename = line[2:]
			}
		case strings.HasPrefix(line, "@ "):
			name := line[2:]
			cur = &noteEdit{}
			if _, dup := edits[name]; !dup {
				order = append(order, name)
			}
			edits[name] = cur
		default:
			if cur != nil {
				cur.comment = append(cur.comment, line)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, "", false, err
	}
	return edits, order, strings.Join(archiveComment, "\n"), seenArchive, nil
}

// applyNoteEdits folds parsed edits into the directory. Renames that
// would collide or produce unsafe names are skipped with a warning.
// It reports whether any note named a missing entry.
func applyNoteEdits(o *Options, dir *Directory, edits map[string]*noteEdit, order []string) bool {
	names := make(map[string]*Entry, len(dir.Entries))
	for _, e := range dir.Entries {
		names[e.Name] = e
	}

	applied := make(map[string]bool, len(edits))
	for _, e := range dir.Entries {
		ed, ok := edits[e.Name]
		if !ok {
			continue
		}
		applied[e.Name] = true
		e.Comment = strings.Join(ed.comment, "\n")

		if ed.rename != "" && ed.rename != e.Name {
			switch {
			case unsafeName(ed.rename):
				o.warn("zipnote warning: %s: unsafe name, rename skipped\n", ed.rename)
				o.sink().Record(Notice{Err: ErrUnsafePath, Name: ed.rename, Detail: "rename skipped"})
			case names[ed.rename] != nil:
				o.warn("zipnote warning: %s: name already in use, rename skipped\n", ed.rename)
				o.sink().Record(Notice{Err: ErrExists, Name: ed.rename, Detail: "rename skipped"})
			case len(ed.rename) > int(record.Sentinel16):
				o.warn("zipnote warning: %s: name too long, rename skipped\n", e.Name)
				o.sink().Record(Notice{Err: ErrNameTooLong, Name: e.Name, Detail: "rename skipped"})
			default:
				delete(names, e.Name)
				names[ed.rename] = e
				e.Name = ed.rename
				e.changed = true
			}
		}
		if needsUTF8Flag(e.Name, e.Comment) {
			e.Flags |= record.FlagUTF8
		}
	}

	missed := false
	for _, name := range order {
		if !applied[name] {
			o.warn("zipnote warning: name not matched: %s\n", name)
			o.sink().Record(Notice{Err: ErrNoFilesMatched, Name: name, Detail: "note named no entry"})
			missed = true
		}
	}
	return missed
}

// runNoteApply rewrites the archive with the names and comments from
// an edited note stream. Entries absent from the stream keep their
// comments; the archive comment is replaced only when its marker was
// present.
func runNoteApply(o *Options, notes io.Reader) error {
	edits, order, archiveComment, seenArchive, err := parseNotes(notes)
	if err != nil {
		return err
	}

	dir, err := LoadDirectory(o)
	if err != nil {
		return err
	}

	missed := applyNoteEdits(o, dir, edits, order)
	if seenArchive {
		dir.Comment = archiveComment
	}
	if len(dir.Comment) > int(record.Sentinel16) {
		return fmt.Errorf("%w: archive comment is %d bytes", ErrCommentTooLong, len(dir.Comment))
	}

	if err := WriteDirectory(o, dir); err != nil {
		return err
	}
	if missed {
		return ErrNoFilesMatched
	}
	return nil
}
