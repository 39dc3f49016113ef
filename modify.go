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
	"path/filepath"
	"sort"
	"strings"

	"github.com/zipkit/zipkit/internal/record"
)

func modifyVerb(op ModifyOp) string {
	if op == OpFreshen {
		return "freshening"
	}
	return "updating"
}

// sourceNewer compares at DOS timestamp resolution, so a source only
// counts as newer when it beats the entry by a full two-second tick.
func sourceNewer(s source, e *Entry) bool {
	d, t := record.TimeToDos(s.info.ModTime())
	if d != e.ModDate {
		return d > e.ModDate
	}
	return t > e.ModTime
}

func syncDiffers(s source, e *Entry) bool {
	if s.info.IsDir() {
		return false
	}
	return uint64(s.info.Size()) != e.UncompressedSize
}

// entrySources derives candidate files from the archive itself. Freshen
// and filesync fall back to this when the caller names no paths, so an
// entry with no file on disk is simply not a candidate rather than a
// missing source.
func entrySources(o *Options, dir *Directory, m *matcher) []source {
	var srcs []source
	for _, e := range dir.Entries {
		if strings.HasSuffix(e.Name, "/") || !m.match(e.Name) {
			continue
		}
		p := filepath.FromSlash(e.Name)
		info, err := statSource(o, p)
		if err != nil || info.IsDir() {
			continue
		}
		srcs = append(srcs, source{path: p, name: e.Name, info: info})
	}
	return srcs
}

// runModify rewrites the archive according to the selected operation.
// The output is built in a sibling temp file and renamed over the
// target only after it is complete, so a failed run leaves the
// original archive untouched.
func runModify(o *Options) error {
	if err := o.validate(); err != nil {
		return err
	}
	m, err := newMatcher(o)
	if err != nil {
		return err
	}

	var a *archive
	dir := &Directory{}

	a, err = openArchive(o.Archive)
	switch {
	case err == nil:
		defer a.Close()
		if dir, err = loadEntryList(a, o); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		if o.Op == OpDelete || o.Op == OpFreshen {
			return fmt.Errorf("%s: %w", o.Archive, err)
		}
		a = nil
		o.warn("\tzip warning: %s not found or empty\n", o.Archive)
	default:
		return err
	}

	byName := make(map[string]*Entry, len(dir.Entries))
	for _, e := range dir.Entries {
		byName[e.Name] = e
	}

	replace := make(map[string]source)
	var added []source
	deletes := 0

	if o.Op == OpDelete {
		if len(o.Include) == 0 {
			return fmt.Errorf("%w: delete requires name patterns", ErrUsage)
		}
		for _, e := range dir.Entries {
			if m.match(e.Name) {
				e.delete = true
				deletes++
			}
		}
	} else {
		var srcs []source
		if len(o.Sources) == 0 && (o.Op == OpFreshen || o.Op == OpFilesync) {
			srcs = entrySources(o, dir, m)
		} else if srcs, err = collectSources(o, m); err != nil {
			return err
		}
		for _, s := range srcs {
			e, ok := byName[s.name]
			if !ok {
				if o.Op != OpFreshen {
					added = append(added, s)
				}
				continue
			}
			switch o.Op {
			case OpUpdate, OpFreshen:
				if sourceNewer(s, e) {
					replace[s.name] = s
				}
			case OpFilesync:
				if sourceNewer(s, e) || syncDiffers(s, e) {
					replace[s.name] = s
				}
			default:
				replace[s.name] = s
			}
		}
		if o.Op == OpFilesync && a != nil {
			for _, e := range dir.Entries {
				if _, ok := replace[e.Name]; ok {
					continue
				}
				p := filepath.FromSlash(strings.TrimSuffix(e.Name, "/"))
				if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
					e.delete = true
					deletes++
				}
			}
		}
	}

	work := len(added) + len(replace) + deletes
	if o.SetComment || o.Recovery != RecoverNone {
		work++
	}
	if work == 0 {
		if err := m.reportMisses(o); err != nil {
			return err
		}
		o.warn("zip error: Nothing to do! (%s)\n", o.Archive)
		return fmt.Errorf("%w: nothing to do", ErrNoFilesMatched)
	}

	comment := dir.Comment
	if o.SetComment {
		comment = o.Comment
	}

	w, err := commitArchive(o, a, dir, replace, added, comment)
	if err != nil {
		return err
	}
	if o.Move {
		removeSources(o, w.consumed)
	}
	return m.reportMisses(o)
}

// commitArchive writes the planned output next to the target and
// renames it into place. The temp file is removed on any failure,
// including a failed post-write test hook.
func commitArchive(o *Options, a *archive, dir *Directory, replace map[string]source, added []source, comment string) (*archiveWriter, error) {
	tmp, err := os.CreateTemp(filepath.Dir(o.Archive), "zi")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := newArchiveWriter(tmp, o)
	defer w.close()

	verb := modifyVerb(o.Op)
	for _, e := range dir.Entries {
		if e.delete {
			o.progress("deleting: %s\n", e.Name)
			continue
		}
		if s, ok := replace[e.Name]; ok {
			if err := w.addWith(s, verb); err != nil {
				return nil, err
			}
			continue
		}
		if err := w.copyEntry(a, e); err != nil {
			return nil, err
		}
	}
	w.verb = "  adding"
	for _, s := range added {
		if err := w.add(s); err != nil {
			return nil, err
		}
	}
	if err := w.finish(comment); err != nil {
		return nil, err
	}

	if err := tmp.Sync(); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	if o.TestHook != nil {
		if terr := o.TestHook(o.TestCommand, tmpPath); terr != nil {
			return nil, fmt.Errorf("%w: archive test failed: %v", ErrIntegrity, terr)
		}
	}

	// Release the source before the rename replaces it.
	if a != nil {
		a.Close()
	}
	if err := os.Rename(tmpPath, o.Archive); err != nil {
		return nil, err
	}
	committed = true

	if o.ArchiveTime && !w.newest.IsZero() {
		if err := os.Chtimes(o.Archive, w.newest, w.newest); err != nil {
			o.warn("zip warning: could not set archive time: %v\n", err)
		}
	}
	return w, nil
}

// copyEntry carries an existing entry into the output. An unchanged
// entry moves as raw bytes, local header and trailing descriptor
// included. A renamed entry gets a rebuilt local header with the
// descriptor flag cleared, since its sizes are known from the central
// directory.
func (w *archiveWriter) copyEntry(a *archive, e *Entry) error {
	lh, dataOff, err := a.readLocalHeader(e)
	if err != nil {
		return err
	}
	dataEnd := dataOff + int64(e.CompressedSize)
	if dataEnd > a.size {
		return fmt.Errorf("%w: %s: payload extends past end of archive", ErrFormat, e.Name)
	}

	if !e.changed {
		span := dataEnd - int64(e.Offset)
		if e.usesDescriptor() {
			span += a.descriptorLen(e, lh, dataEnd)
		}
		return w.copyRaw(a, e, int64(e.Offset), span)
	}

	th := w.o.zip64Threshold()
	e.Flags &^= record.FlagDescriptor
	e.Offset = w.offset
	sizeZip64 := e.CompressedSize >= th || e.UncompressedSize >= th
	if e.needsZip64(th) {
		w.zip64 = true
		if e.VersionNeeded < 45 {
			e.VersionNeeded = 45
		}
	}
	if t := e.Modified(); t.After(w.newest) {
		w.newest = t
	}
	if _, err := w.Write(e.localHeader(sizeZip64).Encode()); err != nil {
		return err
	}
	sr := io.NewSectionReader(a.src, dataOff, int64(e.CompressedSize))
	n, err := io.CopyBuffer(w, sr, w.iobuf())
	if err != nil {
		return err
	}
	if uint64(n) != e.CompressedSize {
		return fmt.Errorf("%s: copied %d payload bytes, expected %d", e.Name, n, e.CompressedSize)
	}
	w.list = append(w.list, e)
	return nil
}

// descriptorLen sizes the data descriptor trailing an entry, probing
// both widths and demanding the embedded compressed size match the
// central record. Zero means no recognizable descriptor.
func (a *archive) descriptorLen(e *Entry, lh *record.LocalHeader, dataEnd int64) int64 {
	zip64 := false
	if _, ok := record.FindExtra(lh.ExtraField, record.Zip64ExtraTag); ok {
		zip64 = true
	}
	var buf [record.Zip64DataDescriptorLen]byte
	n, _ := a.src.ReadAt(buf[:], dataEnd)
	for _, wide := range []bool{zip64, !zip64} {
		d, consumed, err := record.DecodeDataDescriptor(buf[:n], wide)
		if err == nil && d.CompressedSize == e.CompressedSize {
			return int64(consumed)
		}
	}
	return 0
}

// removeSources unlinks files that were written into the archive.
// Directories go last, deepest first, and only when empty.
func removeSources(o *Options, srcs []source) {
	var dirs []string
	for _, s := range srcs {
		if s.info.IsDir() {
			dirs = append(dirs, s.path)
			continue
		}
		if err := os.Remove(s.path); err != nil {
			o.warn("zip warning: could not remove %s: %v\n", s.path, err)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		os.Remove(d)
	}
}
