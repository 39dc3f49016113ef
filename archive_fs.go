// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/zipkit/zipkit/internal/sys"
)

var (
	_ fs.FS        = (*archiveFS)(nil)
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

// Archive is an opened archive held for random access reads.
type Archive struct {
	a   *archive
	dir *Directory
	pwd string
}

// Open opens the archive named by the options for reading. The
// password, if set, applies to every encrypted entry read through the
// handle.
func Open(o *Options) (*Archive, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	a, err := openArchive(o.Archive)
	if err != nil {
		return nil, err
	}
	dir, err := loadEntryList(a, o)
	if err != nil {
		a.Close()
		return nil, err
	}
	return &Archive{a: a, dir: dir, pwd: o.Password}, nil
}

func (ar *Archive) Close() error { return ar.a.Close() }

// Entries returns the entry list in central directory order.
func (ar *Archive) Entries() []*Entry { return ar.dir.Entries }

// Comment returns the archive comment.
func (ar *Archive) Comment() string { return ar.dir.Comment }

// Reader opens one entry's decompressed payload. CRC and length are
// verified when the reader is closed.
func (ar *Archive) Reader(e *Entry) (io.ReadCloser, error) {
	return ar.a.openEntry(e, ar.pwd)
}

// FS adapts the archive to the io/fs interfaces.
func (ar *Archive) FS() fs.FS { return &archiveFS{ar: ar} }

type archiveFS struct {
	ar *Archive
}

// Open implements fs.FS over the archive's entries.
func (z *archiveFS) Open(name string) (fs.File, error) {
	e, err := z.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if e.IsDir() {
		return &fsDir{entry: e, z: z}, nil
	}
	rc, err := z.ar.Reader(e)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{entry: e, rc: rc}, nil
}

// Stat implements fs.StatFS.
func (z *archiveFS) Stat(name string) (fs.FileInfo, error) {
	e, err := z.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return entryInfo{e}, nil
}

// ReadDir implements fs.ReadDirFS.
func (z *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := z.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// lookup resolves a slash path to an entry, synthesizing directories
// that exist only as name prefixes.
func (z *archiveFS) lookup(name string) (*Entry, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if name == "." {
		return syntheticDir("./"), nil
	}
	for _, e := range z.ar.dir.Entries {
		if e.Name == name || e.Name == name+"/" {
			return e, nil
		}
	}
	prefix := name + "/"
	for _, e := range z.ar.dir.Entries {
		if strings.HasPrefix(e.Name, prefix) {
			return syntheticDir(prefix), nil
		}
	}
	return nil, fs.ErrNotExist
}

// syntheticDir makes a directory entry for a path that appears only as
// a prefix of stored names. The timestamp is left at the DOS epoch so
// repeated lookups agree.
func syntheticDir(name string) *Entry {
	return &Entry{
		Name:          name,
		VersionMadeBy: versionMadeBy(sys.Default),
		ExternalAttrs: sys.ExternalAttrs(sys.Default, fs.ModeDir|0755, true),
	}
}

// fsFile wraps an open payload to satisfy fs.File.
type fsFile struct {
	entry *Entry
	rc    io.ReadCloser
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return entryInfo{f.entry}, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.rc.Read(b) }
func (f *fsFile) Close() error               { return f.rc.Close() }

// fsDir wraps a directory entry to satisfy fs.ReadDirFile.
type fsDir struct {
	entry  *Entry
	z      *archiveFS
	list   []fs.DirEntry
	listed bool
	pos    int
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return entryInfo{d.entry}, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.entry.Name, Err: fs.ErrInvalid}
}

// ReadDir returns up to n of the directory's remaining children, in
// the usual fs.ReadDirFile chunked style.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		d.list = d.children()
		d.listed = true
	}
	remain := d.list[d.pos:]
	if n <= 0 {
		d.pos = len(d.list)
		return remain, nil
	}
	if len(remain) == 0 {
		return nil, io.EOF
	}
	if len(remain) > n {
		remain = remain[:n]
	}
	d.pos += len(remain)
	return remain, nil
}

// children collects the directory's immediate children, collapsing
// deeper names into synthesized child directories.
func (d *fsDir) children() []fs.DirEntry {
	dirPath := strings.TrimSuffix(d.entry.Name, "/")
	if dirPath == "." {
		dirPath = ""
	}
	if dirPath != "" {
		dirPath += "/"
	}

	direct := make(map[string]*Entry)
	var order []string
	for _, e := range d.z.ar.dir.Entries {
		if !strings.HasPrefix(e.Name, dirPath) {
			continue
		}
		rel := strings.TrimPrefix(e.Name, dirPath)
		rel = strings.TrimSuffix(rel, "/")
		if rel == "" {
			continue
		}
		child, _, nested := strings.Cut(rel, "/")
		if _, ok := direct[child]; !ok {
			direct[child] = nil
			order = append(order, child)
		}
		if !nested {
			direct[child] = e
		}
	}

	entries := make([]fs.DirEntry, 0, len(order))
	for _, child := range order {
		e := direct[child]
		if e == nil {
			e = syntheticDir(dirPath + child + "/")
		}
		entries = append(entries, fsDirEntry{name: child, entry: e})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

// entryInfo adapts an entry to fs.FileInfo. Entries whose creator left
// no usable mode bits get the extraction defaults.
type entryInfo struct{ e *Entry }

func (i entryInfo) Name() string {
	return path.Base(strings.TrimSuffix(i.e.Name, "/"))
}

func (i entryInfo) Size() int64 { return int64(i.e.UncompressedSize) }

func (i entryInfo) Mode() fs.FileMode {
	if m := i.e.Mode(); m != 0 {
		return m
	}
	if i.e.IsDir() {
		return fs.ModeDir | 0755
	}
	return 0644
}

func (i entryInfo) ModTime() time.Time { return i.e.Modified() }
func (i entryInfo) IsDir() bool        { return i.e.IsDir() }
func (i entryInfo) Sys() interface{}   { return nil }

type fsDirEntry struct {
	name  string
	entry *Entry
}

func (e fsDirEntry) Name() string               { return e.name }
func (e fsDirEntry) IsDir() bool                { return e.entry.IsDir() }
func (e fsDirEntry) Type() fs.FileMode          { return entryInfo{e.entry}.Mode().Type() }
func (e fsDirEntry) Info() (fs.FileInfo, error) { return entryInfo{e.entry}, nil }
