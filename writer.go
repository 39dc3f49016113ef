// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zipkit/zipkit/internal/record"
	"github.com/zipkit/zipkit/internal/sys"
)

// source is one filesystem path queued for writing, with the name it
// will carry inside the archive.
type source struct {
	path string
	name string
	info fs.FileInfo
}

// storedName derives the archive name for a filesystem path. Absolute
// prefixes are stripped; names that still reach outside the archive
// root are refused.
func storedName(p string, isDir bool) (string, bool) {
	n := filepath.ToSlash(filepath.Clean(p))
	for strings.HasPrefix(n, "/") {
		n = n[1:]
	}
	if n == "" || n == "." || n == ".." || unsafeName(n) {
		return "", false
	}
	if isDir {
		n += "/"
	}
	return n, true
}

func statSource(o *Options, p string) (fs.FileInfo, error) {
	if o.StoreLinks {
		return os.Lstat(p)
	}
	return os.Stat(p)
}

// collectSources expands the option bundle's source paths, recursing
// into directories when asked, filtering stored names through the
// matcher, and dropping duplicates. Missing paths warn and are
// skipped.
func collectSources(o *Options, m *matcher) ([]source, error) {
	seen := make(map[string]bool)
	var out []source

	add := func(path string, info fs.FileInfo) {
		if filepath.Clean(path) == "." {
			// The walk below picks up the children.
			return
		}
		name, ok := storedName(path, info.IsDir())
		if !ok {
			o.warn("zip warning: name not usable: %s\n", path)
			o.sink().Record(Notice{Err: ErrUnsafePath, Name: path, Detail: "name not usable"})
			return
		}
		if seen[name] || !m.match(name) {
			return
		}
		seen[name] = true
		out = append(out, source{path: path, name: name, info: info})
	}

	for _, p := range o.Sources {
		info, err := statSource(o, p)
		if err != nil {
			o.warn("zip warning: name not matched: %s\n", p)
			o.sink().Record(Notice{Err: err, Name: p, Detail: "source not found"})
			continue
		}
		add(p, info)
		if !info.IsDir() || !o.Recurse {
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				o.warn("zip warning: %s: %v\n", path, err)
				return nil
			}
			if path == p {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				o.warn("zip warning: %s: %v\n", path, err)
				return nil
			}
			add(path, fi)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// archiveWriter lays entries into an output stream and remembers their
// central records for finish. Every payload is staged before its local
// header goes out, so sizes are always known and data descriptors are
// never written.
type archiveWriter struct {
	o        *Options
	f        *os.File
	offset   uint64
	list     []*Entry
	stage    *os.File
	buf      []byte
	zip64    bool
	newest   time.Time
	verb     string
	consumed []source
}

func newArchiveWriter(f *os.File, o *Options) *archiveWriter {
	return &archiveWriter{o: o, f: f}
}

func (w *archiveWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.offset += uint64(n)
	return n, err
}

func (w *archiveWriter) iobuf() []byte {
	if w.buf == nil {
		w.buf = make([]byte, ioChunkSize)
	}
	return w.buf
}

// stageFile hands out the shared staging temp, rewound and truncated.
// The file is unlinked at creation so the OS reclaims it when closed.
func (w *archiveWriter) stageFile() (*os.File, error) {
	if w.stage == nil {
		f, err := os.CreateTemp("", "zipkit-stage-")
		if err != nil {
			return nil, err
		}
		os.Remove(f.Name())
		w.stage = f
	}
	if _, err := w.stage.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := w.stage.Truncate(0); err != nil {
		return nil, err
	}
	return w.stage, nil
}

func (w *archiveWriter) close() {
	if w.stage != nil {
		w.stage.Close()
		w.stage = nil
	}
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// announce prints the per-entry progress line.
func (w *archiveWriter) announce(e *Entry) {
	verb := w.verb
	if verb == "" {
		verb = "  adding"
	}
	w.o.progress("%s: %s (%s %.0f%%)\n", verb, e.Name,
		e.Method, savedPercent(e.UncompressedSize, e.CompressedSize))
}

// addWith writes src announced under the given verb.
func (w *archiveWriter) addWith(src source, verb string) error {
	w.verb = verb
	return w.add(src)
}

// add writes one collected source as a fresh entry. Unsupported file
// types warn and are skipped rather than failing the run.
func (w *archiveWriter) add(src source) error {
	mode := src.info.Mode()

	if mode&fs.ModeSymlink != 0 && !w.o.StoreLinks {
		info, err := os.Stat(src.path)
		if err != nil {
			w.o.warn("zip warning: name not matched: %s\n", src.path)
			w.o.sink().Record(Notice{Err: err, Name: src.path, Detail: "broken symlink"})
			return nil
		}
		src.info = info
		mode = info.Mode()
	}

	e := &Entry{
		VersionMadeBy: versionMadeBy(sys.Default),
		Method:        w.o.Method,
		Name:          src.name,
		Offset:        w.offset,
		ExternalAttrs: sys.ExternalAttrs(sys.Default, mode, mode.IsDir()),
	}
	e.SetModified(src.info.ModTime())
	if t := src.info.ModTime(); t.After(w.newest) {
		w.newest = t
	}

	var err error
	switch {
	case mode.IsDir():
		err = w.addDir(e)
	case mode&fs.ModeSymlink != 0:
		err = w.addLink(e, src.path)
	case mode&fs.ModeNamedPipe != 0:
		if !w.o.AllowFIFO {
			w.o.warn("zip warning: %s is a named pipe, skipped\n", src.path)
			w.o.sink().Record(Notice{Err: ErrUsage, Name: src.path, Detail: "named pipe needs fifo opt-in"})
			return nil
		}
		err = w.addStream(e, src.path)
	case !mode.IsRegular():
		w.o.warn("zip warning: %s is not a regular file, skipped\n", src.path)
		w.o.sink().Record(Notice{Err: ErrUsage, Name: src.path, Detail: "not a regular file"})
		return nil
	default:
		f, openErr := os.Open(src.path)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		err = w.addFile(e, f, src.info.Size())
	}
	if err != nil {
		return err
	}
	w.consumed = append(w.consumed, src)
	return nil
}

func (w *archiveWriter) addDir(e *Entry) error {
	e.Method = Store
	e.VersionNeeded = versionNeeded(Store, false, true, false, e.Name)
	e.Flags = entryFlags(Store, 0, false, e.Name, "")
	if err := w.commit(e, nil); err != nil {
		return err
	}
	w.announce(e)
	return nil
}

// addLink stores the link target string as the payload.
func (w *archiveWriter) addLink(e *Entry, path string) error {
	target, err := os.Readlink(path)
	if err != nil {
		return err
	}
	data := []byte(target)

	e.Method = Store
	e.CRC32 = crc32.ChecksumIEEE(data)
	e.UncompressedSize = uint64(len(data))
	e.CompressedSize = uint64(len(data))
	w.applyEncryption(e)
	e.VersionNeeded = versionNeeded(Store, false, false, e.Encrypted(), e.Name)
	e.Flags |= entryFlags(Store, 0, w.o.Encrypt, e.Name, "")

	if err := w.commit(e, strings.NewReader(target)); err != nil {
		return err
	}
	w.announce(e)
	return nil
}

// addStream drains a non-seekable source into a temp so its size is
// known, then writes it like a plain file.
func (w *archiveWriter) addStream(e *Entry, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	raw, err := os.CreateTemp("", "zipkit-fifo-")
	if err != nil {
		return err
	}
	os.Remove(raw.Name())
	defer raw.Close()

	size, err := io.CopyBuffer(raw, in, w.iobuf())
	if err != nil {
		return err
	}
	if _, err := raw.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return w.addFile(e, raw, size)
}

// addFile sizes the payload, keeping the cheaper of the requested
// method and plain storage, then commits the entry.
func (w *archiveWriter) addFile(e *Entry, f io.ReadSeeker, size int64) error {
	method := e.Method
	if size == 0 {
		method = Store
	}
	level := w.o.level()

	var crc uint32
	var comp uint64
	var payload io.Reader

	switch method {
	case Store:
		h := crc32.NewIEEE()
		if _, err := io.CopyBuffer(h, f, w.iobuf()); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		crc = h.Sum32()
		comp = uint64(size)
		payload = io.LimitReader(f, size)

	default:
		stage, err := w.stageFile()
		if err != nil {
			return err
		}
		c, err := newCompressor(method, level)
		if err != nil {
			return err
		}
		h := crc32.NewIEEE()
		cw := &countingWriter{w: stage}
		raw, err := c.Compress(io.TeeReader(f, h), cw)
		if err != nil {
			return err
		}
		if raw != size {
			return fmt.Errorf("%s: read %d bytes, expected %d", e.Name, raw, size)
		}
		crc = h.Sum32()

		if cw.n >= uint64(size) {
			// Compression did not help; keep the raw bytes.
			method = Store
			comp = uint64(size)
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			payload = io.LimitReader(f, size)
		} else {
			comp = cw.n
			if _, err := stage.Seek(0, io.SeekStart); err != nil {
				return err
			}
			payload = io.LimitReader(stage, int64(cw.n))
		}
	}

	e.Method = method
	e.CRC32 = crc
	e.UncompressedSize = uint64(size)
	e.CompressedSize = comp
	w.applyEncryption(e)
	e.VersionNeeded = versionNeeded(method, false, false, e.Encrypted(), e.Name)
	e.Flags |= entryFlags(method, level, w.o.Encrypt, e.Name, "")

	if err := w.commit(e, payload); err != nil {
		return err
	}
	w.announce(e)
	return nil
}

// applyEncryption accounts for the preheader bytes and marks the entry
// encrypted.
func (w *archiveWriter) applyEncryption(e *Entry) {
	if !w.o.Encrypt {
		return
	}
	e.Flags |= record.FlagEncrypted
	e.CompressedSize += cryptoHeaderLen
}

// commit emits the local header and payload and queues the entry for
// the central directory. The local header carries a Zip64 extra only
// when a size field overflows; an offset past the threshold promotes
// through the central record alone.
func (w *archiveWriter) commit(e *Entry, payload io.Reader) error {
	th := w.o.zip64Threshold()
	sizeZip64 := e.CompressedSize >= th || e.UncompressedSize >= th
	if e.needsZip64(th) {
		w.zip64 = true
		if e.VersionNeeded < 45 {
			e.VersionNeeded = 45
		}
	}

	if _, err := w.Write(e.localHeader(sizeZip64).Encode()); err != nil {
		return err
	}

	if payload != nil {
		dest := io.Writer(w)
		if e.Encrypted() {
			cw, err := newZipCryptoWriter(w, w.o.Password, byte(e.CRC32>>24))
			if err != nil {
				return err
			}
			dest = cw
		}
		want := e.CompressedSize
		if e.Encrypted() {
			want -= cryptoHeaderLen
		}
		n, err := io.CopyBuffer(dest, payload, w.iobuf())
		if err != nil {
			return err
		}
		if uint64(n) != want {
			return fmt.Errorf("%s: wrote %d payload bytes, expected %d", e.Name, n, want)
		}
	}

	w.list = append(w.list, e)
	return nil
}

// copyRaw transfers span bytes verbatim from a source archive and
// queues the entry's central record against its new offset.
func (w *archiveWriter) copyRaw(a *archive, e *Entry, start, span int64) error {
	th := w.o.zip64Threshold()
	e.Offset = w.offset
	if e.needsZip64(th) {
		w.zip64 = true
	}
	if t := e.Modified(); t.After(w.newest) {
		w.newest = t
	}
	sr := io.NewSectionReader(a.src, start, span)
	n, err := io.CopyBuffer(w, sr, w.iobuf())
	if err != nil {
		return err
	}
	if n != span {
		return fmt.Errorf("%s: copied %d bytes, expected %d", e.Name, n, span)
	}
	w.list = append(w.list, e)
	return nil
}

// finish emits the central directory and the trailer records. The
// Zip64 pair appears when any entry promoted, the entry count
// overflows 16 bits, or the directory itself sits past the threshold.
func (w *archiveWriter) finish(comment string) error {
	th := w.o.zip64Threshold()
	cdStart := w.offset
	for _, e := range w.list {
		h, err := e.centralHeader(th)
		if err != nil {
			return err
		}
		if _, err := w.Write(h.Encode()); err != nil {
			return err
		}
	}
	cdSize := w.offset - cdStart
	n := uint64(len(w.list))

	if w.zip64 || n >= uint64(record.Sentinel16) || cdStart >= th || cdSize >= th {
		zip64Pos := w.offset
		z := record.Zip64EndOfCentralDir{
			VersionMadeBy: versionMadeBy(sys.Default),
			VersionNeeded: 45,
			EntriesOnDisk: n,
			EntriesTotal:  n,
			DirSize:       cdSize,
			DirOffset:     cdStart,
		}
		if _, err := w.Write(z.Encode()); err != nil {
			return err
		}
		loc := record.Zip64Locator{EndOffset: zip64Pos, TotalDisks: 1}
		if _, err := w.Write(loc.Encode()); err != nil {
			return err
		}
	}

	eocd := record.EndOfCentralDir{Comment: comment}
	if n >= uint64(record.Sentinel16) {
		eocd.EntriesOnDisk = record.Sentinel16
		eocd.EntriesTotal = record.Sentinel16
	} else {
		eocd.EntriesOnDisk = uint16(n)
		eocd.EntriesTotal = uint16(n)
	}
	if cdSize >= th {
		eocd.DirSize = record.Sentinel32
	} else {
		eocd.DirSize = uint32(cdSize)
	}
	if cdStart >= th {
		eocd.DirOffset = record.Sentinel32
	} else {
		eocd.DirOffset = uint32(cdStart)
	}
	if _, err := w.Write(eocd.Encode()); err != nil {
		return err
	}
	return nil
}
