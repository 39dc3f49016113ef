// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"os"

	"github.com/zipkit/zipkit/internal/record"
)

// ioChunkSize is the unit for streaming copies. Buffers are allocated
// on first use and reused for the rest of the operation.
const ioChunkSize = 64 * 1024

// archive is one open, seekable archive file. It owns the trailer
// state resolved by readTrailer and a lazily allocated I/O buffer.
type archive struct {
	f    *os.File // nil when reading from a caller-supplied ReaderAt
	src  io.ReaderAt
	size int64

	eocdPos int64
	eocd    record.EndOfCentralDir
	zip64   *record.Zip64EndOfCentralDir

	entries   uint64
	dirOffset uint64
	dirSize   uint64
	comment   string

	buf []byte
}

// openArchive opens the file at path for reading. The trailer is not
// touched until loadDirectory or scanDirectory runs.
func openArchive(path string) (*archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a := newArchive(f, st.Size())
	a.f = f
	return a, nil
}

// newArchive wraps an arbitrary seekable source.
func newArchive(src io.ReaderAt, size int64) *archive {
	return &archive{src: src, size: size}
}

func (a *archive) Close() error {
	if a.f == nil {
		return nil
	}
	return a.f.Close()
}

// ioBuf returns the shared streaming buffer.
func (a *archive) ioBuf() []byte {
	if a.buf == nil {
		a.buf = make([]byte, ioChunkSize)
	}
	return a.buf
}

// loadDirectory locates the trailer and parses the central directory.
func (a *archive) loadDirectory() (*Directory, error) {
	if err := a.readTrailer(); err != nil {
		return nil, err
	}
	return a.readDirectory()
}

// readTrailer scans the trailing comment window backward for the end
// of central directory record. A candidate signature only wins when
// its declared comment runs exactly to end of file, so signature bytes
// inside a comment cannot shadow the true trailer. Sentinel fields are
// then resolved through the Zip64 trailer pair.
func (a *archive) readTrailer() error {
	if a.size < record.EndOfCentralDirLen {
		return fmt.Errorf("%w: file too small for an archive trailer", ErrFormat)
	}

	window := int64(math.MaxUint16) + record.EndOfCentralDirLen
	if window > a.size {
		window = a.size
	}
	windowStart := a.size - window

	buf := make([]byte, window)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, windowStart, window), buf); err != nil {
		return fmt.Errorf("read archive trailer: %w", err)
	}

	for p := window - record.EndOfCentralDirLen; p >= 0; p-- {
		if binary.LittleEndian.Uint32(buf[p:p+4]) != record.EndOfCentralDirSignature {
			continue
		}
		eocd, err := record.DecodeEndOfCentralDir(buf[p:])
		if err != nil {
			continue
		}
		if int64(eocd.CommentLength) != window-p-record.EndOfCentralDirLen {
			continue
		}
		a.eocd = eocd
		a.eocdPos = windowStart + p
		return a.resolveTrailer()
	}

	return fmt.Errorf("%w: end of central directory signature not found", ErrFormat)
}

// resolveTrailer lifts the classic trailer fields into 64-bit state,
// following the Zip64 trailer when any field is sentineled.
func (a *archive) resolveTrailer() error {
	e := a.eocd
	if e.DiskNumber != 0 && e.DiskNumber != record.Sentinel16 ||
		e.DirStartDiskNumber != 0 && e.DirStartDiskNumber != record.Sentinel16 {
		return fmt.Errorf("%w: multi-disk archive", ErrNotImplemented)
	}

	a.entries = uint64(e.EntriesTotal)
	a.dirSize = uint64(e.DirSize)
	a.dirOffset = uint64(e.DirOffset)
	a.comment = e.Comment

	if e.EntriesTotal == record.Sentinel16 || e.DirSize == record.Sentinel32 || e.DirOffset == record.Sentinel32 {
		if err := a.readZip64Trailer(); err != nil {
			return err
		}
	}

	if a.dirOffset+a.dirSize > uint64(a.eocdPos) {
		return fmt.Errorf("%w: central directory extends past its trailer", ErrFormat)
	}
	return nil
}

// readZip64Trailer reads the locator immediately preceding the EOCD
// and follows it to the Zip64 end of central directory record.
func (a *archive) readZip64Trailer() error {
	locPos := a.eocdPos - record.Zip64LocatorLen
	if locPos < 0 {
		return fmt.Errorf("%w: no room for a zip64 locator", ErrFormat)
	}

	buf := make([]byte, record.Zip64LocatorLen)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, locPos, record.Zip64LocatorLen), buf); err != nil {
		return fmt.Errorf("read zip64 locator: %w", err)
	}
	loc, err := record.DecodeZip64Locator(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if loc.TotalDisks > 1 {
		return fmt.Errorf("%w: multi-disk archive", ErrNotImplemented)
	}
	if loc.EndOffset+record.Zip64EndOfCentralDirLen > uint64(locPos) {
		return fmt.Errorf("%w: zip64 trailer offset out of range", ErrFormat)
	}

	buf = make([]byte, record.Zip64EndOfCentralDirLen)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, int64(loc.EndOffset), record.Zip64EndOfCentralDirLen), buf); err != nil {
		return fmt.Errorf("read zip64 trailer: %w", err)
	}
	z, err := record.DecodeZip64EndOfCentralDir(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}

	a.zip64 = &z
	a.entries = z.EntriesTotal
	a.dirSize = z.DirSize
	a.dirOffset = z.DirOffset
	return nil
}

// readDirectory parses the resolved central directory into entries.
func (a *archive) readDirectory() (*Directory, error) {
	if a.entries > uint64(a.size)/record.CentralHeaderLen {
		return nil, fmt.Errorf("%w: %d directory entries cannot fit a %d byte file", ErrFormat, a.entries, a.size)
	}

	buf := make([]byte, a.dirSize)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, int64(a.dirOffset), int64(a.dirSize)), buf); err != nil {
		return nil, fmt.Errorf("read central directory: %w", err)
	}

	dir := &Directory{
		Entries: make([]*Entry, 0, a.entries),
		Comment: a.comment,
	}
	off := 0
	for i := uint64(0); i < a.entries; i++ {
		h, err := record.DecodeCentralHeader(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: central record %d: %v", ErrFormat, i, err)
		}
		e, err := entryFromCentral(&h)
		if err != nil {
			return nil, err
		}
		dir.Entries = append(dir.Entries, e)
		off += record.CentralHeaderLen + len(h.Filename) + len(h.ExtraField) + len(h.Comment)
	}
	return dir, nil
}

// readLocalHeader reads and validates the local header an entry's
// central record points at, returning it along with the absolute
// offset of the entry payload.
func (a *archive) readLocalHeader(e *Entry) (*record.LocalHeader, int64, error) {
	if e.Offset+record.LocalHeaderLen > uint64(a.size) {
		return nil, 0, fmt.Errorf("%w: %s: local header offset out of range", ErrFormat, e.Name)
	}

	fixed := make([]byte, record.LocalHeaderLen)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, int64(e.Offset), record.LocalHeaderLen), fixed); err != nil {
		return nil, 0, fmt.Errorf("read local header: %w", err)
	}
	if binary.LittleEndian.Uint32(fixed[0:4]) != record.LocalHeaderSignature {
		return nil, 0, fmt.Errorf("%w: %s: no local header at offset %d", ErrFormat, e.Name, e.Offset)
	}

	nameLen := int64(binary.LittleEndian.Uint16(fixed[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(fixed[28:30]))
	full := make([]byte, record.LocalHeaderLen+nameLen+extraLen)
	if _, err := io.ReadFull(io.NewSectionReader(a.src, int64(e.Offset), int64(len(full))), full); err != nil {
		return nil, 0, fmt.Errorf("read local header: %w", err)
	}
	lh, err := record.DecodeLocalHeader(full)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrFormat, e.Name, err)
	}

	dataOff := int64(e.Offset) + record.LocalHeaderLen + nameLen + extraLen
	return &lh, dataOff, nil
}

// openEntry returns a reader over the entry's decoded payload. The
// reader verifies CRC-32 and the byte count on Close. The central
// directory sizes are authoritative; the compressed budget bounds the
// decoder so trailing archive bytes are never consumed.
func (a *archive) openEntry(e *Entry, password string) (io.ReadCloser, error) {
	dec, err := newDecompressor(e.Method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}

	_, dataOff, err := a.readLocalHeader(e)
	if err != nil {
		return nil, err
	}
	if dataOff+int64(e.CompressedSize) > a.size {
		return nil, fmt.Errorf("%w: %s: payload extends past end of file", ErrFormat, e.Name)
	}

	var r io.Reader = io.NewSectionReader(a.src, dataOff, int64(e.CompressedSize))
	if e.Encrypted() {
		if password == "" {
			return nil, fmt.Errorf("%w: %s", ErrPasswordRequired, e.Name)
		}
		r, err = newZipCryptoReader(r, password, e.Flags, e.CRC32, e.ModTime)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
	}

	rc, err := dec.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	return &checksumReader{
		rc:   rc,
		hash: crc32.NewIEEE(),
		want: e.CRC32,
		size: e.UncompressedSize,
	}, nil
}

// checksumReader verifies the CRC-32 and byte count of a decoded
// stream against the central directory values on Close.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
	size uint64
	read uint64
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if n > 0 {
		cr.read += uint64(n)
		if cr.read > cr.size {
			return n, fmt.Errorf("%w: decoded stream exceeds declared size %d", ErrIntegrity, cr.size)
		}
		cr.hash.Write(p[:n])
	}
	if err != nil && errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: compressed data truncated", ErrFormat)
	}
	return n, err
}

func (cr *checksumReader) Close() error {
	defer cr.rc.Close()

	if cr.read != cr.size {
		return fmt.Errorf("%w: decoded %d bytes, declared %d", ErrIntegrity, cr.read, cr.size)
	}
	if got := cr.hash.Sum32(); got != cr.want {
		return fmt.Errorf("%w: crc %08x, declared %08x", ErrIntegrity, got, cr.want)
	}
	return nil
}
