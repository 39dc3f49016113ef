// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/zipkit/zipkit/internal/record"
	"github.com/zipkit/zipkit/internal/sys"
)

// On-disk signature prefixes, little-endian.
var (
	localSigBytes = []byte{'P', 'K', 3, 4}
	descSigBytes  = []byte{'P', 'K', 7, 8}
)

// maxScanReads caps the recovery pass so a pathological file cannot
// spin forever.
const maxScanReads = 10_000_000

// scanner rebuilds an entry list by walking the archive forward for
// local header signatures, for use when the trailer or the central
// directory is unreadable.
type scanner struct {
	a     *archive
	o     *Options
	probe bool // resolve bit-3 entries through their data descriptors
	reads int
}

// scanDirectory is the recovery counterpart of loadDirectory.
func (a *archive) scanDirectory(o *Options) (*Directory, error) {
	s := &scanner{a: a, o: o, probe: o.Recovery == RecoverFixHard}

	dir := &Directory{}
	pos := int64(0)
	for pos+record.LocalHeaderLen <= a.size {
		chunk := a.ioBuf()
		n, err := s.readAt(chunk, pos)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		idx := bytes.Index(chunk[:n], localSigBytes)
		if idx < 0 {
			if n < len(localSigBytes) {
				break
			}
			pos += int64(n) - int64(len(localSigBytes)) + 1
			continue
		}

		e, next, err := s.recoverEntryAt(pos + int64(idx))
		if err != nil {
			return nil, err
		}
		if e != nil {
			if o.Verbose > 0 {
				o.progress("  found %s (%d bytes) at offset %d\n", e.Name, e.CompressedSize, e.Offset)
			}
			dir.Entries = append(dir.Entries, e)
		}
		pos = next
	}

	if len(dir.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries recovered", ErrFormat)
	}
	return dir, nil
}

// readAt fills dst from pos, clipped to end of file, and charges the
// read against the scan budget.
func (s *scanner) readAt(dst []byte, pos int64) (int, error) {
	s.reads++
	if s.reads > maxScanReads {
		return 0, fmt.Errorf("%w: recovery scan exceeded %d reads", ErrFormat, maxScanReads)
	}
	if pos >= s.a.size {
		return 0, io.EOF
	}
	n := len(dst)
	if int64(n) > s.a.size-pos {
		n = int(s.a.size - pos)
	}
	if _, err := io.ReadFull(io.NewSectionReader(s.a.src, pos, int64(n)), dst[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// recoverEntryAt tries to realize a local header at off. A nil entry
// with a nil error means the candidate was rejected; next is where the
// outer scan resumes either way.
func (s *scanner) recoverEntryAt(off int64) (*Entry, int64, error) {
	resume := off + int64(len(localSigBytes))

	if off+record.LocalHeaderLen > s.a.size {
		return nil, s.a.size, nil
	}
	fixed := make([]byte, record.LocalHeaderLen)
	if _, err := s.readAt(fixed, off); err != nil {
		return nil, 0, err
	}
	nameLen := int64(binary.LittleEndian.Uint16(fixed[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(fixed[28:30]))
	headerLen := record.LocalHeaderLen + nameLen + extraLen
	if off+headerLen > s.a.size {
		return nil, resume, nil
	}

	full := make([]byte, headerLen)
	if _, err := s.readAt(full, off); err != nil {
		return nil, 0, err
	}
	lh, err := record.DecodeLocalHeader(full)
	if err != nil {
		return nil, resume, nil
	}

	comp := uint64(lh.CompressedSize)
	uncomp := uint64(lh.UncompressedSize)
	crc := lh.CRC32
	zip64 := false
	if lh.CompressedSize == record.Sentinel32 || lh.UncompressedSize == record.Sentinel32 {
		data, ok := record.FindExtra(lh.ExtraField, record.Zip64ExtraTag)
		if !ok {
			return nil, resume, nil
		}
		z64, err := record.ParseZip64Extra(data,
			lh.UncompressedSize == record.Sentinel32,
			lh.CompressedSize == record.Sentinel32, false)
		if err != nil {
			return nil, resume, nil
		}
		if lh.UncompressedSize == record.Sentinel32 {
			uncomp = z64.UncompressedSize
		}
		if lh.CompressedSize == record.Sentinel32 {
			comp = z64.CompressedSize
		}
		zip64 = true
	}

	dataOff := off + headerLen
	next := dataOff + int64(comp)

	isDir := strings.HasSuffix(lh.Filename, "/")
	if lh.GeneralPurposeBitFlag&record.FlagDescriptor != 0 {
		switch {
		case s.probe:
			d, descLen, descPos, err := s.probeDescriptor(dataOff, zip64)
			if err != nil {
				return nil, 0, err
			}
			if descPos < 0 {
				s.o.warn("warning: %s: no data descriptor found, entry dropped\n", lh.Filename)
				s.o.sink().Record(Notice{Err: ErrFormat, Name: lh.Filename, Detail: "data descriptor not found"})
				return nil, resume, nil
			}
			comp = d.CompressedSize
			uncomp = d.UncompressedSize
			crc = d.CRC32
			next = descPos + descLen
		case comp == 0 && !isDir:
			s.o.warn("warning: %s: sizes deferred to a data descriptor, entry dropped\n", lh.Filename)
			s.o.sink().Record(Notice{Err: ErrFormat, Name: lh.Filename, Detail: "sizes deferred to data descriptor"})
			return nil, resume, nil
		}
	}
	if next > s.a.size {
		return nil, resume, nil
	}

	attrs := uint32(0)
	if isDir {
		attrs |= sys.DOSDirectory
	}
	e := &Entry{
		VersionMadeBy:    versionMadeBy(sys.Default),
		VersionNeeded:    lh.VersionNeededToExtract,
		Flags:            lh.GeneralPurposeBitFlag,
		Method:           Method(lh.CompressionMethod),
		ModTime:          lh.LastModFileTime,
		ModDate:          lh.LastModFileDate,
		CRC32:            crc,
		CompressedSize:   comp,
		UncompressedSize: uncomp,
		ExternalAttrs:    attrs,
		Offset:           uint64(off),
		Name:             lh.Filename,
		Extra:            lh.ExtraField,
	}
	return e, next, nil
}

// probeDescriptor walks forward from the payload start looking for a
// signed data descriptor whose embedded compressed size equals the
// distance walked. The size check rejects signature bytes that happen
// to occur inside compressed data. Returns descPos -1 when the scan
// reaches end of file without a match.
func (s *scanner) probeDescriptor(start int64, zip64 bool) (record.DataDescriptor, int64, int64, error) {
	var dbuf [record.Zip64DataDescriptorLen]byte

	pos := start
	for pos+4 <= s.a.size {
		chunk := s.a.ioBuf()
		n, err := s.readAt(chunk, pos)
		if err == io.EOF {
			break
		}
		if err != nil {
			return record.DataDescriptor{}, 0, 0, err
		}

		for i := 0; i+4 <= n; {
			j := bytes.Index(chunk[i:n], descSigBytes)
			if j < 0 {
				break
			}
			abs := pos + int64(i) + int64(j)

			m, err := s.readAt(dbuf[:], abs)
			if err != nil && err != io.EOF {
				return record.DataDescriptor{}, 0, 0, err
			}
			d, consumed, derr := record.DecodeDataDescriptor(dbuf[:m], zip64)
			if derr == nil && d.CompressedSize == uint64(abs-start) {
				return d, int64(consumed), abs, nil
			}
			i += j + 1
		}

		if n < len(descSigBytes) {
			break
		}
		pos += int64(n) - int64(len(descSigBytes)) + 1
	}
	return record.DataDescriptor{}, 0, -1, nil
}
