// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/zipkit/zipkit/internal/record"
	"github.com/zipkit/zipkit/internal/sys"
)

// creatorVersion is the ZIP specification version advertised in the
// upper byte of version-made-by. 63 corresponds to spec 6.3.
const creatorVersion uint16 = 63

// Entry is one member of an archive as described by its central
// directory record, with ZIP64 sizes and offsets already resolved to
// their 64-bit values.
type Entry struct {
	VersionMadeBy    uint16
	VersionNeeded    uint16
	Flags            uint16
	Method           Method
	ModTime          uint16 // DOS time
	ModDate          uint16 // DOS date
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	InternalAttrs    uint16
	ExternalAttrs    uint32
	Offset           uint64 // local header offset
	Name             string
	Extra            []byte // central extra field, raw
	Comment          string

	// Rewrite bookkeeping. A deleted entry is dropped from the output
	// archive; a changed entry gets fresh data instead of a raw copy.
	delete  bool
	changed bool
}

// Directory is the parsed central directory of an archive.
type Directory struct {
	Entries []*Entry
	Comment string
}

// entryFromCentral resolves a central directory record into an Entry.
// Any field stored as a ZIP64 sentinel must be present in the 0x0001
// extra block, in declared order, or the record is malformed.
func entryFromCentral(h *record.CentralHeader) (*Entry, error) {
	e := &Entry{
		VersionMadeBy:    h.VersionMadeBy,
		VersionNeeded:    h.VersionNeededToExtract,
		Flags:            h.GeneralPurposeBitFlag,
		Method:           Method(h.CompressionMethod),
		ModTime:          h.LastModFileTime,
		ModDate:          h.LastModFileDate,
		CRC32:            h.CRC32,
		CompressedSize:   uint64(h.CompressedSize),
		UncompressedSize: uint64(h.UncompressedSize),
		InternalAttrs:    h.InternalAttributes,
		ExternalAttrs:    h.ExternalAttributes,
		Offset:           uint64(h.LocalHeaderOffset),
		Name:             h.Filename,
		Extra:            h.ExtraField,
		Comment:          h.Comment,
	}

	needUncompressed := h.UncompressedSize == record.Sentinel32
	needCompressed := h.CompressedSize == record.Sentinel32
	needOffset := h.LocalHeaderOffset == record.Sentinel32
	if !needUncompressed && !needCompressed && !needOffset {
		return e, nil
	}

	data, ok := record.FindExtra(h.ExtraField, record.Zip64ExtraTag)
	if !ok {
		return nil, fmt.Errorf("%w: %s: zip64 sizes missing from extra field", ErrFormat, h.Filename)
	}
	z64, err := record.ParseZip64Extra(data, needUncompressed, needCompressed, needOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, h.Filename, err)
	}
	if needUncompressed {
		e.UncompressedSize = z64.UncompressedSize
	}
	if needCompressed {
		e.CompressedSize = z64.CompressedSize
	}
	if needOffset {
		e.Offset = z64.LocalHeaderOffset
	}
	return e, nil
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool { return strings.HasSuffix(e.Name, "/") }

// Encrypted reports whether the entry data is enciphered.
func (e *Entry) Encrypted() bool { return e.Flags&record.FlagEncrypted != 0 }

// usesDescriptor reports whether a data descriptor trails the entry
// data in the local record stream.
func (e *Entry) usesDescriptor() bool { return e.Flags&record.FlagDescriptor != 0 }

// HostSystem returns the creator system encoded in version-made-by.
func (e *Entry) HostSystem() sys.HostSystem {
	return sys.HostSystem(e.VersionMadeBy >> 8)
}

// Mode maps the external attributes to file mode bits. The zero mode
// means the creator system left nothing usable.
func (e *Entry) Mode() fs.FileMode {
	return sys.EntryMode(e.HostSystem(), e.ExternalAttrs, e.IsDir())
}

// Modified returns the entry timestamp in local time.
func (e *Entry) Modified() time.Time {
	return record.DosToTime(e.ModDate, e.ModTime)
}

// SetModified stores a timestamp, clamped to the DOS representable
// range.
func (e *Entry) SetModified(t time.Time) {
	e.ModDate, e.ModTime = record.TimeToDos(t)
}

// needsZip64 reports whether any central field of the entry reaches
// the promotion threshold.
func (e *Entry) needsZip64(threshold uint64) bool {
	return e.CompressedSize >= threshold ||
		e.UncompressedSize >= threshold ||
		e.Offset >= threshold
}

// needsUTF8Flag reports whether a name or comment needs the language
// encoding flag, i.e. contains bytes outside ASCII.
func needsUTF8Flag(name, comment string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return true
		}
	}
	for i := 0; i < len(comment); i++ {
		if comment[i] >= 0x80 {
			return true
		}
	}
	return false
}

// versionNeeded derives the version-needed-to-extract value for an
// entry about to be written.
func versionNeeded(method Method, zip64, dir, encrypted bool, name string) uint16 {
	switch {
	case method == Bzip2:
		return 46
	case zip64:
		return 45
	case method == Deflate:
		return 20
	case dir || strings.Contains(name, "/"):
		return 20
	case encrypted:
		return 20
	default:
		return 10
	}
}

// versionMadeBy encodes the host system and the creator spec version.
func versionMadeBy(host sys.HostSystem) uint16 {
	return uint16(host)<<8 | creatorVersion
}

// deflateLevelBits maps a deflate level to the general purpose flag
// bits 1-2 advertising the compression strength.
func deflateLevelBits(level int) uint16 {
	switch {
	case level >= 8:
		return 0x0002 // maximum
	case level == 2:
		return 0x0004 // fast
	case level == 1:
		return 0x0006 // super fast
	default:
		return 0x0000
	}
}

// entryFlags composes the general purpose bit flag for a freshly
// written entry.
func entryFlags(method Method, level int, encrypted bool, name, comment string) uint16 {
	var flags uint16
	if encrypted {
		flags |= record.FlagEncrypted
	}
	if method == Deflate {
		flags |= deflateLevelBits(level)
	}
	if needsUTF8Flag(name, comment) {
		flags |= record.FlagUTF8
	}
	return flags
}

// localHeader builds the local file header for the entry. When zip64
// is set the 32-bit size fields hold sentinels and a ZIP64 extra block
// carries both true sizes.
func (e *Entry) localHeader(zip64 bool) *record.LocalHeader {
	h := &record.LocalHeader{
		VersionNeededToExtract: e.VersionNeeded,
		GeneralPurposeBitFlag:  e.Flags,
		CompressionMethod:      uint16(e.Method),
		LastModFileTime:        e.ModTime,
		LastModFileDate:        e.ModDate,
		CRC32:                  e.CRC32,
		CompressedSize:         uint32(min(uint64(math.MaxUint32), e.CompressedSize)),
		UncompressedSize:       uint32(min(uint64(math.MaxUint32), e.UncompressedSize)),
		Filename:               e.Name,
	}
	if zip64 {
		h.CompressedSize = record.Sentinel32
		h.UncompressedSize = record.Sentinel32
		z64 := record.Zip64Extra{
			UncompressedSize:    e.UncompressedSize,
			CompressedSize:      e.CompressedSize,
			HasUncompressedSize: true,
			HasCompressedSize:   true,
		}
		h.ExtraField = z64.Encode()
	}
	return h
}

// centralHeader builds the central directory record for the entry.
// Fields at or past the threshold are stored as sentinels and moved
// into a ZIP64 extra block; other extra blocks carried by the entry
// are preserved.
func (e *Entry) centralHeader(threshold uint64) (*record.CentralHeader, error) {
	if len(e.Name) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %q", ErrNameTooLong, e.Name[:64])
	}
	if len(e.Comment) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: entry %s", ErrCommentTooLong, e.Name)
	}

	h := &record.CentralHeader{
		VersionMadeBy:          e.VersionMadeBy,
		VersionNeededToExtract: e.VersionNeeded,
		GeneralPurposeBitFlag:  e.Flags,
		CompressionMethod:      uint16(e.Method),
		LastModFileTime:        e.ModTime,
		LastModFileDate:        e.ModDate,
		CRC32:                  e.CRC32,
		InternalAttributes:     e.InternalAttrs,
		ExternalAttributes:     e.ExternalAttrs,
		Filename:               e.Name,
		Comment:                e.Comment,
	}

	var z64 record.Zip64Extra
	if e.UncompressedSize >= threshold {
		h.UncompressedSize = record.Sentinel32
		z64.UncompressedSize = e.UncompressedSize
		z64.HasUncompressedSize = true
	} else {
		h.UncompressedSize = uint32(e.UncompressedSize)
	}
	if e.CompressedSize >= threshold {
		h.CompressedSize = record.Sentinel32
		z64.CompressedSize = e.CompressedSize
		z64.HasCompressedSize = true
	} else {
		h.CompressedSize = uint32(e.CompressedSize)
	}
	if e.Offset >= threshold {
		h.LocalHeaderOffset = record.Sentinel32
		z64.LocalHeaderOffset = e.Offset
		z64.HasLocalHeaderOffset = true
	} else {
		h.LocalHeaderOffset = uint32(e.Offset)
	}

	extra := record.StripExtra(e.Extra, record.Zip64ExtraTag)
	if block := z64.Encode(); block != nil {
		extra = append(block, extra...)
		if h.VersionNeededToExtract < 45 {
			h.VersionNeededToExtract = 45
		}
	}
	h.ExtraField = extra

	if len(extra) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: entry %s: extra field too long", ErrFormat, e.Name)
	}
	return h, nil
}
