// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record implements the fixed-layout PKWARE ZIP records: local
// and central file headers, the end-of-central-directory trailer, the
// Zip64 trailer pair, and the data descriptor. All integers are
// little-endian. The codecs work over byte buffers and perform no I/O.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Each record type is identified by a header signature. Signature values
// begin with the two byte constant marker 0x4b50, the characters "PK".
const (
	LocalHeaderSignature          uint32 = 0x04034b50
	CentralHeaderSignature        uint32 = 0x02014b50
	EndOfCentralDirSignature      uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature uint32 = 0x06064b50
	Zip64LocatorSignature         uint32 = 0x07064b50
	DataDescriptorSignature       uint32 = 0x08074b50
)

// Fixed record lengths in bytes, signatures included.
const (
	LocalHeaderLen          = 30
	CentralHeaderLen        = 46
	EndOfCentralDirLen      = 22
	Zip64EndOfCentralDirLen = 56
	Zip64LocatorLen         = 20
	DataDescriptorLen       = 16 // 32-bit sizes, signature included
	Zip64DataDescriptorLen  = 24 // 64-bit sizes, signature included
)

// Sentinel values signaling "the real value lives in the Zip64 extra".
const (
	Sentinel16 uint16 = 0xffff
	Sentinel32 uint32 = 0xffffffff
)

// Zip64ExtraTag identifies the extra-field block carrying 64-bit sizes
// and the local-header offset.
const Zip64ExtraTag uint16 = 0x0001

// General purpose bit flag bits used by this implementation.
const (
	FlagEncrypted  uint16 = 0x0001 // payload is ZipCrypto encrypted
	FlagDescriptor uint16 = 0x0008 // sizes and CRC deferred to a data descriptor
	FlagUTF8       uint16 = 0x0800 // name and comment are UTF-8
)

var (
	// ErrSignature reports a missing or wrong record signature.
	ErrSignature = errors.New("signature mismatch")

	// ErrTruncated reports a buffer too short for the declared layout.
	ErrTruncated = errors.New("record truncated")
)

// LocalHeader is the record preceding each entry's payload.
type LocalHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             []byte
}

// DecodeLocalHeader decodes a local header starting at buf[0]. The
// buffer must extend through the filename and extra field declared by
// the length fields.
func DecodeLocalHeader(buf []byte) (LocalHeader, error) {
	if len(buf) < LocalHeaderLen {
		return LocalHeader{}, fmt.Errorf("local header: %w", ErrTruncated)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != LocalHeaderSignature {
		return LocalHeader{}, fmt.Errorf("local header: %w", ErrSignature)
	}
	h := LocalHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[26:28]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[28:30]),
	}
	nameEnd := LocalHeaderLen + int(h.FilenameLength)
	extraEnd := nameEnd + int(h.ExtraFieldLength)
	if len(buf) < extraEnd {
		return LocalHeader{}, fmt.Errorf("local header: %w", ErrTruncated)
	}
	h.Filename = string(buf[LocalHeaderLen:nameEnd])
	if h.ExtraFieldLength > 0 {
		h.ExtraField = buf[nameEnd:extraEnd]
	}
	return h, nil
}

func (h LocalHeader) Encode() []byte {
	buf := make([]byte, LocalHeaderLen+len(h.Filename)+len(h.ExtraField))

	binary.LittleEndian.PutUint32(buf[0:4], LocalHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.ExtraField)))

	copy(buf[LocalHeaderLen:], h.Filename)
	copy(buf[LocalHeaderLen+len(h.Filename):], h.ExtraField)

	return buf
}

// CentralHeader is one record of the central directory.
type CentralHeader struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	CommentLength          uint16
	DiskNumberStart        uint16
	InternalAttributes     uint16
	ExternalAttributes     uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             []byte
	Comment                string
}

// DecodeCentralHeader decodes a central record starting at buf[0]. The
// buffer must extend through the filename, extra field and comment
// declared by the length fields.
func DecodeCentralHeader(buf []byte) (CentralHeader, error) {
	if len(buf) < CentralHeaderLen {
		return CentralHeader{}, fmt.Errorf("central header: %w", ErrTruncated)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != CentralHeaderSignature {
		return CentralHeader{}, fmt.Errorf("central header: %w", ErrSignature)
	}
	h := CentralHeader{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[28:30]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[30:32]),
		CommentLength:          binary.LittleEndian.Uint16(buf[32:34]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[34:36]),
		InternalAttributes:     binary.LittleEndian.Uint16(buf[36:38]),
		ExternalAttributes:     binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[42:46]),
	}
	nameEnd := CentralHeaderLen + int(h.FilenameLength)
	extraEnd := nameEnd + int(h.ExtraFieldLength)
	commentEnd := extraEnd + int(h.CommentLength)
	if len(buf) < commentEnd {
		return CentralHeader{}, fmt.Errorf("central header: %w", ErrTruncated)
	}
	h.Filename = string(buf[CentralHeaderLen:nameEnd])
	if h.ExtraFieldLength > 0 {
		h.ExtraField = buf[nameEnd:extraEnd]
	}
	h.Comment = string(buf[extraEnd:commentEnd])
	return h, nil
}

func (h CentralHeader) Encode() []byte {
	buf := make([]byte, CentralHeaderLen+len(h.Filename)+len(h.ExtraField)+len(h.Comment))

	binary.LittleEndian.PutUint32(buf[0:4], CentralHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(h.ExtraField)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(h.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], h.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], h.InternalAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], h.ExternalAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], h.LocalHeaderOffset)

	offset := CentralHeaderLen
	offset += copy(buf[offset:], h.Filename)
	offset += copy(buf[offset:], h.ExtraField)
	copy(buf[offset:], h.Comment)

	return buf
}

// EndOfCentralDir is the 22-byte archive trailer plus its comment.
type EndOfCentralDir struct {
	DiskNumber         uint16
	DirStartDiskNumber uint16
	EntriesOnDisk      uint16
	EntriesTotal       uint16
	DirSize            uint32
	DirOffset          uint32
	CommentLength      uint16
	Comment            string
}

// DecodeEndOfCentralDir decodes a trailer starting at buf[0]. The buffer
// must extend through the declared comment, which for a well-formed
// archive means through end of file.
func DecodeEndOfCentralDir(buf []byte) (EndOfCentralDir, error) {
	if len(buf) < EndOfCentralDirLen {
		return EndOfCentralDir{}, fmt.Errorf("end of central directory: %w", ErrTruncated)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != EndOfCentralDirSignature {
		return EndOfCentralDir{}, fmt.Errorf("end of central directory: %w", ErrSignature)
	}
	e := EndOfCentralDir{
		DiskNumber:         binary.LittleEndian.Uint16(buf[4:6]),
		DirStartDiskNumber: binary.LittleEndian.Uint16(buf[6:8]),
		EntriesOnDisk:      binary.LittleEndian.Uint16(buf[8:10]),
		EntriesTotal:       binary.LittleEndian.Uint16(buf[10:12]),
		DirSize:            binary.LittleEndian.Uint32(buf[12:16]),
		DirOffset:          binary.LittleEndian.Uint32(buf[16:20]),
		CommentLength:      binary.LittleEndian.Uint16(buf[20:22]),
	}
	if len(buf) < EndOfCentralDirLen+int(e.CommentLength) {
		return EndOfCentralDir{}, fmt.Errorf("end of central directory comment: %w", ErrTruncated)
	}
	e.Comment = string(buf[EndOfCentralDirLen : EndOfCentralDirLen+int(e.CommentLength)])
	return e, nil
}

func (e EndOfCentralDir) Encode() []byte {
	buf := make([]byte, EndOfCentralDirLen+len(e.Comment))

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], e.DiskNumber)
	binary.LittleEndian.PutUint16(buf[6:8], e.DirStartDiskNumber)
	binary.LittleEndian.PutUint16(buf[8:10], e.EntriesOnDisk)
	binary.LittleEndian.PutUint16(buf[10:12], e.EntriesTotal)
	binary.LittleEndian.PutUint32(buf[12:16], e.DirSize)
	binary.LittleEndian.PutUint32(buf[16:20], e.DirOffset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(e.Comment)))

	copy(buf[EndOfCentralDirLen:], e.Comment)

	return buf
}

// Zip64EndOfCentralDir is the 56-byte Zip64 trailer record.
type Zip64EndOfCentralDir struct {
	RecordSize         uint64
	VersionMadeBy      uint16
	VersionNeeded      uint16
	DiskNumber         uint32
	DirStartDiskNumber uint32
	EntriesOnDisk      uint64
	EntriesTotal       uint64
	DirSize            uint64
	DirOffset          uint64
}

// DecodeZip64EndOfCentralDir decodes the fixed portion of a Zip64
// trailer. A record size above 44 indicates extensible data, which is
// ignored.
func DecodeZip64EndOfCentralDir(buf []byte) (Zip64EndOfCentralDir, error) {
	if len(buf) < Zip64EndOfCentralDirLen {
		return Zip64EndOfCentralDir{}, fmt.Errorf("zip64 end of central directory: %w", ErrTruncated)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Zip64EndOfCentralDirSignature {
		return Zip64EndOfCentralDir{}, fmt.Errorf("zip64 end of central directory: %w", ErrSignature)
	}
	return Zip64EndOfCentralDir{
		RecordSize:         binary.LittleEndian.Uint64(buf[4:12]),
		VersionMadeBy:      binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeeded:      binary.LittleEndian.Uint16(buf[14:16]),
		DiskNumber:         binary.LittleEndian.Uint32(buf[16:20]),
		DirStartDiskNumber: binary.LittleEndian.Uint32(buf[20:24]),
		EntriesOnDisk:      binary.LittleEndian.Uint64(buf[24:32]),
		EntriesTotal:       binary.LittleEndian.Uint64(buf[32:40]),
		DirSize:            binary.LittleEndian.Uint64(buf[40:48]),
		DirOffset:          binary.LittleEndian.Uint64(buf[48:56]),
	}, nil
}

func (e Zip64EndOfCentralDir) Encode() []byte {
	buf := make([]byte, Zip64EndOfCentralDirLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], 44)
	binary.LittleEndian.PutUint16(buf[12:14], e.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[14:16], e.VersionNeeded)
	binary.LittleEndian.PutUint32(buf[16:20], e.DiskNumber)
	binary.LittleEndian.PutUint32(buf[20:24], e.DirStartDiskNumber)
	binary.LittleEndian.PutUint64(buf[24:32], e.EntriesOnDisk)
	binary.LittleEndian.PutUint64(buf[32:40], e.EntriesTotal)
	binary.LittleEndian.PutUint64(buf[40:48], e.DirSize)
	binary.LittleEndian.PutUint64(buf[48:56], e.DirOffset)

	return buf
}

// Zip64Locator is the 20-byte record pointing at the Zip64 trailer.
type Zip64Locator struct {
	EndDiskNumber uint32
	EndOffset     uint64
	TotalDisks    uint32
}

func DecodeZip64Locator(buf []byte) (Zip64Locator, error) {
	if len(buf) < Zip64LocatorLen {
		return Zip64Locator{}, fmt.Errorf("zip64 locator: %w", ErrTruncated)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Zip64LocatorSignature {
		return Zip64Locator{}, fmt.Errorf("zip64 locator: %w", ErrSignature)
	}
	return Zip64Locator{
		EndDiskNumber: binary.LittleEndian.Uint32(buf[4:8]),
		EndOffset:     binary.LittleEndian.Uint64(buf[8:16]),
		TotalDisks:    binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

func (l Zip64Locator) Encode() []byte {
	buf := make([]byte, Zip64LocatorLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64LocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], l.EndDiskNumber)
	binary.LittleEndian.PutUint64(buf[8:16], l.EndOffset)
	binary.LittleEndian.PutUint32(buf[16:20], l.TotalDisks)

	return buf
}

// DataDescriptor trails an entry whose local header has the descriptor
// flag set. The signature prefix is optional on disk.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// DecodeDataDescriptor decodes a descriptor starting at buf[0], with or
// without the optional signature, using 64-bit sizes when zip64 is set.
// It returns the number of bytes consumed.
func DecodeDataDescriptor(buf []byte, zip64 bool) (DataDescriptor, int, error) {
	n := 0
	if len(buf) >= 4 && binary.LittleEndian.Uint32(buf[0:4]) == DataDescriptorSignature {
		n = 4
	}
	fieldLen := 4
	if zip64 {
		fieldLen = 8
	}
	if len(buf) < n+4+2*fieldLen {
		return DataDescriptor{}, 0, fmt.Errorf("data descriptor: %w", ErrTruncated)
	}

	d := DataDescriptor{CRC32: binary.LittleEndian.Uint32(buf[n : n+4])}
	n += 4
	if zip64 {
		d.CompressedSize = binary.LittleEndian.Uint64(buf[n : n+8])
		d.UncompressedSize = binary.LittleEndian.Uint64(buf[n+8 : n+16])
		n += 16
	} else {
		d.CompressedSize = uint64(binary.LittleEndian.Uint32(buf[n : n+4]))
		d.UncompressedSize = uint64(binary.LittleEndian.Uint32(buf[n+4 : n+8]))
		n += 8
	}
	return d, n, nil
}

// Encode emits the descriptor with its signature prefix.
func (d DataDescriptor) Encode(zip64 bool) []byte {
	size := DataDescriptorLen
	if zip64 {
		size = Zip64DataDescriptorLen
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	if zip64 {
		binary.LittleEndian.PutUint64(buf[8:16], d.CompressedSize)
		binary.LittleEndian.PutUint64(buf[16:24], d.UncompressedSize)
	} else {
		binary.LittleEndian.PutUint32(buf[8:12], uint32(d.CompressedSize))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(d.UncompressedSize))
	}
	return buf
}
