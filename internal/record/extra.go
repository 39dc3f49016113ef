// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"encoding/binary"
	"fmt"
)

// WalkExtra iterates the (tag, length, data) blocks of an extra field in
// on-disk order, stopping early when fn returns false. A malformed tail
// whose declared length runs past the buffer ends the walk.
func WalkExtra(extra []byte, fn func(tag uint16, data []byte) bool) {
	for offset := 0; offset+4 <= len(extra); {
		tag := binary.LittleEndian.Uint16(extra[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(extra[offset+2 : offset+4]))
		offset += 4
		if offset+size > len(extra) {
			return
		}
		if !fn(tag, extra[offset:offset+size]) {
			return
		}
		offset += size
	}
}

// FindExtra returns the payload of the first block with the given tag.
func FindExtra(extra []byte, tag uint16) ([]byte, bool) {
	var data []byte
	var found bool
	WalkExtra(extra, func(t uint16, d []byte) bool {
		if t == tag {
			data, found = d, true
			return false
		}
		return true
	})
	return data, found
}

// StripExtra returns extra with every block of the given tag removed,
// preserving the order and bytes of the remaining blocks.
func StripExtra(extra []byte, tag uint16) []byte {
	var out []byte
	WalkExtra(extra, func(t uint16, d []byte) bool {
		if t != tag {
			block := make([]byte, 4+len(d))
			binary.LittleEndian.PutUint16(block[0:2], t)
			binary.LittleEndian.PutUint16(block[2:4], uint16(len(d)))
			copy(block[4:], d)
			out = append(out, block...)
		}
		return true
	})
	return out
}

// ExtraTags lists the tags present in an extra field, in on-disk order.
func ExtraTags(extra []byte) []uint16 {
	var tags []uint16
	WalkExtra(extra, func(t uint16, _ []byte) bool {
		tags = append(tags, t)
		return true
	})
	return tags
}

// Zip64Extra is the decoded tag 0x0001 block. Each value is present only
// when its 32-bit sibling in the carrying header is the sentinel; the
// on-disk order is uncompressed size, compressed size, offset.
type Zip64Extra struct {
	UncompressedSize     uint64
	CompressedSize       uint64
	LocalHeaderOffset    uint64
	HasUncompressedSize  bool
	HasCompressedSize    bool
	HasLocalHeaderOffset bool
}

// ParseZip64Extra decodes the payload of a Zip64 extra block. The need
// flags say which 32-bit fields of the carrying header were sentinels
// and therefore which 64-bit values the payload must provide, in order.
func ParseZip64Extra(data []byte, needUncompressed, needCompressed, needOffset bool) (Zip64Extra, error) {
	var z Zip64Extra
	offset := 0
	take := func() (uint64, error) {
		if offset+8 > len(data) {
			return 0, fmt.Errorf("zip64 extra: %w", ErrTruncated)
		}
		v := binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
		return v, nil
	}

	var err error
	if needUncompressed {
		if z.UncompressedSize, err = take(); err != nil {
			return Zip64Extra{}, err
		}
		z.HasUncompressedSize = true
	}
	if needCompressed {
		if z.CompressedSize, err = take(); err != nil {
			return Zip64Extra{}, err
		}
		z.HasCompressedSize = true
	}
	if needOffset {
		if z.LocalHeaderOffset, err = take(); err != nil {
			return Zip64Extra{}, err
		}
		z.HasLocalHeaderOffset = true
	}
	return z, nil
}

// Encode emits the block with tag and length, or nil when no field is
// present.
func (z Zip64Extra) Encode() []byte {
	size := 0
	if z.HasUncompressedSize {
		size += 8
	}
	if z.HasCompressedSize {
		size += 8
	}
	if z.HasLocalHeaderOffset {
		size += 8
	}
	if size == 0 {
		return nil
	}

	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint16(buf[0:2], Zip64ExtraTag)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(size))

	offset := 4
	if z.HasUncompressedSize {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], z.UncompressedSize)
		offset += 8
	}
	if z.HasCompressedSize {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], z.CompressedSize)
		offset += 8
	}
	if z.HasLocalHeaderOffset {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], z.LocalHeaderOffset)
	}
	return buf
}
