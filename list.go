// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"
	"github.com/zipkit/zipkit/internal/record"
)

type lister struct {
	o *Options
	a *archive
	m *matcher

	matched     int
	totalUncomp uint64
	totalComp   uint64
}

// runList enumerates matching entries through the configured format.
// A line closure returning ErrStopOutput ends the listing early
// without failing the run.
func runList(o *Options) error {
	if err := o.validate(); err != nil {
		return err
	}
	m, err := newMatcher(o)
	if err != nil {
		return err
	}

	a, err := openArchive(o.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	dir, err := loadEntryList(a, o)
	if err != nil {
		return err
	}

	ls := &lister{o: o, a: a, m: m}
	if err := ls.run(dir); err != nil {
		if errors.Is(err, ErrStopOutput) {
			return nil
		}
		return err
	}
	return m.reportMisses(o)
}

// tableFormat reports whether the format carries columns, which is
// what decides the default header and footer.
func tableFormat(f ListFormat) bool {
	switch f {
	case FormatShort, FormatMedium, FormatLong, FormatVerbose:
		return true
	}
	return false
}

func (ls *lister) showHeader() bool {
	switch ls.o.Header {
	case ToggleOn:
		return true
	case ToggleOff:
		return false
	}
	return tableFormat(ls.o.Format) && len(ls.o.Include) == 0
}

func (ls *lister) showTotals() bool {
	switch ls.o.Totals {
	case ToggleOn:
		return true
	case ToggleOff:
		return false
	}
	return tableFormat(ls.o.Format) && len(ls.o.Include) == 0
}

func (ls *lister) run(dir *Directory) error {
	o := ls.o
	if ls.showHeader() {
		if err := o.emit(fmt.Sprintf("Archive:  %s", o.Archive)); err != nil {
			return err
		}
		if tableFormat(o.Format) {
			line := fmt.Sprintf("Zip file size: %d bytes, number of entries: %d", ls.a.size, len(dir.Entries))
			if err := o.emit(line); err != nil {
				return err
			}
		}
		if o.ListComments && dir.Comment != "" {
			if err := o.emit(dir.Comment); err != nil {
				return err
			}
		}
	}

	for i, e := range dir.Entries {
		if !ls.m.match(e.Name) {
			continue
		}
		ls.matched++
		ls.totalUncomp += e.UncompressedSize
		ls.totalComp += e.CompressedSize

		var err error
		switch o.Format {
		case FormatPlain, FormatNames:
			err = o.emit(e.Name)
		case FormatVerbose:
			err = ls.emitVerbose(i, e)
		default:
			err = o.emit(ls.formatLine(e))
		}
		if err != nil {
			return err
		}
	}

	if ls.showTotals() {
		return ls.emitTotals()
	}
	return nil
}

// formatLine renders one SHORT, MEDIUM, or LONG row.
func (ls *lister) formatLine(e *Entry) string {
	madeBy := e.VersionMadeBy & 0xff
	line := fmt.Sprintf("%s %2d.%d %2s %8d %2s",
		lsPerms(e), madeBy/10, madeBy%10, e.HostSystem().Tag(), e.UncompressedSize, listFlags(e))

	switch ls.o.Format {
	case FormatMedium:
		line += fmt.Sprintf(" %3.0f%%", savedPercent(e.UncompressedSize, e.CompressedSize))
	case FormatLong:
		line += fmt.Sprintf(" %8d", e.CompressedSize)
	}

	return line + fmt.Sprintf(" %s %s %s", methodAbbrev(e), ls.stamp(e), e.Name)
}

func (ls *lister) emitVerbose(index int, e *Entry) error {
	lines := []string{
		fmt.Sprintf("Central directory entry #%d:", index+1),
		fmt.Sprintf("  %s", e.Name),
		fmt.Sprintf("  offset of local header:         %d", e.Offset),
		fmt.Sprintf("  version made by (host):         %s (%d.%d)", e.HostSystem(), e.VersionMadeBy&0xff/10, e.VersionMadeBy&0xff%10),
		fmt.Sprintf("  version needed to extract:      %d.%d", e.VersionNeeded/10, e.VersionNeeded%10),
		fmt.Sprintf("  general purpose bit flag:       0x%04x", e.Flags),
		fmt.Sprintf("  compression method:             %s", methodAbbrev(e)),
		fmt.Sprintf("  file last modified on:          %s", e.Modified().Format("2006-01-02 15:04:05")),
		fmt.Sprintf("  32-bit CRC value (hex):         %08x", e.CRC32),
		fmt.Sprintf("  compressed size:                %d bytes", e.CompressedSize),
		fmt.Sprintf("  uncompressed size:              %d bytes", e.UncompressedSize),
	}
	if tags := record.ExtraTags(e.Extra); len(tags) > 0 {
		s := "  extra field tags:              "
		for _, t := range tags {
			s += fmt.Sprintf(" 0x%04x", t)
		}
		lines = append(lines, s)
	}
	if ls.o.ListComments && e.Comment != "" {
		lines = append(lines, fmt.Sprintf("  file comment:                   %s", e.Comment))
	}
	lines = append(lines, "")

	for _, l := range lines {
		if err := ls.o.emit(l); err != nil {
			return err
		}
	}
	return nil
}

func (ls *lister) emitTotals() error {
	pct := savedPercent(ls.totalUncomp, ls.totalComp)
	if ls.o.Format == FormatVerbose {
		line := fmt.Sprintf("%d files, %s uncompressed, %s compressed:  %.1f%%",
			ls.matched, humanize.Bytes(ls.totalUncomp), humanize.Bytes(ls.totalComp), pct)
		return ls.o.emit(line)
	}
	line := fmt.Sprintf("%d files, %d bytes uncompressed, %d bytes compressed:  %.1f%%",
		ls.matched, ls.totalUncomp, ls.totalComp, pct)
	return ls.o.emit(line)
}

// stamp renders the DOS timestamp either human readable or in the
// decimal form used for scripting.
func (ls *lister) stamp(e *Entry) string {
	t := e.Modified()
	if ls.o.DecimalTime {
		return fmt.Sprintf("%04d%02d%02d.%02d%02d%02d",
			t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	return fmt.Sprintf("%2d-%s-%02d %02d:%02d",
		t.Day(), t.Month().String()[:3], t.Year()%100, t.Hour(), t.Minute())
}

// lsPerms renders an ls-style permission column, synthesizing modes
// for entries whose creator stored nothing usable.
func lsPerms(e *Entry) string {
	m := e.Mode()
	if m == 0 {
		if e.IsDir() {
			m = fs.ModeDir | 0755
		} else {
			m = 0644
		}
	}

	var b [10]byte
	switch {
	case m&fs.ModeDir != 0:
		b[0] = 'd'
	case m&fs.ModeSymlink != 0:
		b[0] = 'l'
	default:
		b[0] = '-'
	}
	const rwx = "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if m&(1<<uint(8-i)) != 0 {
			b[i+1] = rwx[i]
		} else {
			b[i+1] = '-'
		}
	}
	return string(b[:])
}

// listFlags is the two-character entry flag column: text or binary
// (uppercase when encrypted) crossed with extra-field and descriptor
// presence.
func listFlags(e *Entry) string {
	c := byte('b')
	if e.InternalAttrs&1 != 0 {
		c = 't'
	}
	if e.Encrypted() {
		c -= 'a' - 'A'
	}

	hasExtra := len(e.Extra) > 0
	var second byte
	switch {
	case hasExtra && e.usesDescriptor():
		second = 'X'
	case hasExtra:
		second = 'x'
	case e.usesDescriptor():
		second = 'l'
	default:
		second = '-'
	}
	return string([]byte{c, second})
}

// methodAbbrev is the four-character method column. Deflate entries
// advertise their level class through flag bits 1-2.
func methodAbbrev(e *Entry) string {
	switch e.Method {
	case Store:
		return "stor"
	case Bzip2:
		return "bzp2"
	case Deflate:
		switch e.Flags & 0x0006 {
		case 0x0002:
			return "defX"
		case 0x0004:
			return "defF"
		case 0x0006:
			return "defS"
		default:
			return "defN"
		}
	default:
		return "unkn"
	}
}

// savedPercent is the aggregate space saving, clamped to [0, 999.9].
func savedPercent(uncomp, comp uint64) float64 {
	if uncomp == 0 {
		return 0
	}
	pct := (1 - float64(comp)/float64(uncomp)) * 100
	if pct < 0 {
		return 0
	}
	if pct > 999.9 {
		return 999.9
	}
	return pct
}
