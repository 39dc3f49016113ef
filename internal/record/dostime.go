// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import "time"

// The earliest stamp the format can carry: 1980-01-01 00:00:00.
const minDosDate uint16 = 1<<5 | 1

// TimeToDos converts t to the packed MS-DOS date and time words, in
// local time with 2-second resolution. Times before 1980 clamp to the
// format's epoch.
func TimeToDos(t time.Time) (dosDate, dosTime uint16) {
	t = t.Local()
	if t.Year() < 1980 {
		return minDosDate, 0
	}
	year := min(t.Year()-1980, 127)
	dosDate = uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	dosTime = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return dosDate, dosTime
}

// DosToTime converts packed MS-DOS date and time words to a local
// time.Time. Out-of-range month or day values are pinned to 1.
func DosToTime(dosDate, dosTime uint16) time.Time {
	day := dosDate & 0x1f
	month := (dosDate >> 5) & 0x0f
	year := int((dosDate>>9)&0x7f) + 1980
	second := (dosTime & 0x1f) * 2
	minute := (dosTime >> 5) & 0x3f
	hour := (dosTime >> 11) & 0x1f

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.Local)
}
