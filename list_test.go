// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipkit/zipkit/internal/record"
)

func listLines(t *testing.T, o *Options) []string {
	t.Helper()
	var out bytes.Buffer
	o.Sink = WriterSink{Out: &out}
	require.NoError(t, List(o))
	s := strings.TrimRight(out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// listFixture builds a three-entry archive with a fixed timestamp and
// returns its path. Current directory is the test's temp dir.
func listFixture(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)
	seedTree(t, ".", map[string]string{
		"a.txt":     "squeeze " + strings.Repeat("me ", 200),
		"sub/b.txt": "beta",
	})
	for _, p := range []string{"a.txt", "sub/b.txt", "sub"} {
		require.NoError(t, os.Chtimes(p, base, base))
	}
	require.NoError(t, Modify(&Options{
		Archive: "out.zip",
		Sources: []string{"a.txt", "sub"},
		Recurse: true,
		Method:  Deflate,
		Quiet:   1,
	}))
	return "out.zip"
}

func TestListPlainNames(t *testing.T) {
	ar := listFixture(t)
	lines := listLines(t, &Options{Archive: ar, Format: FormatPlain})
	assert.Equal(t, []string{"a.txt", "sub/", "sub/b.txt"}, lines)
}

func TestListShort(t *testing.T) {
	ar := listFixture(t)
	lines := listLines(t, &Options{Archive: ar, Format: FormatShort})
	require.Len(t, lines, 6)

	assert.Equal(t, "Archive:  out.zip", lines[0])
	assert.Contains(t, lines[1], "number of entries: 3")

	row := strings.Fields(lines[2])
	require.Len(t, row, 9)
	assert.Equal(t, "-rw-r--r--", row[0])
	assert.Equal(t, "6.3", row[1])
	assert.Equal(t, "defN", row[5])
	assert.Equal(t, "a.txt", row[8])

	dirRow := strings.Fields(lines[3])
	assert.Equal(t, "drwxr-xr-x", dirRow[0])
	assert.Equal(t, "stor", dirRow[5])
	assert.Equal(t, "sub/", dirRow[8])

	assert.Contains(t, lines[5], "3 files,")
}

func TestListLongHasCompressedColumn(t *testing.T) {
	ar := listFixture(t)
	lines := listLines(t, &Options{Archive: ar, Format: FormatLong})

	row := strings.Fields(lines[2])
	require.Len(t, row, 10)

	dir, err := LoadDirectory(&Options{Archive: ar, Quiet: 1})
	require.NoError(t, err)
	e := dir.Entries[0]
	require.Equal(t, "a.txt", e.Name)
	assert.Equal(t, strconv.FormatUint(e.UncompressedSize, 10), row[3])
	assert.Equal(t, strconv.FormatUint(e.CompressedSize, 10), row[5])
}

func TestListMediumHasPercent(t *testing.T) {
	ar := listFixture(t)
	lines := listLines(t, &Options{Archive: ar, Format: FormatMedium})

	row := strings.Fields(lines[2])
	require.Len(t, row, 10)
	assert.True(t, strings.HasSuffix(row[5], "%"), "row %q", lines[2])
}

func TestListVerbose(t *testing.T) {
	ar := listFixture(t)
	lines := listLines(t, &Options{Archive: ar, Format: FormatVerbose})
	joined := strings.Join(lines, "\n")

	assert.Contains(t, joined, "Central directory entry #1:")
	assert.Contains(t, joined, "compression method:")
	assert.Contains(t, joined, "32-bit CRC value (hex):")
	assert.Contains(t, joined, "uncompressed,")
}

func TestListHeaderAndTotalsToggles(t *testing.T) {
	ar := listFixture(t)

	t.Run("off hides the frame", func(t *testing.T) {
		lines := listLines(t, &Options{Archive: ar, Format: FormatShort, Header: ToggleOff, Totals: ToggleOff})
		require.Len(t, lines, 3)
		assert.NotContains(t, lines[0], "Archive:")
	})

	t.Run("on forces the frame for plain output", func(t *testing.T) {
		lines := listLines(t, &Options{Archive: ar, Format: FormatPlain, Header: ToggleOn, Totals: ToggleOn})
		assert.Equal(t, "Archive:  out.zip", lines[0])
		assert.Contains(t, lines[len(lines)-1], "3 files,")
	})

	t.Run("include pattern suppresses the frame", func(t *testing.T) {
		lines := listLines(t, &Options{Archive: ar, Format: FormatShort, Include: []string{"*.txt"}})
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "a.txt")
	})
}

func TestListDecimalTime(t *testing.T) {
	ar := listFixture(t)
	lines := listLines(t, &Options{Archive: ar, Format: FormatShort, DecimalTime: true})
	assert.Contains(t, lines[2], "20240510.120000")
}

func TestListArchiveComment(t *testing.T) {
	ar := listFixture(t)
	require.NoError(t, Modify(&Options{Archive: ar, SetComment: true, Comment: "the fine print", Quiet: 1}))

	lines := listLines(t, &Options{Archive: ar, Format: FormatShort, ListComments: true})
	assert.Equal(t, "the fine print", lines[2])
}

func TestListStopsOnLineError(t *testing.T) {
	ar := listFixture(t)

	var got []string
	o := &Options{Archive: ar, Format: FormatPlain, Line: func(s string) error {
		if len(got) == 2 {
			return ErrStopOutput
		}
		got = append(got, s)
		return nil
	}}
	require.NoError(t, List(o))
	assert.Equal(t, []string{"a.txt", "sub/"}, got)
}

func TestSavedPercent(t *testing.T) {
	tests := []struct {
		uncomp, comp uint64
		want         float64
	}{
		{0, 0, 0},
		{0, 100, 0},
		{100, 50, 50},
		{100, 100, 0},
		{100, 200, 0},
		{4, 1, 75},
	}
	for _, tt := range tests {
		if got := savedPercent(tt.uncomp, tt.comp); got != tt.want {
			t.Errorf("savedPercent(%d, %d) = %v, want %v", tt.uncomp, tt.comp, got, tt.want)
		}
	}
}

func TestListFlagsColumn(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{name: "binary plain", entry: Entry{}, want: "b-"},
		{name: "text attr", entry: Entry{InternalAttrs: 1}, want: "t-"},
		{name: "encrypted binary", entry: Entry{Flags: record.FlagEncrypted}, want: "B-"},
		{name: "encrypted text", entry: Entry{InternalAttrs: 1, Flags: record.FlagEncrypted}, want: "T-"},
		{name: "extra field", entry: Entry{Extra: []byte{1, 0, 0, 0}}, want: "bx"},
		{name: "descriptor", entry: Entry{Flags: record.FlagDescriptor}, want: "bl"},
		{name: "extra and descriptor", entry: Entry{Flags: record.FlagDescriptor, Extra: []byte{1, 0, 0, 0}}, want: "bX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listFlags(&tt.entry); got != tt.want {
				t.Errorf("listFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMethodAbbrev(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{name: "stored", entry: Entry{Method: Store}, want: "stor"},
		{name: "bzip2", entry: Entry{Method: Bzip2}, want: "bzp2"},
		{name: "deflate normal", entry: Entry{Method: Deflate}, want: "defN"},
		{name: "deflate max", entry: Entry{Method: Deflate, Flags: 0x0002}, want: "defX"},
		{name: "deflate fast", entry: Entry{Method: Deflate, Flags: 0x0004}, want: "defF"},
		{name: "deflate super fast", entry: Entry{Method: Deflate, Flags: 0x0006}, want: "defS"},
		{name: "unknown", entry: Entry{Method: Method(99)}, want: "unkn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := methodAbbrev(&tt.entry); got != tt.want {
				t.Errorf("methodAbbrev() = %q, want %q", got, tt.want)
			}
		})
	}
}
