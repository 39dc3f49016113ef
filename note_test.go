// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipkit/zipkit/internal/record"
)

func noteFixture(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{
		"a.txt": "letter a",
		"b.txt": "letter b",
	})
	require.NoError(t, Modify(&Options{Archive: "out.zip", Sources: []string{"a.txt", "b.txt"}, Quiet: 1}))
}

func dumpNotes(t *testing.T, path string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, DumpNotes(&Options{Archive: path, Quiet: 1, Sink: WriterSink{Out: &out}}))
	return out.String()
}

func TestNoteDump(t *testing.T) {
	noteFixture(t)

	want := strings.Join([]string{
		"@ a.txt",
		"@ (comment above this line)",
		"@ b.txt",
		"@ (comment above this line)",
		"@ (zip file comment below this line)",
		"",
	}, "\n")
	assert.Equal(t, want, dumpNotes(t, "out.zip"))
}

func TestNoteApply(t *testing.T) {
	noteFixture(t)

	stream := strings.Join([]string{
		"@ a.txt",
		"first line",
		"second line",
		"@ (comment above this line)",
		"@ b.txt",
		"@=moved/b.txt",
		"@ (comment above this line)",
		"@ (zip file comment below this line)",
		"fresh archive comment",
	}, "\n")

	require.NoError(t, ApplyNotes(&Options{Archive: "out.zip", Quiet: 1}, strings.NewReader(stream)))

	dir, err := LoadDirectory(&Options{Archive: "out.zip", Quiet: 1})
	require.NoError(t, err)
	require.Len(t, dir.Entries, 2)
	assert.Equal(t, "a.txt", dir.Entries[0].Name)
	assert.Equal(t, "first line\nsecond line", dir.Entries[0].Comment)
	assert.Equal(t, "moved/b.txt", dir.Entries[1].Name)
	assert.Equal(t, "fresh archive comment", dir.Comment)

	// The renamed entry still carries its payload.
	assert.Equal(t, "letter b", archiveContent(t, "out.zip", "moved/b.txt"))

	// A second dump reproduces the edits.
	dump := dumpNotes(t, "out.zip")
	assert.Contains(t, dump, "@ moved/b.txt")
	assert.Contains(t, dump, "first line\nsecond line\n@ (comment above this line)")
}

func TestNoteApplyRenameGuards(t *testing.T) {
	tests := []struct {
		name   string
		rename string
		warn   string
	}{
		{name: "collision", rename: "@=a.txt", warn: "name already in use"},
		{name: "unsafe", rename: "@=../evil.txt", warn: "unsafe name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noteFixture(t)
			stream := strings.Join([]string{
				"@ b.txt",
				tt.rename,
				"@ (comment above this line)",
			}, "\n")

			var warns bytes.Buffer
			err := ApplyNotes(&Options{
				Archive: "out.zip",
				Quiet:   1,
				Sink:    WriterSink{Err: &warns},
			}, strings.NewReader(stream))
			require.NoError(t, err)
			assert.Contains(t, warns.String(), tt.warn)

			dir, err := LoadDirectory(&Options{Archive: "out.zip", Quiet: 1})
			require.NoError(t, err)
			assert.Equal(t, "b.txt", dir.Entries[1].Name)
		})
	}
}

func TestNoteApplyMissingEntry(t *testing.T) {
	noteFixture(t)

	stream := strings.Join([]string{
		"@ ghost.txt",
		"haunting comment",
		"@ (comment above this line)",
	}, "\n")

	var warns bytes.Buffer
	err := ApplyNotes(&Options{
		Archive: "out.zip",
		Quiet:   1,
		Sink:    WriterSink{Err: &warns},
	}, strings.NewReader(stream))
	assert.ErrorIs(t, err, ErrNoFilesMatched)
	assert.Contains(t, warns.String(), "name not matched: ghost.txt")

	// The rewrite still went through for the entries that exist.
	dir, err := LoadDirectory(&Options{Archive: "out.zip", Quiet: 1})
	require.NoError(t, err)
	assert.Len(t, dir.Entries, 2)
}

func TestNoteApplyClearArchiveComment(t *testing.T) {
	noteFixture(t)
	require.NoError(t, Modify(&Options{Archive: "out.zip", SetComment: true, Comment: "obsolete", Quiet: 1}))

	stream := "@ (zip file comment below this line)\n"
	require.NoError(t, ApplyNotes(&Options{Archive: "out.zip", Quiet: 1}, strings.NewReader(stream)))

	dir, err := LoadDirectory(&Options{Archive: "out.zip", Quiet: 1})
	require.NoError(t, err)
	assert.Empty(t, dir.Comment)
}

func TestNoteApplyKeepsCommentsWithoutMarker(t *testing.T) {
	noteFixture(t)
	require.NoError(t, Modify(&Options{Archive: "out.zip", SetComment: true, Comment: "keep me", Quiet: 1}))

	stream := strings.Join([]string{
		"@ a.txt",
		"entry note",
		"@ (comment above this line)",
	}, "\n")
	require.NoError(t, ApplyNotes(&Options{Archive: "out.zip", Quiet: 1}, strings.NewReader(stream)))

	dir, err := LoadDirectory(&Options{Archive: "out.zip", Quiet: 1})
	require.NoError(t, err)
	assert.Equal(t, "keep me", dir.Comment)
	assert.Equal(t, "entry note", dir.Entries[0].Comment)
}

func TestNoteApplyUTF8Rename(t *testing.T) {
	noteFixture(t)

	stream := strings.Join([]string{
		"@ b.txt",
		"@=exposé.txt",
		"@ (comment above this line)",
	}, "\n")
	require.NoError(t, ApplyNotes(&Options{Archive: "out.zip", Quiet: 1}, strings.NewReader(stream)))

	dir, err := LoadDirectory(&Options{Archive: "out.zip", Quiet: 1})
	require.NoError(t, err)
	e := dir.Entries[1]
	assert.Equal(t, "exposé.txt", e.Name)
	assert.NotZero(t, e.Flags&record.FlagUTF8)
}

func TestWriteDirectoryRewriteEquivalence(t *testing.T) {
	noteFixture(t)
	o := &Options{Archive: "out.zip", Quiet: 1}

	before, err := LoadDirectory(o)
	require.NoError(t, err)
	wantComment := before.Comment
	want := make([]Entry, len(before.Entries))
	for i, e := range before.Entries {
		want[i] = *e
	}

	require.NoError(t, WriteDirectory(o, before))

	after, err := LoadDirectory(o)
	require.NoError(t, err)
	assert.Equal(t, wantComment, after.Comment)
	require.Len(t, after.Entries, len(want))
	for i := range want {
		got := *after.Entries[i]
		got.Offset = want[i].Offset
		assert.Equal(t, want[i], got, "entry %d", i)
	}
}
