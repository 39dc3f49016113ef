// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsafeName(t *testing.T) {
	tests := []struct {
		name   string
		unsafe bool
	}{
		{name: "plain.txt"},
		{name: "deep/ly/nested/file"},
		{name: "trailing/dir/"},
		{name: "dots.in..name"},
		{name: "/absolute", unsafe: true},
		{name: "../escape", unsafe: true},
		{name: "ok/../../escape", unsafe: true},
		{name: "mid/../inside", unsafe: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unsafeName(tt.name); got != tt.unsafe {
				t.Errorf("unsafeName(%q) = %v, want %v", tt.name, got, tt.unsafe)
			}
		})
	}
}

func TestExtractRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)

	seedTree(t, ".", map[string]string{
		"docs/readme.md": "# hi\n",
		"bin/run.sh":     "#!/bin/sh\n",
		"top.txt":        "top level",
	})
	require.NoError(t, os.Chmod("bin/run.sh", 0o755))
	require.NoError(t, os.Chtimes("top.txt", base, base))
	require.NoError(t, Modify(&Options{
		Archive: "out.zip",
		Sources: []string{"docs", "bin", "top.txt"},
		Recurse: true,
		Method:  Deflate,
		Quiet:   1,
	}))

	dest := t.TempDir()
	require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Quiet: 1}))

	data, err := os.ReadFile(filepath.Join(dest, "docs/readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi\n", string(data))

	info, err := os.Stat(filepath.Join(dest, "bin/run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dest, "top.txt"))
	require.NoError(t, err)
	assert.WithinDuration(t, base, info.ModTime(), 2*time.Second)
}

func TestExtractSelective(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{
		"a.txt": "text",
		"b.bin": "binary",
		"c.TXT": "upper",
	})
	require.NoError(t, Modify(&Options{Archive: "out.zip", Sources: []string{"a.txt", "b.bin", "c.TXT"}, Quiet: 1}))

	t.Run("include pattern", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Include: []string{"*.txt"}, Quiet: 1}))
		assert.FileExists(t, filepath.Join(dest, "a.txt"))
		assert.NoFileExists(t, filepath.Join(dest, "b.bin"))
		assert.NoFileExists(t, filepath.Join(dest, "c.TXT"))
	})

	t.Run("case folded include", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Include: []string{"*.txt"}, CaseFold: true, Quiet: 1}))
		assert.FileExists(t, filepath.Join(dest, "a.txt"))
		assert.FileExists(t, filepath.Join(dest, "c.TXT"))
	})

	t.Run("exclude wins", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Exclude: []string{"*.bin"}, Quiet: 1}))
		assert.FileExists(t, filepath.Join(dest, "a.txt"))
		assert.NoFileExists(t, filepath.Join(dest, "b.bin"))
	})

	t.Run("miss returns no files matched", func(t *testing.T) {
		dest := t.TempDir()
		err := Extract(&Options{Archive: "out.zip", TargetDir: dest, Include: []string{"*.mp3"}, Quiet: 1})
		assert.ErrorIs(t, err, ErrNoFilesMatched)
	})
}

// Entries that would land outside the target abort the whole run
// before anything is written.
func TestExtractUnsafeAborts(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"good.txt", "../evil.txt"} {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte("payload"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile("hostile.zip", buf.Bytes(), 0o644))

	dest := filepath.Join(t.TempDir(), "unpack")
	err := Extract(&Options{Archive: "hostile.zip", TargetDir: dest, Quiet: 1})
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(dest, "good.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
}

func TestExtractOverwrite(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{"a.txt": "from archive"})
	require.NoError(t, Modify(&Options{Archive: "out.zip", Sources: []string{"a.txt"}, Quiet: 1}))

	setup := func(t *testing.T) string {
		dest := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dest, "a.txt"), []byte("already here"), 0o644))
		return dest
	}

	t.Run("conflict aborts by default", func(t *testing.T) {
		dest := setup(t)
		err := Extract(&Options{Archive: "out.zip", TargetDir: dest, Quiet: 1})
		assert.ErrorIs(t, err, ErrExists)
	})

	t.Run("never overwrite skips", func(t *testing.T) {
		dest := setup(t)
		require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Overwrite: NeverOverwrite, Quiet: 1}))
		data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "already here", string(data))
	})

	t.Run("always overwrite replaces", func(t *testing.T) {
		dest := setup(t)
		require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Overwrite: AlwaysOverwrite, Quiet: 1}))
		data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "from archive", string(data))
	})
}

func TestExtractJunkPaths(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{"deep/path/to/leaf.txt": "leaf"})
	require.NoError(t, Modify(&Options{Archive: "out.zip", Sources: []string{"deep"}, Recurse: true, Quiet: 1}))

	dest := t.TempDir()
	require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, JunkPaths: true, Quiet: 1}))

	assert.FileExists(t, filepath.Join(dest, "leaf.txt"))
	assert.NoDirExists(t, filepath.Join(dest, "deep"))
}

func TestExtractToStdout(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{"1.txt": "alpha ", "2.txt": "beta"})
	require.NoError(t, Modify(&Options{Archive: "out.zip", Sources: []string{"1.txt", "2.txt"}, Quiet: 1}))

	var out bytes.Buffer
	require.NoError(t, Extract(&Options{Archive: "out.zip", ToStdout: true, Stdout: &out, Quiet: 1}))
	assert.Equal(t, "alpha beta", out.String())
}

func TestExtractEncrypted(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{"secret.txt": "locked away"})
	require.NoError(t, Modify(&Options{
		Archive:  "out.zip",
		Sources:  []string{"secret.txt"},
		Encrypt:  true,
		Password: "letmein",
		Quiet:    1,
	}))

	t.Run("no password", func(t *testing.T) {
		dest := t.TempDir()
		err := Extract(&Options{Archive: "out.zip", TargetDir: dest, Quiet: 1})
		assert.ErrorIs(t, err, ErrPasswordRequired)
		assert.NoFileExists(t, filepath.Join(dest, "secret.txt"))
	})

	t.Run("wrong password", func(t *testing.T) {
		dest := t.TempDir()
		err := Extract(&Options{Archive: "out.zip", TargetDir: dest, Password: "nope", Quiet: 1})
		assert.ErrorIs(t, err, ErrBadPassword)
		assert.NoFileExists(t, filepath.Join(dest, "secret.txt"))
	})

	t.Run("right password", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, Extract(&Options{Archive: "out.zip", TargetDir: dest, Password: "letmein", Quiet: 1}))
		data, err := os.ReadFile(filepath.Join(dest, "secret.txt"))
		require.NoError(t, err)
		assert.Equal(t, "locked away", string(data))
	})
}

func TestTestVerb(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{"a.txt": "sound as a bell"})
	require.NoError(t, Modify(&Options{Archive: "out.zip", Sources: []string{"a.txt"}, Method: Store, Quiet: 1}))

	t.Run("clean archive", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, Test(&Options{Archive: "out.zip", Sink: WriterSink{Out: &out}}))
		assert.Contains(t, out.String(), "testing: a.txt")
		assert.Contains(t, out.String(), "No errors detected")
	})

	t.Run("corrupted payload", func(t *testing.T) {
		data, err := os.ReadFile("out.zip")
		require.NoError(t, err)
		// Flip a byte in the stored payload, which starts right after
		// the 30 byte local header and the 5 byte name.
		data[36] ^= 0xff
		require.NoError(t, os.WriteFile("bad.zip", data, 0o644))

		var warns bytes.Buffer
		err = Test(&Options{Archive: "bad.zip", Quiet: 1, Sink: WriterSink{Err: &warns}})
		assert.ErrorIs(t, err, ErrIntegrity)
		assert.Contains(t, warns.String(), "At least one error was detected")
	})
}

func TestTestVerbTolerant(t *testing.T) {
	t.Chdir(t.TempDir())
	seedTree(t, ".", map[string]string{"s.txt": "sealed"})
	require.NoError(t, Modify(&Options{
		Archive:  "out.zip",
		Sources:  []string{"s.txt"},
		Encrypt:  true,
		Password: "pw",
		Quiet:    1,
	}))

	t.Run("password failure aborts", func(t *testing.T) {
		err := Test(&Options{Archive: "out.zip", Quiet: 1})
		assert.ErrorIs(t, err, ErrPasswordRequired)
	})

	t.Run("tolerant mode skips", func(t *testing.T) {
		var warns bytes.Buffer
		err := Test(&Options{Archive: "out.zip", TolerantTest: true, Quiet: 1, Sink: WriterSink{Err: &warns}})
		require.NoError(t, err)
		assert.Contains(t, warns.String(), "skipped")
	})
}
