// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import (
	"io/fs"
	"testing"
)

func TestExternalAttrsUnix(t *testing.T) {
	tests := []struct {
		name  string
		mode  fs.FileMode
		isDir bool
		want  uint32
	}{
		{name: "regular file", mode: 0o644, want: (S_IFREG | 0o644) << 16},
		{name: "executable", mode: 0o755, want: (S_IFREG | 0o755) << 16},
		{name: "directory", mode: fs.ModeDir | 0o755, isDir: true, want: (S_IFDIR|0o755)<<16 | DOSDirectory},
		{name: "symlink", mode: fs.ModeSymlink | 0o777, want: (S_IFLNK | 0o777) << 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExternalAttrs(HostUnix, tt.mode, tt.isDir); got != tt.want {
				t.Errorf("ExternalAttrs = %#o, want %#o", got, tt.want)
			}
		})
	}
}

func TestExternalAttrsFAT(t *testing.T) {
	tests := []struct {
		name  string
		mode  fs.FileMode
		isDir bool
		want  uint32
	}{
		{name: "writable file", mode: 0o644, want: DOSArchive},
		{name: "read-only file", mode: 0o444, want: DOSArchive | DOSReadOnly},
		{name: "directory", mode: fs.ModeDir | 0o755, isDir: true, want: DOSDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExternalAttrs(HostFAT, tt.mode, tt.isDir); got != tt.want {
				t.Errorf("ExternalAttrs = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestEntryModeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		mode  fs.FileMode
		isDir bool
	}{
		{name: "regular", mode: 0o644},
		{name: "executable", mode: 0o711},
		{name: "directory", mode: fs.ModeDir | 0o750, isDir: true},
		{name: "symlink", mode: fs.ModeSymlink | 0o777},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := ExternalAttrs(HostUnix, tt.mode, tt.isDir)
			if got := EntryMode(HostUnix, attrs, tt.isDir); got != tt.mode {
				t.Errorf("EntryMode = %v, want %v", got, tt.mode)
			}
		})
	}
}

func TestEntryModeFAT(t *testing.T) {
	tests := []struct {
		name  string
		attrs uint32
		isDir bool
		want  fs.FileMode
	}{
		{name: "plain file", attrs: DOSArchive, want: 0},
		{name: "read-only", attrs: DOSArchive | DOSReadOnly, want: 0o444},
		{name: "directory bit", attrs: DOSDirectory, want: fs.ModeDir | 0o755},
		{name: "trailing slash only", attrs: 0, isDir: true, want: fs.ModeDir | 0o755},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EntryMode(HostFAT, tt.attrs, tt.isDir); got != tt.want {
				t.Errorf("EntryMode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHostTag(t *testing.T) {
	tests := []struct {
		host HostSystem
		want string
	}{
		{HostUnix, "ux"},
		{HostFAT, "fa"},
		{HostVFAT, "fa"},
		{HostNTFS, "nt"},
		{HostDarwin, "dw"},
		{HostVMCMS, "??"},
		{HostSystem(200), "??"},
	}
	for _, tt := range tests {
		if got := tt.host.Tag(); got != tt.want {
			t.Errorf("HostSystem(%d).Tag() = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestHostString(t *testing.T) {
	if got := HostUnix.String(); got != "Unix" {
		t.Errorf("HostUnix.String() = %q", got)
	}
	if got := HostSystem(200).String(); got != "unknown" {
		t.Errorf("HostSystem(200).String() = %q", got)
	}
}
