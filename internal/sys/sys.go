// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sys maps between ZIP header attributes and host filesystem
// semantics: creator host ids, external-attribute words, and POSIX mode
// bits.
package sys

import "io/fs"

// HostSystem is the creator host id stored in the high byte of the
// version-made-by field.
type HostSystem uint8

// Host ids assigned by the ZIP specification.
const (
	HostFAT       HostSystem = 0  // MS-DOS and OS/2 (FAT / VFAT / FAT32)
	HostAmiga     HostSystem = 1  // Amiga
	HostOpenVMS   HostSystem = 2  // OpenVMS
	HostUnix      HostSystem = 3  // UNIX
	HostVMCMS     HostSystem = 4  // VM/CMS
	HostAtariST   HostSystem = 5  // Atari ST
	HostOS2HPFS   HostSystem = 6  // OS/2 H.P.F.S.
	HostMacintosh HostSystem = 7  // Macintosh
	HostZSystem   HostSystem = 8  // Z-System
	HostCPM       HostSystem = 9  // CP/M
	HostNTFS      HostSystem = 10 // Windows NTFS
	HostMVS       HostSystem = 11 // MVS (OS/390 - Z/OS)
	HostVSE       HostSystem = 12 // VSE
	HostAcornRisc HostSystem = 13 // Acorn Risc
	HostVFAT      HostSystem = 14 // VFAT
	HostAltMVS    HostSystem = 15 // alternate MVS
	HostBeOS      HostSystem = 16 // BeOS
	HostTandem    HostSystem = 17 // Tandem
	HostOS400     HostSystem = 18 // OS/400
	HostDarwin    HostSystem = 19 // OS X (Darwin)
)

// Unix file type bits as stored in the upper half of external
// attributes.
const (
	S_IFMT  = 0170000
	S_IFREG = 0100000
	S_IFDIR = 0040000
	S_IFLNK = 0120000
)

// DOS attribute bits in the low byte of external attributes.
const (
	DOSReadOnly  = 0x01
	DOSDirectory = 0x10
	DOSArchive   = 0x20
)

// Tag returns the two-letter host abbreviation used by listing output.
func (h HostSystem) Tag() string {
	switch h {
	case HostFAT, HostVFAT:
		return "fa"
	case HostAmiga:
		return "am"
	case HostOpenVMS:
		return "vm"
	case HostUnix:
		return "ux"
	case HostAtariST:
		return "at"
	case HostOS2HPFS:
		return "hp"
	case HostMacintosh:
		return "mc"
	case HostCPM:
		return "cp"
	case HostNTFS:
		return "nt"
	case HostMVS, HostAltMVS:
		return "mv"
	case HostAcornRisc:
		return "ac"
	case HostBeOS:
		return "be"
	case HostTandem:
		return "td"
	case HostOS400:
		return "os"
	case HostDarwin:
		return "dw"
	default:
		return "??"
	}
}

// String names the host for verbose listings.
func (h HostSystem) String() string {
	switch h {
	case HostFAT:
		return "MS-DOS, OS/2 or NT FAT"
	case HostAmiga:
		return "Amiga"
	case HostOpenVMS:
		return "VMS"
	case HostUnix:
		return "Unix"
	case HostVMCMS:
		return "VM/CMS"
	case HostAtariST:
		return "Atari ST"
	case HostOS2HPFS:
		return "OS/2 HPFS"
	case HostMacintosh:
		return "Macintosh"
	case HostZSystem:
		return "Z-System"
	case HostCPM:
		return "CP/M"
	case HostNTFS:
		return "NTFS"
	case HostMVS:
		return "MVS"
	case HostVSE:
		return "VSE"
	case HostAcornRisc:
		return "Acorn RISC OS"
	case HostVFAT:
		return "VFAT"
	case HostAltMVS:
		return "MVS (alternate)"
	case HostBeOS:
		return "BeOS"
	case HostTandem:
		return "Tandem NSK"
	case HostOS400:
		return "OS/400"
	case HostDarwin:
		return "Mac OS X"
	default:
		return "unknown"
	}
}

// ExternalAttrs builds the external-attribute word for an entry created
// on the given host.
func ExternalAttrs(host HostSystem, mode fs.FileMode, isDir bool) uint32 {
	switch host {
	case HostUnix, HostDarwin:
		unix := uint32(mode.Perm())
		switch {
		case isDir:
			unix |= S_IFDIR
		case mode&fs.ModeSymlink != 0:
			unix |= S_IFLNK
		default:
			unix |= S_IFREG
		}
		attrs := unix << 16
		if isDir {
			attrs |= DOSDirectory
		}
		return attrs
	default:
		var attrs uint32
		if isDir {
			attrs |= DOSDirectory
		} else {
			attrs |= DOSArchive
		}
		if mode&0200 == 0 {
			attrs |= DOSReadOnly
		}
		return attrs
	}
}

// EntryMode recovers mode bits from an external-attribute word. The
// result is zero when the creator host stored nothing usable, letting
// callers substitute a default.
func EntryMode(host HostSystem, attrs uint32, isDir bool) fs.FileMode {
	switch host {
	case HostUnix, HostDarwin:
		unix := attrs >> 16
		mode := fs.FileMode(unix & 0777)
		switch unix & S_IFMT {
		case S_IFDIR:
			mode |= fs.ModeDir
		case S_IFLNK:
			mode |= fs.ModeSymlink
		}
		if isDir {
			mode |= fs.ModeDir
		}
		return mode
	default:
		var mode fs.FileMode
		if isDir || attrs&DOSDirectory != 0 {
			mode = fs.ModeDir | 0755
		} else if attrs&DOSReadOnly != 0 {
			mode = 0444
		}
		return mode
	}
}
