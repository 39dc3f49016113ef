// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import "errors"

var (
	// ErrFormat is returned when the input is not a valid ZIP archive.
	ErrFormat = errors.New("zip: not a valid zip archive")

	// ErrIntegrity is returned when extracted bytes fail the CRC-32 or
	// size check recorded in the central directory.
	ErrIntegrity = errors.New("zip: integrity check failed")

	// ErrUnsafePath is returned when an entry name is absolute or
	// contains a parent-directory segment.
	ErrUnsafePath = errors.New("zip: insecure entry path")

	// ErrPasswordRequired is returned when an encrypted entry is read
	// without a password.
	ErrPasswordRequired = errors.New("zip: password required")

	// ErrBadPassword is returned when the password check byte does not
	// match.
	ErrBadPassword = errors.New("zip: invalid password")

	// ErrNoFilesMatched is returned when an include pattern matched no
	// entry or source file.
	ErrNoFilesMatched = errors.New("zip: nothing matched")

	// ErrNotImplemented is returned for recognized but unsupported
	// features, such as compression methods outside Store, Deflate and
	// Bzip2.
	ErrNotImplemented = errors.New("zip: not implemented")

	// ErrUsage is returned when the option bundle is malformed.
	ErrUsage = errors.New("zip: invalid options")

	// ErrExists is returned when extraction would overwrite an existing
	// file under the abort-on-conflict policy.
	ErrExists = errors.New("zip: file already exists")

	// ErrNameTooLong is returned when an entry name exceeds 65535 bytes.
	ErrNameTooLong = errors.New("zip: entry name too long")

	// ErrCommentTooLong is returned when an archive or entry comment
	// exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")
)

// Status classifies a finished operation for the operating environment.
type Status int

const (
	StatusOK Status = iota
	StatusUsage
	StatusIO
	StatusMemory
	StatusNoFilesMatched
	StatusNotImplemented
	StatusPasswordRequired
	StatusBadPassword
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUsage:
		return "usage"
	case StatusIO:
		return "io-error"
	case StatusMemory:
		return "out-of-memory"
	case StatusNoFilesMatched:
		return "no-files-matched"
	case StatusNotImplemented:
		return "not-implemented"
	case StatusPasswordRequired:
		return "password-required"
	case StatusBadPassword:
		return "bad-password"
	default:
		return "unknown"
	}
}

// Code returns the process exit value for the status.
func (s Status) Code() int { return int(s) }

// StatusOf collapses an error chain to its status. Format and integrity
// failures land in the io-error bucket; nil is ok.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrUsage):
		return StatusUsage
	case errors.Is(err, ErrNoFilesMatched):
		return StatusNoFilesMatched
	case errors.Is(err, ErrNotImplemented):
		return StatusNotImplemented
	case errors.Is(err, ErrPasswordRequired):
		return StatusPasswordRequired
	case errors.Is(err, ErrBadPassword):
		return StatusBadPassword
	case errors.Is(err, ErrNameTooLong), errors.Is(err, ErrCommentTooLong):
		return StatusUsage
	default:
		return StatusIO
	}
}
