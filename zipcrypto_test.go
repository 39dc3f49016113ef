// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/zipkit/zipkit/internal/record"
)

func TestZipCipherSymmetry(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog")

	buf := append([]byte(nil), plain...)
	newZipCipher("s3cret").Encrypt(buf)
	if bytes.Equal(buf, plain) {
		t.Fatal("Encrypt left the buffer unchanged")
	}
	newZipCipher("s3cret").Decrypt(buf)
	if !bytes.Equal(buf, plain) {
		t.Errorf("decrypt round trip = %q, want %q", buf, plain)
	}
}

func TestCheckByte(t *testing.T) {
	tests := []struct {
		name    string
		flags   uint16
		crc     uint32
		modTime uint16
		want    byte
	}{
		{name: "crc high byte", flags: 0, crc: 0x12345678, modTime: 0xabcd, want: 0x12},
		{name: "descriptor falls back to time", flags: record.FlagDescriptor, crc: 0x12345678, modTime: 0xabcd, want: 0xab},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkByte(tt.flags, tt.crc, tt.modTime); got != tt.want {
				t.Errorf("checkByte(%#x, %#x, %#x) = %#x, want %#x", tt.flags, tt.crc, tt.modTime, got, tt.want)
			}
		})
	}
}

func TestZipCryptoStream(t *testing.T) {
	const password = "hunter2"
	const crc = uint32(0xdeadbeef)
	plain := []byte("payload that spans more than one write call")

	var sealed bytes.Buffer
	w, err := newZipCryptoWriter(&sealed, password, checkByte(0, crc, 0))
	if err != nil {
		t.Fatalf("newZipCryptoWriter: %v", err)
	}
	if _, err := w.Write(plain[:10]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write(plain[10:]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n, err := w.Write(nil); n != 0 || err != nil {
		t.Errorf("empty Write = (%d, %v), want (0, nil)", n, err)
	}

	if got := sealed.Len(); got != cryptoHeaderLen+len(plain) {
		t.Fatalf("sealed length = %d, want %d", got, cryptoHeaderLen+len(plain))
	}
	if bytes.Contains(sealed.Bytes(), plain[:10]) {
		t.Fatal("ciphertext contains plaintext")
	}

	r, err := newZipCryptoReader(bytes.NewReader(sealed.Bytes()), password, 0, crc, 0)
	if err != nil {
		t.Fatalf("newZipCryptoReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("decrypted = %q, want %q", got, plain)
	}

	if _, err := newZipCryptoReader(bytes.NewReader(sealed.Bytes()), "wrong", 0, crc, 0); !errors.Is(err, ErrBadPassword) {
		t.Errorf("wrong password error = %v, want ErrBadPassword", err)
	}
}

func TestZipCryptoDescriptorCheck(t *testing.T) {
	const password = "pw"
	const modTime = uint16(0x5a33)

	var sealed bytes.Buffer
	w, err := newZipCryptoWriter(&sealed, password, checkByte(record.FlagDescriptor, 0, modTime))
	if err != nil {
		t.Fatalf("newZipCryptoWriter: %v", err)
	}
	if _, err := w.Write([]byte("streamed")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The CRC is unknown at read time too, so the check byte comes
	// from the mod time.
	r, err := newZipCryptoReader(bytes.NewReader(sealed.Bytes()), password, record.FlagDescriptor, 0, modTime)
	if err != nil {
		t.Fatalf("newZipCryptoReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "streamed" {
		t.Errorf("decrypted = %q, want %q", got, "streamed")
	}

	if _, err := newZipCryptoReader(bytes.NewReader(sealed.Bytes()), password, record.FlagDescriptor, 0, 0x1133); !errors.Is(err, ErrBadPassword) {
		t.Errorf("stale mod time error = %v, want ErrBadPassword", err)
	}
}

func TestZipCryptoShortHeader(t *testing.T) {
	_, err := newZipCryptoReader(bytes.NewReader([]byte{1, 2, 3}), "pw", 0, 0, 0)
	if !errors.Is(err, ErrFormat) {
		t.Errorf("short header error = %v, want ErrFormat", err)
	}
}
