// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"crypto/rand"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/zipkit/zipkit/internal/record"
)

// cryptoHeaderLen is the encrypted preheader preceding the payload: 11
// random bytes plus one check byte.
const cryptoHeaderLen = 12

const cipherMagic = 134775813

// zipCipher implements the legacy PKWARE ZipCrypto algorithm. It is
// weak and supported for interoperability; write-side use is opt-in.
type zipCipher struct {
	k0, k1, k2 uint32
}

func newZipCipher(password string) *zipCipher {
	z := &zipCipher{
		k0: 0x12345678,
		k1: 0x23456789,
		k2: 0x34567890,
	}
	for i := 0; i < len(password); i++ {
		z.updateKeys(password[i])
	}
	return z
}

func (z *zipCipher) updateKeys(b byte) {
	z.k0 = crc32.IEEETable[(z.k0^uint32(b))&0xff] ^ (z.k0 >> 8)
	z.k1 = z.k1 + (z.k0 & 0xff)
	z.k1 = z.k1*cipherMagic + 1
	z.k2 = crc32.IEEETable[(z.k2^uint32(byte(z.k1>>24)))&0xff] ^ (z.k2 >> 8)
}

func (z *zipCipher) magicByte() byte {
	t := z.k2 | 2
	return byte((t * (t ^ 1)) >> 8)
}

// Encrypt transforms buf in place. The key state advances on the
// plaintext byte.
func (z *zipCipher) Encrypt(buf []byte) {
	for i, b := range buf {
		c := b ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = c
	}
}

// Decrypt transforms buf in place.
func (z *zipCipher) Decrypt(buf []byte) {
	for i, c := range buf {
		b := c ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = b
	}
}

// checkByte is the preheader's 12th byte. With the descriptor flag set
// the local header carries no CRC at encryption time, so the format
// falls back to the high byte of the DOS mod-time.
func checkByte(flags uint16, crc uint32, modTime uint16) byte {
	if flags&record.FlagDescriptor != 0 {
		return byte(modTime >> 8)
	}
	return byte(crc >> 24)
}

// zipCryptoReader decrypts a ZipCrypto payload.
type zipCryptoReader struct {
	src    io.Reader
	cipher *zipCipher
}

// newZipCryptoReader consumes and verifies the 12-byte preheader from
// src, returning ErrBadPassword on a check-byte mismatch.
func newZipCryptoReader(src io.Reader, password string, flags uint16, crc uint32, modTime uint16) (io.Reader, error) {
	cipher := newZipCipher(password)

	var header [cryptoHeaderLen]byte
	if _, err := io.ReadFull(src, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short encryption header", ErrFormat)
	}
	cipher.Decrypt(header[:])

	if header[cryptoHeaderLen-1] != checkByte(flags, crc, modTime) {
		return nil, ErrBadPassword
	}

	return &zipCryptoReader{src: src, cipher: cipher}, nil
}

func (r *zipCryptoReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.cipher.Decrypt(p[:n])
	}
	return n, err
}

// zipCryptoWriter encrypts a payload as it is written.
type zipCryptoWriter struct {
	dest    io.Writer
	cipher  *zipCipher
	scratch []byte
}

// newZipCryptoWriter emits the encrypted 12-byte preheader to dest and
// returns a writer that encrypts everything that follows.
func newZipCryptoWriter(dest io.Writer, password string, check byte) (*zipCryptoWriter, error) {
	cipher := newZipCipher(password)

	header := make([]byte, cryptoHeaderLen)
	if _, err := rand.Read(header[:cryptoHeaderLen-1]); err != nil {
		return nil, fmt.Errorf("crypto rand: %w", err)
	}
	header[cryptoHeaderLen-1] = check
	cipher.Encrypt(header)

	if _, err := dest.Write(header); err != nil {
		return nil, fmt.Errorf("write encryption header: %w", err)
	}

	return &zipCryptoWriter{dest: dest, cipher: cipher}, nil
}

func (w *zipCryptoWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if cap(w.scratch) < len(p) {
		w.scratch = make([]byte, len(p))
	}
	buf := w.scratch[:len(p)]
	copy(buf, p)
	w.cipher.Encrypt(buf)
	return w.dest.Write(buf)
}
