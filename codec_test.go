// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200))

	tests := []struct {
		name   string
		method Method
		level  int
	}{
		{"store", Store, 0},
		{"deflate fast", Deflate, 1},
		{"deflate default", Deflate, 6},
		{"deflate best", Deflate, 9},
		{"bzip2", Bzip2, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := newCompressor(tt.method, tt.level)
			if err != nil {
				t.Fatalf("newCompressor: %v", err)
			}

			var encoded bytes.Buffer
			n, err := comp.Compress(bytes.NewReader(payload), &encoded)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if n != int64(len(payload)) {
				t.Errorf("consumed %d bytes, want %d", n, len(payload))
			}
			if tt.method != Store && encoded.Len() >= len(payload) {
				t.Errorf("encoded %d bytes, want fewer than %d", encoded.Len(), len(payload))
			}

			dec, err := newDecompressor(tt.method)
			if err != nil {
				t.Fatalf("newDecompressor: %v", err)
			}
			rc, err := dec.Decompress(bytes.NewReader(encoded.Bytes()))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			defer rc.Close()

			decoded, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read decoded stream: %v", err)
			}
			if !bytes.Equal(decoded, payload) {
				t.Errorf("decoded %d bytes do not match original %d bytes", len(decoded), len(payload))
			}
		})
	}
}

func TestCompressorReuse(t *testing.T) {
	a, err := newCompressor(Deflate, 6)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newCompressor(Deflate, 6)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same method and level resolved to distinct compressors")
	}

	// Back to back use must not leak state between streams.
	for i := 0; i < 3; i++ {
		payload := bytes.Repeat([]byte{byte('a' + i)}, 4096)
		var encoded bytes.Buffer
		if _, err := a.Compress(bytes.NewReader(payload), &encoded); err != nil {
			t.Fatalf("Compress round %d: %v", i, err)
		}
		rc, err := deflateDecompressor{}.Decompress(&encoded)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("decode round %d: %v", i, err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Errorf("round %d corrupted payload", i)
		}
	}
}

func TestCodecUnknownMethod(t *testing.T) {
	if _, err := newCompressor(Method(14), 6); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("newCompressor unknown method: got %v, want ErrNotImplemented", err)
	}
	if _, err := newDecompressor(Method(99)); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("newDecompressor unknown method: got %v, want ErrNotImplemented", err)
	}
}

func TestDecompressTruncatedStream(t *testing.T) {
	payload := []byte(strings.Repeat("zipkit", 1000))

	comp, err := newCompressor(Deflate, 6)
	if err != nil {
		t.Fatal(err)
	}
	var encoded bytes.Buffer
	if _, err := comp.Compress(bytes.NewReader(payload), &encoded); err != nil {
		t.Fatal(err)
	}

	half := encoded.Bytes()[:encoded.Len()/2]
	rc, err := deflateDecompressor{}.Decompress(bytes.NewReader(half))
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if _, err := io.ReadAll(rc); err == nil {
		t.Error("reading a truncated deflate stream succeeded")
	}
}
