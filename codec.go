// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
)

// Compressor transforms raw data into compressed data.
type Compressor interface {
	// Compress consumes src, writes the encoded stream to dest, and
	// returns the number of raw bytes consumed.
	Compress(src io.Reader, dest io.Writer) (int64, error)
}

// Decompressor transforms compressed data back into raw data. The
// source is bounded to the entry's compressed size; a stream that needs
// more than that budget is malformed.
type Decompressor interface {
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// storeCompressor is the identity transform.
type storeCompressor struct{}

func (storeCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	return io.Copy(dest, src)
}

// deflateCompressor emits raw deflate streams, pooling writers per
// level.
type deflateCompressor struct {
	pool sync.Pool
}

func newDeflateCompressor(level int) *deflateCompressor {
	return &deflateCompressor{
		pool: sync.Pool{
			New: func() any {
				w, _ := flate.NewWriter(io.Discard, level)
				return w
			},
		},
	}
}

func (d *deflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w := d.pool.Get().(*flate.Writer)
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}
	return n, w.Close()
}

// bzip2Compressor maps the compression level to the bzip2 block size.
type bzip2Compressor struct {
	level int
}

func (b *bzip2Compressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w, err := bzip2.NewWriter(dest, &bzip2.WriterConfig{Level: b.level})
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

type storeDecompressor struct{}

func (storeDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

type deflateDecompressor struct{}

func (deflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

type bzip2Decompressor struct{}

func (bzip2Decompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	r, err := bzip2.NewReader(src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return r, nil
}

type compressorKey struct {
	method Method
	level  int
}

var (
	codecMu     sync.Mutex
	compressors = map[compressorKey]Compressor{}
)

// newCompressor resolves the encoder for a method and level. Stateful
// encoders are cached so their pools survive across operations.
func newCompressor(method Method, level int) (Compressor, error) {
	if method == Store {
		return storeCompressor{}, nil
	}

	key := compressorKey{method, level}
	codecMu.Lock()
	defer codecMu.Unlock()

	if c, ok := compressors[key]; ok {
		return c, nil
	}
	var c Compressor
	switch method {
	case Deflate:
		c = newDeflateCompressor(level)
	case Bzip2:
		c = &bzip2Compressor{level: level}
	default:
		return nil, fmt.Errorf("%w: compression method %d", ErrNotImplemented, uint16(method))
	}
	compressors[key] = c
	return c, nil
}

func newDecompressor(method Method) (Decompressor, error) {
	switch method {
	case Store:
		return storeDecompressor{}, nil
	case Deflate:
		return deflateDecompressor{}, nil
	case Bzip2:
		return bzip2Decompressor{}, nil
	default:
		return nil, fmt.Errorf("%w: compression method %d", ErrNotImplemented, uint16(method))
	}
}
