// Copyright (C) 2023 Crest Data, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package compr provides a unified interface wrapping
// third-party compression libraries.
package compr

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses blocks of data.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress appends the compressed contents
	// of src to dst and returns the result.
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses blocks produced
// by the Compressor with the same Name.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Decompress appends the decompressed contents
	// of src to dst and returns the result.
	//
	// It must be safe to call Decompress from
	// multiple goroutines simultaneously.
	Decompress(src, dst []byte) ([]byte, error)
}

// Compression returns the Compressor
// for the given algorithm name, or nil
// if the algorithm is unknown.
func Compression(name string) Compressor {
	switch name {
	case "zstd":
		return zstdCompressor{enc: zstdEncoder()}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Decompression returns the Decompressor
// for the given algorithm name, or an error
// if the algorithm is unknown.
func Decompression(name string) (Decompressor, error) {
	switch name {
	case "zstd":
		return zstdDecompressor{}, nil
	case "s2":
		return s2Decompressor{}, nil
	default:
		return nil, fmt.Errorf("compr: unknown decompressor %q", name)
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

// by default, zstd concurrency is min(4, GOMAXPROCS);
// we'd like it to always be GOMAXPROCS
func zstdInit() {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdEnc, zstdDec = enc, dec
}

func zstdEncoder() *zstd.Encoder {
	zstdOnce.Do(zstdInit)
	return zstdEnc
}

func zstdDecoder() *zstd.Decoder {
	zstdOnce.Do(zstdInit)
	return zstdDec
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Name() string { return "zstd" }

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

type zstdDecompressor struct{}

func (zstdDecompressor) Name() string { return "zstd" }

func (zstdDecompressor) Decompress(src, dst []byte) ([]byte, error) {
	return zstdDecoder().DecodeAll(src, dst)
}

type s2Compressor struct{}

func (s2Compressor) Name() string { return "s2" }

func (s2Compressor) Compress(src, dst []byte) []byte {
	// s2 wants a destination that does not overlap src
	out := s2.Encode(nil, src)
	return append(dst, out...)
}

type s2Decompressor struct{}

func (s2Decompressor) Name() string { return "s2" }

func (s2Decompressor) Decompress(src, dst []byte) ([]byte, error) {
	out, err := s2.Decode(nil, src)
	if err != nil {
		return nil, err
	}
	return append(dst, out...), nil
}
