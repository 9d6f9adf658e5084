// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec encodes blocks of bytes with a compression algorithm and
// an integrity checksum.
//
// An encoded block is laid out as:
//
//	[0]     compression kind
//	[1:5]   size of the decoded payload (little endian)
//	[5:13]  xxhash64 of the decoded payload (little endian)
//	[13:]   compressed payload
package codec // import "sbinet.org/x/dmd/internal/codec"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind is a compression algorithm.
type Kind uint8

const (
	None Kind = iota
	Zstd
	LZ4
	S2
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case S2:
		return "s2"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Parse returns the compression kind with the provided name.
func Parse(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	case "s2":
		return S2, nil
	}
	return 0, fmt.Errorf("codec: unknown compression %q", name)
}

const hdrSize = 1 + 4 + 8

var (
	ErrChecksum = errors.New("codec: checksum mismatch")
	ErrShort    = errors.New("codec: block too short")
)

var (
	zstdEncoders = sync.Pool{
		New: func() any {
			enc, err := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(zstd.SpeedDefault),
				zstd.WithEncoderCRC(false),
			)
			if err != nil {
				panic(fmt.Errorf("could not create zstd encoder: %w", err))
			}
			return enc
		},
	}
	zstdDecoders = sync.Pool{
		New: func() any {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				panic(fmt.Errorf("could not create zstd decoder: %w", err))
			}
			return dec
		},
	}
	lz4Compressors = sync.Pool{
		New: func() any { return new(lz4.Compressor) },
	}
)

// Encode compresses src with the provided algorithm.
func Encode(kind Kind, src []byte) ([]byte, error) {
	hdr := make([]byte, hdrSize, hdrSize+len(src))
	hdr[0] = byte(kind)
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(src)))
	binary.LittleEndian.PutUint64(hdr[5:13], xxhash.Sum64(src))

	switch kind {
	case None:
		return append(hdr, src...), nil

	case Zstd:
		if len(src) == 0 {
			return hdr, nil
		}
		enc := zstdEncoders.Get().(*zstd.Encoder)
		defer zstdEncoders.Put(enc)
		return enc.EncodeAll(src, hdr), nil

	case LZ4:
		if len(src) == 0 {
			return hdr, nil
		}
		lc := lz4Compressors.Get().(*lz4.Compressor)
		defer lz4Compressors.Put(lc)

		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lc.CompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("could not compress lz4 block: %w", err)
		}
		if n == 0 {
			// incompressible data.
			hdr[0] = byte(None)
			return append(hdr, src...), nil
		}
		return append(hdr, dst[:n]...), nil

	case S2:
		return append(hdr, s2.Encode(nil, src)...), nil
	}

	return nil, fmt.Errorf("codec: unknown compression %v", kind)
}

// Decode decompresses a block created with Encode and verifies its checksum.
func Decode(blk []byte) ([]byte, error) {
	if len(blk) < hdrSize {
		return nil, ErrShort
	}
	var (
		kind = Kind(blk[0])
		size = int(binary.LittleEndian.Uint32(blk[1:5]))
		sum  = binary.LittleEndian.Uint64(blk[5:13])
		src  = blk[hdrSize:]
		dst  []byte
		err  error
	)

	switch kind {
	case None:
		dst = append([]byte(nil), src...)

	case Zstd:
		if size == 0 {
			break
		}
		dec := zstdDecoders.Get().(*zstd.Decoder)
		defer zstdDecoders.Put(dec)
		dst, err = dec.DecodeAll(src, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("could not decompress zstd block: %w", err)
		}

	case LZ4:
		dst = make([]byte, size)
		if size > 0 {
			n, err := lz4.UncompressBlock(src, dst)
			if err != nil {
				return nil, fmt.Errorf("could not decompress lz4 block: %w", err)
			}
			dst = dst[:n]
		}

	case S2:
		dst, err = s2.Decode(make([]byte, size), src)
		if err != nil {
			return nil, fmt.Errorf("could not decompress s2 block: %w", err)
		}

	default:
		return nil, fmt.Errorf("codec: unknown compression %v", kind)
	}

	if len(dst) != size {
		return nil, fmt.Errorf("codec: invalid %v block size (got=%d, want=%d)", kind, len(dst), size)
	}
	if xxhash.Sum64(dst) != sum {
		return nil, ErrChecksum
	}
	return dst, nil
}
