// Package oodlebundle reads companion bundle files: chunked,
// Oodle-compressed side-channels an RPF7 archive can reference for
// streamed assets larger than an entry's 24-bit size field can address.
package oodlebundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/new-world-tools/go-oodle"
)

// Bundle is a read-only handle to an open companion bundle file.
type Bundle struct {
	file       *os.File
	header     Header
	chunkSizes []int32
	cached     []byte
}

// Open reads a companion bundle's header and chunk-size table at path.
// The payload itself is decoded lazily by ReadFull/ReadAt.
func Open(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("oodlebundle: open %s: %w", path, err)
	}

	b := &Bundle{file: f}

	headerBytes := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("oodlebundle: read header %s: %w", path, err)
	}
	if err := binary.Read(bytes.NewReader(headerBytes), binary.LittleEndian, &b.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("oodlebundle: parse header %s: %w", path, err)
	}
	if b.header.ChunkCount < 0 || b.header.ChunkCount > 1_000_000 {
		f.Close()
		return nil, fmt.Errorf("oodlebundle: unreasonable chunk count %d in %s", b.header.ChunkCount, path)
	}

	if b.header.ChunkCount > 0 {
		b.chunkSizes = make([]int32, b.header.ChunkCount)
		if err := binary.Read(f, binary.LittleEndian, &b.chunkSizes); err != nil {
			f.Close()
			return nil, fmt.Errorf("oodlebundle: read chunk table %s: %w", path, err)
		}
	}

	return b, nil
}

// Close releases the underlying file handle. It is idempotent.
func (b *Bundle) Close() error {
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

func (b *Bundle) lastChunkTargetSize() int32 {
	if b.header.ChunkCount == 0 {
		return 0
	}
	return b.header.UncompressedSize - b.header.ChunkSize*(b.header.ChunkCount-1)
}

// ReadFull decompresses the bundle's entire payload and caches the
// result for subsequent calls.
func (b *Bundle) ReadFull() ([]byte, error) {
	if b.file == nil {
		return nil, fmt.Errorf("oodlebundle: bundle is closed")
	}
	if b.header.UncompressedSize == 0 {
		return []byte{}, nil
	}
	if b.cached != nil {
		return b.cached, nil
	}

	out := make([]byte, b.header.UncompressedSize)
	dataOffset := int64(HeaderSize) + int64(b.header.ChunkCount)*4
	var written int32

	for i := int32(0); i < b.header.ChunkCount; i++ {
		compressedSize := b.chunkSizes[i]
		if compressedSize < 0 {
			return nil, fmt.Errorf("oodlebundle: negative chunk size at index %d", i)
		}

		target := b.header.ChunkSize
		if i == b.header.ChunkCount-1 {
			target = b.lastChunkTargetSize()
		}

		compressed := make([]byte, compressedSize)
		if _, err := b.file.ReadAt(compressed, dataOffset); err != nil {
			return nil, fmt.Errorf("oodlebundle: read chunk %d: %w", i, err)
		}

		dst := out[written : written+target]
		if Compressor(b.header.Compressor) == CompressorNone {
			if compressedSize != target {
				return nil, fmt.Errorf("oodlebundle: size mismatch for uncompressed chunk %d: got %d, want %d", i, compressedSize, target)
			}
			copy(dst, compressed)
		} else {
			decoded, err := oodle.Decompress(compressed, int64(target))
			if err != nil {
				return nil, fmt.Errorf("oodlebundle: decompress chunk %d (compressor %d): %w", i, b.header.Compressor, err)
			}
			if len(decoded) != int(target) {
				return nil, fmt.Errorf("oodlebundle: chunk %d decompressed to %d bytes, want %d", i, len(decoded), target)
			}
			copy(dst, decoded)
		}

		dataOffset += int64(compressedSize)
		written += target
	}

	b.cached = out
	return b.cached, nil
}

// ReadAt extracts a byte range from the bundle's decompressed content.
func (b *Bundle) ReadAt(offset, size int32) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	full, err := b.ReadFull()
	if err != nil {
		return nil, err
	}
	if offset < 0 || int64(offset)+int64(size) > int64(len(full)) {
		return nil, fmt.Errorf("oodlebundle: range [%d,%d) out of bounds (len %d)", offset, offset+size, len(full))
	}
	return full[offset : offset+size], nil
}
