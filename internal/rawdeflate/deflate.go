// Package rawdeflate compresses and decompresses RPF7 entry payloads using
// raw DEFLATE framing, with no zlib or gzip envelope.
package rawdeflate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const readChunkSize = 32 * 1024

// Compress returns the raw DEFLATE encoding of data at best-compression
// effort. There is no size-based fallback: the result is returned even
// when it is larger than data, matching the archive format's behavior of
// always compressing eligible entries.
func Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("rawdeflate: new writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("rawdeflate: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("rawdeflate: flush: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress inflates a raw DEFLATE stream. It is deliberately lenient:
// any error encountered mid-stream, including a truncated or corrupt
// tail, ends decoding and returns whatever bytes were produced so far
// rather than failing the call. This mirrors the reference decoder's
// "stop as soon as inflate stops returning OK" loop.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	var out bytes.Buffer
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				break // lenient: swallow the error, keep what we decoded
			}
			break
		}
	}
	return out.Bytes(), nil
}
