package testutil

import "io"

// ChunkedReader returns exactly one chunk per Read call, which lets tests
// control where read boundaries fall inside a byte stream.
type ChunkedReader struct {
	chunks [][]byte
	closed bool
}

// NewChunkedReader splits data at the given byte offsets.
func NewChunkedReader(data []byte, cuts ...int) *ChunkedReader {
	r := &ChunkedReader{}
	prev := 0
	for _, c := range cuts {
		if c <= prev || c >= len(data) {
			continue
		}
		r.chunks = append(r.chunks, data[prev:c])
		prev = c
	}
	r.chunks = append(r.chunks, data[prev:])
	return r
}

// EveryByte splits data into single-byte chunks.
func EveryByte(data []byte) *ChunkedReader {
	r := &ChunkedReader{}
	for i := range data {
		r.chunks = append(r.chunks, data[i:i+1])
	}
	return r
}

func (r *ChunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

// Close marks the reader as closed.
func (r *ChunkedReader) Close() error {
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *ChunkedReader) Closed() bool { return r.closed }
