package zstd

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Reader decompresses a zstd stream and counts the bytes it yields.
// A Reader is owned by one goroutine.
type Reader struct {
	zr  *zstd.Decoder
	src io.Closer
	n   int64
	err error
}

// NewReader creates a zstd reader over r. Decoding runs on a single
// goroutine so that concurrent pipeline workers do not multiply decoder
// goroutines. Closing the Reader closes r.
func NewReader(r io.ReadCloser, opts ...zstd.DOption) (*Reader, error) {
	zr, err := zstd.NewReader(r, append([]zstd.DOption{zstd.WithDecoderConcurrency(1)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Reader{zr: zr, src: r}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.zr.Read(p)
	r.n += int64(n)
	return n, err
}

// N returns the number of decompressed bytes read so far.
func (r *Reader) N() int64 {
	return r.n
}

// Close releases the decoder and closes the source.
func (r *Reader) Close() error {
	if r.err != nil {
		return nil
	}
	r.err = io.ErrClosedPipe
	r.zr.Close()
	return r.src.Close()
}
