package gzip

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// Reader decompresses a gzip stream and counts the bytes it yields.
//
// Concatenated gzip members are read as one stream, which is how daily
// flat files assembled from several uploads are laid out. A Reader is
// owned by one goroutine.
type Reader struct {
	gr  *gzip.Reader
	src io.Closer
	n   int64
	err error
}

// NewReader reads the gzip header from r immediately, so a source that is
// not gzip fails here rather than on the first Read. Closing the Reader
// closes r.
func NewReader(r io.ReadCloser) (*Reader, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{gr: gr, src: r}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.gr.Read(p)
	r.n += int64(n)
	return n, err
}

// N returns the number of decompressed bytes read so far.
func (r *Reader) N() int64 {
	return r.n
}

// Name returns the file name recorded in the gzip header, if any.
func (r *Reader) Name() string {
	return r.gr.Name
}

// Close releases the decoder and closes the source. Reads after Close
// return io.ErrClosedPipe.
func (r *Reader) Close() error {
	if r.err != nil {
		return nil
	}
	r.err = io.ErrClosedPipe
	err := r.gr.Close()
	if cerr := r.src.Close(); err == nil {
		err = cerr
	}
	return err
}
