package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cryptoe/flatbridge"
)

// Reader implements flatbridge.RecordReader for NDJSON.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	closed  bool
	mu      sync.Mutex
}

// NewReader creates a new NDJSON reader that reads from the given io.ReadCloser.
// The reader will be closed when the NDJSON reader is closed.
func NewReader(r io.ReadCloser) *Reader {
	return NewReaderSize(r, DefaultBufferSize)
}

// NewReaderSize creates a new NDJSON reader with the specified buffer size.
// The buffer size bounds the longest line that can be read.
func NewReaderSize(r io.ReadCloser, bufferSize int) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufferSize), bufferSize)
	return &Reader{
		scanner: scanner,
		closer:  r,
	}
}

// Read returns the next non-empty line. It returns io.EOF when the input is
// exhausted. The returned slice is a copy owned by the caller.
func (r *Reader) Read() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, flatbridge.ErrReaderClosed
	}

	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

// Decode reads the next record and unmarshals it into v.
func (r *Reader) Decode(v any) error {
	data, err := r.Read()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ndjson: line %d: %w", r.line, err)
	}
	return nil
}

// Close releases any resources held by the reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.closer.Close()
}

var _ flatbridge.RecordReader = (*Reader)(nil)
