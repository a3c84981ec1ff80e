// Package ndjson reads and writes newline-delimited JSON.
//
// Pipeline runs emit one JSON object per processed file to an NDJSON run
// report, which downstream tooling tails or loads as a table.
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

const (
	// DefaultBufferSize is the default buffer size for writers.
	DefaultBufferSize = 64 * 1024 // 64KB
)

// Writer implements flatbridge.RecordWriter for NDJSON.
// Each record is written as a single line followed by a newline character.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a new NDJSON writer that writes to the given io.WriteCloser.
// The writer will be closed when the NDJSON writer is closed.
func NewWriter(w io.WriteCloser) *Writer {
	return NewWriterSize(w, DefaultBufferSize)
}

// NewWriterSize creates a new NDJSON writer with the specified buffer size.
func NewWriterSize(w io.WriteCloser, bufferSize int) *Writer {
	return &Writer{
		w:      bufio.NewWriterSize(w, bufferSize),
		closer: w,
	}
}

// Write writes a single record. Trailing whitespace is trimmed; embedded
// newlines are rejected since they would split the record.
func (w *Writer) Write(data []byte) error {
	data = bytes.TrimRight(data, " \t\r\n")
	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("ndjson: record contains a newline")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return flatbridge.ErrWriterClosed
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Encode marshals v as JSON and writes it as one record.
func (w *Writer) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ndjson: encoding record: %w", err)
	}
	return w.Write(data)
}

// Flush flushes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return flatbridge.ErrWriterClosed
	}

	return w.w.Flush()
}

// Close flushes any remaining data and closes the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	if err := w.w.Flush(); err != nil {
		_ = w.closer.Close()
		return err
	}

	return w.closer.Close()
}

var _ flatbridge.RecordWriter = (*Writer)(nil)
