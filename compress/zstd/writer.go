// Package zstd provides Zstandard streams and the compression-level model
// shared with the Parquet encoder.
//
// Numeric zstd levels (1 to 22) are accepted from configuration and folded
// into the four encoder speeds the Go implementation offers. Level 3, the
// zstd default, maps to SpeedDefault.
package zstd

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Bounds of the numeric zstd level range.
const (
	MinLevel = 1
	MaxLevel = 22
)

// CompressionLevel represents zstd compression levels.
type CompressionLevel int

const (
	// SpeedFastest corresponds to zstd levels 1 and 2.
	SpeedFastest CompressionLevel = iota + 1

	// SpeedDefault corresponds to zstd levels 3 to 5.
	SpeedDefault

	// SpeedBetterCompression corresponds to zstd levels 6 to 9.
	SpeedBetterCompression

	// SpeedBestCompression corresponds to zstd levels 10 and above.
	SpeedBestCompression
)

// LevelFromZstd converts a numeric zstd level into a CompressionLevel.
func LevelFromZstd(level int) (CompressionLevel, error) {
	if level < MinLevel || level > MaxLevel {
		return 0, fmt.Errorf("zstd: level %d out of range [%d, %d]", level, MinLevel, MaxLevel)
	}
	switch zstd.EncoderLevelFromZstd(level) {
	case zstd.SpeedFastest:
		return SpeedFastest, nil
	case zstd.SpeedBetterCompression:
		return SpeedBetterCompression, nil
	case zstd.SpeedBestCompression:
		return SpeedBestCompression, nil
	default:
		return SpeedDefault, nil
	}
}

// String returns the level name.
func (l CompressionLevel) String() string {
	switch l {
	case SpeedFastest:
		return "fastest"
	case SpeedDefault:
		return "default"
	case SpeedBetterCompression:
		return "better"
	case SpeedBestCompression:
		return "best"
	default:
		return fmt.Sprintf("CompressionLevel(%d)", int(l))
	}
}

// EncoderLevel converts the level to the zstd library's level.
func (l CompressionLevel) EncoderLevel() zstd.EncoderLevel {
	switch l {
	case SpeedFastest:
		return zstd.SpeedFastest
	case SpeedBetterCompression:
		return zstd.SpeedBetterCompression
	case SpeedBestCompression:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Writer wraps an io.WriteCloser with zstd compression.
type Writer struct {
	zw     *zstd.Encoder
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a new zstd writer with default compression level.
func NewWriter(w io.WriteCloser) (*Writer, error) {
	return NewWriterLevel(w, SpeedDefault)
}

// NewWriterLevel creates a new zstd writer with the specified compression level.
func NewWriterLevel(w io.WriteCloser, level CompressionLevel) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.EncoderLevel()))
	if err != nil {
		return nil, err
	}
	return &Writer{
		zw:     zw,
		closer: w,
	}, nil
}

// Write writes compressed data to the underlying writer.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}

	return w.zw.Write(p)
}

// Close flushes any remaining data and closes both the zstd encoder
// and the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	if err := w.zw.Close(); err != nil {
		_ = w.closer.Close()
		return err
	}

	return w.closer.Close()
}

var _ io.WriteCloser = (*Writer)(nil)
