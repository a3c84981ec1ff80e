// Package convert turns a decompressed trades CSV stream into a
// Zstd-compressed Parquet artifact.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	pqzstd "github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/cryptoe/flatbridge/compress/zstd"
	"github.com/cryptoe/flatbridge/internal/schema"
)

// Defaults.
const (
	DefaultCompressionLevel = 3
	DefaultBatchSize        = 4096
	DefaultRowGroupSize     = 1_000_000
)

// Metadata is a key/value pair stored in the Parquet footer.
type Metadata struct {
	Key   string
	Value string
}

// Stats describes one conversion.
type Stats struct {
	Rows  int64
	Bytes int64
}

// EncodeError reports a failure of the Parquet encoder.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "convert: encode: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// IsEncodeError reports whether err is or wraps an *EncodeError.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}

// Converter encodes trades as Parquet. It is safe for concurrent use.
type Converter struct {
	level        zstd.CompressionLevel
	batchSize    int
	rowGroupSize int64
}

// Option configures a Converter.
type Option func(*Converter)

// WithCompressionLevel sets the Zstd level of the Parquet pages.
func WithCompressionLevel(level zstd.CompressionLevel) Option {
	return func(c *Converter) {
		c.level = level
	}
}

// WithBatchSize sets how many rows are decoded before being handed to the
// encoder.
func WithBatchSize(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithRowGroupSize caps the rows per Parquet row group.
func WithRowGroupSize(n int64) Option {
	return func(c *Converter) {
		if n > 0 {
			c.rowGroupSize = n
		}
	}
}

// New creates a Converter.
func New(opts ...Option) *Converter {
	level, _ := zstd.LevelFromZstd(DefaultCompressionLevel)
	c := &Converter{
		level:        level,
		batchSize:    DefaultBatchSize,
		rowGroupSize: DefaultRowGroupSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Level returns the configured compression level.
func (c *Converter) Level() zstd.CompressionLevel {
	return c.level
}

// Convert decodes CSV from r and writes Parquet to w. Malformed input
// yields a *schema.ParseError and encoder failures an *EncodeError; in
// both cases w holds an incomplete artifact.
func (c *Converter) Convert(r io.Reader, w io.Writer, meta ...Metadata) (Stats, error) {
	var stats Stats

	dec, err := schema.NewDecoder(r)
	if err != nil {
		return stats, err
	}

	cw := &countingWriter{w: w}
	pw := parquet.NewGenericWriter[schema.Trade](cw, c.writerOptions(meta)...)

	batch := make([]schema.Trade, c.batchSize)
	for {
		n, readErr := c.fill(dec, batch)
		if n > 0 {
			if _, err := pw.Write(batch[:n]); err != nil {
				return stats, &EncodeError{Err: err}
			}
			stats.Rows += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return stats, readErr
		}
	}

	if err := pw.Close(); err != nil {
		return stats, &EncodeError{Err: err}
	}
	stats.Bytes = cw.n
	return stats, nil
}

// ConvertBytes converts a whole decompressed file held in memory.
func (c *Converter) ConvertBytes(raw []byte, meta ...Metadata) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.Convert(bytes.NewReader(raw), &buf, meta...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fill decodes up to len(batch) trades.
func (c *Converter) fill(dec *schema.Decoder, batch []schema.Trade) (int, error) {
	for i := range batch {
		if err := dec.Decode(&batch[i]); err != nil {
			return i, err
		}
	}
	return len(batch), nil
}

func (c *Converter) writerOptions(meta []Metadata) []parquet.WriterOption {
	opts := []parquet.WriterOption{
		parquet.Compression(parquetCodec(c.level)),
		parquet.MaxRowsPerRowGroup(c.rowGroupSize),
	}
	for _, m := range meta {
		opts = append(opts, parquet.KeyValueMetadata(m.Key, m.Value))
	}
	return opts
}

func parquetCodec(l zstd.CompressionLevel) *pqzstd.Codec {
	switch l {
	case zstd.SpeedFastest:
		return &pqzstd.Codec{Level: pqzstd.SpeedFastest}
	case zstd.SpeedBetterCompression:
		return &pqzstd.Codec{Level: pqzstd.SpeedBetterCompression}
	case zstd.SpeedBestCompression:
		return &pqzstd.Codec{Level: pqzstd.SpeedBestCompression}
	default:
		return &pqzstd.Codec{Level: pqzstd.SpeedDefault}
	}
}

// ReadTrades decodes a Parquet artifact produced by Convert.
func ReadTrades(data []byte) ([]schema.Trade, error) {
	trades, err := parquet.Read[schema.Trade](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("convert: reading parquet: %w", err)
	}
	return trades, nil
}

// Footer returns the key/value metadata of a Parquet artifact.
func Footer(data []byte) (map[string]string, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("convert: opening parquet: %w", err)
	}
	out := make(map[string]string)
	for _, kv := range f.Metadata().KeyValueMetadata {
		out[kv.Key] = kv.Value
	}
	return out, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
