package flatbridge

import (
	"fmt"
	"maps"
)

// WriterOption configures a writer created by Backend.NewWriter.
type WriterOption func(*WriterConfig)

// WriterConfig holds the settings collected from WriterOptions.
type WriterConfig struct {
	// ContentType is the MIME type recorded by object stores. The file and
	// sftp backends ignore it.
	ContentType string

	// Metadata is stored as custom object metadata where the backend
	// supports it.
	Metadata map[string]string
}

// WithContentType sets the object's MIME type.
func WithContentType(contentType string) WriterOption {
	return func(c *WriterConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata adds custom object metadata. Repeated options merge, later
// values winning on duplicate keys.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(c *WriterConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		maps.Copy(c.Metadata, metadata)
	}
}

// ApplyWriterOptions collects opts into a WriterConfig.
func ApplyWriterOptions(opts ...WriterOption) *WriterConfig {
	c := &WriterConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReaderOption configures a reader created by Backend.NewReader.
type ReaderOption func(*ReaderConfig)

// ReaderConfig selects the byte range to read. The zero value reads the
// whole object.
type ReaderConfig struct {
	Offset int64

	// Limit caps the bytes read. 0 means no limit.
	Limit int64
}

// WithOffset starts reading at offset.
func WithOffset(offset int64) ReaderOption {
	return func(c *ReaderConfig) {
		c.Offset = offset
	}
}

// WithLimit reads at most limit bytes.
func WithLimit(limit int64) ReaderOption {
	return func(c *ReaderConfig) {
		c.Limit = limit
	}
}

// ApplyReaderOptions collects opts into a ReaderConfig.
func ApplyReaderOptions(opts ...ReaderOption) *ReaderConfig {
	c := &ReaderConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ranged reports whether the config selects less than the whole object.
func (c *ReaderConfig) Ranged() bool {
	return c.Offset > 0 || c.Limit > 0
}

// HTTPRange returns the value of an HTTP Range header selecting the
// configured bytes, or "" for the whole object.
func (c *ReaderConfig) HTTPRange() string {
	switch {
	case c.Limit > 0:
		return fmt.Sprintf("bytes=%d-%d", c.Offset, c.Offset+c.Limit-1)
	case c.Offset > 0:
		return fmt.Sprintf("bytes=%d-", c.Offset)
	default:
		return ""
	}
}
