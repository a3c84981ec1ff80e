// Package compress selects a codec for an object by its name: inputs are
// decompressed with it and run reports may be compressed with it.
package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/cryptoe/flatbridge/compress/gzip"
	"github.com/cryptoe/flatbridge/compress/zstd"
)

// Codec names.
const (
	None = "none"
	Gzip = "gzip"
	Zstd = "zstd"
)

// Codec describes how an object's bytes are compressed.
type Codec struct {
	// Name is one of None, Gzip or Zstd.
	Name string

	// Ext is the file extension that selects the codec, including the dot.
	Ext string

	open   func(io.ReadCloser) (io.ReadCloser, error)
	create func(io.WriteCloser) (io.WriteCloser, error)
}

var codecs = []Codec{
	{
		Name: Gzip,
		Ext:  ".gz",
		open:   func(r io.ReadCloser) (io.ReadCloser, error) { return gzip.NewReader(r) },
		create: func(w io.WriteCloser) (io.WriteCloser, error) { return gzip.NewWriter(w) },
	},
	{
		Name: Zstd,
		Ext:  ".zst",
		open:   func(r io.ReadCloser) (io.ReadCloser, error) { return zstd.NewReader(r) },
		create: func(w io.WriteCloser) (io.WriteCloser, error) { return zstd.NewWriter(w) },
	},
}

// ForPath returns the codec implied by the path's final extension. Paths
// without a known compression extension are read as-is.
func ForPath(path string) Codec {
	for _, c := range codecs {
		if strings.HasSuffix(path, c.Ext) {
			return c
		}
	}
	return Codec{Name: None}
}

// ByName returns the codec with the given name.
func ByName(name string) (Codec, error) {
	if name == None || name == "" {
		return Codec{Name: None}, nil
	}
	for _, c := range codecs {
		if c.Name == name {
			return c, nil
		}
	}
	return Codec{}, fmt.Errorf("compress: unknown codec %q", name)
}

// NewReader wraps r with the codec's decompressor. Closing the returned
// reader closes r.
func (c Codec) NewReader(r io.ReadCloser) (io.ReadCloser, error) {
	if c.open == nil {
		return r, nil
	}
	dr, err := c.open(r)
	if err != nil {
		return nil, fmt.Errorf("%s: opening stream: %w", c.Name, err)
	}
	return dr, nil
}

// NewWriter wraps w with the codec's compressor. Closing the returned
// writer flushes the stream and closes w.
func (c Codec) NewWriter(w io.WriteCloser) (io.WriteCloser, error) {
	if c.create == nil {
		return w, nil
	}
	cw, err := c.create(w)
	if err != nil {
		return nil, fmt.Errorf("%s: creating stream: %w", c.Name, err)
	}
	return cw, nil
}

// Decompressed returns the number of bytes a reader returned by
// Codec.NewReader has yielded, or -1 when the codec does not count them.
func Decompressed(r io.Reader) int64 {
	if c, ok := r.(interface{ N() int64 }); ok {
		return c.N()
	}
	return -1
}

// TrimExt removes the codec's extension from path.
func (c Codec) TrimExt(path string) string {
	if c.Ext == "" {
		return path
	}
	return strings.TrimSuffix(path, c.Ext)
}
