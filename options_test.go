package flatbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithMetadataMerges(t *testing.T) {
	c := ApplyWriterOptions(
		WithContentType("application/vnd.apache.parquet"),
		WithMetadata(map[string]string{"date": "2024-01-01", "run_id": "a"}),
		WithMetadata(map[string]string{"run_id": "b"}),
	)
	assert.Equal(t, "application/vnd.apache.parquet", c.ContentType)
	assert.Equal(t, map[string]string{"date": "2024-01-01", "run_id": "b"}, c.Metadata)
}

func TestReaderRange(t *testing.T) {
	tests := []struct {
		name   string
		opts   []ReaderOption
		ranged bool
		header string
	}{
		{"whole", nil, false, ""},
		{"offset", []ReaderOption{WithOffset(10)}, true, "bytes=10-"},
		{"limit", []ReaderOption{WithLimit(5)}, true, "bytes=0-4"},
		{"resume", []ReaderOption{WithOffset(10), WithLimit(90)}, true, "bytes=10-99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ApplyReaderOptions(tt.opts...)
			assert.Equal(t, tt.ranged, c.Ranged())
			assert.Equal(t, tt.header, c.HTTPRange())
		})
	}
}
