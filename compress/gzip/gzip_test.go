package gzip

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWriteCloser wraps a bytes.Buffer with a Close method.
type testWriteCloser struct {
	*bytes.Buffer
	closed bool
}

func newTestWriteCloser() *testWriteCloser {
	return &testWriteCloser{Buffer: new(bytes.Buffer)}
}

func (t *testWriteCloser) Close() error {
	t.closed = true
	return nil
}

// testReadCloser wraps a bytes.Reader with a Close method.
type testReadCloser struct {
	*bytes.Reader
	closed bool
}

func newTestReadCloser(data []byte) *testReadCloser {
	return &testReadCloser{Reader: bytes.NewReader(data)}
}

func (t *testReadCloser) Close() error {
	t.closed = true
	return nil
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	buf := newTestWriteCloser()
	w, err := NewWriter(buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestWriterLevels(t *testing.T) {
	levels := []CompressionLevel{
		NoCompression,
		BestSpeed,
		DefaultCompression,
		BestCompression,
		HuffmanOnly,
	}

	data := []byte("ticker,conditions,exchange,id,participant_timestamp,price,size\n")

	for _, level := range levels {
		buf := newTestWriteCloser()
		w, err := NewWriterLevel(buf, level)
		require.NoError(t, err, "level %d", level)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.NotZero(t, buf.Len(), "level %d", level)
		assert.True(t, buf.closed, "level %d", level)
	}
}

func TestWriterClosed(t *testing.T) {
	w, err := NewWriter(newTestWriteCloser())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("test"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.NoError(t, w.Close())
}

func TestRoundTrip(t *testing.T) {
	original := "X:BTC-USD,1,4,123,1690000000000,29000.5,0.25\n"

	src := newTestReadCloser(gzipped(t, original))
	r, err := NewReader(src)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, original, string(got))
	assert.Equal(t, int64(len(original)), r.N())
	assert.True(t, src.closed)
}

func TestReaderConcatenatedMembers(t *testing.T) {
	data := append(gzipped(t, "header\n"), gzipped(t, "row\n")...)

	r, err := NewReader(newTestReadCloser(data))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "header\nrow\n", string(got))
}

func TestReaderInvalidData(t *testing.T) {
	_, err := NewReader(newTestReadCloser([]byte("not gzip at all")))
	assert.Error(t, err)
}

func TestReaderClosed(t *testing.T) {
	r, err := NewReader(newTestReadCloser(gzipped(t, "data")))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.NoError(t, r.Close())
}
