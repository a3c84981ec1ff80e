package transfer

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-100))

	var l *Limiter
	src := bytes.NewReader([]byte("data"))
	assert.Equal(t, io.Reader(src), l.Reader(context.Background(), src))
}

func TestLimiterPassesDataThrough(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 200*1024)
	l := NewLimiter(100 * 1024 * 1024)

	got, err := io.ReadAll(l.Reader(context.Background(), bytes.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLimiterThrottles(t *testing.T) {
	// The burst covers the first 64KB; the next 64KB must wait about 1s
	// at 64KB/s.
	l := NewLimiter(chunkSize)
	data := bytes.Repeat([]byte("y"), 2*chunkSize)

	start := time.Now()
	_, err := io.ReadAll(l.Reader(context.Background(), bytes.NewReader(data)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	l := NewLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())

	r := l.Reader(ctx, bytes.NewReader(bytes.Repeat([]byte("z"), 3*chunkSize)))
	buf := make([]byte, chunkSize)
	// The first read drains the burst.
	_, err := r.Read(buf)
	require.NoError(t, err)

	cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}
