package convert

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoe/flatbridge/compress/zstd"
	"github.com/cryptoe/flatbridge/internal/schema"
)

const header = "ticker,conditions,exchange,id,participant_timestamp,price,size\n"

func TestConvertRoundTrip(t *testing.T) {
	c := New()

	out, err := c.ConvertBytes([]byte(header + "AAPL,1,4,123,1690000000000,150.25,100.0\n"))
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "PAR1", string(out[:4]))

	trades, err := ReadTrades(out)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, schema.Trade{
		Ticker:               schema.Ptr("AAPL"),
		Conditions:           schema.Ptr(int32(1)),
		Exchange:             schema.Ptr(int32(4)),
		ID:                   schema.Ptr(int64(123)),
		ParticipantTimestamp: schema.Ptr(int64(1690000000000)),
		Price:                schema.Ptr(150.25),
		Size:                 schema.Ptr(100.0),
	}, trades[0])
}

func TestConvertManyRowsAcrossBatches(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(header)
	for i := range 1000 {
		fmt.Fprintf(&sb, "X:BTCUSD,%d,1,%d,%d,%d.5,0.01\n", i%3, i, 1700000000000+int64(i), 40000+i)
	}

	c := New(WithBatchSize(64), WithRowGroupSize(300))
	var buf bytes.Buffer
	stats, err := c.Convert(strings.NewReader(sb.String()), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stats.Rows)
	assert.Equal(t, int64(buf.Len()), stats.Bytes)

	trades, err := ReadTrades(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, trades, 1000)
	for i, tr := range trades {
		assert.Equal(t, schema.Ptr(int64(i)), tr.ID)
	}
	assert.Equal(t, schema.Ptr(40999.5), trades[999].Price)
}

func TestConvertLogicallyDeterministic(t *testing.T) {
	in := []byte(header + "AAPL,1,4,123,1690000000000,150.25,100.0\nMSFT,0,2,124,1690000000001,300,5\n")
	c := New()

	a, err := c.ConvertBytes(in)
	require.NoError(t, err)
	b, err := c.ConvertBytes(in)
	require.NoError(t, err)

	ta, err := ReadTrades(a)
	require.NoError(t, err)
	tb, err := ReadTrades(b)
	require.NoError(t, err)
	assert.Equal(t, ta, tb)
}

func TestConvertNullCells(t *testing.T) {
	out, err := New().ConvertBytes([]byte(header + "X:BTC-USD,,1,5,1690000000000,29000.5,0.25\n"))
	require.NoError(t, err)

	trades, err := ReadTrades(out)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Nil(t, trades[0].Conditions)
	assert.Equal(t, schema.Ptr(int64(5)), trades[0].ID)
	assert.Equal(t, schema.Ptr(29000.5), trades[0].Price)
}

func TestConvertHeaderOnly(t *testing.T) {
	out, err := New().ConvertBytes([]byte(header))
	require.NoError(t, err)

	trades, err := ReadTrades(out)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestConvertParseError(t *testing.T) {
	_, err := New().ConvertBytes([]byte(header + "AAPL,1,4,123,1690000000000,not-a-price,100.0\n"))
	require.Error(t, err)
	assert.True(t, schema.IsParseError(err))
	assert.False(t, IsEncodeError(err))

	_, err = New().ConvertBytes([]byte("ticker,price\nAAPL,1\n"))
	assert.ErrorIs(t, err, schema.ErrMissingColumn)
}

func TestConvertEncodeError(t *testing.T) {
	boom := errors.New("disk full")
	_, err := New().Convert(strings.NewReader(header+"AAPL,1,4,123,1,1.5,2\n"), failingWriter{err: boom})
	require.Error(t, err)
	assert.True(t, IsEncodeError(err))
	assert.ErrorIs(t, err, boom)
}

func TestConvertMetadata(t *testing.T) {
	out, err := New().ConvertBytes([]byte(header+"AAPL,1,4,123,1,1.5,2\n"),
		Metadata{Key: "flatbridge.source", Value: "global_crypto/2024-03-01.csv.gz"},
		Metadata{Key: "flatbridge.date", Value: "2024-03-01"},
	)
	require.NoError(t, err)

	footer, err := Footer(out)
	require.NoError(t, err)
	assert.Equal(t, "global_crypto/2024-03-01.csv.gz", footer["flatbridge.source"])
	assert.Equal(t, "2024-03-01", footer["flatbridge.date"])
}

func TestCompressionLevels(t *testing.T) {
	assert.Equal(t, zstd.SpeedDefault, New().Level())

	in := []byte(header + "AAPL,1,4,123,1,1.5,2\n")
	for _, level := range []zstd.CompressionLevel{
		zstd.SpeedFastest, zstd.SpeedDefault, zstd.SpeedBetterCompression, zstd.SpeedBestCompression,
	} {
		t.Run(level.String(), func(t *testing.T) {
			out, err := New(WithCompressionLevel(level)).ConvertBytes(in)
			require.NoError(t, err)
			trades, err := ReadTrades(out)
			require.NoError(t, err)
			assert.Len(t, trades, 1)
		})
	}
}

func TestReadTradesRejectsGarbage(t *testing.T) {
	_, err := ReadTrades([]byte("not parquet"))
	assert.Error(t, err)
}

type failingWriter struct {
	err error
}

func (f failingWriter) Write([]byte) (int, error) {
	return 0, f.err
}
