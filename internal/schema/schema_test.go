package schema

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "ticker,conditions,exchange,id,participant_timestamp,price,size\n"

func TestDecodeRow(t *testing.T) {
	d, err := NewDecoder(strings.NewReader(header + "AAPL,1,4,123,1690000000000,150.25,100.0\n"))
	require.NoError(t, err)

	var tr Trade
	require.NoError(t, d.Decode(&tr))
	assert.Equal(t, Trade{
		Ticker:               Ptr("AAPL"),
		Conditions:           Ptr(int32(1)),
		Exchange:             Ptr(int32(4)),
		ID:                   Ptr(int64(123)),
		ParticipantTimestamp: Ptr(int64(1690000000000)),
		Price:                Ptr(150.25),
		Size:                 Ptr(100.0),
	}, tr)
	assert.Equal(t, 2, d.Line())

	assert.ErrorIs(t, d.Decode(&tr), io.EOF)
}

func TestDecodeReorderedAndExtraColumns(t *testing.T) {
	in := "size,price,extra,participant_timestamp,id,exchange,conditions,ticker\n" +
		"0.5,42000.1,x,1700000000000,9,1,2,X:BTCUSD\n"
	d, err := NewDecoder(strings.NewReader(in))
	require.NoError(t, err)

	trades, err := d.ReadAll()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, Ptr("X:BTCUSD"), trades[0].Ticker)
	assert.Equal(t, Ptr(int32(2)), trades[0].Conditions)
	assert.Equal(t, Ptr(int32(1)), trades[0].Exchange)
	assert.Equal(t, Ptr(0.5), trades[0].Size)
}

func TestDecodeHeaderWithBOM(t *testing.T) {
	d, err := NewDecoder(strings.NewReader("\ufeff" + header + "AAPL,1,4,123,1,1.5,2\n"))
	require.NoError(t, err)
	trades, err := d.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, Ptr("AAPL"), trades[0].Ticker)
}

func TestDecodeEmptyCellsAreNull(t *testing.T) {
	d, err := NewDecoder(strings.NewReader(header + "X:BTC-USD,,1,5,1690000000000,29000.5,0.25\n,2,,6, ,,\n"))
	require.NoError(t, err)

	trades, err := d.ReadAll()
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Nil(t, trades[0].Conditions)
	assert.Equal(t, Ptr("X:BTC-USD"), trades[0].Ticker)
	assert.Equal(t, Ptr(int32(1)), trades[0].Exchange)
	assert.Equal(t, Ptr(0.25), trades[0].Size)

	assert.Equal(t, Trade{Conditions: Ptr(int32(2)), ID: Ptr(int64(6))}, trades[1])
}

func TestDecodeResetsNulls(t *testing.T) {
	d, err := NewDecoder(strings.NewReader(header + "AAPL,1,4,123,1,1.5,2\nAAPL,,4,124,2,1.5,2\n"))
	require.NoError(t, err)

	var tr Trade
	require.NoError(t, d.Decode(&tr))
	require.NoError(t, d.Decode(&tr))
	assert.Nil(t, tr.Conditions)
	assert.Equal(t, Ptr(int64(124)), tr.ID)
}

func TestHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		column string
		want   error
	}{
		{"empty", "", "", ErrNoHeader},
		{"missing column", "ticker,conditions,exchange,id,participant_timestamp,price\n", "size", ErrMissingColumn},
		{"duplicate column", "ticker,ticker,conditions,exchange,id,participant_timestamp,price,size\n", "ticker", ErrDuplicateColumn},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDecoder(strings.NewReader(tc.input))
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 1, pe.Line)
			assert.Equal(t, tc.column, pe.Column)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRowErrors(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		column string
	}{
		{"bad int32", "AAPL,x,4,123,1,1.5,2", "conditions"},
		{"int32 overflow", "AAPL,1,4294967296,123,1,1.5,2", "exchange"},
		{"bad int64", "AAPL,1,4,1.5,1,1.5,2", "id"},
		{"bad float", "AAPL,1,4,123,1,abc,2", "price"},
		{"bad float after null", "AAPL,,4,123,1,,x", "size"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := NewDecoder(strings.NewReader(header + "AAPL,1,4,1,1,1,1\n" + tc.row + "\n"))
			require.NoError(t, err)

			_, err = d.ReadAll()
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 3, pe.Line)
			assert.Equal(t, tc.column, pe.Column)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestFieldCountMismatch(t *testing.T) {
	d, err := NewDecoder(strings.NewReader(header + "AAPL,1,4\n"))
	require.NoError(t, err)

	var tr Trade
	err = d.Decode(&tr)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.ErrorIs(t, err, csv.ErrFieldCount)
}

func TestParseErrorUnwrapsNumError(t *testing.T) {
	d, err := NewDecoder(strings.NewReader(header + "AAPL,1,4,123,1,NaNa,2\n"))
	require.NoError(t, err)

	var tr Trade
	err = d.Decode(&tr)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestReadFailureIsNotParseError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader(header+"AAPL,1,4,123,1,1.5,2\n"), &failingReader{err: boom})

	d, err := NewDecoder(r)
	require.NoError(t, err)

	_, err = d.ReadAll()
	require.ErrorIs(t, err, boom)
	assert.False(t, IsParseError(err))
}

func TestSchemaNames(t *testing.T) {
	assert.Equal(t, []string{
		"ticker", "conditions", "exchange", "id", "participant_timestamp", "price", "size",
	}, Trades.Names())
	assert.Contains(t, Trades.String(), "conditions:int32")
}

type failingReader struct {
	err error
}

func (f *failingReader) Read([]byte) (int, error) {
	return 0, f.err
}
