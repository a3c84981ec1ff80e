package datekey

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	k, err := Parse("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, Key{Year: 2024, Month: time.March, Day: 1}, k)
	assert.Equal(t, "2024-03-01", k.String())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), k.Time())

	for _, bad := range []string{"", "not-a-date", "2024-3-1", "2024-02-30", "2024-03-01T00:00:00Z", "20240301"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestCompare(t *testing.T) {
	a := MustParse("2023-12-31")
	b := MustParse("2024-01-01")

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, b, a.AddDays(1))
	assert.Equal(t, MustParse("2024-02-29"), MustParse("2024-03-01").AddDays(-1))
}

func TestTextRoundTrip(t *testing.T) {
	k := MustParse("2024-03-01")
	b, err := k.MarshalText()
	require.NoError(t, err)

	var got Key
	require.NoError(t, got.UnmarshalText(b))
	assert.Equal(t, k, got)
	assert.Error(t, got.UnmarshalText([]byte("nope")))
}

func TestFromInput(t *testing.T) {
	n := DefaultNaming()

	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"prefix/2024-03-01.csv.gz", "2024-03-01", true},
		{"global_crypto/trades_v1/2024/03/2024-03-01.csv.gz", "2024-03-01", true},
		{"2024-03-01.csv.gz", "2024-03-01", true},
		{"prefix/2024-03-01.csv.zst", "2024-03-01", true},
		{"prefix/not-a-date.csv.gz", "", false},
		{"prefix/2024-03-01.json.gz", "", false},
		{"prefix/2024-03-01.csv", "", false},
		{"prefix/2024-03-01.parquet", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			k, ok := n.FromInput(tc.key)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, k.String())
			}
		})
	}
}

func TestNamingRoundTrip(t *testing.T) {
	n := DefaultNaming()

	out := n.OutputName("2024-03-01.csv.gz")
	assert.Equal(t, "2024-03-01.parquet", out)

	k, ok := n.FromOutput("out/" + out)
	require.True(t, ok)
	assert.Equal(t, MustParse("2024-03-01"), k)
	assert.Equal(t, out, n.Output(k))
}

func TestOutputName(t *testing.T) {
	n := DefaultNaming()

	assert.Equal(t, "2024-03-01.parquet", n.OutputName("a/b/2024-03-01.csv.gz"))
	assert.Equal(t, "2024-03-01.parquet", n.OutputName("a/b/2024-03-01.csv.zst"))
	assert.Equal(t, "not-a-date.parquet", n.OutputName("a/not-a-date.csv.gz"))
	assert.Equal(t, "trades.txt.parquet", n.OutputName("a/trades.txt"))
}

func TestFromOutput(t *testing.T) {
	n := DefaultNaming()

	_, ok := n.FromOutput("readme.txt")
	assert.False(t, ok)
	_, ok = n.FromOutput("out/2024-13-01.parquet")
	assert.False(t, ok)
	_, ok = n.FromOutput("out/2024-03-01.parquet.tmp")
	assert.False(t, ok)
}

func TestRange(t *testing.T) {
	r := Range{Start: MustParse("2024-02-28"), End: MustParse("2024-03-01")}

	assert.True(t, r.Contains(MustParse("2024-02-28")))
	assert.True(t, r.Contains(MustParse("2024-03-01")))
	assert.False(t, r.Contains(MustParse("2024-02-27")))
	assert.False(t, r.Contains(MustParse("2024-03-02")))

	days := slices.Collect(r.Days())
	assert.Equal(t, []Key{
		MustParse("2024-02-28"),
		MustParse("2024-02-29"),
		MustParse("2024-03-01"),
	}, days)
}

func TestRangeOpen(t *testing.T) {
	var r Range
	assert.True(t, r.IsOpen())
	assert.True(t, r.Contains(MustParse("1999-01-01")))
	assert.Empty(t, slices.Collect(r.Days()))

	from := Range{Start: MustParse("2024-01-01")}
	assert.False(t, from.IsOpen())
	assert.True(t, from.Contains(MustParse("2030-01-01")))
	assert.False(t, from.Contains(MustParse("2023-12-31")))
}
