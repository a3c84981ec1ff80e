// Package datekey maps between calendar dates and the object names that
// carry them.
//
// Inputs are named "<anyPath>/YYYY-MM-DD.csv.gz" and outputs
// "<prefix>/YYYY-MM-DD.parquet". The date in the trailing path segment is
// the key the Input and Output stores are reconciled by.
package datekey

import (
	"fmt"
	"time"
)

// Layout is the date format embedded in object names.
const Layout = "2006-01-02"

// Key is a calendar date without a time component.
type Key struct {
	Year  int
	Month time.Month
	Day   int
}

// Parse parses s in Layout. Out-of-range dates such as 2024-02-30 are
// rejected.
func Parse(s string) (Key, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Key{}, fmt.Errorf("datekey: %w", err)
	}
	return FromTime(t), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromTime returns the date of t in t's location.
func FromTime(t time.Time) Key {
	y, m, d := t.Date()
	return Key{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC on k.
func (k Key) Time() time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC)
}

// String formats k in Layout.
func (k Key) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// AddDays returns k shifted by n days.
func (k Key) AddDays(n int) Key {
	return FromTime(k.Time().AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 as k is before, equal to or after other.
func (k Key) Compare(other Key) int {
	switch {
	case k.Year != other.Year:
		return cmpInt(k.Year, other.Year)
	case k.Month != other.Month:
		return cmpInt(int(k.Month), int(other.Month))
	default:
		return cmpInt(k.Day, other.Day)
	}
}

// Before reports whether k is before other.
func (k Key) Before(other Key) bool {
	return k.Compare(other) < 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
