// Package schema defines the fixed trade record layout every input file
// must carry, and decodes comma-separated input against it.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Trade is one row of a daily trades file. The parquet tags define the
// output column names and physical types. Every column is nullable: an
// empty cell decodes to nil and is written as a null.
type Trade struct {
	Ticker               *string  `parquet:"ticker,optional" json:"ticker"`
	Conditions           *int32   `parquet:"conditions,optional" json:"conditions"`
	Exchange             *int32   `parquet:"exchange,optional" json:"exchange"`
	ID                   *int64   `parquet:"id,optional" json:"id"`
	ParticipantTimestamp *int64   `parquet:"participant_timestamp,optional" json:"participant_timestamp"`
	Price                *float64 `parquet:"price,optional" json:"price"`
	Size                 *float64 `parquet:"size,optional" json:"size"`
}

// Ptr returns a pointer to v, for filling nullable Trade fields.
func Ptr[T any](v T) *T {
	return &v
}

// Type is the semantic type of a column.
type Type string

// Column types.
const (
	String  Type = "string"
	Int32   Type = "int32"
	Int64   Type = "int64"
	Float64 Type = "float64"
)

// Column is a named, typed column and the setter that stores a parsed cell
// into a Trade.
type Column struct {
	Name string
	Type Type
	set  func(*Trade, string) error
}

// Schema is an ordered list of columns.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// String renders s as "name:type" pairs.
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Name + ":" + string(c.Type)
	}
	return strings.Join(parts, ", ")
}

// Trades is the layout of every input file.
var Trades = Schema{
	{Name: "ticker", Type: String, set: func(t *Trade, s string) error {
		t.Ticker = Ptr(s)
		return nil
	}},
	{Name: "conditions", Type: Int32, set: func(t *Trade, s string) error {
		v, err := parseInt32(s)
		t.Conditions = v
		return err
	}},
	{Name: "exchange", Type: Int32, set: func(t *Trade, s string) error {
		v, err := parseInt32(s)
		t.Exchange = v
		return err
	}},
	{Name: "id", Type: Int64, set: func(t *Trade, s string) error {
		v, err := parseInt64(s)
		t.ID = v
		return err
	}},
	{Name: "participant_timestamp", Type: Int64, set: func(t *Trade, s string) error {
		v, err := parseInt64(s)
		t.ParticipantTimestamp = v
		return err
	}},
	{Name: "price", Type: Float64, set: func(t *Trade, s string) error {
		v, err := parseFloat64(s)
		t.Price = v
		return err
	}},
	{Name: "size", Type: Float64, set: func(t *Trade, s string) error {
		v, err := parseFloat64(s)
		t.Size = v
		return err
	}},
}

func parseInt32(s string) (*int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, err
	}
	return Ptr(int32(v)), nil
}

func parseInt64(s string) (*int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseFloat64(s string) (*float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Header errors.
var (
	ErrNoHeader        = errors.New("missing header row")
	ErrMissingColumn   = errors.New("missing column")
	ErrDuplicateColumn = errors.New("duplicate column")
)

// ParseError reports input that does not conform to the schema.
type ParseError struct {
	// Line is the 1-based line of the offending record; the header is
	// line 1.
	Line int

	// Column is the schema column involved, if any.
	Column string

	Err error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("schema: line %d: column %q: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
