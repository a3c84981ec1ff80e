package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decoder reads Trades from comma-separated text with a header row.
//
// The header must name every column of the schema. Columns are matched by
// name, so their order is free, and extra columns are ignored. An empty
// cell is a null; any other cell must parse as its column's type.
type Decoder struct {
	r      *csv.Reader
	schema Schema
	index  []int
	line   int
}

// NewDecoder reads and validates the header row of r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	return NewDecoderSchema(r, Trades)
}

// NewDecoderSchema is like NewDecoder with an explicit schema.
func NewDecoderSchema(r io.Reader, s Schema) (*Decoder, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Line: 1, Err: ErrNoHeader}
	}
	if err != nil {
		return nil, csvError(err, 1)
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, dup := positions[name]; dup {
			return nil, &ParseError{Line: 1, Column: name, Err: ErrDuplicateColumn}
		}
		positions[name] = i
	}

	index := make([]int, len(s))
	for i, c := range s {
		pos, ok := positions[c.Name]
		if !ok {
			return nil, &ParseError{Line: 1, Column: c.Name, Err: ErrMissingColumn}
		}
		index[i] = pos
	}

	return &Decoder{r: cr, schema: s, index: index, line: 1}, nil
}

// Decode reads the next record into t. It returns io.EOF at the end of the
// input and a *ParseError for a malformed record.
func (d *Decoder) Decode(t *Trade) error {
	record, err := d.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return csvError(err, d.line+1)
	}
	d.line, _ = d.r.FieldPos(0)

	*t = Trade{}
	for i, c := range d.schema {
		cell := strings.TrimSpace(record[d.index[i]])
		if cell == "" {
			continue
		}
		if err := c.set(t, cell); err != nil {
			return &ParseError{Line: d.line, Column: c.Name, Err: err}
		}
	}
	return nil
}

// Line returns the line of the last decoded record.
func (d *Decoder) Line() int {
	return d.line
}

// ReadAll decodes every remaining record.
func (d *Decoder) ReadAll() ([]Trade, error) {
	var trades []Trade
	for {
		var t Trade
		err := d.Decode(&t)
		if errors.Is(err, io.EOF) {
			return trades, nil
		}
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
}

func csvError(err error, line int) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Err: pe.Err}
	}
	return fmt.Errorf("schema: reading line %d: %w", line, err)
}
