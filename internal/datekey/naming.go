package datekey

import (
	"path"
	"strings"

	"github.com/cryptoe/flatbridge/compress"
)

// Default name suffixes.
const (
	DefaultInputSuffix  = ".csv.gz"
	DefaultOutputSuffix = ".parquet"
)

// Naming holds the suffixes that follow the date in input and output
// object names.
type Naming struct {
	InputSuffix  string
	OutputSuffix string
}

// DefaultNaming returns the ".csv.gz" to ".parquet" naming.
func DefaultNaming() Naming {
	return Naming{InputSuffix: DefaultInputSuffix, OutputSuffix: DefaultOutputSuffix}
}

// FromInput extracts the date from an input object key. A differently
// compressed variant of the input suffix is accepted, so "x.csv.zst"
// matches ".csv.gz". ok is false when the suffix is missing or the
// remainder is not a date.
func (n Naming) FromInput(key string) (k Key, ok bool) {
	stem, ok := n.inputStem(path.Base(key))
	if !ok {
		return Key{}, false
	}
	return parseStem(stem)
}

// FromOutput extracts the date from an output object key.
func (n Naming) FromOutput(key string) (k Key, ok bool) {
	stem, ok := strings.CutSuffix(path.Base(key), n.OutputSuffix)
	if !ok {
		return Key{}, false
	}
	return parseStem(stem)
}

// OutputName returns the output file name for an input key: its trailing
// segment with the input suffix replaced by the output suffix. When the
// input suffix is absent the output suffix is appended to the whole
// segment.
func (n Naming) OutputName(key string) string {
	base := path.Base(key)
	if stem, ok := n.inputStem(base); ok {
		return stem + n.OutputSuffix
	}
	return base + n.OutputSuffix
}

// Output returns the output file name for k.
func (n Naming) Output(k Key) string {
	return k.String() + n.OutputSuffix
}

func (n Naming) inputStem(base string) (string, bool) {
	if stem, ok := strings.CutSuffix(base, n.InputSuffix); ok {
		return stem, true
	}
	inner := compress.ForPath(n.InputSuffix).TrimExt(n.InputSuffix)
	if inner == n.InputSuffix || inner == "" {
		return "", false
	}
	codec := compress.ForPath(base)
	if codec.Name == compress.None {
		return "", false
	}
	return strings.CutSuffix(codec.TrimExt(base), inner)
}

func parseStem(stem string) (Key, bool) {
	k, err := Parse(stem)
	if err != nil {
		return Key{}, false
	}
	return k, true
}
