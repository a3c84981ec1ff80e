// Package index builds the set of dates already published to a sink.
//
// The set is derived from store listings on every run and is never
// persisted; the stores are the source of truth.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/grokify/mogo/log/slogutil"

	"github.com/cryptoe/flatbridge"
	"github.com/cryptoe/flatbridge/internal/datekey"
)

// Source is a store location holding published artifacts.
type Source struct {
	Backend flatbridge.Backend
	Prefix  string

	// Name identifies the source in logs.
	Name string
}

// Set is a read-only set of processed dates.
type Set struct {
	dates mapset.Set[datekey.Key]
}

// NewSet returns a Set holding keys.
func NewSet(keys ...datekey.Key) *Set {
	return &Set{dates: mapset.NewThreadUnsafeSet(keys...)}
}

// Contains reports whether k has been processed.
func (s *Set) Contains(k datekey.Key) bool {
	if s == nil {
		return false
	}
	return s.dates.Contains(k)
}

// Len returns the number of dates in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.dates.Cardinality()
}

// Sorted returns the dates in ascending order.
func (s *Set) Sorted() []datekey.Key {
	if s == nil {
		return nil
	}
	keys := s.dates.ToSlice()
	slices.SortFunc(keys, datekey.Key.Compare)
	return keys
}

// Missing returns the dates in r that are not in the set. r must be
// closed on both ends.
func (s *Set) Missing(r datekey.Range) []datekey.Key {
	var missing []datekey.Key
	for k := range r.Days() {
		if !s.Contains(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// Builder lists sources and collects the dates of their artifacts.
type Builder struct {
	Naming datekey.Naming
	Logger *slog.Logger
}

// Build lists every object under each source and returns the union of
// their dates. Names without the output suffix, or whose remainder is not
// a date, are skipped. Any listing failure is returned.
func (b *Builder) Build(ctx context.Context, sources ...Source) (*Set, error) {
	logger := b.Logger
	if logger == nil {
		logger = slogutil.Null()
	}

	set := NewSet()
	for _, src := range sources {
		var listed, matched int
		for info, err := range flatbridge.Objects(ctx, src.Backend, src.Prefix) {
			if err != nil {
				return nil, fmt.Errorf("index: listing %s %q: %w", src.Name, src.Prefix, err)
			}
			listed++
			k, ok := b.Naming.FromOutput(info.Path())
			if !ok {
				logger.Debug("ignoring unrecognised object", "source", src.Name, "path", info.Path())
				continue
			}
			matched++
			set.dates.Add(k)
		}
		logger.Info("indexed processed dates",
			"source", src.Name,
			"prefix", src.Prefix,
			"objects", listed,
			"dates", matched,
		)
	}
	return set, nil
}

// Build is a convenience for a Builder with no logger.
func Build(ctx context.Context, naming datekey.Naming, sources ...Source) (*Set, error) {
	b := &Builder{Naming: naming}
	return b.Build(ctx, sources...)
}
