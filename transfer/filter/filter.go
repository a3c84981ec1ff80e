// Package filter selects which listed input objects a pipeline run
// considers.
//
// Patterns use doublestar syntax against the slash-separated object key,
// and also against the key's base name, so "*.csv.gz" matches at any
// depth while "global_crypto/**/2024-*.csv.gz" pins a subtree:
//
//	f := filter.New(
//	    filter.Include("*.csv.gz"),
//	    filter.Exclude("**/2020-*"),
//	    filter.MinSize(1),
//	)
package filter

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v2"

	"github.com/cryptoe/flatbridge"
)

// Filter determines whether objects take part in a run.
type Filter struct {
	rules []rule
}

type ruleType int

const (
	ruleInclude ruleType = iota
	ruleExclude
	ruleMinSize
	ruleMaxSize
	ruleMinAge
	ruleMaxAge
)

type rule struct {
	ruleType ruleType
	pattern  string
	size     int64
	duration time.Duration
}

// Option configures a Filter.
type Option func(*Filter)

// New creates a new Filter with the given options.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Include adds an include pattern. When any include pattern is present,
// objects must match at least one of them.
func Include(pattern string) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{ruleType: ruleInclude, pattern: pattern})
	}
}

// Exclude adds an exclude pattern. Excludes win over includes.
func Exclude(pattern string) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{ruleType: ruleExclude, pattern: pattern})
	}
}

// MinSize excludes objects smaller than size bytes. Objects of unknown
// size pass.
func MinSize(size int64) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{ruleType: ruleMinSize, size: size})
	}
}

// MaxSize excludes objects larger than size bytes.
func MaxSize(size int64) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{ruleType: ruleMaxSize, size: size})
	}
}

// MinAge excludes objects modified more recently than d ago. Objects
// without a modification time pass.
func MinAge(d time.Duration) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{ruleType: ruleMinAge, duration: d})
	}
}

// MaxAge excludes objects modified longer than d ago.
func MaxAge(d time.Duration) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{ruleType: ruleMaxAge, duration: d})
	}
}

// Validate reports the first malformed pattern.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, r := range f.rules {
		if r.ruleType != ruleInclude && r.ruleType != ruleExclude {
			continue
		}
		if _, err := path.Match(r.pattern, ""); err != nil {
			return fmt.Errorf("filter: bad pattern %q: %w", r.pattern, err)
		}
	}
	return nil
}

// FromFile loads include and exclude rules from a file. Lines starting
// with "+ " are includes and lines starting with "- " are excludes; a bare
// pattern is an exclude. Blank lines and "#" comments are ignored.
func FromFile(name string) (Option, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var opts []Option
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "+ "):
			opts = append(opts, Include(strings.TrimSpace(line[2:])))
		case strings.HasPrefix(line, "- "):
			opts = append(opts, Exclude(strings.TrimSpace(line[2:])))
		default:
			opts = append(opts, Exclude(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return func(f *Filter) {
		for _, opt := range opts {
			opt(f)
		}
	}, nil
}

// Match reports whether the object passes the filter.
func (f *Filter) Match(info flatbridge.ObjectInfo) bool {
	if f.IsEmpty() {
		return true
	}

	key := info.Path()

	hasIncludes := false
	matchesInclude := false
	for _, r := range f.rules {
		if r.ruleType == ruleInclude {
			hasIncludes = true
			if matchPattern(r.pattern, key) {
				matchesInclude = true
			}
		}
	}
	if hasIncludes && !matchesInclude {
		return false
	}

	size := info.Size()
	modTime := info.ModTime()

	for _, r := range f.rules {
		switch r.ruleType {
		case ruleExclude:
			if matchPattern(r.pattern, key) {
				return false
			}
		case ruleMinSize:
			if size >= 0 && size < r.size {
				return false
			}
		case ruleMaxSize:
			if size >= 0 && size > r.size {
				return false
			}
		case ruleMinAge:
			if !modTime.IsZero() && time.Since(modTime) < r.duration {
				return false
			}
		case ruleMaxAge:
			if !modTime.IsZero() && time.Since(modTime) > r.duration {
				return false
			}
		}
	}

	return true
}

// MatchPath matches by key only.
func (f *Filter) MatchPath(key string) bool {
	return f.Match(&flatbridge.BasicObjectInfo{ObjectPath: key, ObjectSize: -1})
}

// IsEmpty returns true if the filter has no rules.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.rules) == 0
}

// matchPattern matches pattern against the full key, then its base name.
func matchPattern(pattern, key string) bool {
	if ok, _ := doublestar.Match(pattern, key); ok {
		return true
	}
	ok, _ := doublestar.Match(pattern, path.Base(key))
	return ok
}

// Common size constants for convenience.
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)
