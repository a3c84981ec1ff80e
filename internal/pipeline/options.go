// Package pipeline reconciles the Input store against the published
// artifacts and converts every outstanding daily file.
//
// A run builds the set of processed dates, lists the Input store lazily,
// and for each object whose date is not yet published fetches it,
// decompresses it, converts it to Parquet and publishes it to the sink:
//
//	p := pipeline.New(input, sink, pipeline.Options{
//	    InputPrefix:  "global_crypto/trades_v1",
//	    SinkPrefix:   "trades",
//	    Dedup:        true,
//	    IndexSources: []index.Source{{Backend: output, Prefix: "trades"}},
//	    Logger:       slog.Default(),
//	})
//	result, err := p.Run(ctx)
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/cryptoe/flatbridge"
	"github.com/cryptoe/flatbridge/compress"
	"github.com/cryptoe/flatbridge/compress/zstd"
	"github.com/cryptoe/flatbridge/internal/datekey"
	"github.com/cryptoe/flatbridge/internal/index"
	"github.com/cryptoe/flatbridge/transfer"
	"github.com/cryptoe/flatbridge/transfer/filter"
)

// Mode selects where artifacts are published.
type Mode string

const (
	// ModeLocal stages artifacts in a local directory.
	ModeLocal Mode = "local"

	// ModeStore publishes artifacts straight to the Output store.
	ModeStore Mode = "store"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeLocal, ModeStore:
		return m, nil
	}
	return "", fmt.Errorf("pipeline: unknown mode %q", s)
}

// ContentType is attached to every published artifact.
const ContentType = "application/vnd.apache.parquet"

// Options configures a run.
type Options struct {
	// InputPrefix is the Input store prefix to list.
	InputPrefix string

	// SinkPrefix is prepended to every output name.
	SinkPrefix string

	// Naming maps between input names, output names and dates.
	// The zero value uses datekey.DefaultNaming.
	Naming datekey.Naming

	// Dedup skips inputs whose date is already published in IndexSources.
	Dedup bool

	// IndexSources are listed to build the processed-date set.
	IndexSources []index.Source

	// Dates restricts dated inputs to a range. Undated inputs are not
	// affected.
	Dates datekey.Range

	// Filter selects input objects by key, size and age.
	// If nil, all objects are considered.
	Filter *filter.Filter

	// Workers is the number of files converted concurrently.
	// Default is 1, which processes files strictly in listing order.
	Workers int

	// FailFast stops dispatching after the first failed file.
	FailFast bool

	// CompressionLevel is the Zstd level of the Parquet pages.
	// Zero uses the converter default.
	CompressionLevel zstd.CompressionLevel

	// DefaultCodec decompresses inputs whose name carries no known
	// compression extension. Default is gzip.
	DefaultCodec string

	// Retry configures retries of fetches and publishes.
	// If nil or MaxRetries is 0, operations are not retried.
	Retry *transfer.RetryConfig

	// BandwidthLimit caps the aggregate fetch rate in bytes per second.
	// 0 means unlimited.
	BandwidthLimit int64

	// Report receives one JSON record per file outcome.
	// The caller owns it and closes it after Run.
	Report flatbridge.RecordWriter

	// RunID labels logs, artifact metadata and report records.
	// A random UUID is used when empty.
	RunID string

	// Logger is used for structured logging.
	// If nil, a null logger is used (no logging).
	Logger *slog.Logger
}

// logger returns the configured logger or a null logger if none is set.
func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slogutil.Null()
}

func (o Options) naming() datekey.Naming {
	if o.Naming == (datekey.Naming{}) {
		return datekey.DefaultNaming()
	}
	return o.Naming
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return 1
	}
	return o.Workers
}

func (o Options) retry() transfer.RetryConfig {
	if o.Retry == nil {
		return transfer.RetryConfig{}
	}
	return *o.Retry
}

func (o Options) defaultCodec() (compress.Codec, error) {
	if o.DefaultCodec == "" {
		return compress.ByName(compress.Gzip)
	}
	return compress.ByName(o.DefaultCodec)
}
