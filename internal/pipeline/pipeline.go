package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cryptoe/flatbridge"
	"github.com/cryptoe/flatbridge/compress"
	"github.com/cryptoe/flatbridge/internal/convert"
	"github.com/cryptoe/flatbridge/internal/datekey"
	"github.com/cryptoe/flatbridge/internal/index"
	"github.com/cryptoe/flatbridge/internal/schema"
	"github.com/cryptoe/flatbridge/transfer"
)

// Pipeline converts the outstanding inputs of one Input store location
// and publishes them to a sink.
type Pipeline struct {
	input     flatbridge.Backend
	sink      flatbridge.Backend
	opts      Options
	naming    datekey.Naming
	converter *convert.Converter
	limiter   *transfer.Limiter
	runID     string
	logger    *slog.Logger
}

// New creates a Pipeline reading from input and publishing to sink.
func New(input, sink flatbridge.Backend, opts Options) *Pipeline {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	var convOpts []convert.Option
	if opts.CompressionLevel != 0 {
		convOpts = append(convOpts, convert.WithCompressionLevel(opts.CompressionLevel))
	}

	return &Pipeline{
		input:     input,
		sink:      sink,
		opts:      opts,
		naming:    opts.naming(),
		converter: convert.New(convOpts...),
		limiter:   transfer.NewLimiter(opts.BandwidthLimit),
		runID:     runID,
		logger:    opts.logger().With(slog.String("run_id", runID)),
	}
}

// RunID returns the identifier of the pipeline's runs.
func (p *Pipeline) RunID() string {
	return p.runID
}

// job is one input object selected for conversion.
type job struct {
	seq   int
	path  string
	size  int64
	date  datekey.Key
	dated bool
}

// Run builds the processed-date set, then converts and publishes every
// input whose date is not in it.
//
// Per-file failures do not stop the run unless Options.FailFast is set;
// they are recorded in the Result and aggregated into the returned error.
// A listing failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := newResult(p.runID)
	logger := p.logger

	codec, err := p.opts.defaultCodec()
	if err != nil {
		return res, err
	}
	if err := p.opts.Filter.Validate(); err != nil {
		return res, err
	}

	logger.Info("starting run",
		slog.String("input_prefix", p.opts.InputPrefix),
		slog.String("sink_prefix", p.opts.SinkPrefix),
		slog.Bool("dedup", p.opts.Dedup),
		slog.Int("workers", p.opts.workers()),
	)

	var processed *index.Set
	if p.opts.Dedup {
		b := &index.Builder{Naming: p.naming, Logger: logger}
		processed, err = b.Build(ctx, p.opts.IndexSources...)
		if err != nil {
			logger.Error("failed to build processed-date index", slog.Any("error", err))
			res.Duration = time.Since(start)
			return res, &StageError{Stage: StageList, Err: err}
		}
		res.Indexed = processed.Len()
	}

	var mu sync.Mutex
	record := func(f FileResult) {
		recordFile(ctx, f)
		mu.Lock()
		defer mu.Unlock()
		p.report(f)
		res.add(f)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.workers())

	var listErr error
	seq := 0
	for info, err := range flatbridge.Objects(gctx, p.input, p.opts.InputPrefix) {
		if err != nil {
			listErr = err
			break
		}
		if gctx.Err() != nil {
			break
		}

		j := job{seq: seq, path: info.Path(), size: info.Size()}
		j.date, j.dated = p.naming.FromInput(j.path)
		seq++

		if reason, skip := p.skip(info, j, processed); skip {
			logger.Info("skipping", slog.String("path", j.path), slog.String("reason", string(reason)))
			record(FileResult{
				Seq:    j.seq,
				Path:   j.path,
				Date:   j.date,
				Dated:  j.dated,
				Status: StatusSkipped,
				Reason: reason,
			})
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			f := p.process(gctx, j, codec)
			record(f)
			if f.Err != nil && p.opts.FailFast {
				return f.Err
			}
			return nil
		})
	}
	failFastErr := g.Wait()

	mu.Lock()
	res.Listed = seq
	slices.SortFunc(res.Files, func(a, b FileResult) int { return a.Seq - b.Seq })
	res.Duration = time.Since(start)
	mu.Unlock()

	if p.opts.Report != nil {
		if err := p.opts.Report.Flush(); err != nil {
			logger.Warn("failed to flush run report", slog.Any("error", err))
		}
	}

	logger.Info("run complete", slog.Any("result", res))

	switch {
	case failFastErr != nil:
		return res, failFastErr
	case ctx.Err() != nil:
		return res, ctx.Err()
	}

	var errs *multierror.Error
	if err := res.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if listErr != nil {
		logger.Error("failed to list inputs", slog.String("prefix", p.opts.InputPrefix), slog.Any("error", listErr))
		errs = multierror.Append(errs, &StageError{Stage: StageList, Path: p.opts.InputPrefix, Err: listErr})
	}
	return res, errs.ErrorOrNil()
}

// skip decides whether an input is left alone. Undated inputs are never
// skipped by date.
func (p *Pipeline) skip(info flatbridge.ObjectInfo, j job, processed *index.Set) (SkipReason, bool) {
	if !p.opts.Filter.Match(info) {
		return SkipFiltered, true
	}
	if !j.dated {
		return "", false
	}
	if !p.opts.Dates.Contains(j.date) {
		return SkipOutOfRange, true
	}
	if processed.Contains(j.date) {
		return SkipProcessed, true
	}
	return "", false
}

// process runs fetch, decompress, convert and publish for one input.
func (p *Pipeline) process(ctx context.Context, j job, fallback compress.Codec) FileResult {
	start := time.Now()
	f := FileResult{
		Seq:    j.seq,
		Path:   j.path,
		Date:   j.date,
		Dated:  j.dated,
		Output: path.Join(p.opts.SinkPrefix, p.naming.OutputName(j.path)),
	}
	logger := p.logger.With(slog.String("path", j.path))
	if j.dated {
		logger = logger.With(slog.String("date", j.date.String()))
	}
	logger.Info("processing")

	fail := func(stage Stage, err error) FileResult {
		f.Status = StatusFailed
		f.Err = &StageError{Stage: stage, Path: j.path, Date: j.date, Err: err}
		f.Duration = time.Since(start)
		logger.Error("file failed", slog.String("stage", string(stage)), slog.Any("error", err))
		return f
	}

	raw, err := p.fetch(ctx, j.path, j.size)
	if err != nil {
		return fail(StageFetch, err)
	}
	f.InBytes = int64(len(raw))

	codec := compress.ForPath(j.path)
	if codec.Name == compress.None {
		codec = fallback
	}
	stream, err := codec.NewReader(io.NopCloser(bytes.NewReader(raw)))
	if err != nil {
		return fail(StageDecompress, err)
	}
	defer func() { _ = stream.Close() }()

	meta := []convert.Metadata{
		{Key: "flatbridge.source", Value: j.path},
		{Key: "flatbridge.run_id", Value: p.runID},
	}
	if j.dated {
		meta = append(meta, convert.Metadata{Key: "flatbridge.date", Value: j.date.String()})
	}

	var out bytes.Buffer
	stats, err := p.converter.Convert(stream, &out, meta...)
	switch {
	case schema.IsParseError(err):
		return fail(StageParse, err)
	case convert.IsEncodeError(err):
		return fail(StageEncode, err)
	case err != nil:
		return fail(StageDecompress, err)
	}
	f.Rows = stats.Rows

	artifact := out.Bytes()
	f.SHA256 = flatbridge.HashBytes(artifact, flatbridge.HashSHA256)
	if err := p.publish(ctx, f.Output, artifact, meta); err != nil {
		return fail(StagePublish, err)
	}

	f.Status = StatusPublished
	f.OutBytes = int64(len(artifact))
	f.Duration = time.Since(start)
	logger.Info("published",
		slog.String("output", f.Output),
		slog.Int64("rows", f.Rows),
		slog.Int64("in_bytes", f.InBytes),
		slog.Int64("csv_bytes", compress.Decompressed(stream)),
		slog.Int64("out_bytes", f.OutBytes),
		slog.Duration("duration", f.Duration),
	)
	return f
}

// fetch reads the whole object, retrying transient failures. A retry after a
// partial read resumes at the first missing byte with a ranged read. When
// the listing reported a size, a short body is retried as well.
func (p *Pipeline) fetch(ctx context.Context, key string, size int64) ([]byte, error) {
	var buf bytes.Buffer
	err := transfer.Retry(ctx, p.retryConfig("fetch", key), func(ctx context.Context) error {
		var opts []flatbridge.ReaderOption
		if off := int64(buf.Len()); off > 0 {
			opts = append(opts, flatbridge.WithOffset(off))
			if size > off {
				opts = append(opts, flatbridge.WithLimit(size-off))
			}
		}
		r, err := p.input.NewReader(ctx, key, opts...)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()

		if _, err := buf.ReadFrom(p.limiter.Reader(ctx, r)); err != nil {
			return err
		}
		if size >= 0 && int64(buf.Len()) < size {
			return fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, buf.Len(), size)
		}
		return nil
	})
	return buf.Bytes(), err
}

// publish writes the artifact to the sink, retrying transient failures.
func (p *Pipeline) publish(ctx context.Context, key string, data []byte, meta []convert.Metadata) error {
	md := make(map[string]string, len(meta))
	for _, m := range meta {
		md[m.Key] = m.Value
	}
	return transfer.Retry(ctx, p.retryConfig("publish", key), func(ctx context.Context) error {
		w, err := p.sink.NewWriter(ctx, key,
			flatbridge.WithContentType(ContentType),
			flatbridge.WithMetadata(md),
		)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
}

func (p *Pipeline) retryConfig(op, key string) transfer.RetryConfig {
	cfg := p.opts.retry()
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		p.logger.Warn("retrying",
			slog.String("op", op),
			slog.String("path", key),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	return cfg
}

// report writes f to the run report.
func (p *Pipeline) report(f FileResult) {
	if p.opts.Report == nil {
		return
	}
	data, err := json.Marshal(f)
	if err == nil {
		err = p.opts.Report.Write(data)
	}
	if err != nil {
		p.logger.Warn("failed to write run report record", slog.String("path", f.Path), slog.Any("error", err))
	}
}
