package pipeline

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cryptoe/flatbridge/internal/datekey"
)

// Status is the outcome of one input object.
type Status string

const (
	StatusPublished Status = "published"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// SkipReason says why an input was not converted.
type SkipReason string

const (
	SkipProcessed  SkipReason = "processed"
	SkipOutOfRange SkipReason = "out_of_range"
	SkipFiltered   SkipReason = "filtered"
)

// FileResult describes what happened to one input object.
type FileResult struct {
	// Seq is the object's position in the input listing.
	Seq int

	Path   string
	Date   datekey.Key
	Dated  bool
	Status Status
	Reason SkipReason

	// Output is the sink key of the published artifact.
	Output string

	Rows     int64
	InBytes  int64
	OutBytes int64

	// SHA256 is the hex digest of the published artifact.
	SHA256 string

	Duration time.Duration
	Err      error
}

// MarshalJSON renders the result as a flat report record.
func (f FileResult) MarshalJSON() ([]byte, error) {
	rec := struct {
		Seq        int     `json:"seq"`
		Path       string  `json:"path"`
		Date       string  `json:"date,omitempty"`
		Status     Status  `json:"status"`
		Reason     string  `json:"reason,omitempty"`
		Output     string  `json:"output,omitempty"`
		Rows       int64   `json:"rows,omitempty"`
		InBytes    int64   `json:"in_bytes,omitempty"`
		OutBytes   int64   `json:"out_bytes,omitempty"`
		SHA256     string  `json:"sha256,omitempty"`
		DurationMS float64 `json:"duration_ms"`
		Stage      Stage   `json:"stage,omitempty"`
		Error      string  `json:"error,omitempty"`
	}{
		Seq:        f.Seq,
		Path:       f.Path,
		Status:     f.Status,
		Reason:     string(f.Reason),
		Output:     f.Output,
		Rows:       f.Rows,
		InBytes:    f.InBytes,
		OutBytes:   f.OutBytes,
		SHA256:     f.SHA256,
		DurationMS: float64(f.Duration) / float64(time.Millisecond),
	}
	if f.Dated {
		rec.Date = f.Date.String()
	}
	if f.Err != nil {
		rec.Error = f.Err.Error()
		rec.Stage, _ = StageOf(f.Err)
	}
	return json.Marshal(rec)
}

// Result contains the results of a run.
type Result struct {
	RunID string

	// Indexed is the number of processed dates found before the run.
	Indexed int

	// Listed is the number of input objects seen.
	Listed int

	Published int
	Failed    int

	// Skipped counts skipped inputs by reason.
	Skipped map[SkipReason]int

	// Files holds one entry per handled object in listing order. Objects
	// listed after a fail-fast stop or cancellation have no entry.
	Files []FileResult

	// BytesRead and BytesWritten total the fetched and published bytes.
	BytesRead    int64
	BytesWritten int64

	Duration time.Duration
}

func newResult(runID string) *Result {
	return &Result{RunID: runID, Skipped: make(map[SkipReason]int)}
}

// Success returns true if no file failed.
func (r *Result) Success() bool {
	return r.Failed == 0
}

// TotalSkipped returns the number of skipped inputs.
func (r *Result) TotalSkipped() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Err aggregates the errors of every failed file, or returns nil.
func (r *Result) Err() error {
	var errs *multierror.Error
	for _, f := range r.Files {
		if f.Status == StatusFailed && f.Err != nil {
			errs = multierror.Append(errs, f.Err)
		}
	}
	return errs.ErrorOrNil()
}

// FailedDates returns the dates of failed, dated inputs.
func (r *Result) FailedDates() []datekey.Key {
	var keys []datekey.Key
	for _, f := range r.Files {
		if f.Status == StatusFailed && f.Dated {
			keys = append(keys, f.Date)
		}
	}
	return keys
}

// LogValue implements slog.LogValuer.
func (r *Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", r.RunID),
		slog.Int("indexed", r.Indexed),
		slog.Int("listed", r.Listed),
		slog.Int("published", r.Published),
		slog.Int("skipped_processed", r.Skipped[SkipProcessed]),
		slog.Int("skipped_out_of_range", r.Skipped[SkipOutOfRange]),
		slog.Int("skipped_filtered", r.Skipped[SkipFiltered]),
		slog.Int("failed", r.Failed),
		slog.Int64("bytes_read", r.BytesRead),
		slog.Int64("bytes_written", r.BytesWritten),
		slog.Duration("duration", r.Duration),
	)
}

func (r *Result) add(f FileResult) {
	r.Files = append(r.Files, f)
	switch f.Status {
	case StatusPublished:
		r.Published++
		r.BytesRead += f.InBytes
		r.BytesWritten += f.OutBytes
	case StatusSkipped:
		r.Skipped[f.Reason]++
	case StatusFailed:
		r.Failed++
		r.BytesRead += f.InBytes
	}
}
