package pipeline

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	filesCounter     metric.Int64Counter
	bytesReadCounter metric.Int64Counter
	bytesWritten     metric.Int64Counter
	rowsCounter      metric.Int64Counter
	fileDuration     metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cryptoe/flatbridge/internal/pipeline")

	var err error

	filesCounter, err = meter.Int64Counter(
		"flatbridge.pipeline.files",
		metric.WithDescription("Input objects handled, by status"),
	)
	if err != nil {
		log.Fatalf("failed to create pipeline.files counter: %v", err)
	}

	bytesReadCounter, err = meter.Int64Counter(
		"flatbridge.pipeline.bytes_read",
		metric.WithUnit("By"),
		metric.WithDescription("Compressed bytes fetched from the Input store"),
	)
	if err != nil {
		log.Fatalf("failed to create pipeline.bytes_read counter: %v", err)
	}

	bytesWritten, err = meter.Int64Counter(
		"flatbridge.pipeline.bytes_written",
		metric.WithUnit("By"),
		metric.WithDescription("Parquet bytes published to the sink"),
	)
	if err != nil {
		log.Fatalf("failed to create pipeline.bytes_written counter: %v", err)
	}

	rowsCounter, err = meter.Int64Counter(
		"flatbridge.pipeline.rows",
		metric.WithDescription("Rows converted to Parquet"),
	)
	if err != nil {
		log.Fatalf("failed to create pipeline.rows counter: %v", err)
	}

	fileDuration, err = meter.Float64Histogram(
		"flatbridge.pipeline.file.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time to fetch, convert and publish one file"),
	)
	if err != nil {
		log.Fatalf("failed to create pipeline.file.duration histogram: %v", err)
	}
}

func recordFile(ctx context.Context, f FileResult) {
	attrs := []attribute.KeyValue{attribute.String("status", string(f.Status))}
	switch f.Status {
	case StatusSkipped:
		attrs = append(attrs, attribute.String("reason", string(f.Reason)))
	case StatusFailed:
		if stage, ok := StageOf(f.Err); ok {
			attrs = append(attrs, attribute.String("stage", string(stage)))
		}
	}
	set := metric.WithAttributes(attrs...)
	filesCounter.Add(ctx, 1, set)

	if f.Status == StatusSkipped {
		return
	}
	bytesReadCounter.Add(ctx, f.InBytes)
	bytesWritten.Add(ctx, f.OutBytes)
	rowsCounter.Add(ctx, f.Rows)
	fileDuration.Record(ctx, f.Duration.Seconds(), set)
}
