package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cryptoe/flatbridge"
	"github.com/cryptoe/flatbridge/compress"
	"github.com/cryptoe/flatbridge/format/ndjson"
	"github.com/cryptoe/flatbridge/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert and publish every unprocessed input file",
	Args:  cobra.NoArgs,
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().Int("workers", 0, "files converted concurrently (overrides pipeline.workers)")
	runCmd.Flags().Bool("fail-fast", false, "stop after the first failed file")
	runCmd.Flags().String("report", "", "write an NDJSON record per file to this path (.gz or .zst to compress)")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.Pipeline.FailFast, _ = cmd.Flags().GetBool("fail-fast")
	}
	if cmd.Flags().Changed("report") {
		cfg.Pipeline.Report, _ = cmd.Flags().GetString("report")
	}

	level, err := cfg.CompressionLevel()
	if err != nil {
		return err
	}
	dates, err := cfg.DateRange()
	if err != nil {
		return err
	}
	f, err := cfg.Filter()
	if err != nil {
		return err
	}

	s, err := openStores(cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	var report flatbridge.RecordWriter
	if cfg.Pipeline.Report != "" {
		w, err := openReport(cfg.Pipeline.Report)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("closing report", slog.Any("error", err))
			}
		}()
		report = w
	}

	p := pipeline.New(s.input, s.sink, pipeline.Options{
		InputPrefix:      cfg.Input.Prefix,
		SinkPrefix:       s.sinkPrefix,
		Naming:           cfg.Naming(),
		Dedup:            cfg.Pipeline.Dedup,
		IndexSources:     s.indexSources(cfg),
		Dates:            dates,
		Filter:           f,
		Workers:          cfg.Pipeline.Workers,
		FailFast:         cfg.Pipeline.FailFast,
		CompressionLevel: level,
		Retry:            cfg.RetryConfig(),
		BandwidthLimit:   cfg.Pipeline.BandwidthLimit,
		Report:           report,
		Logger:           logger,
	})

	res, err := p.Run(ctx)
	if err != nil {
		if res != nil {
			for _, d := range res.FailedDates() {
				logger.Error("date not published", slog.String("date", d.String()))
			}
		}
		return fmt.Errorf("run %s: %w", p.RunID(), err)
	}
	cmd.Printf("published %d, skipped %d, failed %d\n", res.Published, res.TotalSkipped(), res.Failed)
	return nil
}

// openReport creates an NDJSON report at name, compressed when the name
// ends in a codec extension such as ".gz".
func openReport(name string) (*ndjson.Writer, error) {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating report dir: %w", err)
		}
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	w, err := compress.ForPath(name).NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("opening report: %w", err)
	}
	return ndjson.NewWriter(w), nil
}
