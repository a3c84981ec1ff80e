package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptoe/flatbridge/compress"
	"github.com/cryptoe/flatbridge/format/ndjson"
	"github.com/cryptoe/flatbridge/internal/pipeline"
)

var failuresCmd = &cobra.Command{
	Use:   "failures REPORT",
	Short: "List the failed files recorded in a run report",
	Args:  cobra.ExactArgs(1),
	// Reading a report needs no stores or settings.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              listFailures,
}

// reportRecord is the subset of a run report record needed to list failures.
type reportRecord struct {
	Path   string `json:"path"`
	Date   string `json:"date"`
	Status string `json:"status"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

func listFailures(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	r, err := compress.ForPath(args[0]).NewReader(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("opening report: %w", err)
	}
	failed, err := readFailures(r)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, rec := range failed {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", rec.Date, rec.Stage, rec.Path, rec.Error)
	}
	return nil
}

// readFailures decodes a run report and returns its failed records. It
// closes r.
func readFailures(r io.ReadCloser) ([]reportRecord, error) {
	nr := ndjson.NewReader(r)
	defer func() { _ = nr.Close() }()

	var failed []reportRecord
	for {
		var rec reportRecord
		err := nr.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return failed, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading report: %w", err)
		}
		if rec.Status == string(pipeline.StatusFailed) {
			failed = append(failed, rec)
		}
	}
}
