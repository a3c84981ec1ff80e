package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryptoe/flatbridge/internal/datekey"
	"github.com/cryptoe/flatbridge/internal/index"
)

var (
	errMissingRange  = errors.New("missing: both --start and --end are required")
	errReversedRange = errors.New("missing: reversed date range")
)

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List dates in a range that have no published artifact",
	Args:  cobra.NoArgs,
	RunE:  listMissing,
}

var processedCmd = &cobra.Command{
	Use:   "processed",
	Short: "List the dates that have a published artifact",
	Args:  cobra.NoArgs,
	RunE:  listProcessed,
}

func init() {
	missingCmd.Flags().String("start", "", "first date, YYYY-MM-DD (default pipeline.start_date)")
	missingCmd.Flags().String("end", "", "last date, YYYY-MM-DD (default pipeline.end_date)")
}

func processedDates(cmd *cobra.Command) (*index.Set, error) {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := openStores(cfg, false)
	if err != nil {
		return nil, err
	}
	defer s.close()

	b := &index.Builder{Naming: cfg.Naming(), Logger: logger}
	return b.Build(ctx, s.indexSources(cfg)...)
}

func listProcessed(cmd *cobra.Command, _ []string) error {
	set, err := processedDates(cmd)
	if err != nil {
		return err
	}
	for _, d := range set.Sorted() {
		fmt.Fprintln(cmd.OutOrStdout(), d.String())
	}
	return nil
}

func listMissing(cmd *cobra.Command, _ []string) error {
	r, err := cfg.DateRange()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("start"); v != "" {
		if r.Start, err = datekey.Parse(v); err != nil {
			return err
		}
	}
	if v, _ := cmd.Flags().GetString("end"); v != "" {
		if r.End, err = datekey.Parse(v); err != nil {
			return err
		}
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return errMissingRange
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", errReversedRange, r.End, r.Start)
	}

	set, err := processedDates(cmd)
	if err != nil {
		return err
	}
	missing := set.Missing(r)
	for _, d := range missing {
		fmt.Fprintln(cmd.OutOrStdout(), d.String())
	}
	logger.Info("missing dates", "start", r.Start.String(), "end", r.End.String(), "count", len(missing))
	return nil
}
