package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cryptoe/flatbridge/internal/config"
	"github.com/cryptoe/flatbridge/internal/logging"
)

var (
	configPath string

	cfg       *config.Config
	logger    = slog.Default()
	closeLogs = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "flatbridge",
	Short: "Republish daily flat files as Parquet",
	Long: `flatbridge lists dated flat files (gzip or zstd compressed CSV) in an input
object store, skips the dates already published, converts the rest to
Zstd-compressed Parquet and publishes them to a local directory or an
output object store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, closeLogs, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return closeLogs()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./flatbridge.yaml if present)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(missingCmd)
	rootCmd.AddCommand(processedCmd)
	rootCmd.AddCommand(failuresCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func closeStore(name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logger.Warn("closing store", slog.String("store", name), slog.Any("error", err))
	}
}
