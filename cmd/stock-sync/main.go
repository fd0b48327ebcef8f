package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stockup888888/stock/internal/app"
	"github.com/stockup888888/stock/internal/gather"
	"github.com/stockup888888/stock/internal/util"
)

const version = "0.3.0"

var opts app.Options

var rootCmd = &cobra.Command{
	Use:   "stock-sync",
	Short: "Keep per-symbol daily bar archives up to date",
	Long: `stock-sync maintains one daily OHLCV archive per symbol (CSV plus Parquet).
Each run folds in same-day snapshot files and fetches any missing days from
Alpaca, one symbol at a time.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Synchronize all configured symbols once",
	Example: `  stock-sync run
  stock-sync run --symbols AAPL,MSFT
  stock-sync run --date 2025-01-10`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive coverage and the last outcome per symbol",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	slog.SetDefault(util.NewLogger(os.Stderr, "info", "text"))

	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $STOCK_CONFIG or config/stock.yaml)")
	runCmd.Flags().StringVar(&opts.RunDate, "date", "", "run as if today were this date (YYYY-MM-DD)")
	runCmd.Flags().StringSliceVar(&opts.Symbols, "symbols", nil, "only synchronize these symbols")

	rootCmd.AddCommand(runCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := initializeSync(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	a.Log.Info("starting stock-sync", "version", version,
		"archive", a.Config.Storage.ArchiveDir, "snapshots", a.Config.Storage.SnapshotDir)
	return runGatherer(ctx, a.Sync)
}

func runGatherer(ctx context.Context, g gather.Gatherer) error {
	if err := g.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", g.Name(), err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, cleanup, err := initializeStatus(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	statuses, err := app.BuildStatus(ctx, a.Archive, a.RunLog, a.Symbols)
	if err != nil {
		return err
	}
	return app.WriteStatus(cmd.OutOrStdout(), statuses)
}
