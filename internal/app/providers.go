// Package app builds the synchronizer's object graph from configuration. The
// Provide* functions are wired together by Wire in cmd/stock-sync.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/stockup888888/stock/internal/config"
	"github.com/stockup888888/stock/internal/domain"
	"github.com/stockup888888/stock/internal/gather"
	"github.com/stockup888888/stock/internal/gather/us"
	"github.com/stockup888888/stock/internal/metrics"
	"github.com/stockup888888/stock/internal/snapshot"
	"github.com/stockup888888/stock/internal/store"
	"github.com/stockup888888/stock/internal/util"
)

// Options carries command-line overrides applied on top of the config file.
type Options struct {
	ConfigPath string
	RunDate    string   // YYYY-MM-DD; empty means today
	Symbols    []string // replaces the configured symbol list when set
}

// ProvideConfig loads the config file named by opts or STOCK_CONFIG.
func ProvideConfig(opts Options) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// ProvideLogger builds the process logger on stderr and installs it as the
// default. Stdout is left to command output.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	log := util.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)
	return log
}

// ProvideArchiveStore opens the file-backed archive.
func ProvideArchiveStore(cfg *config.Config, log *slog.Logger) *store.FileArchiveStore {
	return store.NewFileArchiveStore(cfg.Storage.ArchiveDir, log)
}

// ProvideIngestor creates the snapshot ingestor over archive.
func ProvideIngestor(cfg *config.Config, archive store.ArchiveStore, log *slog.Logger) *snapshot.Ingestor {
	return snapshot.NewIngestor(cfg.Storage.SnapshotDir, archive, log)
}

// ProvideFetcher creates the Alpaca fetcher behind a circuit breaker.
func ProvideFetcher(cfg *config.Config, log *slog.Logger) (gather.RangeFetcher, error) {
	alpacaFetcher, err := us.NewAlpacaFetcher(us.AlpacaOptions{
		APIKey:     cfg.Alpaca.APIKey,
		APISecret:  cfg.Alpaca.APISecret,
		DataURL:    cfg.Alpaca.DataURL,
		Feed:       cfg.Alpaca.Feed,
		Adjusted:   cfg.Sync.Adjusted,
		MaxRetries: cfg.Sync.MaxRetries,
	}, log)
	if err != nil {
		return nil, err
	}
	return gather.NewBreakerFetcher(alpacaFetcher, cfg.Sync.BreakerFailures, cfg.Sync.BreakerTimeout, log), nil
}

// ProvideRunLog opens the configured run log. It returns a nil RunLog when
// the run log is disabled. The cleanup closes the connection.
func ProvideRunLog(ctx context.Context, cfg *config.Config) (store.RunLog, func(), error) {
	var (
		rl  store.RunLog
		err error
	)
	switch cfg.RunLog.Driver {
	case "sqlite":
		rl, err = store.NewSQLiteRunLog(cfg.RunLog.SQLitePath)
	case "postgres":
		rl, err = store.NewPostgresRunLog(ctx, cfg.RunLog.PostgresDSN)
	default:
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s run log: %w", cfg.RunLog.Driver, err)
	}
	return rl, func() { rl.Close() }, nil
}

// ProvideMetrics creates the metrics registry.
func ProvideMetrics(cfg *config.Config) *metrics.Registry {
	return metrics.NewRegistry(cfg.Metrics.Textfile)
}

// ProvideSyncConfig resolves run parameters from cfg and opts.
func ProvideSyncConfig(cfg *config.Config, opts Options) (gather.SyncConfig, error) {
	start, err := cfg.StartDate()
	if err != nil {
		return gather.SyncConfig{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return gather.SyncConfig{}, err
	}
	symbols, err := ResolveSymbols(cfg, opts)
	if err != nil {
		return gather.SyncConfig{}, err
	}

	sc := gather.SyncConfig{
		Symbols:   symbols,
		StartDate: start,
		Delay:     cfg.Sync.Delay,
		Location:  loc,
	}
	if opts.RunDate != "" {
		if sc.RunDate, err = time.Parse(domain.DateLayout, opts.RunDate); err != nil {
			return gather.SyncConfig{}, fmt.Errorf("run date %q: %w", opts.RunDate, err)
		}
	}
	return sc, nil
}

// ResolveSymbols returns opts.Symbols when given, otherwise the configured
// symbols followed by those of the symbols file.
func ResolveSymbols(cfg *config.Config, opts Options) ([]string, error) {
	if len(opts.Symbols) > 0 {
		return gather.NormalizeSymbols(opts.Symbols), nil
	}
	var fromFile []string
	if cfg.Sync.SymbolsFile != "" {
		var err error
		if fromFile, err = gather.LoadSymbolsCSV(cfg.Sync.SymbolsFile); err != nil {
			return nil, err
		}
	}
	return gather.NormalizeSymbols(cfg.Sync.Symbols, fromFile), nil
}

// ProvideSynchronizer assembles the synchronizer. A nil runLog is skipped.
func ProvideSynchronizer(sc gather.SyncConfig, archive store.ArchiveStore, ingestor *snapshot.Ingestor,
	fetcher gather.RangeFetcher, runLog store.RunLog, reg *metrics.Registry, log *slog.Logger) *gather.Synchronizer {
	sinks := []gather.ReportSink{reg}
	if runLog != nil {
		sinks = append(sinks, runLog)
	}
	calendar := util.NewTradingCalendar(domain.MarketUS)
	return gather.NewSynchronizer(sc, archive, ingestor, fetcher, calendar, log, sinks...)
}
