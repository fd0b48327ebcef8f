package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockup888888/stock/internal/domain"
	"github.com/stockup888888/stock/internal/snapshot"
	"github.com/stockup888888/stock/internal/store"
	"github.com/stockup888888/stock/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*Synchronizer)(nil)

// SnapshotIngestor folds a same-day snapshot into the archive.
type SnapshotIngestor interface {
	Ingest(ctx context.Context, symbol string, targetDate time.Time) (snapshot.Disposition, error)
}

// ReportSink receives the report at the end of every run. store.RunLog
// satisfies it.
type ReportSink interface {
	Record(ctx context.Context, report domain.RunReport) error
}

// SyncConfig holds the run parameters of a Synchronizer.
type SyncConfig struct {
	Symbols   []string
	StartDate time.Time      // first day requested when backfilling an empty archive
	Delay     time.Duration  // minimum spacing between symbol passes
	Location  *time.Location // wall clock used to resolve "today"
	RunDate   time.Time      // when set, replaces the current date
}

// Synchronizer brings every configured symbol's archive up to the latest
// trading day, one symbol at a time.
//
// Per symbol, an empty archive is backfilled from StartDate. Otherwise the
// snapshot for the current trading day is ingested, and when that did not
// extend the archive and the archive is behind, the range from the archive's
// last date through latest is fetched and merged. The last archived day is
// requested again so a bar that was still forming when first stored is
// replaced by its final version.
type Synchronizer struct {
	cfg      SyncConfig
	archive  store.ArchiveStore
	ingestor SnapshotIngestor
	fetcher  RangeFetcher
	calendar *util.TradingCalendar
	throttle *util.Throttle
	sinks    []ReportSink
	log      *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// NewSynchronizer creates a Synchronizer. sinks may be empty.
func NewSynchronizer(cfg SyncConfig, archive store.ArchiveStore, ingestor SnapshotIngestor, fetcher RangeFetcher,
	calendar *util.TradingCalendar, log *slog.Logger, sinks ...ReportSink) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Synchronizer{
		cfg:      cfg,
		archive:  archive,
		ingestor: ingestor,
		fetcher:  fetcher,
		calendar: calendar,
		throttle: util.NewThrottle(cfg.Delay),
		sinks:    sinks,
		log:      log.With("component", "sync"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Name returns the gatherer identifier.
func (s *Synchronizer) Name() string { return "daily-sync" }

// Run performs one pass over all configured symbols and hands the report to
// every sink. Per-symbol failures are reported, not returned; the only error
// is the context's when the run was interrupted.
func (s *Synchronizer) Run(ctx context.Context) error {
	report := s.SyncAll(ctx)
	for _, sink := range s.sinks {
		// Recording must survive an interrupted run.
		if err := sink.Record(context.WithoutCancel(ctx), report); err != nil {
			s.log.Warn("recording run report failed", "run", report.RunID, "error", err)
		}
	}
	return ctx.Err()
}

// SyncAll synchronizes the configured symbols sequentially. A failing symbol
// never stops the batch; cancelling ctx does, and symbols not yet attempted
// are left out of the report.
func (s *Synchronizer) SyncAll(ctx context.Context) domain.RunReport {
	report := domain.RunReport{RunID: s.newRunID(), StartedAt: s.now()}
	log := s.log.With("run", report.RunID)
	log.Info("sync started", "symbols", len(s.cfg.Symbols), "delay", s.throttle.Interval())

	for _, symbol := range s.cfg.Symbols {
		if err := s.throttle.Wait(ctx); err != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, s.SyncSymbol(ctx, symbol, s.runTime()))
	}

	report.FinishedAt = s.now()
	if ctx.Err() != nil {
		log.Warn("sync interrupted", "attempted", len(report.Results), "symbols", len(s.cfg.Symbols))
	}

	counts := report.Counts()
	attrs := []any{"elapsed", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)}
	for _, o := range domain.Outcomes {
		if counts[o] > 0 {
			attrs = append(attrs, strings.ToLower(string(o)), counts[o])
		}
	}
	if failed := report.Failed(); len(failed) > 0 {
		symbols := make([]string, len(failed))
		for i, r := range failed {
			symbols[i] = r.Symbol
		}
		attrs = append(attrs, "failed", strings.Join(symbols, ","))
	}
	log.Info("sync finished", attrs...)
	return report
}

// SyncSymbol runs one symbol through the state machine. It never panics and
// never returns an error; failures are reported as OutcomeError.
func (s *Synchronizer) SyncSymbol(ctx context.Context, symbol string, now time.Time) (res domain.SyncResult) {
	start := s.now()
	res = domain.SyncResult{Symbol: strings.ToUpper(strings.TrimSpace(symbol))}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = domain.OutcomeError
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Duration = s.now().Sub(start)
		s.logResult(res)
	}()

	if res.Symbol == "" {
		res.Outcome = domain.OutcomeError
		res.Err = errors.New("empty symbol")
		return res
	}
	if err := s.syncSymbol(ctx, &res, now); err != nil {
		res.Outcome = domain.OutcomeError
		res.Err = err
	}
	return res
}

func (s *Synchronizer) syncSymbol(ctx context.Context, res *domain.SyncResult, now time.Time) error {
	existing, err := s.archive.Load(ctx, res.Symbol)
	if err != nil {
		return fmt.Errorf("loading archive: %w", err)
	}
	res.TradingDate = s.calendar.Today(now, s.cfg.Location)

	if len(existing) == 0 {
		return s.backfill(ctx, res)
	}

	disp, err := s.ingestor.Ingest(ctx, res.Symbol, res.TradingDate)
	if err != nil {
		return fmt.Errorf("ingesting snapshot: %w", err)
	}
	res.Snapshot = disp.String()

	bars := existing
	if disp == snapshot.Appended {
		if bars, err = s.archive.Load(ctx, res.Symbol); err != nil {
			return fmt.Errorf("reloading archive: %w", err)
		}
	}
	if len(bars) == 0 {
		return errors.New("archive empty after snapshot ingest")
	}
	res.Rows = len(bars)
	res.LastDate = bars[len(bars)-1].Date

	if disp == snapshot.Appended {
		res.Outcome = domain.OutcomeAppended
		res.Added = store.CountNew(existing, bars)
		return nil
	}
	if !res.LastDate.Before(res.TradingDate) {
		res.Outcome = domain.OutcomeUpToDate
		return nil
	}

	rng := DateRange{Start: res.LastDate}
	fetched, err := s.fetcher.FetchRange(ctx, res.Symbol, rng)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", rng, err)
	}
	if len(fetched) == 0 {
		res.Outcome = domain.OutcomeNoNew
		return nil
	}

	merged := store.Merge(bars, fetched)
	if err := s.archive.Save(ctx, res.Symbol, merged); err != nil {
		return fmt.Errorf("saving archive: %w", err)
	}
	res.Outcome = domain.OutcomeAppended
	res.Added = store.CountNew(bars, merged)
	res.Rows = len(merged)
	res.LastDate = merged[len(merged)-1].Date
	return nil
}

// backfill initializes an empty archive from the configured start date.
func (s *Synchronizer) backfill(ctx context.Context, res *domain.SyncResult) error {
	rng := DateRange{Start: s.cfg.StartDate}
	fetched, err := s.fetcher.FetchRange(ctx, res.Symbol, rng)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", rng, err)
	}
	bars := store.Merge(nil, fetched)
	if len(bars) == 0 {
		res.Outcome = domain.OutcomeSkipped
		return nil
	}
	if err := s.archive.Save(ctx, res.Symbol, bars); err != nil {
		return fmt.Errorf("saving archive: %w", err)
	}
	res.Outcome = domain.OutcomeInit
	res.Rows = len(bars)
	res.Added = len(bars)
	res.LastDate = bars[len(bars)-1].Date
	return nil
}

// runTime returns the instant whose wall date in Location is the run date.
func (s *Synchronizer) runTime() time.Time {
	if d := s.cfg.RunDate; !d.IsZero() {
		return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, s.cfg.Location)
	}
	return s.now()
}

func (s *Synchronizer) logResult(res domain.SyncResult) {
	attrs := []any{
		"symbol", res.Symbol,
		"outcome", string(res.Outcome),
		"rows", res.Rows,
		"added", res.Added,
		"elapsed", res.Duration.Round(time.Millisecond),
	}
	if !res.LastDate.IsZero() {
		attrs = append(attrs, "last", res.LastDate.Format(domain.DateLayout))
	}
	if res.Snapshot != "" {
		attrs = append(attrs, "snapshot", res.Snapshot)
	}
	if res.Err != nil {
		s.log.Error("symbol failed", append(attrs, "error", res.Reason())...)
		return
	}
	s.log.Info("symbol synced", attrs...)
}
