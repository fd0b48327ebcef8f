// Package store defines storage interfaces for the per-symbol bar archives
// and the run log, with file-backed (CSV + Parquet), SQLite, and Postgres
// implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stockup888888/stock/internal/domain"
)

// ErrBadHeader is returned when a tabular bar file lacks a required column.
var ErrBadHeader = errors.New("missing required column")

// ArchiveStore loads and persists a symbol's full, ordered bar archive.
type ArchiveStore interface {
	// Load returns the archive sorted ascending with unique dates. A missing
	// or empty archive yields an empty slice and a nil error.
	Load(ctx context.Context, symbol string) ([]domain.Bar, error)

	// Save replaces the archive with bars. Readers never observe a partially
	// written file.
	Save(ctx context.Context, symbol string, bars []domain.Bar) error

	// ListSymbols returns all symbols that have an archive.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunLog records per-symbol outcomes of each run for observability. It is
// never consulted when deciding what to synchronize.
type RunLog interface {
	// Record stores every result of the report.
	Record(ctx context.Context, report domain.RunReport) error

	// Latest returns the most recent outcome per symbol, ordered by symbol.
	Latest(ctx context.Context) ([]OutcomeRecord, error)

	// Close releases the underlying connection.
	Close() error
}

// OutcomeRecord is one persisted per-symbol result.
type OutcomeRecord struct {
	RunID       string
	Symbol      string
	Outcome     domain.Outcome
	TradingDate string
	LastDate    string
	Rows        int
	Added       int
	Snapshot    string
	Error       string
	Duration    time.Duration
	RecordedAt  time.Time
}
