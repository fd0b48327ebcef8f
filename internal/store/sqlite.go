package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stockup888888/stock/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunLog = (*SQLiteRunLog)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_outcomes (
	run_id       TEXT    NOT NULL,
	symbol       TEXT    NOT NULL,
	outcome      TEXT    NOT NULL,
	trading_date TEXT    NOT NULL DEFAULT '',
	last_date    TEXT    NOT NULL DEFAULT '',
	row_count    INTEGER NOT NULL DEFAULT 0,
	added_count  INTEGER NOT NULL DEFAULT 0,
	snapshot     TEXT    NOT NULL DEFAULT '',
	error        TEXT    NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	recorded_at  INTEGER NOT NULL,
	PRIMARY KEY (run_id, symbol)
);
CREATE INDEX IF NOT EXISTS idx_sync_outcomes_symbol ON sync_outcomes (symbol, recorded_at);`

// latestOutcomesQuery selects the newest row per symbol. Shared by the SQLite
// and Postgres run logs.
const latestOutcomesQuery = `
SELECT run_id, symbol, outcome, trading_date, last_date, row_count,
       added_count, snapshot, error, duration_ms, recorded_at
FROM (
	SELECT *, ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY recorded_at DESC, run_id DESC) AS rn
	FROM sync_outcomes
) ranked
WHERE rn = 1
ORDER BY symbol`

// SQLiteRunLog implements RunLog backed by a SQLite database.
type SQLiteRunLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRunLog opens (or creates) a SQLite database at dbPath and ensures
// the outcome table exists.
func NewSQLiteRunLog(dbPath string) (*SQLiteRunLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run log schema: %w", err)
	}
	return &SQLiteRunLog{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteRunLog) Close() error {
	return s.db.Close()
}

// Record inserts one row per result, replacing rows of a re-recorded run.
func (s *SQLiteRunLog) Record(ctx context.Context, report domain.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO sync_outcomes
	(run_id, symbol, outcome, trading_date, last_date, row_count,
	 added_count, snapshot, error, duration_ms, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	recorded := recordedAt(report, s.now)
	for _, r := range report.Results {
		rec := newOutcomeRecord(report.RunID, r, recorded)
		if _, err := stmt.ExecContext(ctx,
			rec.RunID, rec.Symbol, string(rec.Outcome), rec.TradingDate, rec.LastDate,
			rec.Rows, rec.Added, rec.Snapshot, rec.Error,
			rec.Duration.Milliseconds(), rec.RecordedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("recording %s: %w", r.Symbol, err)
		}
	}
	return tx.Commit()
}

// Latest returns the most recent outcome per symbol.
func (s *SQLiteRunLog) Latest(ctx context.Context) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, latestOutcomesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			rec        OutcomeRecord
			outcome    string
			durationMs int64
			recordedMs int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Symbol, &outcome, &rec.TradingDate, &rec.LastDate,
			&rec.Rows, &rec.Added, &rec.Snapshot, &rec.Error, &durationMs, &recordedMs); err != nil {
			return nil, err
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.RecordedAt = time.UnixMilli(recordedMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers shared by run log implementations
// ---------------------------------------------------------------------------

func recordedAt(report domain.RunReport, now func() time.Time) time.Time {
	if !report.FinishedAt.IsZero() {
		return report.FinishedAt.UTC()
	}
	return now().UTC()
}

func newOutcomeRecord(runID string, r domain.SyncResult, recorded time.Time) OutcomeRecord {
	rec := OutcomeRecord{
		RunID:      runID,
		Symbol:     r.Symbol,
		Outcome:    r.Outcome,
		Rows:       r.Rows,
		Added:      r.Added,
		Snapshot:   r.Snapshot,
		Duration:   r.Duration,
		RecordedAt: recorded,
	}
	if !r.TradingDate.IsZero() {
		rec.TradingDate = r.TradingDate.Format(domain.DateLayout)
	}
	if !r.LastDate.IsZero() {
		rec.LastDate = r.LastDate.Format(domain.DateLayout)
	}
	rec.Error = r.Reason()
	return rec
}
