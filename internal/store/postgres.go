package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockup888888/stock/internal/domain"
)

// Compile-time interface check.
var _ RunLog = (*PostgresRunLog)(nil)

const postgresSchema = `
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
	duration_ms  BIGINT  NOT NULL DEFAULT 0,
	recorded_at  BIGINT  NOT NULL,
	PRIMARY KEY (run_id, symbol)
);
CREATE INDEX IF NOT EXISTS idx_sync_outcomes_symbol ON sync_outcomes (symbol, recorded_at);`

const postgresUpsert = `
INSERT INTO sync_outcomes
	(run_id, symbol, outcome, trading_date, last_date, row_count,
	 added_count, snapshot, error, duration_ms, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id, symbol) DO UPDATE SET
	outcome      = EXCLUDED.outcome,
	trading_date = EXCLUDED.trading_date,
	last_date    = EXCLUDED.last_date,
	row_count    = EXCLUDED.row_count,
	added_count  = EXCLUDED.added_count,
	snapshot     = EXCLUDED.snapshot,
	error        = EXCLUDED.error,
	duration_ms  = EXCLUDED.duration_ms,
	recorded_at  = EXCLUDED.recorded_at`

// PostgresRunLog implements RunLog backed by a Postgres connection pool.
type PostgresRunLog struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRunLog connects to dsn, verifies the connection and ensures the
// outcome table exists.
func NewPostgresRunLog(ctx context.Context, dsn string) (*PostgresRunLog, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating run log schema: %w", err)
	}
	return &PostgresRunLog{pool: pool, now: time.Now}, nil
}

// Close closes the connection pool.
func (p *PostgresRunLog) Close() error {
	p.pool.Close()
	return nil
}

// Record upserts one row per result in a single transaction.
func (p *PostgresRunLog) Record(ctx context.Context, report domain.RunReport) error {
	recorded := recordedAt(report, p.now)
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range report.Results {
			rec := newOutcomeRecord(report.RunID, r, recorded)
			batch.Queue(postgresUpsert,
				rec.RunID, rec.Symbol, string(rec.Outcome), rec.TradingDate, rec.LastDate,
				rec.Rows, rec.Added, rec.Snapshot, rec.Error,
				rec.Duration.Milliseconds(), rec.RecordedAt.UnixMilli(),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("recording run %s: %w", report.RunID, err)
		}
		return nil
	})
}

// Latest returns the most recent outcome per symbol.
func (p *PostgresRunLog) Latest(ctx context.Context) ([]OutcomeRecord, error) {
	rows, err := p.pool.Query(ctx, latestOutcomesQuery)
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
