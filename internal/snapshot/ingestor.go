// Package snapshot folds same-day snapshot files into the per-symbol archive.
//
// A snapshot is a pair of files written by an external exporter for one
// symbol and one calendar date:
//
//	{dir}/{SYMBOL}{YYYYMMDD}.csv
//	{dir}/{SYMBOL}{YYYYMMDD}.parquet
//
// The CSV form is read when present; the Parquet form otherwise. Once a
// snapshot has been classified both files are removed.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/stockup888888/stock/internal/domain"
	"github.com/stockup888888/stock/internal/store"
)

// Disposition is the classification of a snapshot.
type Disposition int

const (
	// Absent means no usable snapshot was found.
	Absent Disposition = iota
	// Appended means the snapshot added data to the archive.
	Appended
	// Skipped means the archive already covered the snapshot's last date.
	Skipped
)

func (d Disposition) String() string {
	switch d {
	case Absent:
		return "absent"
	case Appended:
		return "appended"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Ingestor merges snapshots into an ArchiveStore.
type Ingestor struct {
	dir     string
	archive store.ArchiveStore
	log     *slog.Logger
}

// NewIngestor returns an Ingestor reading snapshots from dir.
func NewIngestor(dir string, archive store.ArchiveStore, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{dir: dir, archive: archive, log: log.With("component", "snapshot")}
}

// Paths returns the CSV and Parquet snapshot paths for symbol on date.
func (in *Ingestor) Paths(symbol string, date time.Time) (csvPath, parquetPath string) {
	base := filepath.Join(in.dir, strings.ToUpper(symbol)+date.Format(domain.CompactDateLayout))
	return base + store.ExtCSV, base + store.ExtParquet
}

// Ingest classifies the snapshot for symbol on targetDate and, when it holds
// data the archive lacks, merges it in. Snapshot files are deleted once the
// outcome is Appended or Skipped, or when they contain no valid bars. A
// snapshot that cannot be parsed is left in place and reported as Absent.
//
// Errors returned come from loading or saving the archive; cleanup failures
// are only logged.
func (in *Ingestor) Ingest(ctx context.Context, symbol string, targetDate time.Time) (Disposition, error) {
	csvPath, parquetPath := in.Paths(symbol, targetDate)

	var (
		bars    []domain.Bar
		dropped []store.RowError
		path    string
		err     error
	)
	for _, p := range []string{csvPath, parquetPath} {
		bars, dropped, err = store.ReadBarsFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		path = p
		break
	}
	if path == "" {
		return Absent, nil
	}
	if err != nil {
		in.log.Warn("unreadable snapshot", "symbol", symbol, "file", filepath.Base(path), "error", err)
		return Absent, nil
	}
	for _, d := range dropped {
		in.log.Warn("dropping snapshot row", "symbol", symbol, "file", filepath.Base(path), "row", d.Row, "error", d.Err)
	}

	bars = store.Merge(nil, bars)
	if len(bars) == 0 {
		in.log.Info("empty snapshot", "symbol", symbol, "file", filepath.Base(path))
		in.cleanup(symbol, csvPath, parquetPath)
		return Absent, nil
	}

	existing, err := in.archive.Load(ctx, symbol)
	if err != nil {
		return Absent, fmt.Errorf("loading archive: %w", err)
	}

	last := bars[len(bars)-1].Date
	if store.ContainsDate(existing, last) {
		in.log.Info("snapshot already archived", "symbol", symbol, "last", last.Format(domain.DateLayout))
		in.cleanup(symbol, csvPath, parquetPath)
		return Skipped, nil
	}

	merged := store.Merge(existing, bars)
	if err := in.archive.Save(ctx, symbol, merged); err != nil {
		return Absent, fmt.Errorf("saving archive: %w", err)
	}
	in.log.Info("snapshot appended", "symbol", symbol, "rows", len(merged),
		"added", store.CountNew(existing, merged), "last", last.Format(domain.DateLayout))
	in.cleanup(symbol, csvPath, parquetPath)
	return Appended, nil
}

func (in *Ingestor) cleanup(symbol string, paths ...string) {
	for _, p := range paths {
		if err := store.RemoveIfExists(p); err != nil {
			in.log.Warn("snapshot cleanup failed", "symbol", symbol, "file", filepath.Base(p), "error", err)
		}
	}
}
