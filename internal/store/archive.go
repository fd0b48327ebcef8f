package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stockup888888/stock/internal/domain"
)

// Compile-time interface check.
var _ ArchiveStore = (*FileArchiveStore)(nil)

// FileArchiveStore keeps one archive per symbol as a CSV file plus a Parquet
// file of the same content:
//
//	{dir}/{SYMBOL}.csv
//	{dir}/{SYMBOL}.parquet
type FileArchiveStore struct {
	dir string
	log *slog.Logger
}

// NewFileArchiveStore returns a FileArchiveStore rooted at dir.
func NewFileArchiveStore(dir string, log *slog.Logger) *FileArchiveStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileArchiveStore{dir: dir, log: log.With("component", "archive")}
}

// Paths returns the CSV and Parquet archive paths for symbol.
func (s *FileArchiveStore) Paths(symbol string) (csvPath, parquetPath string) {
	base := filepath.Join(s.dir, strings.ToUpper(symbol))
	return base + ExtCSV, base + ExtParquet
}

// Load reads the CSV archive, or the Parquet archive when only that exists.
func (s *FileArchiveStore) Load(ctx context.Context, symbol string) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	csvPath, parquetPath := s.Paths(symbol)
	path := csvPath
	if !fileExists(csvPath) {
		if !fileExists(parquetPath) {
			return nil, nil
		}
		path = parquetPath
	}

	bars, dropped, err := ReadBarsFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading archive %s: %w", filepath.Base(path), err)
	}
	for _, d := range dropped {
		s.log.Warn("dropping archive row", "symbol", symbol, "file", filepath.Base(path), "row", d.Row, "error", d.Err)
	}
	return Merge(nil, bars), nil
}

// Save writes both archive forms atomically.
func (s *FileArchiveStore) Save(ctx context.Context, symbol string, bars []domain.Bar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	csvPath, parquetPath := s.Paths(symbol)
	if err := WriteBarsFile(csvPath, bars); err != nil {
		return fmt.Errorf("saving %s: %w", filepath.Base(csvPath), err)
	}
	if err := WriteBarsFile(parquetPath, bars); err != nil {
		return fmt.Errorf("saving %s: %w", filepath.Base(parquetPath), err)
	}
	s.log.Debug("archive saved", "symbol", symbol, "rows", len(bars))
	return nil
}

// ListSymbols returns the symbols with an archive in either form, sorted.
func (s *FileArchiveStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ExtCSV && ext != ExtParquet {
			continue
		}
		sym := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}
