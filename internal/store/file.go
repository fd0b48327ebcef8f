package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stockup888888/stock/internal/domain"
)

// Bar file extensions.
const (
	ExtCSV     = ".csv"
	ExtParquet = ".parquet"
)

// ReadBarsFile reads a CSV or Parquet bar file, chosen by extension. A missing
// file returns an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadBarsFile(path string) ([]domain.Bar, []RowError, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		return readBarsCSV(bufio.NewReader(f))
	case ExtParquet:
		if _, err := os.Stat(path); err != nil {
			return nil, nil, err
		}
		return readBarsParquet(path)
	default:
		return nil, nil, fmt.Errorf("unsupported bar file %s", path)
	}
}

// WriteBarsFile writes bars to path (CSV or Parquet by extension) through a
// temporary file in the same directory and a rename.
func WriteBarsFile(path string, bars []domain.Bar) error {
	var encode func(io.Writer, []domain.Bar) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtCSV:
		encode = writeBarsCSV
	case ExtParquet:
		encode = writeBarsParquet
	default:
		return fmt.Errorf("unsupported bar file %s", path)
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := encode(bw, bars); err != nil {
			return err
		}
		return bw.Flush()
	})
}

func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
