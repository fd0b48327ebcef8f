package store

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/stockup888888/stock/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for archive and snapshot bars.
type BarRecord struct {
	Date      int64    `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open      float64  `parquet:"open"`
	High      float64  `parquet:"high"`
	Low       float64  `parquet:"low"`
	Close     float64  `parquet:"close"`
	Volume    int64    `parquet:"volume"`
	Dividends *float64 `parquet:"dividends,optional"`
	Splits    *float64 `parquet:"stock_splits,optional"`
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Date:      b.Date.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Dividends: b.Dividend,
		Splits:    b.Split,
	}
}

func fromRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Date:     domain.NormalizeDate(time.UnixMilli(r.Date).UTC()),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		Volume:   r.Volume,
		Dividend: r.Dividends,
		Split:    r.Splits,
	}
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeBarsParquet(w io.Writer, bars []domain.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = toRecord(b)
	}
	return parquet.Write(w, records)
}

// readBarsParquet reads a Parquet bar file. Records failing validation are
// skipped and reported.
func readBarsParquet(path string) ([]domain.Bar, []RowError, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, nil, err
	}

	bars := make([]domain.Bar, 0, len(records))
	var dropped []RowError
	for i, r := range records {
		b := fromRecord(r)
		if err := b.Validate(); err != nil {
			dropped = append(dropped, RowError{Row: i + 1, Err: fmt.Errorf("invalid record: %w", err)})
			continue
		}
		bars = append(bars, b)
	}
	return bars, dropped, nil
}
