package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/stockup888888/stock/internal/domain"
)

// csvHeader is the column order written to tabular archives.
var csvHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume", "Dividends", "Stock Splits"}

// RowError describes a row dropped while reading a bar file.
type RowError struct {
	Row int // 1-based data row, header excluded
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

// csvColumns maps canonical field names to their index in a header row.
type csvColumns struct {
	date, open, high, low, close, volume int
	dividend, split                      int // -1 when absent
}

// columnAliases maps a normalized header name to its canonical field.
var columnAliases = map[string]string{
	"date":        "date",
	"datetime":    "date",
	"timestamp":   "date",
	"open":        "open",
	"high":        "high",
	"low":         "low",
	"close":       "close",
	"volume":      "volume",
	"dividends":   "dividend",
	"dividend":    "dividend",
	"stocksplits": "split",
	"splits":      "split",
	"split":       "split",
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
}

func parseHeader(header []string) (csvColumns, error) {
	idx := map[string]int{}
	for i, col := range header {
		if field, ok := columnAliases[normalizeColumn(col)]; ok {
			if _, dup := idx[field]; !dup {
				idx[field] = i
			}
		}
	}

	cols := csvColumns{dividend: -1, split: -1}
	for _, req := range []struct {
		name string
		dst  *int
	}{
		{"date", &cols.date}, {"open", &cols.open}, {"high", &cols.high},
		{"low", &cols.low}, {"close", &cols.close}, {"volume", &cols.volume},
	} {
		i, ok := idx[req.name]
		if !ok {
			return cols, fmt.Errorf("%w %q", ErrBadHeader, req.name)
		}
		*req.dst = i
	}
	if i, ok := idx["dividend"]; ok {
		cols.dividend = i
	}
	if i, ok := idx["split"]; ok {
		cols.split = i
	}
	return cols, nil
}

// readBarsCSV parses a tabular bar file. Malformed rows are skipped and
// reported; a missing required column fails the whole file.
func readBarsCSV(r io.Reader) ([]domain.Bar, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		bars    []domain.Bar
		dropped []RowError
	)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				dropped = append(dropped, RowError{Row: row, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("reading row %d: %w", row, err)
		}
		b, err := parseRecord(rec, cols)
		if err != nil {
			dropped = append(dropped, RowError{Row: row, Err: err})
			continue
		}
		bars = append(bars, b)
	}
	return bars, dropped, nil
}

func parseRecord(rec []string, cols csvColumns) (domain.Bar, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var b domain.Bar
	var err error
	if b.Date, err = domain.ParseDate(field(cols.date)); err != nil {
		return b, err
	}
	for _, f := range []struct {
		name string
		col  int
		dst  *float64
	}{
		{"open", cols.open, &b.Open}, {"high", cols.high, &b.High},
		{"low", cols.low, &b.Low}, {"close", cols.close, &b.Close},
	} {
		if *f.dst, err = parseFloat(field(f.col)); err != nil {
			return b, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if b.Volume, err = parseVolume(field(cols.volume)); err != nil {
		return b, fmt.Errorf("volume: %w", err)
	}
	if b.Dividend, err = parseOptional(field(cols.dividend)); err != nil {
		return b, fmt.Errorf("dividends: %w", err)
	}
	if b.Split, err = parseOptional(field(cols.split)); err != nil {
		return b, fmt.Errorf("stock splits: %w", err)
	}
	return b, b.Validate()
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}

// parseVolume accepts integers and integral floats such as "1.5e6".
func parseVolume(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	f = math.Round(f)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("volume %q out of range", s)
	}
	return int64(f), nil
}

func parseOptional(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := parseFloat(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// writeBarsCSV writes bars with csvHeader. Output is deterministic for a
// given input.
func writeBarsCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Date.Format(domain.DateLayout),
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			strconv.FormatInt(b.Volume, 10),
			optionalStr(b.Dividend),
			optionalStr(b.Split),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optionalStr(f *float64) string {
	if f == nil {
		return ""
	}
	return floatStr(*f)
}
