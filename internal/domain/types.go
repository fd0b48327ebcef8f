// Package domain defines the core types shared across the archive
// synchronizer: daily bars, markets, and per-symbol sync outcomes.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const MarketUS Market = "us"

// DateLayout is the calendar-date layout used in archive files.
const DateLayout = "2006-01-02"

// CompactDateLayout is the 8-digit date layout used in snapshot file names.
const CompactDateLayout = "20060102"

// Bar is one trading day's OHLCV record for one symbol. Date is a tz-naive
// calendar date stored as midnight UTC.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Dividend *float64 // optional
	Split    *float64 // optional split ratio
}

// Validate reports whether the bar satisfies the archive's required-field
// invariant.
func (b Bar) Validate() error {
	if b.Date.IsZero() {
		return errors.New("missing date")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("invalid %s %v", f.name, f.v)
		}
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume %d", b.Volume)
	}
	return nil
}

// NormalizeDate drops the time-of-day and zone of t, keeping its wall-clock
// calendar date.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a calendar date. Timestamps with a time or zone suffix
// are accepted; only their wall-clock date is kept.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		CompactDateLayout,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Float64 returns a pointer to v, for the optional Bar fields.
func Float64(v float64) *float64 { return &v }
