package store

import (
	"sort"
	"time"

	"github.com/stockup888888/stock/internal/domain"
)

// Merge concatenates existing then incoming and keeps the last bar seen for
// each date, so incoming always wins over existing. Dates are normalized,
// invalid bars are dropped, and the result is sorted ascending.
func Merge(existing, incoming []domain.Bar) []domain.Bar {
	seen := make(map[int64]domain.Bar, len(existing)+len(incoming))
	add := func(bars []domain.Bar) {
		for _, b := range bars {
			b.Date = domain.NormalizeDate(b.Date)
			if b.Validate() != nil {
				continue
			}
			seen[b.Date.Unix()] = b
		}
	}
	add(existing)
	add(incoming)

	merged := make([]domain.Bar, 0, len(seen))
	for _, b := range seen {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// ContainsDate reports whether bars (sorted ascending) has a bar on date.
func ContainsDate(bars []domain.Bar, date time.Time) bool {
	date = domain.NormalizeDate(date)
	i := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(date)
	})
	return i < len(bars) && bars[i].Date.Equal(date)
}

// CountNew returns how many dates in after are absent from before. Both must
// be sorted ascending.
func CountNew(before, after []domain.Bar) int {
	n := 0
	for _, b := range after {
		if !ContainsDate(before, b.Date) {
			n++
		}
	}
	return n
}
