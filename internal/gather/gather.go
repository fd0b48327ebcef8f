package gather

import (
	"context"
	"time"

	"github.com/stockup888888/stock/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early when ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching. Start is inclusive;
// a zero End means "through the latest available bar".
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the range extends to the latest available bar.
func (r DateRange) Open() bool { return r.End.IsZero() }

// String formats the range as "start..end" or "start..latest".
func (r DateRange) String() string {
	end := "latest"
	if !r.Open() {
		end = r.End.Format(domain.DateLayout)
	}
	return r.Start.Format(domain.DateLayout) + ".." + end
}

// RangeFetcher retrieves daily bars for one symbol from a remote provider.
// Implementations return bars with tz-naive dates and an empty slice with a
// nil error when the provider has no rows for the range.
type RangeFetcher interface {
	Name() string
	FetchRange(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error)
}
