package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/cenkalti/backoff/v4"

	"github.com/stockup888888/stock/internal/domain"
	"github.com/stockup888888/stock/internal/gather"
)

// Compile-time interface check.
var _ gather.RangeFetcher = (*AlpacaFetcher)(nil)

// barsClient is the subset of *marketdata.Client used by AlpacaFetcher.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// AlpacaOptions configures an AlpacaFetcher.
type AlpacaOptions struct {
	APIKey     string
	APISecret  string
	DataURL    string
	Feed       string // "sip" or "iex"; default "sip"
	Adjusted   bool   // split and dividend adjusted prices
	MaxRetries int    // retries after the first attempt for transient failures
}

// AlpacaFetcher retrieves daily bars from the Alpaca market-data API.
type AlpacaFetcher struct {
	client     barsClient
	feed       marketdata.Feed
	adjustment marketdata.Adjustment
	maxRetries int
	loc        *time.Location
	newBackOff func() backoff.BackOff
	log        *slog.Logger
}

// NewAlpacaFetcher creates an AlpacaFetcher. Bars are dated by their session
// date in New York time.
func NewAlpacaFetcher(opts AlpacaOptions, log *slog.Logger) (*AlpacaFetcher, error) {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	return newAlpacaFetcher(marketdata.NewClient(clientOpts), opts, log)
}

func newAlpacaFetcher(client barsClient, opts AlpacaOptions, log *slog.Logger) (*AlpacaFetcher, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	feed := marketdata.Feed(opts.Feed)
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaFetcher{
		client:     client,
		feed:       feed,
		adjustment: adjustmentFor(opts.Adjusted),
		maxRetries: opts.MaxRetries,
		loc:        et,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:        log.With("fetcher", "alpaca"),
	}, nil
}

func adjustmentFor(adjusted bool) marketdata.Adjustment {
	if adjusted {
		return marketdata.All
	}
	return marketdata.Raw
}

// Name returns the fetcher identifier.
func (f *AlpacaFetcher) Name() string { return "alpaca" }

// FetchRange returns the daily bars of symbol within r, oldest first. An
// open-ended range runs through the latest bar the feed has.
func (f *AlpacaFetcher) FetchRange(ctx context.Context, symbol string, r gather.DateRange) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	symbol = strings.ToUpper(symbol)
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: f.adjustment,
		Start:      f.sessionStart(r.Start),
		Feed:       f.feed,
	}
	if !r.Open() {
		// End is inclusive of the whole session.
		req.End = f.sessionStart(r.End).AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	var multiBars map[string][]marketdata.Bar
	bo := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(max(f.maxRetries, 0))), ctx)
	err := backoff.RetryNotify(func() error {
		var err error
		multiBars, err = f.client.GetMultiBars([]string{symbol}, req)
		return classify(err)
	}, bo, func(err error, wait time.Duration) {
		f.log.Warn("bar request failed, retrying", "symbol", symbol, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars %s: %w", symbol, err)
	}
	return f.flatten(multiBars), nil
}

// sessionStart returns midnight New York time on the calendar date of d.
func (f *AlpacaFetcher) sessionStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, f.loc)
}

// flatten converts the per-symbol response into tz-naive bars.
func (f *AlpacaFetcher) flatten(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for _, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Date:   domain.NormalizeDate(ab.Timestamp.In(f.loc)),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: int64(ab.Volume),
			})
		}
	}
	return bars
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}
