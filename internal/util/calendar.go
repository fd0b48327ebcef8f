package util

import (
	"time"

	"github.com/stockup888888/stock/internal/domain"
)

// TradingCalendar resolves calendar dates to trading days. It only knows
// about weekends: a market holiday is treated as a trading day and simply
// yields no new bar when fetched.
type TradingCalendar struct {
	market domain.Market
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	return &TradingCalendar{
		market: market,
	}
}

// Market returns the market this calendar was created for.
func (tc *TradingCalendar) Market() domain.Market { return tc.market }

// Resolve returns the latest weekday on or before date, as a tz-naive
// calendar date.
func (tc *TradingCalendar) Resolve(date time.Time) time.Time {
	d := domain.NormalizeDate(date)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Today resolves the wall-clock date of now in loc.
func (tc *TradingCalendar) Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return tc.Resolve(now)
}
