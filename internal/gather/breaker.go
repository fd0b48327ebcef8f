package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stockup888888/stock/internal/domain"
)

// Compile-time interface check.
var _ RangeFetcher = (*BreakerFetcher)(nil)

// ErrProviderUnavailable is returned without calling the provider while the
// breaker is open.
var ErrProviderUnavailable = errors.New("provider unavailable")

// BreakerFetcher wraps a RangeFetcher with a circuit breaker so a provider
// outage fails the remaining symbols fast instead of waiting on every call.
type BreakerFetcher struct {
	next RangeFetcher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerFetcher trips after failures consecutive errors and probes the
// provider again after timeout. A non-positive failures disables tripping.
func NewBreakerFetcher(next RangeFetcher, failures int, timeout time.Duration, log *slog.Logger) *BreakerFetcher {
	if log == nil {
		log = slog.Default()
	}
	st := gobreaker.Settings{Name: next.Name(), Timeout: timeout}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return failures > 0 && counts.ConsecutiveFailures >= uint32(failures)
	}
	// Context cancellation says nothing about provider health.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("fetcher breaker state changed", "fetcher", name, "from", from.String(), "to", to.String())
	}
	return &BreakerFetcher{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Name returns the wrapped fetcher's name.
func (b *BreakerFetcher) Name() string { return b.next.Name() }

// State returns the breaker state.
func (b *BreakerFetcher) State() gobreaker.State { return b.cb.State() }

// FetchRange calls the wrapped fetcher unless the breaker is open.
func (b *BreakerFetcher) FetchRange(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.FetchRange(ctx, symbol, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, b.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	bars, _ := out.([]domain.Bar)
	return bars, nil
}
