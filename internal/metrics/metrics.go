// Package metrics exports per-run synchronization metrics in the Prometheus
// text format, for collection by a node-exporter textfile collector.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockup888888/stock/internal/domain"
)

// Registry holds the synchronizer's Prometheus metrics.
type Registry struct {
	reg *prometheus.Registry

	Outcomes       *prometheus.CounterVec
	SymbolDuration prometheus.Histogram
	BarsAdded      prometheus.Counter
	LastRun        prometheus.Gauge
	LastRunSymbols *prometheus.GaugeVec

	textfile string
}

// NewRegistry creates the metrics. When textfile is non-empty every recorded
// report also rewrites that file.
func NewRegistry(textfile string) *Registry {
	r := &Registry{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_sync_outcomes_total",
				Help: "Symbol passes by outcome",
			},
			[]string{"outcome"},
		),
		SymbolDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stock_sync_symbol_duration_seconds",
				Help:    "Duration of one symbol pass in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		BarsAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stock_sync_bars_added_total",
				Help: "Bars added to archives",
			},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stock_sync_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
		LastRunSymbols: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stock_sync_last_run_symbols",
				Help: "Symbols per outcome in the last run",
			},
			[]string{"outcome"},
		),
	}
	r.reg = prometheus.NewRegistry()
	r.textfile = textfile
	r.reg.MustRegister(r.Outcomes, r.SymbolDuration, r.BarsAdded, r.LastRun, r.LastRunSymbols)
	return r
}

// Observe adds a finished run to the metrics.
func (r *Registry) Observe(report domain.RunReport) {
	counts := report.Counts()
	for _, o := range domain.Outcomes {
		r.LastRunSymbols.WithLabelValues(string(o)).Set(float64(counts[o]))
		if counts[o] > 0 {
			r.Outcomes.WithLabelValues(string(o)).Add(float64(counts[o]))
		}
	}
	for _, res := range report.Results {
		r.SymbolDuration.Observe(res.Duration.Seconds())
		r.BarsAdded.Add(float64(res.Added))
	}
	if !report.FinishedAt.IsZero() {
		r.LastRun.Set(float64(report.FinishedAt.Unix()))
	}
}

// Record observes report and, when configured, rewrites the textfile.
func (r *Registry) Record(_ context.Context, report domain.RunReport) error {
	r.Observe(report)
	if r.textfile == "" {
		return nil
	}
	return r.WriteTextfile(r.textfile)
}

// WriteTextfile writes all metrics to path, replacing it atomically.
func (r *Registry) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
