package gather

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stockup888888/stock/internal/domain"
	"github.com/stockup888888/stock/internal/snapshot"
	"github.com/stockup888888/stock/internal/store"
	"github.com/stockup888888/stock/internal/util"
)

// fakeFetcher serves canned bars per symbol and records every request.
type fakeFetcher struct {
	mu     sync.Mutex
	bars   map[string][]domain.Bar
	errs   map[string]error
	panics map[string]bool
	calls  []fetchCall
}

type fetchCall struct {
	Symbol string
	Range  DateRange
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bars:   map[string][]domain.Bar{},
		errs:   map[string]error{},
		panics: map[string]bool{},
	}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchRange(_ context.Context, symbol string, r DateRange) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{Symbol: symbol, Range: r})
	if f.panics[symbol] {
		panic("provider exploded")
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	var out []domain.Bar
	for _, b := range f.bars[symbol] {
		if !b.Date.Before(r.Start) && (r.Open() || !b.Date.After(r.End)) {
			out = append(out, b)
		}
	}
	return out, nil
}

type recordingSink struct {
	reports []domain.RunReport
}

func (r *recordingSink) Record(_ context.Context, report domain.RunReport) error {
	r.reports = append(r.reports, report)
	return nil
}

type harness struct {
	archive *store.FileArchiveStore
	ingest  *snapshot.Ingestor
	fetcher *fakeFetcher
	sink    *recordingSink
	log     *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	archive := store.NewFileArchiveStore(filepath.Join(root, "archive"), log)
	return &harness{
		archive: archive,
		ingest:  snapshot.NewIngestor(filepath.Join(root, "snapshots"), archive, log),
		fetcher: newFakeFetcher(),
		sink:    &recordingSink{},
		log:     log,
	}
}

func (h *harness) synchronizer(now time.Time, symbols ...string) *Synchronizer {
	cfg := SyncConfig{
		Symbols:   symbols,
		StartDate: day("2020-01-01"),
		Location:  time.UTC,
	}
	s := NewSynchronizer(cfg, h.archive, h.ingest, h.fetcher, util.NewTradingCalendar(domain.MarketUS), h.log, h.sink)
	s.now = func() time.Time { return now }
	s.newRunID = func() string { return "run-test" }
	return s
}

func (h *harness) seed(t *testing.T, symbol string, bars ...domain.Bar) {
	t.Helper()
	if err := h.archive.Save(context.Background(), symbol, bars); err != nil {
		t.Fatalf("seeding %s: %v", symbol, err)
	}
}

func (h *harness) load(t *testing.T, symbol string) []domain.Bar {
	t.Helper()
	bars, err := h.archive.Load(context.Background(), symbol)
	if err != nil {
		t.Fatalf("Load(%s): %v", symbol, err)
	}
	return bars
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// at returns 18:00 UTC on the given date.
func at(s string) time.Time { return day(s).Add(18 * time.Hour) }

func bar(date string, close float64) domain.Bar {
	return domain.Bar{Date: day(date), Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 100}
}

func TestSyncSymbolInit(t *testing.T) {
	h := newHarness(t)
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-08", 8), bar("2025-01-09", 9), bar("2025-01-10", 10)}

	res := h.synchronizer(at("2025-01-10")).SyncSymbol(context.Background(), "XYZ", at("2025-01-10"))
	if res.Outcome != domain.OutcomeInit {
		t.Fatalf("Outcome = %s (%v), want INIT", res.Outcome, res.Err)
	}
	if res.Rows != 3 || res.Added != 3 || !res.LastDate.Equal(day("2025-01-10")) {
		t.Errorf("result = %+v, want 3 rows ending 2025-01-10", res)
	}
	if len(h.fetcher.calls) != 1 || !h.fetcher.calls[0].Range.Start.Equal(day("2020-01-01")) || !h.fetcher.calls[0].Range.Open() {
		t.Errorf("fetch calls = %+v, want one [2020-01-01, latest]", h.fetcher.calls)
	}
	if got := h.load(t, "XYZ"); len(got) != 3 {
		t.Errorf("archive has %d bars, want 3", len(got))
	}
}

func TestSyncSymbolInitEmptyIsSkipped(t *testing.T) {
	h := newHarness(t)

	res := h.synchronizer(at("2025-01-10")).SyncSymbol(context.Background(), "NEWCO", at("2025-01-10"))
	if res.Outcome != domain.OutcomeSkipped {
		t.Fatalf("Outcome = %s, want SKIPPED", res.Outcome)
	}
	csvPath, parquetPath := h.archive.Paths("NEWCO")
	for _, p := range []string{csvPath, parquetPath} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("%s created for a symbol with no data", filepath.Base(p))
		}
	}
}

func TestSyncSymbolUpToDateOnWeekend(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-09", 9), bar("2025-01-10", 10))

	// Sunday resolves to Friday 2025-01-10.
	res := h.synchronizer(at("2025-01-12")).SyncSymbol(context.Background(), "XYZ", at("2025-01-12"))
	if res.Outcome != domain.OutcomeUpToDate {
		t.Fatalf("Outcome = %s (%v), want UP_TO_DATE", res.Outcome, res.Err)
	}
	if !res.TradingDate.Equal(day("2025-01-10")) {
		t.Errorf("TradingDate = %v, want 2025-01-10", res.TradingDate)
	}
	if len(h.fetcher.calls) != 0 {
		t.Errorf("fetcher called %d times, want 0", len(h.fetcher.calls))
	}
}

func TestSyncSymbolArchiveAheadIsUpToDate(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-10", 10), bar("2025-01-13", 13))

	res := h.synchronizer(at("2025-01-10")).SyncSymbol(context.Background(), "XYZ", at("2025-01-10"))
	if res.Outcome != domain.OutcomeUpToDate {
		t.Fatalf("Outcome = %s, want UP_TO_DATE", res.Outcome)
	}
	if len(h.fetcher.calls) != 0 {
		t.Errorf("fetcher called %d times, want 0", len(h.fetcher.calls))
	}
}

func TestSyncSymbolFallbackOverlap(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-08", 8), bar("2025-01-09", 9), bar("2025-01-10", 10))
	// The provider has a revised close for the overlap day plus Monday.
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-09", 9), bar("2025-01-10", 10.5), bar("2025-01-13", 13)}

	res := h.synchronizer(at("2025-01-13")).SyncSymbol(context.Background(), "XYZ", at("2025-01-13"))
	if res.Outcome != domain.OutcomeAppended {
		t.Fatalf("Outcome = %s (%v), want APPENDED", res.Outcome, res.Err)
	}
	if res.Snapshot != "absent" {
		t.Errorf("Snapshot = %q, want absent", res.Snapshot)
	}
	if len(h.fetcher.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(h.fetcher.calls))
	}
	if rng := h.fetcher.calls[0].Range; !rng.Start.Equal(day("2025-01-10")) || !rng.Open() {
		t.Errorf("fetch range = %s, want 2025-01-10..latest", rng)
	}

	got := h.load(t, "XYZ")
	if len(got) != 4 {
		t.Fatalf("archive has %d bars, want 4", len(got))
	}
	if !got[3].Date.Equal(day("2025-01-13")) {
		t.Errorf("last date = %v, want 2025-01-13", got[3].Date)
	}
	if got[2].Close != 10.5 {
		t.Errorf("2025-01-10 Close = %v, want revised 10.5", got[2].Close)
	}
	if res.Added != 1 || res.Rows != 4 {
		t.Errorf("Added/Rows = %d/%d, want 1/4", res.Added, res.Rows)
	}
}

func TestSyncSymbolNoNew(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-10", 10))

	res := h.synchronizer(at("2025-01-13")).SyncSymbol(context.Background(), "XYZ", at("2025-01-13"))
	if res.Outcome != domain.OutcomeNoNew {
		t.Fatalf("Outcome = %s (%v), want NO_NEW", res.Outcome, res.Err)
	}
	if got := h.load(t, "XYZ"); len(got) != 1 {
		t.Errorf("archive has %d bars, want 1", len(got))
	}
}

func TestSyncSymbolSnapshotAppended(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-10", 10))
	csvPath, _ := h.ingest.Paths("XYZ", day("2025-01-13"))
	if err := store.WriteBarsFile(csvPath, []domain.Bar{bar("2025-01-13", 13)}); err != nil {
		t.Fatalf("WriteBarsFile: %v", err)
	}

	res := h.synchronizer(at("2025-01-13")).SyncSymbol(context.Background(), "XYZ", at("2025-01-13"))
	if res.Outcome != domain.OutcomeAppended || res.Snapshot != "appended" {
		t.Fatalf("Outcome/Snapshot = %s/%s (%v), want APPENDED/appended", res.Outcome, res.Snapshot, res.Err)
	}
	if res.Added != 1 || !res.LastDate.Equal(day("2025-01-13")) {
		t.Errorf("result = %+v", res)
	}
	if len(h.fetcher.calls) != 0 {
		t.Errorf("fetcher called %d times, want 0", len(h.fetcher.calls))
	}
}

func TestSyncSymbolRedundantSnapshotFallsBack(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-10", 10))
	csvPath, _ := h.ingest.Paths("XYZ", day("2025-01-13"))
	if err := store.WriteBarsFile(csvPath, []domain.Bar{bar("2025-01-10", 10)}); err != nil {
		t.Fatalf("WriteBarsFile: %v", err)
	}
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-10", 10), bar("2025-01-13", 13)}

	res := h.synchronizer(at("2025-01-13")).SyncSymbol(context.Background(), "XYZ", at("2025-01-13"))
	if res.Snapshot != "skipped" {
		t.Errorf("Snapshot = %q, want skipped", res.Snapshot)
	}
	if res.Outcome != domain.OutcomeAppended {
		t.Fatalf("Outcome = %s (%v), want APPENDED", res.Outcome, res.Err)
	}
	if _, err := os.Stat(csvPath); err == nil {
		t.Error("redundant snapshot was not deleted")
	}
}

func TestSyncSymbolRunDateOverride(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-10", 10))
	s := h.synchronizer(at("2025-03-03"), "XYZ")
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s.cfg.Location = ny
	s.cfg.RunDate = day("2025-01-11")

	report := s.SyncAll(context.Background())
	if len(report.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(report.Results))
	}
	res := report.Results[0]
	if !res.TradingDate.Equal(day("2025-01-10")) || res.Outcome != domain.OutcomeUpToDate {
		t.Errorf("TradingDate/Outcome = %v/%s, want 2025-01-10/UP_TO_DATE", res.TradingDate, res.Outcome)
	}
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs["AAA"] = errors.New("connection reset")
	h.fetcher.panics["BBB"] = true
	h.fetcher.bars["CCC"] = []domain.Bar{bar("2025-01-10", 10)}
	h.seed(t, "DDD", bar("2025-01-10", 10))
	var logs bytes.Buffer
	h.log = slog.New(slog.NewTextHandler(&logs, nil))

	report := h.synchronizer(at("2025-01-10"), "AAA", "BBB", "CCC", "DDD").SyncAll(context.Background())

	want := []domain.Outcome{domain.OutcomeError, domain.OutcomeError, domain.OutcomeInit, domain.OutcomeUpToDate}
	if len(report.Results) != len(want) {
		t.Fatalf("results = %d, want %d", len(report.Results), len(want))
	}
	for i, w := range want {
		if got := report.Results[i].Outcome; got != w {
			t.Errorf("%s outcome = %s, want %s", report.Results[i].Symbol, got, w)
		}
	}
	if report.Results[0].Err == nil || report.Results[1].Err == nil {
		t.Error("failed results carry no error")
	}
	if report.RunID != "run-test" {
		t.Errorf("RunID = %q, want run-test", report.RunID)
	}
	if n := len(report.Failed()); n != 2 {
		t.Errorf("Failed() = %d, want 2", n)
	}
	if !strings.Contains(logs.String(), "failed=AAA,BBB") {
		t.Errorf("summary line does not name failed symbols:\n%s", logs.String())
	}
	if !strings.Contains(logs.String(), "connection reset\"") {
		t.Errorf("AAA error not logged:\n%s", logs.String())
	}
}

func TestSyncAllIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-09", 9), bar("2025-01-10", 10)}
	s := h.synchronizer(at("2025-01-10"), "XYZ")

	first := s.SyncAll(context.Background())
	csvPath, _ := h.archive.Paths("XYZ")
	before, _ := os.ReadFile(csvPath)

	second := s.SyncAll(context.Background())
	after, _ := os.ReadFile(csvPath)

	if first.Results[0].Outcome != domain.OutcomeInit {
		t.Errorf("first run = %s, want INIT", first.Results[0].Outcome)
	}
	if second.Results[0].Outcome != domain.OutcomeUpToDate {
		t.Errorf("second run = %s, want UP_TO_DATE", second.Results[0].Outcome)
	}
	if string(before) != string(after) {
		t.Error("second run changed the archive")
	}
}

func TestSyncAllOverlapOnlyRewriteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "XYZ", bar("2025-01-09", 9), bar("2025-01-10", 10))
	// Monday is a holiday: the provider has nothing past Friday.
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-10", 10)}
	s := h.synchronizer(at("2025-01-13"), "XYZ")
	csvPath, parquetPath := h.archive.Paths("XYZ")

	read := func() (string, string) {
		t.Helper()
		c, err := os.ReadFile(csvPath)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", csvPath, err)
		}
		p, err := os.ReadFile(parquetPath)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", parquetPath, err)
		}
		return string(c), string(p)
	}

	for i := 0; i < 2; i++ {
		beforeCSV, beforeParquet := read()
		report := s.SyncAll(context.Background())
		r := report.Results[0]
		if r.Outcome != domain.OutcomeAppended || r.Added != 0 {
			t.Fatalf("run %d = %s added %d, want APPENDED added 0", i+1, r.Outcome, r.Added)
		}
		afterCSV, afterParquet := read()
		if beforeCSV != afterCSV {
			t.Errorf("run %d changed the csv archive:\n before %q\n after  %q", i+1, beforeCSV, afterCSV)
		}
		if beforeParquet != afterParquet {
			t.Errorf("run %d changed the parquet archive", i+1)
		}
	}
	if n := len(h.fetcher.calls); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
	for _, c := range h.fetcher.calls {
		if !c.Range.Start.Equal(day("2025-01-10")) {
			t.Errorf("fetch start = %v, want 2025-01-10", c.Range.Start)
		}
	}
}

func TestRunCancelledAttemptsNothing(t *testing.T) {
	h := newHarness(t)
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-10", 10)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.synchronizer(at("2025-01-10"), "XYZ", "ABC").Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if len(h.sink.reports) != 1 {
		t.Fatalf("sink received %d reports, want 1", len(h.sink.reports))
	}
	if n := len(h.sink.reports[0].Results); n != 0 {
		t.Errorf("report has %d results, want 0", n)
	}
}

func TestRunRecordsReport(t *testing.T) {
	h := newHarness(t)
	h.fetcher.bars["XYZ"] = []domain.Bar{bar("2025-01-10", 10)}

	if err := h.synchronizer(at("2025-01-10"), "XYZ").Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.sink.reports) != 1 || len(h.sink.reports[0].Results) != 1 {
		t.Fatalf("sink reports = %+v", h.sink.reports)
	}
	if got := h.sink.reports[0].Counts()[domain.OutcomeInit]; got != 1 {
		t.Errorf("INIT count = %d, want 1", got)
	}
}

func TestSyncAllThrottlesBetweenSymbols(t *testing.T) {
	h := newHarness(t)
	s := h.synchronizer(at("2025-01-10"), "AAA", "BBB", "CCC")
	s.throttle = util.NewThrottle(20 * time.Millisecond)

	start := time.Now()
	s.SyncAll(context.Background())
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("three symbols took %v, want at least 40ms of spacing", elapsed)
	}
}

func TestDateRangeString(t *testing.T) {
	open := DateRange{Start: day("2025-01-10")}
	if got := open.String(); got != "2025-01-10..latest" {
		t.Errorf("String() = %q", got)
	}
	closed := DateRange{Start: day("2025-01-10"), End: day("2025-01-13")}
	if got := closed.String(); got != "2025-01-10..2025-01-13" {
		t.Errorf("String() = %q", got)
	}
}
