package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/stockup888888/stock/internal/domain"
	"github.com/stockup888888/stock/internal/store"
)

// SymbolStatus summarizes one symbol's archive and its latest recorded run.
type SymbolStatus struct {
	Symbol    string
	Rows      int
	First     string
	Last      string
	Outcome   domain.Outcome
	RunAt     string
	LastError string
}

// BuildStatus collects the status of every archived symbol plus any extra
// symbols (such as the configured list) that have no archive yet. runLog may
// be nil.
func BuildStatus(ctx context.Context, archive store.ArchiveStore, runLog store.RunLog, extra []string) ([]SymbolStatus, error) {
	symbols, err := archive.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	seen := map[string]bool{}
	for _, s := range symbols {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)

	latest := map[string]store.OutcomeRecord{}
	if runLog != nil {
		records, err := runLog.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading run log: %w", err)
		}
		for _, r := range records {
			latest[r.Symbol] = r
		}
	}

	out := make([]SymbolStatus, 0, len(symbols))
	for _, sym := range symbols {
		bars, err := archive.Load(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", sym, err)
		}
		st := SymbolStatus{Symbol: sym, Rows: len(bars)}
		if len(bars) > 0 {
			st.First = bars[0].Date.Format(domain.DateLayout)
			st.Last = bars[len(bars)-1].Date.Format(domain.DateLayout)
		}
		if r, ok := latest[sym]; ok {
			st.Outcome = r.Outcome
			st.RunAt = r.RecordedAt.Format("2006-01-02 15:04")
			st.LastError = r.Error
		}
		out = append(out, st)
	}
	return out, nil
}

// WriteStatus renders statuses as an aligned table.
func WriteStatus(w io.Writer, statuses []SymbolStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tROWS\tFIRST\tLAST\tOUTCOME\tRUN AT\tERROR")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Symbol, s.Rows, dash(s.First), dash(s.Last), dash(string(s.Outcome)), dash(s.RunAt), s.LastError)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
