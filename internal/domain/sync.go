package domain

import "time"

// Outcome tags the result of one symbol's synchronization pass.
type Outcome string

const (
	OutcomeInit     Outcome = "INIT"
	OutcomeAppended Outcome = "APPENDED"
	OutcomeSkipped  Outcome = "SKIPPED"
	OutcomeUpToDate Outcome = "UP_TO_DATE"
	OutcomeNoNew    Outcome = "NO_NEW"
	OutcomeError    Outcome = "ERROR"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeInit, OutcomeAppended, OutcomeSkipped,
	OutcomeUpToDate, OutcomeNoNew, OutcomeError,
}

// SyncResult is the per-symbol record produced by the synchronizer.
type SyncResult struct {
	Symbol      string
	Outcome     Outcome
	TradingDate time.Time // resolved trading day the pass ran for
	LastDate    time.Time // archive max date after the pass
	Rows        int       // archive rows after the pass
	Added       int       // dates not present before the pass
	Snapshot    string    // snapshot disposition, empty when not consulted
	Err         error
	Duration    time.Duration
}

// Reason returns the error text for ERROR results.
func (r SyncResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunReport aggregates the results of one run over the symbol list.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SyncResult
}

// Counts returns the number of results per outcome.
func (r RunReport) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, len(Outcomes))
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Failed returns the ERROR results.
func (r RunReport) Failed() []SyncResult {
	var out []SyncResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeError {
			out = append(out, res)
		}
	}
	return out
}
