// Package reconcile verifies that every current-state table still equals a replay of
// its append-only log.
package reconcile

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Check names.
const (
	CheckBalances        = "balances"
	CheckLedgerChains    = "ledger_chains"
	CheckVoucherCounters = "voucher_counters"
	CheckDeposits        = "deposit_subledger"
	CheckReferralStats   = "referral_stats"
)

// Mismatch is one cached value that disagrees with its log.
type Mismatch struct {
	Key      string `db:"key" json:"key"`
	Field    string `db:"field" json:"field"`
	Expected string `db:"expected" json:"expected"`
	Actual   string `db:"actual" json:"actual"`
}

// Check is the result of one comparison.
type Check struct {
	Name       string     `json:"name"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

func (c Check) OK() bool { return len(c.Mismatches) == 0 }

// Report collects every check of a run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Checks      []Check   `json:"checks"`
	Repaired    bool      `json:"repaired"`
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK() {
			return false
		}
	}
	return true
}

// Failed returns the number of failing checks.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Checks {
		if !c.OK() {
			n++
		}
	}
	return n
}

// WriteText renders the report for terminals and archives.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("Economy reconcile report\n")
	ew.printf("Generated: %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	if r.Repaired {
		ew.printf("Caches repaired before this report\n")
	}
	ew.printf("\n")

	for _, c := range r.Checks {
		status := "OK"
		if !c.OK() {
			status = "FAIL"
		}
		ew.printf("[%-4s] %-18s checked=%d mismatches=%d\n", status, c.Name, c.Checked, len(c.Mismatches))
		for _, m := range c.Mismatches {
			ew.printf("       %s %s: expected=%s actual=%s\n", m.Key, m.Field, m.Expected, m.Actual)
		}
	}

	ew.printf("\n")
	if r.OK() {
		ew.printf("Result: all %d checks passed\n", len(r.Checks))
	} else {
		ew.printf("Result: %d of %d checks failed\n", r.Failed(), len(r.Checks))
	}
	return ew.err
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
