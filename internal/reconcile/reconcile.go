// Package reconcile orders a ledger chronologically, derives missing
// paid-in/paid-out amounts from running balances and replays the balance
// column to flag inconsistencies.
package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
)

// DeriveMode controls when amounts are recomputed from balance deltas.
type DeriveMode string

const (
	// DeriveAuto derives only when no row carries an explicit paid-in/out.
	DeriveAuto DeriveMode = "auto"
	// DeriveAlways recomputes every row that has a predecessor balance,
	// overriding extracted amounts.
	DeriveAlways DeriveMode = "always"
	// DeriveNever leaves extracted amounts untouched.
	DeriveNever DeriveMode = "never"
)

// ParseDeriveMode parses a mode name; the empty string means DeriveAuto.
func ParseDeriveMode(s string) (DeriveMode, error) {
	switch DeriveMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeriveAuto:
		return DeriveAuto, nil
	case DeriveAlways:
		return DeriveAlways, nil
	case DeriveNever:
		return DeriveNever, nil
	}
	return "", fmt.Errorf("unknown derive mode %q (want auto, always or never)", s)
}

// Options configures Reconcile.
type Options struct {
	Derive   DeriveMode
	Validate bool
	// Opening is the balance before the first transaction, when known.
	Opening *money.Amount
}

// Result is the reconciled transaction list.
type Result struct {
	Transactions []models.Transaction
	Warnings     []models.Warning
	// Derived reports whether any row took its amount from a balance delta.
	Derived bool
}

// Reconcile sorts txns, derives amounts per opts.Derive and, if requested,
// validates the running balance. The input slice is not modified.
func Reconcile(txns []models.Transaction, opts Options) Result {
	out := slices.Clone(txns)
	Sort(out)

	var res Result
	switch opts.Derive {
	case DeriveAlways:
		res.Derived = DeriveFromBalances(out, opts.Opening) > 0
	case DeriveNever:
	default:
		if !HasExplicitAmounts(out) {
			res.Derived = DeriveFromBalances(out, opts.Opening) > 0
		}
	}

	if opts.Validate {
		res.Warnings = Validate(out, opts.Opening)
	}
	res.Transactions = out
	return res
}

// Sort orders txns by date ascending. Equal dates keep their extraction
// order (Seq); rows without a usable date sort first.
func Sort(txns []models.Transaction) {
	slices.SortStableFunc(txns, func(a, b models.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})
}

// HasExplicitAmounts reports whether any transaction has paid-in or paid-out.
func HasExplicitAmounts(txns []models.Transaction) bool {
	for _, t := range txns {
		if t.HasAmount() {
			return true
		}
	}
	return false
}

// DeriveFromBalances sets paid-in/out on each row from the change against
// the previous row's balance: a rise is paid in, a fall paid out, no change
// leaves both absent. The first row derives only against opening. A row
// with no balance breaks the chain for the row after it. Rows without a
// predecessor balance are left as they are. It returns how many rows were
// derived.
func DeriveFromBalances(txns []models.Transaction, opening *money.Amount) int {
	n := 0
	prev := opening
	for i := range txns {
		bal := txns[i].Balance
		if bal == nil {
			prev = nil
			continue
		}
		if prev != nil {
			delta := bal.Sub(*prev)
			txns[i].PaidIn, txns[i].PaidOut = nil, nil
			switch delta.Sign() {
			case 1:
				txns[i].PaidIn = delta.Ptr()
			case -1:
				txns[i].PaidOut = delta.Abs().Ptr()
			}
			n++
		}
		prev = bal
	}
	return n
}

// Validate replays paid-in/out against the running balance and returns a
// warning for every observed balance that differs from the expected one by
// more than money.Tolerance. The running balance resets to each observed
// balance, so one bad row yields one warning. Rows without a balance carry
// the expected value forward.
func Validate(txns []models.Transaction, opening *money.Amount) []models.Warning {
	var warnings []models.Warning
	running := opening
	for i, t := range txns {
		if running != nil {
			expected := running.Add(t.Net())
			if t.Balance == nil {
				running = &expected
				continue
			}
			if t.Balance.Sub(expected).Abs().Cmp(money.Tolerance) > 0 {
				warnings = append(warnings, models.Warning{
					Index:    i,
					Date:     t.Date,
					Expected: expected,
					Observed: *t.Balance,
				})
			}
		}
		if t.Balance != nil {
			running = t.Balance
		}
	}
	return warnings
}
