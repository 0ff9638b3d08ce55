package parser

import (
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
	"github.com/insightdelivered/statement-ledger/internal/rules"
)

// minRowWidth is the width rows are padded to before slot lookups.
const minRowWidth = 7

// Mapper turns a classified raw row into a canonical transaction.
type Mapper struct {
	rules *rules.RuleSet
}

// NewMapper returns a mapper that settles unlabelled amounts with rs.
// A nil rule set treats every unlabelled amount as paid out.
func NewMapper(rs *rules.RuleSet) *Mapper {
	return &Mapper{rules: rs}
}

// MapRow maps row onto the canonical schema using layout l.
//
// The balance is read from the layout's balance slot; when that slot is empty
// or unparsable the row is scanned from the last cell leftwards for the
// rightmost amount. When the layout came from a header row the labelled
// paid-in/paid-out cells are skipped by that scan.
//
// A non-empty reason means the row was rejected.
func (m *Mapper) MapRow(row models.RawRow, l Layout) (models.Transaction, models.RejectReason) {
	cells := normalizeRow(row)
	for len(cells) < max(minRowWidth, l.width()) {
		cells = append(cells, "")
	}
	cell := func(idx int) string {
		if idx < 0 || idx >= len(cells) {
			return ""
		}
		return cells[idx]
	}

	var txn models.Transaction

	date, ok := ParseDate(cell(l.Date))
	if !ok {
		// shifted rows: fall back to the first non-empty cell
		for _, c := range cells {
			if c != "" {
				date, ok = ParseDate(c)
				break
			}
		}
	}
	if !ok {
		return txn, models.RejectNoDate
	}
	txn.Date = date
	txn.Type = cell(l.Type)
	txn.Description = cell(l.Description)

	floor := l.amountStart()
	labelled := l.Source == SourceHeader || l.Source == SourceInherited

	balanceIdx := -1
	if a, ok := parseBalance(cell(l.Balance)); ok && l.Balance >= 0 {
		txn.Balance = a.Ptr()
		balanceIdx = l.Balance
	} else {
		for i := len(cells) - 1; i >= floor; i-- {
			if labelled && (i == l.PaidIn || i == l.PaidOut || i == l.Amount) {
				continue
			}
			if a, ok := parseBalance(cells[i]); ok {
				txn.Balance = a.Ptr()
				balanceIdx = i
				break
			}
		}
	}

	slot := func(idx int) *money.Amount {
		if idx < 0 || idx == balanceIdx {
			return nil
		}
		if a, ok := ParseAmount(cell(idx)); ok {
			return a.Ptr()
		}
		return nil
	}
	paidIn, paidOut := slot(l.PaidIn), slot(l.PaidOut)

	switch {
	case paidIn != nil && paidOut != nil:
		m.settleBoth(&txn, paidIn, paidOut)
	case paidIn != nil:
		txn.PaidIn = paidIn
	case paidOut != nil:
		txn.PaidOut = paidOut
	default:
		m.settleLoose(&txn, cells, l, floor, balanceIdx)
	}

	if !txn.HasAmount() && txn.Balance == nil {
		return txn, models.RejectNoAmount
	}
	if txn.Description == "" {
		return txn, models.RejectNoDescription
	}
	return txn, ""
}

// settleBoth keeps exactly one of two parsed amounts. A zero is dropped in
// favour of the other; otherwise the keyword rules decide.
func (m *Mapper) settleBoth(txn *models.Transaction, in, out *money.Amount) {
	switch {
	case in.IsZero() && !out.IsZero():
		txn.PaidOut = out
	case out.IsZero() && !in.IsZero():
		txn.PaidIn = in
	case m.direction(txn) == rules.Income:
		txn.PaidIn = in
	default:
		txn.PaidOut = out
	}
}

// settleLoose handles rows whose paid-in/paid-out slots are empty: a single
// amount column, or exactly one unlabelled amount besides the balance.
func (m *Mapper) settleLoose(txn *models.Transaction, cells []string, l Layout, floor, balanceIdx int) {
	if l.Amount >= 0 && l.Amount != balanceIdx {
		if a, ok := parseBalance(cells[l.Amount]); ok {
			m.assign(txn, a)
			return
		}
	}

	var loose []money.Amount
	for i := floor; i < len(cells); i++ {
		if i == balanceIdx || i == l.PaidIn || i == l.PaidOut || i == l.Amount {
			continue
		}
		if a, ok := parseBalance(cells[i]); ok {
			loose = append(loose, a)
		}
	}
	if len(loose) == 1 {
		m.assign(txn, loose[0])
	}
}

// assign places a single amount: a printed minus sign means paid out,
// otherwise the keyword rules decide and ambiguity defaults to paid out.
func (m *Mapper) assign(txn *models.Transaction, a money.Amount) {
	if a.Sign() < 0 {
		txn.PaidOut = a.Abs().Ptr()
		return
	}
	if m.direction(txn) == rules.Income {
		txn.PaidIn = a.Ptr()
		return
	}
	txn.PaidOut = a.Ptr()
}

func (m *Mapper) direction(txn *models.Transaction) rules.Signal {
	return m.rules.Classify(txn.Type, txn.Description)
}
