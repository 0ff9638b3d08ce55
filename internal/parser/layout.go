package parser

import (
	"fmt"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

type column int

const (
	colDate column = iota
	colType
	colDescription
	colPaidIn
	colPaidOut
	colAmount
	colBalance
)

// LayoutSource records how a layout was resolved.
type LayoutSource int

const (
	SourceDefault   LayoutSource = iota // nothing to go on
	SourceInferred                      // voted from amount positions
	SourceHeader                        // read from a column header row
	SourceInherited                     // carried over from an earlier page's header
)

func (s LayoutSource) String() string {
	switch s {
	case SourceInferred:
		return "inferred"
	case SourceHeader:
		return "header"
	case SourceInherited:
		return "inherited"
	default:
		return "default"
	}
}

// Layout is a column layout profile: which cell index holds each canonical
// field. -1 means the statement has no such column. It is resolved once per
// page rather than guessed row by row.
type Layout struct {
	Name        string
	Source      LayoutSource
	Date        int
	Type        int
	Description int
	PaidIn      int
	PaidOut     int
	Amount      int // single signed-by-keyword amount column
	Balance     int
}

// Built-in profiles for the fixed-column statement family.
var (
	// Date | Type | Description | Paid in | Paid out | Balance
	LayoutStandard = Layout{Name: "standard", Date: 0, Type: 1, Description: 2, PaidIn: 3, PaidOut: 4, Amount: -1, Balance: 5}
	// as standard with an empty spacer column before the amounts
	LayoutSeparator = Layout{Name: "separator", Date: 0, Type: 1, Description: 2, PaidIn: 4, PaidOut: 5, Amount: -1, Balance: 6}
	// Date | Type | Description | Paid out | Paid in | Balance
	LayoutOutFirst = Layout{Name: "out-first", Date: 0, Type: 1, Description: 2, PaidIn: 4, PaidOut: 3, Amount: -1, Balance: 5}
	// Date | Type | Description | Amount | Balance
	LayoutSingleAmount = Layout{Name: "single-amount", Date: 0, Type: 1, Description: 2, PaidIn: -1, PaidOut: -1, Amount: 3, Balance: 4}
	// Date | Type | Description | Balance
	LayoutBalanceOnly = Layout{Name: "balance-only", Date: 0, Type: 1, Description: 2, PaidIn: -1, PaidOut: -1, Amount: -1, Balance: 3}
)

func (l Layout) String() string {
	return fmt.Sprintf("%s(%s)", l.Name, l.Source)
}

// amountStart is the lowest cell index the balance scan may reach.
func (l Layout) amountStart() int {
	start := -1
	for _, idx := range []int{l.PaidIn, l.PaidOut, l.Amount, l.Balance} {
		if idx >= 0 && (start < 0 || idx < start) {
			start = idx
		}
	}
	if start < 0 {
		return 3
	}
	return start
}

// width is the number of cells the layout addresses.
func (l Layout) width() int {
	w := 0
	for _, idx := range []int{l.Date, l.Type, l.Description, l.PaidIn, l.PaidOut, l.Amount, l.Balance} {
		if idx+1 > w {
			w = idx + 1
		}
	}
	return w
}

// LayoutFromHeader builds a layout from a column header row. It returns
// false unless the header names a date column and at least one amount column.
func LayoutFromHeader(row models.RawRow) (Layout, bool) {
	l := Layout{Name: "header", Source: SourceHeader, Date: -1, Type: -1, Description: -1, PaidIn: -1, PaidOut: -1, Amount: -1, Balance: -1}
	set := func(dst *int, idx int) {
		if *dst < 0 {
			*dst = idx
		}
	}
	for i, cell := range normalizeRow(row) {
		col, ok := headerLabel(cell)
		if !ok {
			continue
		}
		switch col {
		case colDate:
			set(&l.Date, i)
		case colType:
			set(&l.Type, i)
		case colDescription:
			set(&l.Description, i)
		case colPaidIn:
			set(&l.PaidIn, i)
		case colPaidOut:
			set(&l.PaidOut, i)
		case colAmount:
			set(&l.Amount, i)
		case colBalance:
			set(&l.Balance, i)
		}
	}
	if l.Date < 0 || (l.PaidIn < 0 && l.PaidOut < 0 && l.Amount < 0 && l.Balance < 0) {
		return Layout{}, false
	}
	if l.Description < 0 {
		// the detail column is often unlabelled; assume it follows date/type
		l.Description = max(l.Date, l.Type) + 1
	}
	return l, true
}

// InferLayout votes on the column holding the running balance among rows
// that classify as transactions, and picks the built-in profile that fits.
func InferLayout(rows []models.RawRow, c *Classifier) Layout {
	votes := make(map[int]int)
	candidates := 0
	col3Empty := 0
	for _, row := range rows {
		if c.Classify(row) != ClassTransaction {
			continue
		}
		cells := normalizeRow(row)
		idx := rightmostAmount(cells, 3)
		if idx < 0 {
			continue
		}
		candidates++
		votes[idx]++
		if len(cells) <= 3 || cells[3] == "" {
			col3Empty++
		}
	}
	if candidates == 0 {
		l := LayoutStandard
		l.Source = SourceDefault
		return l
	}

	balance, best := -1, 0
	for idx, n := range votes {
		if n > best || (n == best && idx > balance) {
			balance, best = idx, n
		}
	}

	var l Layout
	switch {
	case balance == 3:
		l = LayoutBalanceOnly
	case balance == 4:
		l = LayoutSingleAmount
	case balance == 5:
		l = LayoutStandard
	case balance == 6 && col3Empty == candidates:
		l = LayoutSeparator
	default:
		l = Layout{Name: "generic", Date: 0, Type: 1, Description: 2, PaidIn: balance - 2, PaidOut: balance - 1, Amount: -1, Balance: balance}
	}
	l.Source = SourceInferred
	return l
}

// rightmostAmount scans from the last cell down to floor and returns the
// index of the first cell that parses as an amount, or -1. Only the last
// non-empty cell may carry an overdrawn marker.
func rightmostAmount(cells []string, floor int) int {
	balanceSlot := true
	for i := len(cells) - 1; i >= floor; i-- {
		if cells[i] == "" {
			continue
		}
		if isAmount(cells[i], balanceSlot) {
			return i
		}
		balanceSlot = false
	}
	return -1
}
