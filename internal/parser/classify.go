package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// Class is the outcome of classifying one raw row.
type Class int

const (
	ClassJunk Class = iota
	ClassHeader
	ClassTransaction
)

func (c Class) String() string {
	switch c {
	case ClassHeader:
		return "header"
	case ClassTransaction:
		return "transaction"
	default:
		return "junk"
	}
}

// DefaultDenylist holds boilerplate phrases printed inside statement tables:
// account metadata, balance captions, page furniture and regulatory notices.
// Matching is a lowercase substring test against the whole row.
var DefaultDenylist = []string{
	// account metadata
	"sort code", "account number", "account no", "account name", "account holder",
	"iban", "swiftbic", "swift bic", "bic:", "your business current account",
	"statement period", "statement date", "statement no", "issued on",
	// running-balance captions and summaries
	"opening balance", "closing balance", "start balance", "end balance",
	"balance brought forward", "balance carried forward", "brought forward",
	"carried forward", "total paid in", "total paid out", "total payments",
	"total receipts", "total money in", "total money out", "at a glance",
	// page markers
	"continued on next page", "continued overleaf", "page no",
	// regulatory notices
	"compensation scheme", "your deposit is eligible", "prudential regulation authority",
	"financial conduct authority", "registered in england", "registered office",
	"authorised by the", "anything wrong",
	// column header labels
	"payment type and details", "paid out paid in", "paid in paid out",
	"money out money in", "money in money out", "date description",
}

var pageMarker = regexp.MustCompile(`\bpage \d+( of \d+)?\b`)

// Header label vocabulary, matched against a whole normalized cell.
var headerLabels = map[string]column{
	"date": colDate, "posting date": colDate, "transaction date": colDate,
	"type": colType, "transaction type": colType, "payment type": colType,
	"description": colDescription, "details": colDescription,
	"transaction details": colDescription, "payment type and details": colDescription,
	"particulars": colDescription, "narrative": colDescription,
	"paid in": colPaidIn, "money in": colPaidIn, "credit": colPaidIn,
	"credits": colPaidIn, "receipts": colPaidIn, "in": colPaidIn,
	"paid out": colPaidOut, "money out": colPaidOut, "debit": colPaidOut,
	"debits": colPaidOut, "payments": colPaidOut, "withdrawals": colPaidOut, "out": colPaidOut,
	"amount": colAmount,
	"balance": colBalance,
}

// Classifier sorts raw rows into transactions, column headers and junk.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	denylist []string
}

// NewClassifier returns a classifier using DefaultDenylist plus extra phrases.
func NewClassifier(extra ...string) *Classifier {
	phrases := make([]string, 0, len(DefaultDenylist)+len(extra))
	phrases = append(phrases, DefaultDenylist...)
	for _, p := range extra {
		p = strings.ToLower(NormalizeCell(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Classifier{denylist: phrases}
}

// Classify returns the row class. See ClassifyReason.
func (c *Classifier) Classify(row models.RawRow) Class {
	class, _ := c.ClassifyReason(row)
	return class
}

// ClassifyReason returns the row class and, for non-transactions, why.
//
// Column header rows are reported as ClassHeader so callers can resolve the
// column layout from them. The denylist is checked before the date test, so
// a caption such as "01/01/2024 Balance brought forward" is junk.
func (c *Classifier) ClassifyReason(row models.RawRow) (Class, models.RejectReason) {
	cells := normalizeRow(row)

	nonEmpty := make([]string, 0, len(cells))
	for _, cell := range cells {
		if cell != "" {
			nonEmpty = append(nonEmpty, cell)
		}
	}
	if len(nonEmpty) == 0 {
		return ClassJunk, models.RejectEmpty
	}

	if isHeaderRow(nonEmpty) {
		return ClassHeader, models.RejectHeader
	}

	joined := strings.ToLower(strings.Join(nonEmpty, " "))
	if c.denylisted(joined) {
		return ClassJunk, models.RejectDenylisted
	}

	if len(nonEmpty) < 3 {
		return ClassJunk, models.RejectTooFewCells
	}

	if _, ok := ParseDate(nonEmpty[0]); !ok {
		return ClassJunk, models.RejectNoDate
	}

	last := len(nonEmpty) - 1
	for i := 1; i <= last; i++ {
		if isAmount(nonEmpty[i], i == last) {
			return ClassTransaction, ""
		}
	}
	return ClassJunk, models.RejectNoAmount
}

func (c *Classifier) denylisted(joined string) bool {
	for _, phrase := range c.denylist {
		if strings.Contains(joined, phrase) {
			return true
		}
	}
	return pageMarker.MatchString(joined)
}

// isHeaderRow reports whether at least two cells are distinct column labels.
// A row that leads with a date is never a header.
func isHeaderRow(cells []string) bool {
	if _, ok := ParseDate(cells[0]); ok {
		return false
	}
	seen := make(map[column]bool)
	for _, cell := range cells {
		if col, ok := headerLabel(cell); ok {
			seen[col] = true
		}
	}
	return len(seen) >= 2
}

// headerLabel maps a header cell such as "Paid in (£)" to its column.
func headerLabel(cell string) (column, bool) {
	var b strings.Builder
	for _, r := range strings.ToLower(cell) {
		if (r >= 'a' && r <= 'z') || r == ' ' {
			b.WriteRune(r)
		}
	}
	col, ok := headerLabels[NormalizeCell(b.String())]
	return col, ok
}
