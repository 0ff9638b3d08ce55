package models

import (
	"time"

	"github.com/insightdelivered/statement-ledger/internal/money"
)

// RawRow is one physical table line as produced by table extraction.
// Cells may be empty; the row length varies between statement layouts.
type RawRow []string

// Page is the rows extracted from a single PDF page, in reading order.
// Multiple tables on one page are flattened into Rows.
type Page struct {
	Number int      `json:"number"`
	Rows   []RawRow `json:"rows"`
}

// Transaction is the canonical record every export format derives from.
type Transaction struct {
	Date        time.Time     `json:"date"`
	Type        string        `json:"type,omitempty"`
	Description string        `json:"description"`
	PaidIn      *money.Amount `json:"paidIn,omitempty"`
	PaidOut     *money.Amount `json:"paidOut,omitempty"`
	Balance     *money.Amount `json:"balance,omitempty"`

	// Provenance; Seq is the original extraction order and the sort tie-break.
	Page int `json:"page"`
	Seq  int `json:"seq"`
}

// HasAmount reports whether either paid-in or paid-out is set.
func (t Transaction) HasAmount() bool {
	return t.PaidIn != nil || t.PaidOut != nil
}

// Net returns paid-in minus paid-out; absent amounts count as zero.
func (t Transaction) Net() money.Amount {
	var net money.Amount
	if t.PaidIn != nil {
		net = net.Add(*t.PaidIn)
	}
	if t.PaidOut != nil {
		net = net.Sub(*t.PaidOut)
	}
	return net
}

// RejectReason says why a raw row did not become a transaction.
type RejectReason string

const (
	RejectEmpty         RejectReason = "empty"
	RejectHeader        RejectReason = "header"
	RejectDenylisted    RejectReason = "denylisted"
	RejectTooFewCells   RejectReason = "too_few_cells"
	RejectNoDate        RejectReason = "no_date"
	RejectNoAmount      RejectReason = "no_amount"
	RejectNoDescription RejectReason = "no_description"
	RejectDuplicate     RejectReason = "duplicate"
)

// Rejection records a dropped row. Structurally identical rejections are
// collapsed into one entry with Count > 1. Row is the index within the page,
// or -1 when the rejection was made after mapping (page-break duplicates).
type Rejection struct {
	Page   int          `json:"page"`
	Row    int          `json:"row"`
	Reason RejectReason `json:"reason"`
	Cells  []string     `json:"cells"`
	Count  int          `json:"count"`
}

// Warning is a non-fatal balance-replay mismatch.
type Warning struct {
	Index    int          `json:"index"`
	Date     time.Time    `json:"date"`
	Expected money.Amount `json:"expected"`
	Observed money.Amount `json:"observed"`
}

// Ledger is the chronologically ordered result of one conversion.
// It is read-only once returned by the builder.
type Ledger struct {
	Transactions []Transaction `json:"transactions"`
	Rejections   []Rejection   `json:"rejections,omitempty"`
	Warnings     []Warning     `json:"warnings,omitempty"`
	Layouts      []string      `json:"layouts,omitempty"` // per page, document order
	Derived      bool          `json:"derived"`           // amounts came from balance deltas
	Opening      *money.Amount `json:"openingBalance,omitempty"`
}

// Summary is a derived view over a ledger.
type Summary struct {
	Count          int           `json:"count"`
	From           time.Time     `json:"from"`
	To             time.Time     `json:"to"`
	TotalPaidIn    money.Amount  `json:"totalPaidIn"`
	TotalPaidOut   money.Amount  `json:"totalPaidOut"`
	OpeningBalance *money.Amount `json:"openingBalance,omitempty"`
	ClosingBalance *money.Amount `json:"closingBalance,omitempty"`
	Rejected       int           `json:"rejected"`
	Warnings       int           `json:"warnings"`
}
