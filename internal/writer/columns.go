// Package writer renders a ledger as a table and writes it to tabular sinks.
package writer

import (
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
	"github.com/insightdelivered/statement-ledger/internal/parser"
)

// Field is a canonical transaction field.
type Field int

const (
	FieldDate Field = iota
	FieldType
	FieldDescription
	FieldPaidIn
	FieldPaidOut
	FieldBalance
)

// Column is one output column: its header text and the field it shows.
type Column struct {
	Header string
	Field  Field
}

var (
	// Canonical is the full canonical column set.
	Canonical = []Column{
		{"Date", FieldDate},
		{"Transaction Type", FieldType},
		{"Details", FieldDescription},
		{"Paid In", FieldPaidIn},
		{"Paid Out", FieldPaidOut},
		{"Balance", FieldBalance},
	}
	// Simple is the four-column layout used by most bookkeeping imports.
	Simple = []Column{
		{"Date", FieldDate},
		{"Description", FieldDescription},
		{"Money In", FieldPaidIn},
		{"Money Out", FieldPaidOut},
	}
)

var presets = map[string][]Column{
	"canonical": Canonical,
	"simple":    Simple,
}

// column names accepted in a custom selection, lowercased
var columnNames = map[string]Column{
	"date":             {"Date", FieldDate},
	"type":             {"Transaction Type", FieldType},
	"transaction type": {"Transaction Type", FieldType},
	"details":          {"Details", FieldDescription},
	"description":      {"Description", FieldDescription},
	"paid in":          {"Paid In", FieldPaidIn},
	"money in":         {"Money In", FieldPaidIn},
	"paid out":         {"Paid Out", FieldPaidOut},
	"money out":        {"Money Out", FieldPaidOut},
	"balance":          {"Balance", FieldBalance},
}

// ParseColumns resolves a column selection: empty means Canonical, a preset
// name ("canonical", "simple") selects that preset, anything else is a
// comma-separated list of column names in output order.
func ParseColumns(sel string) ([]Column, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return Canonical, nil
	}
	if cols, ok := presets[strings.ToLower(sel)]; ok {
		return cols, nil
	}

	var cols []Column
	for _, name := range strings.Split(sel, ",") {
		key := strings.ToLower(strings.Join(strings.Fields(name), " "))
		if key == "" {
			continue
		}
		col, ok := columnNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", strings.TrimSpace(name))
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns selected")
	}
	return cols, nil
}

// Value renders the column's field of t. Dates use parser.FormatDate,
// amounts two decimals, and absent values are empty.
func (c Column) Value(t models.Transaction) string {
	switch c.Field {
	case FieldDate:
		if t.Date.IsZero() {
			return ""
		}
		return t.Date.Format(parser.FormatDate)
	case FieldType:
		return t.Type
	case FieldDescription:
		return t.Description
	case FieldPaidIn:
		return formatAmount(t.PaidIn)
	case FieldPaidOut:
		return formatAmount(t.PaidOut)
	case FieldBalance:
		return formatAmount(t.Balance)
	}
	return ""
}

// Numeric reports whether the column holds amounts.
func (c Column) Numeric() bool {
	return c.Field == FieldPaidIn || c.Field == FieldPaidOut || c.Field == FieldBalance
}

func formatAmount(a *money.Amount) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Table is the sink-neutral (header, rows) shape every writer consumes.
type Table struct {
	Header  []string
	Rows    [][]string
	Numeric []bool
}

// NewTable projects txns onto cols.
func NewTable(txns []models.Transaction, cols []Column) Table {
	t := Table{
		Header:  make([]string, len(cols)),
		Rows:    make([][]string, 0, len(txns)),
		Numeric: make([]bool, len(cols)),
	}
	for i, c := range cols {
		t.Header[i] = c.Header
		t.Numeric[i] = c.Numeric()
	}
	for _, txn := range txns {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.Value(txn)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
