package writer

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
	"github.com/insightdelivered/statement-ledger/internal/parser"
)

// csvRow accepts the headers of both presets. gocsv matches by header name,
// so each accepted name gets its own field.
type csvRow struct {
	Date        string `csv:"Date"`
	Type        string `csv:"Transaction Type"`
	Details     string `csv:"Details"`
	Description string `csv:"Description"`
	PaidIn      string `csv:"Paid In"`
	MoneyIn     string `csv:"Money In"`
	PaidOut     string `csv:"Paid Out"`
	MoneyOut    string `csv:"Money Out"`
	Balance     string `csv:"Balance"`
}

// ReadCSV parses a CSV written by CSVWriter back into transactions, using
// the same date and amount rules as statement extraction. Rows are numbered
// from 0 in Seq.
func ReadCSV(r io.Reader) ([]models.Transaction, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	txns := make([]models.Transaction, 0, len(rows))
	for i, row := range rows {
		line := i + 2 // 1-indexed, after the header

		var txn models.Transaction
		if row.Date != "" {
			d, ok := parser.ParseDate(row.Date)
			if !ok {
				return nil, fmt.Errorf("row %d: invalid date %q", line, row.Date)
			}
			txn.Date = d
		}
		txn.Type = parser.NormalizeCell(row.Type)
		txn.Description = parser.NormalizeCell(firstNonEmpty(row.Details, row.Description))

		var err error
		if txn.PaidIn, err = optionalAmount(firstNonEmpty(row.PaidIn, row.MoneyIn), money.Parse); err != nil {
			return nil, fmt.Errorf("row %d: paid in: %w", line, err)
		}
		if txn.PaidOut, err = optionalAmount(firstNonEmpty(row.PaidOut, row.MoneyOut), money.Parse); err != nil {
			return nil, fmt.Errorf("row %d: paid out: %w", line, err)
		}
		if txn.Balance, err = optionalAmount(row.Balance, money.ParseSigned); err != nil {
			return nil, fmt.Errorf("row %d: balance: %w", line, err)
		}
		txn.Seq = i
		txns = append(txns, txn)
	}
	return txns, nil
}

func optionalAmount(s string, parse func(string) (money.Amount, bool)) (*money.Amount, error) {
	s = parser.NormalizeCell(s)
	if s == "" {
		return nil, nil
	}
	a, ok := parse(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return a.Ptr(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
