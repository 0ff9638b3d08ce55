package writer

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/money"
)

// SheetName is the single worksheet an XLSX export contains.
const SheetName = "Transactions"

// XLSXWriter writes a single-sheet workbook with a bold header row and
// columns sized to their content. Amount columns are stored as numbers
// formatted with two decimals.
type XLSXWriter struct{}

func (w *XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (w *XLSXWriter) Extension() string { return ".xlsx" }

// excelize number format 2 is "0.00"
const numFmtTwoDecimals = 2

func (w *XLSXWriter) Write(out io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: numFmtTwoDecimals})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	header := make([]interface{}, len(t.Header))
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write XLSX header: %w", err)
	}
	if len(t.Header) > 0 {
		if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
			return fmt.Errorf("failed to style XLSX header: %w", err)
		}
	}

	for r, row := range t.Rows {
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(v))
			}
			if i < len(t.Numeric) && t.Numeric[i] && v != "" {
				if a, ok := money.ParseSigned(v); ok {
					values[i] = a.Float64()
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write XLSX row %d: %w", r+1, err)
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, float64(width)+2); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
		if i < len(t.Numeric) && t.Numeric[i] && len(t.Rows) > 0 {
			from, _ := excelize.CoordinatesToCellName(i+1, 2)
			to, _ := excelize.CoordinatesToCellName(i+1, len(t.Rows)+1)
			if err := f.SetCellStyle(SheetName, from, to, amount); err != nil {
				return fmt.Errorf("failed to format column %s: %w", col, err)
			}
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}
