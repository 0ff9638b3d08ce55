package writer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&XLSXWriter{}).Write(&buf, NewTable(sampleTransactions(), Canonical)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Date", "Transaction Type", "Details", "Paid In", "Paid Out", "Balance"}, rows[0])
	assert.Equal(t, "15/01/2024", rows[1][0])
	assert.Equal(t, "CARD PAYMENT TESCO, LONDON", rows[1][2])
	assert.Equal(t, "25.99", rows[1][4])
	assert.Equal(t, "2500.00", rows[2][3])

	styleID, err := f.GetCellStyle(SheetName, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	width, err := f.GetColWidth(SheetName, "C")
	require.NoError(t, err)
	assert.Greater(t, width, float64(len("CARD PAYMENT TESCO, LONDON")))
}
