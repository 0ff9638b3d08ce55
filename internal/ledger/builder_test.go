package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/reconcile"
)

// twoPageStatement repeats the last transaction of page 1 at the top of
// page 2, as some statements do when a page breaks.
func twoPageStatement() []models.Page {
	return []models.Page{
		{Number: 1, Rows: []models.RawRow{
			{"Account Statement", "", "", "", "", ""},
			{"Date", "Type", "Description", "Paid in", "Paid out", "Balance"},
			{"01/01/2024", "", "Opening balance", "", "", "1,000.00"},
			{"02/01/2024", "CARD", "CARD PAYMENT TESCO", "", "20.00", "980.00"},
			{"03/01/2024", "DD", "DIRECT DEBIT GYM", "", "30.00", "950.00"},
			{"", "", "Page 1 of 2", "", "", ""},
		}},
		{Number: 2, Rows: []models.RawRow{
			{"03/01/2024", "DD", "DIRECT DEBIT GYM", "", "30.00", "950.00"},
			{"05/01/2024", "BGC", "SALARY ACME LTD", "500.00", "", "1,450.00"},
		}},
	}
}

func TestBuilder_Build(t *testing.T) {
	l, err := NewBuilder().Build(context.Background(), twoPageStatement())
	require.NoError(t, err)

	require.Len(t, l.Transactions, 3)
	assert.Equal(t, "CARD PAYMENT TESCO", l.Transactions[0].Description)
	assert.Equal(t, "DIRECT DEBIT GYM", l.Transactions[1].Description)
	assert.Equal(t, "SALARY ACME LTD", l.Transactions[2].Description)
	for i, txn := range l.Transactions {
		assert.Equal(t, i, txn.Seq)
	}
	assert.Equal(t, 2, l.Transactions[2].Page)

	assert.Equal(t, []string{"header(header)", "header(inherited)"}, l.Layouts)
	require.NotNil(t, l.Opening)
	assert.Equal(t, "1000.00", l.Opening.String())
	assert.Empty(t, l.Warnings)
	assert.False(t, l.Derived)

	var duplicates int
	for _, r := range l.Rejections {
		if r.Reason == models.RejectDuplicate {
			duplicates += r.Count
			assert.Equal(t, 2, r.Page)
		}
	}
	assert.Equal(t, 1, duplicates)
}

func TestBuilder_Invariants(t *testing.T) {
	l, err := NewBuilder(WithDerive(reconcile.DeriveAlways)).Build(context.Background(), twoPageStatement())
	require.NoError(t, err)

	for i, txn := range l.Transactions {
		assert.False(t, txn.PaidIn != nil && txn.PaidOut != nil, "row %d has both paid in and paid out", i)
		if txn.PaidIn != nil {
			assert.GreaterOrEqual(t, txn.PaidIn.Sign(), 0, "row %d paid in is negative", i)
		}
		if txn.PaidOut != nil {
			assert.GreaterOrEqual(t, txn.PaidOut.Sign(), 0, "row %d paid out is negative", i)
		}
		if i > 0 {
			assert.False(t, txn.Date.Before(l.Transactions[i-1].Date), "row %d is out of order", i)
		}
	}
}

func TestBuilder_Idempotent(t *testing.T) {
	b := NewBuilder()

	first, err := b.Build(context.Background(), twoPageStatement())
	require.NoError(t, err)
	second, err := b.Build(context.Background(), twoPageStatement())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuilder_SortsStably(t *testing.T) {
	pages := []models.Page{{Number: 1, Rows: []models.RawRow{
		{"03/01/2024", "", "THIRD", "", "1.00", "7.00"},
		{"01/01/2024", "", "FIRST A", "", "1.00", "9.00"},
		{"01/01/2024", "", "FIRST B", "", "1.00", "8.00"},
		{"02/01/2024", "", "SECOND", "", "1.00", "6.00"},
	}}}

	l, err := NewBuilder(WithValidate(false)).Build(context.Background(), pages)
	require.NoError(t, err)

	var got []string
	for _, txn := range l.Transactions {
		got = append(got, txn.Description)
	}
	assert.Equal(t, []string{"FIRST A", "FIRST B", "SECOND", "THIRD"}, got)
}

func TestBuilder_DerivesFromBalances(t *testing.T) {
	pages := []models.Page{{Number: 1, Rows: []models.RawRow{
		{"01/01/2024", "", "Balance brought forward", "", "", "100.00"},
		{"02/01/2024", "", "Monthly fee", "", "", "90.00"},
		{"03/01/2024", "", "Refund", "", "", "150.00"},
	}}}

	l, err := NewBuilder().Build(context.Background(), pages)
	require.NoError(t, err)

	require.Len(t, l.Transactions, 2)
	assert.True(t, l.Derived)
	require.NotNil(t, l.Transactions[0].PaidOut)
	assert.Equal(t, "10.00", l.Transactions[0].PaidOut.String())
	require.NotNil(t, l.Transactions[1].PaidIn)
	assert.Equal(t, "60.00", l.Transactions[1].PaidIn.String())
}

func TestBuilder_OpeningCaptionCanBeIgnored(t *testing.T) {
	pages := []models.Page{{Number: 1, Rows: []models.RawRow{
		{"01/01/2024", "", "Balance brought forward", "", "", "100.00"},
		{"02/01/2024", "", "Monthly fee", "", "", "90.00"},
	}}}

	l, err := NewBuilder(WithOpeningFromStatement(false)).Build(context.Background(), pages)
	require.NoError(t, err)

	assert.Nil(t, l.Opening)
	assert.False(t, l.Transactions[0].HasAmount())
}

func TestBuilder_NoTransactions(t *testing.T) {
	pages := []models.Page{{Number: 1, Rows: []models.RawRow{
		{"Sort Code:", "12-34-56", "", "", "", ""},
		{"", "", "", "", "", ""},
	}}}

	l, err := NewBuilder().Build(context.Background(), pages)
	assert.Nil(t, l)
	assert.True(t, errors.Is(err, ErrNoTransactions), "got %v", err)

	_, err = NewBuilder().Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestBuilder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l, err := NewBuilder().Build(ctx, twoPageStatement())
	assert.Nil(t, l)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_BroughtForwardAfterTransactions(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Rows: []models.RawRow{
			{"Date", "Type", "Description", "Paid in", "Paid out", "Balance"},
			{"02/01/2024", "", "Shop A", "", "", "100.00"},
			{"03/01/2024", "", "Shop B", "", "", "150.00"},
		}},
		{Number: 2, Rows: []models.RawRow{
			{"", "", "Balance brought forward", "", "", "150.00"},
			{"04/01/2024", "", "Shop C", "", "", "130.00"},
		}},
	}

	l, err := NewBuilder().Build(context.Background(), pages)
	require.NoError(t, err)

	assert.Nil(t, l.Opening)
	require.Len(t, l.Transactions, 3)
	assert.False(t, l.Transactions[0].HasAmount(), "first row has no known prior balance")
	require.NotNil(t, l.Transactions[1].PaidIn)
	assert.Equal(t, "50.00", l.Transactions[1].PaidIn.String())
	require.NotNil(t, l.Transactions[2].PaidOut)
	assert.Equal(t, "20.00", l.Transactions[2].PaidOut.String())
}

func TestBuilder_OpeningCaptionOnFirstPageWithRows(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Rows: []models.RawRow{
			{"Account Statement", "", "", "", "", ""},
		}},
		{Number: 2, Rows: []models.RawRow{
			{"", "", "Balance brought forward", "", "", "120.00"},
			{"04/01/2024", "", "Shop C", "", "", "100.00"},
			{"", "", "Balance brought forward", "", "", "100.00"},
			{"05/01/2024", "", "Shop D", "", "", "90.00"},
		}},
	}

	l, err := NewBuilder().Build(context.Background(), pages)
	require.NoError(t, err)

	require.NotNil(t, l.Opening)
	assert.Equal(t, "120.00", l.Opening.String())
	require.NotNil(t, l.Transactions[0].PaidOut)
	assert.Equal(t, "20.00", l.Transactions[0].PaidOut.String())
}

func TestCollapse(t *testing.T) {
	in := []models.Rejection{
		{Page: 1, Row: 0, Reason: models.RejectDenylisted, Cells: []string{"Page 1 of 2"}, Count: 1},
		{Page: 1, Row: 3, Reason: models.RejectEmpty, Cells: []string{"", ""}, Count: 1},
		{Page: 1, Row: 4, Reason: models.RejectEmpty, Cells: []string{"", ""}, Count: 1},
		{Page: 2, Row: 0, Reason: models.RejectDenylisted, Cells: []string{"Page 1 of 2"}, Count: 1},
		{Page: 2, Row: 1, Reason: models.RejectEmpty, Cells: []string{"", ""}, Count: 1},
	}

	out := collapse(in)

	require.Len(t, out, 4)
	assert.Equal(t, 1, out[0].Count)
	assert.Equal(t, 1, out[1].Page)
	assert.Equal(t, 2, out[1].Count)
	assert.Equal(t, 3, out[1].Row)
	assert.Equal(t, 2, out[2].Page)
	assert.Equal(t, 1, out[2].Count)
	assert.Equal(t, 2, out[3].Page)
	assert.Equal(t, 1, out[3].Count)
}
