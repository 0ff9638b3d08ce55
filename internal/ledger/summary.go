package ledger

import (
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
)

// Summarize computes totals and the covered date range of l. The opening
// balance is the one used for reconciliation when known; otherwise it is
// backed out of the first observed balance.
func Summarize(l *models.Ledger) models.Summary {
	s := models.Summary{
		Count:    len(l.Transactions),
		Rejected: rejectedRows(l.Rejections),
		Warnings: len(l.Warnings),
	}
	if s.Count == 0 {
		return s
	}
	s.From = l.Transactions[0].Date
	s.To = l.Transactions[s.Count-1].Date

	var net money.Amount
	for _, t := range l.Transactions {
		if t.PaidIn != nil {
			s.TotalPaidIn = s.TotalPaidIn.Add(*t.PaidIn)
		}
		if t.PaidOut != nil {
			s.TotalPaidOut = s.TotalPaidOut.Add(*t.PaidOut)
		}
		net = net.Add(t.Net())
		if t.Balance == nil {
			continue
		}
		if s.OpeningBalance == nil {
			s.OpeningBalance = t.Balance.Sub(net).Ptr()
		}
		s.ClosingBalance = t.Balance
	}
	if l.Opening != nil {
		s.OpeningBalance = l.Opening
	}
	return s
}
