// Package parser classifies and maps raw statement table rows onto the
// canonical transaction schema, one page at a time.
package parser

import (
	"strings"
	"time"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
	"github.com/insightdelivered/statement-ledger/internal/rules"
)

// Parser bundles the row classifier and column mapper. It is stateless
// between calls and safe to share across goroutines.
type Parser struct {
	classifier   *Classifier
	mapper       *Mapper
	inheritDates bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithRules sets the keyword rule set used to settle unlabelled amounts.
func WithRules(rs *rules.RuleSet) Option {
	return func(p *Parser) { p.mapper = NewMapper(rs) }
}

// WithDenylist adds boilerplate phrases to the default denylist.
func WithDenylist(phrases ...string) Option {
	return func(p *Parser) { p.classifier = NewClassifier(phrases...) }
}

// WithInheritedDates lets a dateless row that otherwise looks like a
// transaction take the date of the transaction above it on the same page.
// Statements commonly print the date only on the first entry of each day.
func WithInheritedDates(on bool) Option {
	return func(p *Parser) { p.inheritDates = on }
}

// New returns a Parser with the default denylist and keyword rules.
func New(opts ...Option) *Parser {
	p := &Parser{
		classifier: NewClassifier(),
		mapper:     NewMapper(rules.Default()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classifier exposes the row classifier.
func (p *Parser) Classifier() *Classifier {
	return p.classifier
}

// PageResult is what one page contributes to the ledger.
type PageResult struct {
	Page         int
	Layout       Layout
	Transactions []models.Transaction
	Rejections   []models.Rejection
	// Opening is the balance on the first opening / brought-forward caption
	// that precedes the page's first transaction.
	Opening *money.Amount
}

// DetectLayout returns the layout declared by the first column header row
// on the page, if any.
func (p *Parser) DetectLayout(page models.Page) (Layout, bool) {
	for _, row := range page.Rows {
		if p.classifier.Classify(row) != ClassHeader {
			continue
		}
		if l, ok := LayoutFromHeader(row); ok {
			return l, true
		}
	}
	return Layout{}, false
}

// ResolveLayouts picks one layout per page: the page's own header if it has
// one, otherwise the most recent header seen on an earlier page, otherwise a
// layout inferred from the page's amount positions.
func (p *Parser) ResolveLayouts(pages []models.Page, declared []Layout, found []bool) []Layout {
	out := make([]Layout, len(pages))
	var last *Layout
	for i := range pages {
		switch {
		case found[i]:
			l := declared[i]
			out[i] = l
			last = &l
		case last != nil:
			l := *last
			l.Source = SourceInherited
			out[i] = l
		default:
			out[i] = InferLayout(pages[i].Rows, p.classifier)
		}
	}
	return out
}

// ParsePage classifies and maps every row of page with layout l.
func (p *Parser) ParsePage(page models.Page, l Layout) PageResult {
	res := PageResult{Page: page.Number, Layout: l}
	var lastDate time.Time

	reject := func(i int, row models.RawRow, reason models.RejectReason) {
		res.Rejections = append(res.Rejections, models.Rejection{
			Page:   page.Number,
			Row:    i,
			Reason: reason,
			Cells:  normalizeRow(row),
			Count:  1,
		})
	}

	for i, row := range page.Rows {
		class, reason := p.classifier.ClassifyReason(row)

		if class == ClassJunk && reason == models.RejectDenylisted && res.Opening == nil && len(res.Transactions) == 0 {
			if bal, ok := openingBalance(row); ok {
				res.Opening = bal.Ptr()
			}
		}

		mapped := row
		if class != ClassTransaction {
			if !(p.inheritDates && reason == models.RejectNoDate && !lastDate.IsZero()) {
				reject(i, row, reason)
				continue
			}
			mapped = withDate(row, l, lastDate)
		}

		txn, reason := p.mapper.MapRow(mapped, l)
		if reason != "" {
			reject(i, row, reason)
			continue
		}
		txn.Page = page.Number
		res.Transactions = append(res.Transactions, txn)
		lastDate = txn.Date
	}
	return res
}

// withDate returns a copy of row with date written into the layout's date
// cell, provided that cell is empty.
func withDate(row models.RawRow, l Layout, date time.Time) models.RawRow {
	idx := max(l.Date, 0)
	out := make(models.RawRow, max(len(row), idx+1))
	copy(out, row)
	if NormalizeCell(out[idx]) != "" {
		return row
	}
	out[idx] = date.Format(FormatDate)
	return out
}

var openingCaptions = []string{"opening balance", "start balance", "balance brought forward", "brought forward"}

// openingBalance reads the amount from an opening / brought-forward caption
// row, taking the rightmost amount on the row.
func openingBalance(row models.RawRow) (money.Amount, bool) {
	cells := normalizeRow(row)
	lower := strings.ToLower(strings.Join(cells, " "))
	for _, caption := range openingCaptions {
		if strings.Contains(lower, caption) {
			if idx := rightmostAmount(cells, 0); idx >= 0 {
				return parseBalance(cells[idx])
			}
			return money.Amount{}, false
		}
	}
	return money.Amount{}, false
}
