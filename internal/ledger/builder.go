// Package ledger assembles parsed pages into a reconciled, chronologically
// ordered ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/reconcile"
)

// ErrNoTransactions is returned when no row of the statement survives
// classification and mapping.
var ErrNoTransactions = errors.New("no transactions found")

// Builder turns extracted pages into a Ledger. A Builder is immutable after
// construction and may serve concurrent Build calls.
type Builder struct {
	parser      *parser.Parser
	logger      *log.Logger
	derive      reconcile.DeriveMode
	validate    bool
	opening     *money.Amount
	fromCaption bool
	workers     int
}

// Option configures a Builder.
type Option func(*Builder)

func WithParser(p *parser.Parser) Option {
	return func(b *Builder) { b.parser = p }
}

func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func WithDerive(mode reconcile.DeriveMode) Option {
	return func(b *Builder) { b.derive = mode }
}

func WithValidate(on bool) Option {
	return func(b *Builder) { b.validate = on }
}

// WithOpening supplies the balance before the first transaction. It takes
// precedence over an opening caption printed on the statement.
func WithOpening(a *money.Amount) Option {
	return func(b *Builder) { b.opening = a }
}

// WithOpeningFromStatement controls whether an "opening balance" or
// "brought forward" caption on the first page seeds reconciliation.
func WithOpeningFromStatement(on bool) Option {
	return func(b *Builder) { b.fromCaption = on }
}

// WithWorkers bounds the number of pages parsed at once.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// NewBuilder returns a Builder with the default parser, auto derivation and
// balance validation enabled.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		parser:      parser.New(),
		logger:      log.New(io.Discard),
		derive:      reconcile.DeriveAuto,
		validate:    true,
		fromCaption: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	return b
}

// With returns a copy of b with opts applied.
func (b *Builder) With(opts ...Option) *Builder {
	c := *b
	for _, opt := range opts {
		opt(&c)
	}
	if c.workers <= 0 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	return &c
}

// Build classifies and maps every page, merges the results in document
// order and reconciles them. Pages are processed concurrently; nothing is
// returned unless every page finished, so a cancelled ctx never yields a
// partial ledger.
func (b *Builder) Build(ctx context.Context, pages []models.Page) (*models.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	declared := make([]parser.Layout, len(pages))
	found := make([]bool, len(pages))
	err := b.fanOut(ctx, len(pages), func(i int) {
		declared[i], found[i] = b.parser.DetectLayout(pages[i])
	})
	if err != nil {
		return nil, err
	}
	layouts := b.parser.ResolveLayouts(pages, declared, found)

	results := make([]parser.PageResult, len(pages))
	err = b.fanOut(ctx, len(pages), func(i int) {
		results[i] = b.parser.ParsePage(pages[i], layouts[i])
	})
	if err != nil {
		return nil, err
	}

	l := b.merge(results)
	if len(l.Transactions) == 0 {
		return nil, fmt.Errorf("%w (%d rows rejected)", ErrNoTransactions, rejectedRows(l.Rejections))
	}

	opening := b.opening
	if opening == nil && b.fromCaption {
		opening = l.Opening
	}
	res := reconcile.Reconcile(l.Transactions, reconcile.Options{
		Derive:   b.derive,
		Validate: b.validate,
		Opening:  opening,
	})
	l.Transactions = res.Transactions
	l.Warnings = res.Warnings
	l.Derived = res.Derived
	l.Opening = opening

	for _, w := range l.Warnings {
		b.logger.Warn("balance mismatch", "row", w.Index, "date", w.Date.Format(parser.FormatDate), "expected", w.Expected, "observed", w.Observed)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// fanOut runs fn for 0..n-1 on the builder's worker pool and stops early
// when ctx is cancelled.
func (b *Builder) fanOut(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// merge concatenates page results in document order, numbering
// transactions by extraction order and dropping rows repeated across a
// page break.
func (b *Builder) merge(results []parser.PageResult) *models.Ledger {
	l := &models.Ledger{Transactions: []models.Transaction{}}
	var rejections []models.Rejection

	for i, res := range results {
		l.Layouts = append(l.Layouts, res.Layout.String())
		// only a caption ahead of every transaction is an opening balance
		if l.Opening == nil && res.Opening != nil && len(l.Transactions) == 0 {
			l.Opening = res.Opening
		}

		txns := res.Transactions
		if i > 0 && len(txns) > 0 {
			prev := results[i-1].Transactions
			if len(prev) > 0 && repeated(prev[len(prev)-1], txns[0]) {
				b.logger.Debug("dropping row repeated across page break", "page", res.Page, "description", txns[0].Description)
				rejections = append(rejections, models.Rejection{
					Page:   res.Page,
					Row:    -1,
					Reason: models.RejectDuplicate,
					Cells:  cellsOf(txns[0]),
					Count:  1,
				})
				txns = txns[1:]
			}
		}

		for _, t := range txns {
			t.Seq = len(l.Transactions)
			l.Transactions = append(l.Transactions, t)
		}
		for _, r := range res.Rejections {
			b.logger.Debug("row rejected", "page", r.Page, "row", r.Row, "reason", r.Reason)
		}
		rejections = append(rejections, res.Rejections...)
	}

	l.Rejections = collapse(rejections)
	return l
}

// repeated reports whether b is a carried-over copy of a. Both rows need a
// balance: without one, two genuine same-day purchases look identical.
func repeated(a, b models.Transaction) bool {
	if a.Balance == nil || b.Balance == nil {
		return false
	}
	return a.Date.Equal(b.Date) &&
		a.Type == b.Type &&
		a.Description == b.Description &&
		equalAmount(a.PaidIn, b.PaidIn) &&
		equalAmount(a.PaidOut, b.PaidOut) &&
		a.Balance.Equal(*b.Balance)
}

func equalAmount(a, b *money.Amount) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cellsOf(t models.Transaction) []string {
	str := func(a *money.Amount) string {
		if a == nil {
			return ""
		}
		return a.String()
	}
	return []string{t.Date.Format(parser.FormatDate), t.Type, t.Description, str(t.PaidIn), str(t.PaidOut), str(t.Balance)}
}

// collapse folds rejections with the same page, reason and cells into the
// first occurrence, counting repeats.
func collapse(in []models.Rejection) []models.Rejection {
	index := make(map[string]int)
	var out []models.Rejection
	for _, r := range in {
		key := strconv.Itoa(r.Page) + "\x00" + string(r.Reason) + "\x00" + strings.Join(r.Cells, "\x1f")
		if j, ok := index[key]; ok {
			out[j].Count += r.Count
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

func rejectedRows(rs []models.Rejection) int {
	n := 0
	for _, r := range rs {
		n += r.Count
	}
	return n
}
