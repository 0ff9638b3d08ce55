package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/metrics"
	"github.com/insightdelivered/statement-ledger/internal/models"
)

var tracer = otel.Tracer("github.com/insightdelivered/statement-ledger/internal/ledger")

// TableExtractor yields the raw table rows of a PDF, page by page.
type TableExtractor interface {
	Extract(ctx context.Context, r io.ReaderAt, size int64) ([]models.Page, error)
}

// Converter runs one statement through extraction and the builder.
type Converter struct {
	extractor TableExtractor
	builder   *Builder
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// NewConverter wires a converter. logger and m may be nil.
func NewConverter(ex TableExtractor, b *Builder, logger *log.Logger, m *metrics.Metrics) *Converter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Converter{extractor: ex, builder: b, logger: logger, metrics: m}
}

// Result is a converted statement.
type Result struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Pages   int            `json:"pages"`
	Ledger  *models.Ledger `json:"ledger"`
	Summary models.Summary `json:"summary"`

	// Extracted is the raw table rows the ledger was built from.
	Extracted []models.Page `json:"-"`
}

// Convert extracts and builds the ledger for one PDF. opts override the
// converter's builder settings for this call only. Extraction failures are
// returned wrapped in extractor.ErrExtraction.
func (c *Converter) Convert(ctx context.Context, name string, r io.ReaderAt, size int64, opts ...Option) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	logger := c.logger.With("id", id, "file", name)

	ctx, span := tracer.Start(ctx, "ledger.Convert", trace.WithAttributes(
		attribute.String("conversion.id", id),
		attribute.String("conversion.file", name),
		attribute.Int64("conversion.size", size),
	))
	defer span.End()

	pages, err := c.extract(ctx, r, size)
	if err != nil {
		c.observe(ctx, start, err)
		if !errors.Is(err, extractor.ErrExtraction) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", extractor.ErrExtraction, err)
		}
		fail(span, err)
		logger.Error("extraction failed", "err", err)
		return nil, err
	}
	logger.Debug("extracted", "pages", len(pages))

	b := c.builder
	if len(opts) > 0 {
		b = b.With(opts...)
	}
	l, err := b.Build(ctx, pages)
	if err != nil {
		c.observe(ctx, start, err)
		fail(span, err)
		logger.Warn("conversion failed", "err", err)
		return nil, err
	}

	c.observe(ctx, start, nil)
	c.metrics.ObserveLedger(l)

	s := Summarize(l)
	span.SetAttributes(
		attribute.Int("conversion.pages", len(pages)),
		attribute.Int("conversion.transactions", s.Count),
		attribute.Int("conversion.rejected", s.Rejected),
		attribute.Int("conversion.warnings", s.Warnings),
		attribute.Bool("conversion.derived", l.Derived),
	)
	logger.Info("converted",
		"pages", len(pages),
		"transactions", s.Count,
		"rejected", s.Rejected,
		"warnings", s.Warnings,
		"derived", l.Derived,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return &Result{ID: id, Name: name, Pages: len(pages), Ledger: l, Summary: s, Extracted: pages}, nil
}

func (c *Converter) extract(ctx context.Context, r io.ReaderAt, size int64) ([]models.Page, error) {
	ctx, span := tracer.Start(ctx, "ledger.Extract")
	defer span.End()
	pages, err := c.extractor.Extract(ctx, r, size)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("conversion.pages", len(pages)))
	return pages, nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (c *Converter) observe(ctx context.Context, start time.Time, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = metrics.OutcomeCancelled
	case errors.Is(err, ErrNoTransactions):
		outcome = metrics.OutcomeNoTransactions
	case errors.Is(err, extractor.ErrExtraction):
		outcome = metrics.OutcomeExtractionFailed
	default:
		outcome = metrics.OutcomeError
	}
	c.metrics.ObserveConversion(outcome, time.Since(start))
}
