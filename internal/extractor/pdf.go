// Package extractor turns a PDF bank statement into pages of raw table rows.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/ledongthuc/pdf"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
)

// ErrExtraction wraps every failure to obtain table rows from a PDF.
var ErrExtraction = errors.New("pdf extraction failed")

// Extractor reads positioned text with ledongthuc/pdf and rebuilds table
// cells from horizontal gaps. When the library cannot decode the text it
// can fall back to poppler's pdftotext and, for scanned statements, to
// Tesseract OCR.
type Extractor struct {
	logger    *log.Logger
	pdftotext bool
	ocr       bool
	isHeader  func(cells []string) bool
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithPdftotext enables the pdftotext -layout fallback (on by default).
func WithPdftotext(on bool) Option {
	return func(e *Extractor) { e.pdftotext = on }
}

// WithOCR enables the pdftoppm + tesseract fallback for image-only PDFs.
func WithOCR(on bool) Option {
	return func(e *Extractor) { e.ocr = on }
}

// WithHeaderDetector overrides how column header rows are recognised when
// anchoring cells to columns.
func WithHeaderDetector(fn func(cells []string) bool) Option {
	return func(e *Extractor) { e.isHeader = fn }
}

// New returns an Extractor that recognises header rows with the default
// row classifier.
func New(opts ...Option) *Extractor {
	c := parser.NewClassifier()
	e := &Extractor{
		logger:    log.New(io.Discard),
		pdftotext: true,
		isHeader: func(cells []string) bool {
			return c.Classify(models.RawRow(cells)) == parser.ClassHeader
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFile opens path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]models.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return e.Extract(ctx, f, info.Size())
}

// Extract returns the statement's pages in document order. Methods are
// tried in turn until one yields readable text; output that looks like
// undecoded glyphs is never returned.
func (e *Extractor) Extract(ctx context.Context, r io.ReaderAt, size int64) ([]models.Page, error) {
	pages, libErr := e.extractWithLibrary(ctx, r, size)
	if libErr == nil && isReadable(pages) {
		return pages, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("pdf library gave no readable text", "err", libErr)

	if e.pdftotext || e.ocr {
		fallback, err := e.extractWithTools(ctx, r, size)
		if err == nil {
			return fallback, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Debug("external tools gave no readable text", "err", err)
	}

	if libErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, libErr)
	}
	return nil, fmt.Errorf("%w: no readable text; the PDF may be scanned or use custom font encodings", ErrExtraction)
}

func (e *Extractor) extractWithLibrary(ctx context.Context, r io.ReaderAt, size int64) (pages []models.Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf library crashed: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errors.New("pdf has no pages")
	}

	al := &aligner{isHeader: e.isHeader}
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			e.logger.Debug("skipping unreadable page", "page", i, "err", err)
			continue
		}
		lines := make([]line, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, spansFromTexts(row.Content))
		}
		pages = append(pages, al.page(i, lines))
	}
	return pages, nil
}

// commonWords appear on virtually every bank statement. Text containing
// none of them is almost certainly undecoded glyphs.
var commonWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "sort code",
	"money", "paid", "opening", "closing", "transfer", "direct",
	"number", "page", "period",
}

// isReadable requires more than 50 characters of text, over 60% of them
// plain ASCII letters, digits, whitespace or common punctuation, and at
// least one common statement word.
func isReadable(pages []models.Page) bool {
	var b strings.Builder
	for _, p := range pages {
		for _, row := range p.Rows {
			b.WriteString(strings.Join(row, " "))
			b.WriteByte('\n')
		}
	}
	text := b.String()
	if len(strings.TrimSpace(text)) <= 50 {
		return false
	}
	if textQuality(text) <= 0.6 {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range commonWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// textQuality is the share of readable ASCII characters. unicode.IsLetter
// is too broad: identity-encoded fonts decode to accented garbage.
func textQuality(text string) float64 {
	total, readable := 0, 0
	for _, r := range text {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			unicode.IsSpace(r) || strings.ContainsRune(".,-/:;()'\"£$€%&@#!?+=*", r) {
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}
