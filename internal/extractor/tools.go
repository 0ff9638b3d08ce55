package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// extractWithTools copies the PDF to a temp file and runs the enabled
// command-line fallbacks against it.
func (e *Extractor) extractWithTools(ctx context.Context, r io.ReaderAt, size int64) ([]models.Page, error) {
	tmp, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.NewSectionReader(r, 0, size)); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	var errs []error
	if e.pdftotext {
		pages, err := extractWithPdftotext(ctx, tmp.Name(), e.isHeader)
		if err == nil && isReadable(pages) {
			return pages, nil
		}
		errs = append(errs, fmt.Errorf("pdftotext: %w", orUnreadable(err)))
	}
	if e.ocr {
		pages, err := extractWithOCR(ctx, tmp.Name(), e.isHeader)
		if err == nil && isReadable(pages) {
			return pages, nil
		}
		errs = append(errs, fmt.Errorf("ocr: %w", orUnreadable(err)))
	}
	return nil, errors.Join(errs...)
}

var errUnreadable = errors.New("no readable text")

func orUnreadable(err error) error {
	if err != nil {
		return err
	}
	return errUnreadable
}

// extractWithPdftotext runs poppler's pdftotext in layout mode over the
// whole document. Pages are separated by form feeds.
func extractWithPdftotext(ctx context.Context, path string, isHeader func([]string) bool) ([]models.Page, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	return pagesFromLayoutText(strings.Split(string(out), "\f"), isHeader), nil
}

// pagesFromLayoutText splits each page of layout-preserving text into lines
// and cells. Blank trailing pages are dropped.
func pagesFromLayoutText(texts []string, isHeader func([]string) bool) []models.Page {
	al := &aligner{isHeader: isHeader}
	var pages []models.Page
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		var lines []line
		for _, raw := range strings.Split(text, "\n") {
			if ln := spansFromLayoutText(strings.TrimRight(raw, "\r")); len(ln) > 0 {
				lines = append(lines, ln)
			}
		}
		pages = append(pages, al.page(i+1, lines))
	}
	return pages
}
