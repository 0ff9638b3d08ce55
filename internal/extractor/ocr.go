package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// IsOCRAvailable reports whether pdftoppm and tesseract are on PATH.
func IsOCRAvailable() bool {
	_, err1 := exec.LookPath("pdftoppm")
	_, err2 := exec.LookPath("tesseract")
	return err1 == nil && err2 == nil
}

// extractWithOCR renders each page to a 300 DPI PNG with pdftoppm and reads
// it back with Tesseract, preserving inter-word spacing so that table
// columns survive as runs of spaces.
func extractWithOCR(ctx context.Context, path string, isHeader func([]string) bool) ([]models.Page, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not available (install poppler-utils): %w", err)
	}
	if _, err := exec.LookPath("tesseract"); err != nil {
		return nil, fmt.Errorf("tesseract not available (install tesseract-ocr): %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	if out, err := exec.CommandContext(ctx, "pdftoppm", "-r", "300", "-png", path, prefix).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, out)
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, fmt.Errorf("list page images: %w", err)
	}
	sort.Strings(images)
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}

	texts := make([]string, 0, len(images))
	for _, img := range images {
		// psm 6: a single uniform block of text, which keeps table rows intact
		out, err := exec.CommandContext(ctx, "tesseract", img, "stdout",
			"-l", "eng", "--psm", "6", "-c", "preserve_interword_spaces=1").Output()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			texts = append(texts, "")
			continue
		}
		texts = append(texts, string(out))
	}

	pages := pagesFromLayoutText(texts, isHeader)
	if len(pages) == 0 {
		return nil, fmt.Errorf("tesseract produced no text from %d page images", len(images))
	}
	return pages, nil
}
