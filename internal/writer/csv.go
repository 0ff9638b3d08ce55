package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
)

// Writer writes a Table to one output format.
type Writer interface {
	Write(out io.Writer, t Table) error
	ContentType() string
	Extension() string
}

// ForFormat returns the writer for "csv" or "xlsx".
func ForFormat(format string) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return &CSVWriter{}, nil
	case "xlsx", "excel":
		return &XLSXWriter{}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q (want csv or xlsx)", format)
}

// WriteToFile writes t to a new file at path.
func WriteToFile(w Writer, path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := w.Write(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CSVWriter writes comma-separated UTF-8 with minimal quoting.
type CSVWriter struct{}

func (w *CSVWriter) ContentType() string { return "text/csv; charset=utf-8" }
func (w *CSVWriter) Extension() string   { return ".csv" }

// Write writes the header row followed by every table row.
func (w *CSVWriter) Write(out io.Writer, t Table) error {
	writer := gocsv.NewSafeCSVWriter(csv.NewWriter(out))

	if err := writer.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
