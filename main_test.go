package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, output, outDir, ext string
		want                       string
	}{
		{"stmts/jan.pdf", "", "", ".csv", filepath.Join("stmts", "jan.csv")},
		{"stmts/jan.PDF", "", "", ".xlsx", filepath.Join("stmts", "jan.xlsx")},
		{"stmts/jan.pdf", "out.csv", "", ".csv", "out.csv"},
		{"stmts/feb.pdf", "exports/", "exports/", ".csv", filepath.Join("exports", "feb.csv")},
	}

	for _, tt := range tests {
		if got := outputPath(tt.input, tt.output, tt.outDir, tt.ext); got != tt.want {
			t.Errorf("outputPath(%q, %q, %q): got %q, want %q", tt.input, tt.output, tt.outDir, got, tt.want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if got, want := buf.String(), "statement-ledger v"+version+"\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
