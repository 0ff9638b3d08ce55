// Package logging builds the structured logger shared by the CLI and the
// server.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/insightdelivered/statement-ledger/internal/config"
)

// Prefix is prepended to every log line.
const Prefix = "statement-ledger"

// New returns a logger writing to w at the configured level and format.
func New(w io.Writer, cfg config.LogConfig) (*log.Logger, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          Prefix,
		Level:           level,
	})

	switch strings.ToLower(cfg.Format) {
	case "", "text":
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logger, nil
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
