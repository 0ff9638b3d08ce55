package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/insightdelivered/statement-ledger/internal/config"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/ledger"
	"github.com/insightdelivered/statement-ledger/internal/metrics"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/reconcile"
	"github.com/insightdelivered/statement-ledger/internal/writer"
)

// ConvertResponse is the JSON response from the /api/convert endpoint.
type ConvertResponse struct {
	Success      bool                 `json:"success"`
	Error        string               `json:"error,omitempty"`
	ID           string               `json:"id,omitempty"`
	Pages        int                  `json:"pages,omitempty"`
	Layouts      []string             `json:"layouts,omitempty"`
	Derived      bool                 `json:"derived"`
	Summary      *models.Summary      `json:"summary,omitempty"`
	Transactions []models.Transaction `json:"transactions"`
	Rejections   []models.Rejection   `json:"rejections,omitempty"`
	Warnings     []models.Warning     `json:"warnings,omitempty"`
	CSV          string               `json:"csv,omitempty"`
	RawRows      []models.Page        `json:"rawRows,omitempty"`
	Version      string               `json:"version,omitempty"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Converter *ledger.Converter
	Defaults  config.ConvertConfig
	Metrics   *metrics.Metrics
	StaticDir string
	Version   string
}

// New returns a fiber app with every route registered.
func New(h *Handler, bodyLimitMB int) *fiber.App {
	if bodyLimitMB <= 0 {
		bodyLimitMB = 32
	}
	app := fiber.New(fiber.Config{
		AppName:               "statement-ledger",
		BodyLimit:             bodyLimitMB << 20,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "POST,GET,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/convert", h.HandleConvert)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics.Handler()))
	}

	// Serve the single-page frontend, falling back to index.html for
	// client-side routes.
	if h.StaticDir != "" {
		app.Static("/", h.StaticDir)
		index := filepath.Join(h.StaticDir, "index.html")
		app.Get("*", func(c *fiber.Ctx) error {
			if strings.HasPrefix(c.Path(), "/api/") {
				return fiber.ErrNotFound
			}
			if _, err := os.Stat(index); err != nil {
				return fiber.ErrNotFound
			}
			return c.SendFile(index)
		})
	}
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": h.Version,
		"ocr":     extractor.IsOCRAvailable(),
	})
}

// HandleConvert accepts a multipart upload in field "file" and answers with
// the ledger as JSON (the default), or as a CSV or XLSX download when the
// "format" field asks for one. "columns", "derive" and "validate" override
// the configured defaults for this request; "debug=true" adds the extracted
// table rows to the JSON response.
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return writeError(c, fiber.StatusBadRequest, "Only PDF files are supported.")
	}

	format := strings.ToLower(strings.TrimSpace(formValue(c, "format", "json")))
	var out writer.Writer
	if format != "json" {
		if out, err = writer.ForFormat(format); err != nil {
			return writeError(c, fiber.StatusBadRequest, err.Error())
		}
	}
	cols, err := writer.ParseColumns(formValue(c, "columns", h.Defaults.Columns))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	opts, err := requestOptions(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := fh.Open()
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "Failed to read uploaded file.")
	}
	defer file.Close()

	res, err := h.Converter.Convert(c.UserContext(), fh.Filename, file, fh.Size, opts...)
	if err != nil {
		return writeError(c, statusFor(err), err.Error())
	}

	table := writer.NewTable(res.Ledger.Transactions, cols)
	if out != nil {
		var buf bytes.Buffer
		if err := out.Write(&buf, table); err != nil {
			return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
		}
		c.Set("X-Ledger-Id", res.ID)
		c.Set("X-Ledger-Warnings", strconv.Itoa(res.Summary.Warnings))
		c.Set("X-Ledger-Rejected", strconv.Itoa(res.Summary.Rejected))
		c.Attachment(strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename)) + out.Extension())
		c.Set(fiber.HeaderContentType, out.ContentType())
		return c.Send(buf.Bytes())
	}

	var csvBuf bytes.Buffer
	if err := (&writer.CSVWriter{}).Write(&csvBuf, table); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
	}

	// nil marshals to JSON null, not []
	txns := res.Ledger.Transactions
	if txns == nil {
		txns = []models.Transaction{}
	}
	summary := res.Summary
	resp := ConvertResponse{
		Success:      true,
		ID:           res.ID,
		Pages:        res.Pages,
		Layouts:      res.Ledger.Layouts,
		Derived:      res.Ledger.Derived,
		Summary:      &summary,
		Transactions: txns,
		Rejections:   res.Ledger.Rejections,
		Warnings:     res.Ledger.Warnings,
		CSV:          csvBuf.String(),
		Version:      h.Version,
	}
	if debug, _ := strconv.ParseBool(c.FormValue("debug")); debug {
		resp.RawRows = res.Extracted
	}
	return c.JSON(resp)
}

func requestOptions(c *fiber.Ctx) ([]ledger.Option, error) {
	var opts []ledger.Option
	if v := c.FormValue("derive"); v != "" {
		mode, err := reconcile.ParseDeriveMode(v)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ledger.WithDerive(mode))
	}
	if v := c.FormValue("validate"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid validate value %q", v)
		}
		opts = append(opts, ledger.WithValidate(on))
	}
	return opts, nil
}

func formValue(c *fiber.Ctx, key, def string) string {
	if v := c.FormValue(key); v != "" {
		return v
	}
	return def
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, extractor.ErrExtraction), errors.Is(err, ledger.ErrNoTransactions):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusRequestTimeout
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ConvertResponse{
		Success: false,
		Error:   msg,
	})
}
