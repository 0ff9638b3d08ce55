package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/config"
	"github.com/insightdelivered/statement-ledger/internal/ledger"
	"github.com/insightdelivered/statement-ledger/internal/metrics"
	"github.com/insightdelivered/statement-ledger/internal/models"
)

type fakeExtractor struct {
	pages []models.Page
	err   error
}

func (f fakeExtractor) Extract(context.Context, io.ReaderAt, int64) ([]models.Page, error) {
	return f.pages, f.err
}

func statement() []models.Page {
	return []models.Page{{Number: 1, Rows: []models.RawRow{
		{"Date", "Type", "Description", "Paid in", "Paid out", "Balance"},
		{"01/01/2024", "", "Opening balance", "", "", "1,000.00"},
		{"02/01/2024", "CARD", "CARD PAYMENT TESCO", "", "20.00", "980.00"},
		{"05/01/2024", "BGC", "SALARY ACME LTD", "500.00", "", "1,480.00"},
	}}}
}

func setupTestApp(ex ledger.TableExtractor) *fiber.App {
	m := metrics.New()
	h := &Handler{
		Converter: ledger.NewConverter(ex, ledger.NewBuilder(), nil, m),
		Defaults:  config.ConvertConfig{Columns: "canonical"},
		Metrics:   m,
		Version:   "test",
	}
	return New(h, 1)
}

func uploadRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte("%PDF-1.4 fake"))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response) ConvertResponse {
	t.Helper()
	var out ConvertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(fakeExtractor{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", result["status"])
	}

	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %v", result["engine"])
	}

	if result["version"] != "test" {
		t.Errorf("expected version=test, got %v", result["version"])
	}
}

func TestConvertEndpointRequiresFile(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	resp, err := app.Test(uploadRequest(t, "", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400 for missing file, got %d", resp.StatusCode)
	}
	if out := decode(t, resp); out.Success || out.Error == "" {
		t.Errorf("expected an error response, got %+v", out)
	}
}

func TestConvertEndpointRejectsNonPDF(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	resp, err := app.Test(uploadRequest(t, "statement.txt", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestConvertEndpointJSON(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	resp, err := app.Test(uploadRequest(t, "jan.pdf", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	out := decode(t, resp)
	if !out.Success || out.ID == "" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if len(out.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(out.Transactions))
	}
	if out.Summary == nil || out.Summary.TotalPaidIn.String() != "500.00" {
		t.Errorf("unexpected summary: %+v", out.Summary)
	}
	if out.Summary.OpeningBalance == nil || out.Summary.OpeningBalance.String() != "1000.00" {
		t.Errorf("expected opening balance 1000.00, got %v", out.Summary.OpeningBalance)
	}
	if !strings.HasPrefix(out.CSV, "Date,Transaction Type,Details,Paid In,Paid Out,Balance\n") {
		t.Errorf("unexpected csv: %q", out.CSV)
	}
	if !strings.Contains(out.CSV, "02/01/2024,CARD,CARD PAYMENT TESCO,,20.00,980.00") {
		t.Errorf("csv missing card payment row: %q", out.CSV)
	}
	if out.RawRows != nil {
		t.Error("raw rows must only be included on request")
	}
}

func TestConvertEndpointDebugRows(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	resp, err := app.Test(uploadRequest(t, "jan.pdf", map[string]string{"debug": "true"}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	out := decode(t, resp)
	if len(out.RawRows) != 1 || len(out.RawRows[0].Rows) != 4 {
		t.Fatalf("expected the extracted page back, got %+v", out.RawRows)
	}
	if len(out.Rejections) == 0 {
		t.Error("expected the header and opening rows to be reported as rejections")
	}
}

func TestConvertEndpointCSVDownload(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	resp, err := app.Test(uploadRequest(t, "jan.pdf", map[string]string{"format": "csv", "columns": "simple"}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "jan.csv") {
		t.Errorf("expected attachment jan.csv, got %q", cd)
	}

	body, _ := io.ReadAll(resp.Body)
	want := "Date,Description,Money In,Money Out\n02/01/2024,CARD PAYMENT TESCO,,20.00\n05/01/2024,SALARY ACME LTD,500.00,\n"
	if string(body) != want {
		t.Errorf("got %q, want %q", body, want)
	}
}

func TestConvertEndpointXLSXDownload(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	resp, err := app.Test(uploadRequest(t, "jan.pdf", map[string]string{"format": "xlsx"}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("response is not a workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Transactions")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected header and 2 rows, got %d", len(rows))
	}
}

func TestConvertEndpointBadOptions(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	for _, fields := range []map[string]string{
		{"format": "pdf"},
		{"columns": "date,amount"},
		{"derive": "sometimes"},
		{"validate": "perhaps"},
	} {
		resp, err := app.Test(uploadRequest(t, "jan.pdf", fields))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", fields, resp.StatusCode)
		}
	}
}

func TestConvertEndpointUnprocessable(t *testing.T) {
	tests := map[string]fakeExtractor{
		"extraction failure": {err: errors.New("encrypted document")},
		"no transactions":    {pages: []models.Page{{Number: 1, Rows: []models.RawRow{{"Page 1 of 1"}}}}},
	}
	for name, ex := range tests {
		t.Run(name, func(t *testing.T) {
			app := setupTestApp(ex)
			resp, err := app.Test(uploadRequest(t, "jan.pdf", nil))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != fiber.StatusUnprocessableEntity {
				t.Errorf("expected 422, got %d", resp.StatusCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := setupTestApp(fakeExtractor{pages: statement()})

	if _, err := app.Test(uploadRequest(t, "jan.pdf", nil)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `statement_conversions_total{outcome="ok"} 1`) {
		t.Errorf("metrics output missing conversion counter:\n%s", body)
	}
}
