package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-ledger/internal/api"
	"github.com/insightdelivered/statement-ledger/internal/config"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/ledger"
	"github.com/insightdelivered/statement-ledger/internal/logging"
	"github.com/insightdelivered/statement-ledger/internal/metrics"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/money"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/reconcile"
	"github.com/insightdelivered/statement-ledger/internal/rules"
	"github.com/insightdelivered/statement-ledger/internal/writer"
)

// set with -ldflags "-X main.version=..."
var version = "2.0.0"

var cfgFile string

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
)

var rootCmd = &cobra.Command{
	Use:   "statement-ledger",
	Short: "Convert tabular PDF bank statements into a reconciled ledger",
	Long: `Bank Statement PDF to Ledger Converter
by Insight Delivered (QEA AutoLens)

Reads the transaction table of a bank statement PDF, drops headers and
boilerplate, maps each row onto Date / Type / Details / Paid In / Paid Out /
Balance, checks the running balance and writes CSV or XLSX.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <input.pdf> [input2.pdf ...]",
	Short: "Convert statement PDFs to CSV or XLSX",
	Example: `  # Convert next to the input (statement.csv)
  statement-ledger convert statement.pdf

  # Excel output with the four-column layout
  statement-ledger convert --format=xlsx --columns=simple statement.pdf

  # Custom columns and output path
  statement-ledger convert --columns="date,details,balance" -o out.csv statement.pdf

  # Convert several files into one directory
  statement-ledger convert -o exports/ jan.pdf feb.pdf mar.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP conversion API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <input.pdf>",
	Short: "Show how a statement's rows were classified, without writing output",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "statement-ledger v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is ./statement-ledger.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	f := convertCmd.Flags()
	f.StringP("output", "o", "", "Output file, or directory for several inputs (defaults to the input path with the format's extension)")
	f.StringP("format", "f", "csv", "Output format: csv or xlsx")
	f.String("columns", "canonical", `Columns: "canonical", "simple" or a comma-separated list`)
	f.String("derive", string(reconcile.DeriveAuto), "Derive amounts from balance deltas: auto, always or never")
	f.Bool("validate", true, "Replay the running balance and report mismatches")
	f.String("rules", "", "YAML or TOML file of keyword rules for unlabelled amounts")
	f.Bool("inherit-dates", false, "Give dateless rows the date of the row above")
	f.Bool("ocr", false, "Fall back to OCR when the PDF has no usable text layer")

	inspectCmd.Flags().Bool("raw", false, "Also dump the extracted table rows")
	inspectCmd.Flags().Bool("no-color", false, "Disable coloured output")
	inspectCmd.Flags().String("rules", "", "YAML or TOML file of keyword rules for unlabelled amounts")
	inspectCmd.Flags().Bool("inherit-dates", false, "Give dateless rows the date of the row above")
	inspectCmd.Flags().Bool("ocr", false, "Fall back to OCR when the PDF has no usable text layer")

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("static", "", "Directory of frontend assets to serve at /")
	serveCmd.Flags().String("rules", "", "YAML or TOML file of keyword rules for unlabelled amounts")
	serveCmd.Flags().Bool("ocr", false, "Fall back to OCR when the PDF has no usable text layer")

	rootCmd.AddCommand(convertCmd, inspectCmd, serveCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newConverter wires extraction, parsing and reconciliation from cfg.
func newConverter(cfg config.Config, logger *log.Logger, m *metrics.Metrics) (*ledger.Converter, error) {
	rs := rules.Default()
	if cfg.Rules.File != "" {
		var err error
		if rs, err = rules.Load(cfg.Rules.File, cfg.Rules.Extend); err != nil {
			return nil, err
		}
		logger.Debug("loaded keyword rules", "file", cfg.Rules.File, "rules", rs.Len())
	}
	mode, err := reconcile.ParseDeriveMode(cfg.Convert.Derive)
	if err != nil {
		return nil, err
	}

	p := parser.New(
		parser.WithRules(rs),
		parser.WithDenylist(cfg.Rules.Denylist...),
		parser.WithInheritedDates(cfg.Convert.InheritDates),
	)
	b := ledger.NewBuilder(
		ledger.WithParser(p),
		ledger.WithLogger(logger),
		ledger.WithDerive(mode),
		ledger.WithValidate(cfg.Convert.Validate),
		ledger.WithOpeningFromStatement(cfg.Convert.OpeningFromStatement),
		ledger.WithWorkers(cfg.Convert.Workers),
	)
	ex := extractor.New(
		extractor.WithLogger(logger),
		extractor.WithPdftotext(cfg.Extract.Pdftotext),
		extractor.WithOCR(cfg.Extract.OCR),
		extractor.WithHeaderDetector(func(cells []string) bool {
			return p.Classifier().Classify(cells) == parser.ClassHeader
		}),
	)
	return ledger.NewConverter(ex, b, logger, m), nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	out, err := writer.ForFormat(cfg.Convert.Format)
	if err != nil {
		return err
	}
	cols, err := writer.ParseColumns(cfg.Convert.Columns)
	if err != nil {
		return err
	}
	conv, err := newConverter(cfg, logger, nil)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	outDir := ""
	if output != "" {
		if fi, err := os.Stat(output); (err == nil && fi.IsDir()) || strings.HasSuffix(output, string(os.PathSeparator)) {
			outDir = output
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
		} else if len(args) > 1 {
			return fmt.Errorf("--output must be a directory when converting %d files", len(args))
		}
	}

	var failed int
	for _, inputPath := range args {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		outPath := outputPath(inputPath, output, outDir, out.Extension())
		if err := processFile(cmd.Context(), conv, inputPath, outPath, out, cols); err != nil {
			if errors.Is(err, ledger.ErrNoTransactions) {
				fmt.Println(warnStyle.Render("  Warning: No transactions found. The PDF may not contain a transaction table."))
				fmt.Println("  Try --inherit-dates, or --ocr if the PDF is a scan. `inspect` shows why rows were dropped.")
			}
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(args))
	}
	return nil
}

func outputPath(inputPath, output, outDir, ext string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)) + ext
	switch {
	case outDir != "":
		return filepath.Join(outDir, base)
	case output != "":
		return output
	}
	return filepath.Join(filepath.Dir(inputPath), base)
}

func convertFile(ctx context.Context, conv *ledger.Converter, inputPath string) (*ledger.Result, error) {
	if ext := strings.ToLower(filepath.Ext(inputPath)); ext != ".pdf" {
		return nil, fmt.Errorf("expected .pdf file, got %q", ext)
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("input file not found: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return conv.Convert(ctx, filepath.Base(inputPath), f, fi.Size())
}

func processFile(ctx context.Context, conv *ledger.Converter, inputPath, outPath string, out writer.Writer, cols []writer.Column) error {
	fmt.Println(titleStyle.Render("Processing: " + inputPath))

	res, err := convertFile(ctx, conv, inputPath)
	if err != nil {
		return err
	}

	fmt.Printf("  Extracted %d page(s)\n", res.Pages)
	fmt.Println(dimStyle.Render("  Layouts: " + strings.Join(res.Ledger.Layouts, ", ")))
	fmt.Printf("  Found %d transaction(s), rejected %d row(s)\n", res.Summary.Count, res.Summary.Rejected)
	if res.Ledger.Derived {
		fmt.Println("  Amounts derived from balance changes")
	}
	if res.Summary.Warnings > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  Warning: %d balance mismatch(es), see log for details", res.Summary.Warnings)))
	}

	if err := writer.WriteToFile(out, outPath, writer.NewTable(res.Ledger.Transactions, cols)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	fmt.Printf("  Output: %s\n", outPath)

	printSummary(res.Summary)
	fmt.Println(okStyle.Render("  Done."))
	return nil
}

func printSummary(s models.Summary) {
	fmt.Printf("  Period: %s - %s\n", s.From.Format(parser.FormatDate), s.To.Format(parser.FormatDate))
	fmt.Printf("  Paid in: %s\n", s.TotalPaidIn.Display(money.DefaultCurrency))
	fmt.Printf("  Paid out: %s\n", s.TotalPaidOut.Display(money.DefaultCurrency))
	if s.OpeningBalance != nil {
		fmt.Printf("  Opening balance: %s\n", s.OpeningBalance.Display(money.DefaultCurrency))
	}
	if s.ClosingBalance != nil {
		fmt.Printf("  Closing balance: %s\n", s.ClosingBalance.Display(money.DefaultCurrency))
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	conv, err := newConverter(cfg, logger, nil)
	if err != nil {
		return err
	}

	res, err := convertFile(cmd.Context(), conv, args[0])
	if err != nil {
		return err
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	raw, _ := cmd.Flags().GetBool("raw")
	printer := pp.New()
	printer.SetOutput(cmd.OutOrStdout())
	printer.SetColoringEnabled(!noColor)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Layouts"))
	printer.Println(res.Ledger.Layouts)
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Rejections (%d rows)", res.Summary.Rejected)))
	printer.Println(res.Ledger.Rejections)
	if len(res.Ledger.Warnings) > 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Balance warnings (%d)", len(res.Ledger.Warnings))))
		printer.Println(res.Ledger.Warnings)
	}
	if raw {
		fmt.Fprintln(out, titleStyle.Render("Extracted rows"))
		printer.Println(res.Extracted)
	}
	printSummary(res.Summary)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	m := metrics.New()
	conv, err := newConverter(cfg, logger, m)
	if err != nil {
		return err
	}

	app := api.New(&api.Handler{
		Converter: conv,
		Defaults:  cfg.Convert,
		Metrics:   m,
		StaticDir: cfg.Server.StaticDir,
		Version:   version,
	}, cfg.Server.BodyLimitMB)

	go func() {
		<-cmd.Context().Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}()

	logger.Info("starting server", "addr", cfg.Server.Addr, "ocr", cfg.Extract.OCR && extractor.IsOCRAvailable(), "version", version)
	return app.Listen(cfg.Server.Addr)
}
