package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/insightdelivered/broker-statement-importer/internal/api"
	"github.com/insightdelivered/broker-statement-importer/internal/config"
	"github.com/insightdelivered/broker-statement-importer/internal/extractor"
	"github.com/insightdelivered/broker-statement-importer/internal/importer"
	"github.com/insightdelivered/broker-statement-importer/internal/layout"
	"github.com/insightdelivered/broker-statement-importer/internal/logger"
	"github.com/insightdelivered/broker-statement-importer/internal/metrics"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
	"github.com/insightdelivered/broker-statement-importer/internal/parser"
	"github.com/insightdelivered/broker-statement-importer/internal/store"
	"github.com/insightdelivered/broker-statement-importer/internal/writer"
)

const version = "2.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, `Broker Statement Importer
by Insight Delivered (QEA AutoLens)

Extracts the transaction table of broker account statement PDFs and stores
each transaction exactly once, however often a statement is re-imported.

Usage:
  broker-statement-importer <command> [flags]

Commands:
  scan     import every PDF below a folder
  watch    scan a folder now and then on a schedule
  parse    print the parsed transactions and diagnostics of one PDF as JSON
  export   write all stored transactions as CSV or XLSX
  serve    run the HTTP API
  version  print version and exit

Run "broker-statement-importer <command> -h" for the flags of a command.

Examples:
  # Import a folder of statements into the database
  broker-statement-importer scan --folder=./statements

  # Inspect why a statement yields no transactions
  broker-statement-importer parse --layout=de januar.pdf

  # Export everything to Excel
  broker-statement-importer export --format=xlsx --out=transactions.xlsx

Environment:
  DATABASE_URL, LOG_LEVEL, SERVER_PORT, LAYOUT, LAYOUT_FILE, DEBUG_DIR,
  WORKERS, SCAN_SCHEDULE (a .env file in the working directory is read too)

Supported layouts:
  de  - German statements (DATUM TYP BESCHREIBUNG ... SALDO, 1.234,56)
  en  - English statements (DATE TYPE DESCRIPTION ... BALANCE, 1,234.56)
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version", "--version", "-version":
		fmt.Printf("broker-statement-importer v%s\n", version)
		return
	case "help", "-h", "--help":
		usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("Invalid configuration: %v\n", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	switch cmd {
	case "scan":
		err = runScan(ctx, cfg, args)
	case "watch":
		err = runWatch(ctx, cfg, args)
	case "parse":
		err = runParse(cfg, args)
	case "export":
		err = runExport(ctx, cfg, args)
	case "serve":
		err = runServe(ctx, cfg, args)
	default:
		usage()
		fatalf("Unknown command %q\n", cmd)
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// layoutFlags are shared by every command that parses statements.
type layoutFlags struct {
	name string
	file string
}

func (l *layoutFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&l.name, "layout", cfg.Layout, "Layout: "+fmt.Sprint(layout.Names())+" (auto-detected per document if omitted)")
	fs.StringVar(&l.file, "layout-file", cfg.LayoutFile, "YAML layout definition (overrides --layout)")
}

// parser returns the configured parser, or nil to auto-detect per document.
func (l *layoutFlags) parser() (parser.Parser, error) {
	switch {
	case l.file != "":
		v, err := layout.Load(l.file)
		if err != nil {
			return nil, err
		}
		return &parser.StatementParser{Vocab: v}, nil
	case l.name != "":
		return parser.New(l.name)
	}
	return nil, nil
}

// importFlags configure an importer for scan and watch.
type importFlags struct {
	layoutFlags
	folder      string
	workers     int
	debugDir    string
	debugAlways bool
}

func (f *importFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	f.layoutFlags.register(fs, cfg)
	fs.StringVar(&f.folder, "folder", "", "Folder to scan recursively for *.pdf (required)")
	fs.IntVar(&f.workers, "workers", cfg.Workers, "Documents processed concurrently")
	fs.StringVar(&f.debugDir, "debug-dir", cfg.DebugDir, "Write page text and line diagnostics of documents without transactions here")
	fs.BoolVar(&f.debugAlways, "debug-always", false, "Write diagnostics for every document (needs --debug-dir)")
}

// build connects to the database, applies migrations and wires an importer.
// The returned close function releases the connection pool.
func (f *importFlags) build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*importer.Importer, func(), error) {
	if f.folder == "" {
		return nil, nil, errors.New("--folder is required")
	}
	p, err := f.parser()
	if err != nil {
		return nil, nil, err
	}

	pg, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	imp := &importer.Importer{
		Source:      extractor.PDF{},
		Store:       pg,
		Parser:      p,
		DebugAlways: f.debugAlways,
		Metrics:     m,
		Logger:      logger.FromContext(ctx),
		Workers:     f.workers,
	}
	if f.debugDir != "" {
		sink, err := importer.NewFileSink(f.debugDir)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		imp.Sink = sink
	}
	return imp, closeDB, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Postgres, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.New(pool), pool.Close, nil
}

func runScan(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	var f importFlags
	f.register(fs, cfg)
	fs.Parse(args)

	imp, closeDB, err := f.build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeDB()

	sum, err := imp.ScanFolder(ctx, f.folder)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d document(s): %d transaction(s) parsed, %d new\n",
		len(sum.Reports)+len(sum.Failed), sum.Parsed, sum.Inserted)
	for _, rep := range sum.Reports {
		if rep.Status != models.StatusOK || rep.Unresolved > 0 {
			fmt.Printf("  %s: %s, %d unresolved line(s)\n", rep.Source, rep.Status, rep.Unresolved)
		}
	}
	for _, fail := range sum.Failed {
		fmt.Printf("  %s: skipped: %v\n", fail.Source, fail.Err)
	}
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var f importFlags
	f.register(fs, cfg)
	schedule := fs.String("schedule", cfg.ScanSchedule, `Cron schedule, e.g. "@every 15m" or "0 6 * * *"`)
	fs.Parse(args)

	imp, closeDB, err := f.build(ctx, cfg, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	defer closeDB()

	return imp.Watch(ctx, f.folder, *schedule)
}

func runParse(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	var lf layoutFlags
	lf.register(fs, cfg)
	output := fs.String("output", "", "Write JSON here instead of stdout")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("parse takes exactly one PDF")
	}
	path := fs.Arg(0)

	pages, err := extractor.PDF{}.ExtractPages(path)
	if err != nil {
		return fmt.Errorf("PDF extraction failed: %w", err)
	}

	p, err := lf.parser()
	if err != nil {
		return err
	}
	if p == nil {
		detected, found := parser.AutoDetect(pages)
		if !found {
			fmt.Fprintf(os.Stderr, "Warning: no known table header found, using layout %q\n", detected.Layout())
		}
		p = detected
	}

	res := p.Parse(filepath.Base(path), pages)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", *output, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Status string `json:"status"`
		*models.ExtractionResult
	}{res.Status(), res}); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "Output format: csv or xlsx")
	outPath := fs.String("out", "", "Output file (CSV goes to stdout if omitted)")
	fs.Parse(args)

	w, err := writer.New(*format)
	if err != nil {
		return err
	}
	if *outPath == "" && *format == "xlsx" {
		return errors.New("--out is required for xlsx")
	}

	pg, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	txns, err := pg.ListTransactions(ctx)
	if err != nil {
		return err
	}

	if *outPath == "" {
		return w.Write(os.Stdout, txns)
	}
	if err := w.WriteToFile(*outPath, txns); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d transaction(s) to %s\n", len(txns), *outPath)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var lf layoutFlags
	lf.register(fs, cfg)
	port := fs.Int("port", cfg.ServerPort, "HTTP port")
	fs.Parse(args)

	p, err := lf.parser()
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	app := api.NewApp(&api.Handler{
		Source:   extractor.PDF{},
		Parser:   p,
		Metrics:  metrics.New(prometheus.DefaultRegisterer),
		Gatherer: prometheus.DefaultGatherer,
		Logger:   log,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(*port)
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
