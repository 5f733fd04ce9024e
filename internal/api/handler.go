// Package api exposes statement extraction over HTTP.
package api

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/broker-statement-importer/internal/extractor"
	"github.com/insightdelivered/broker-statement-importer/internal/metrics"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
	"github.com/insightdelivered/broker-statement-importer/internal/parser"
	"github.com/insightdelivered/broker-statement-importer/internal/writer"
)

const version = "2.0.0"

// maxUpload is the largest accepted request body.
const maxUpload = 32 << 20

// textSource names documents submitted as pre-extracted text.
const textSource = "extracted-text"

// ExtractResponse is the JSON response from the /api/extract endpoint.
type ExtractResponse struct {
	Success            bool                       `json:"success"`
	Error              string                     `json:"error,omitempty"`
	Source             string                     `json:"source,omitempty"`
	Layout             string                     `json:"layout,omitempty"`
	Status             string                     `json:"status,omitempty"`
	Transactions       []models.ParsedTransaction `json:"transactions"`
	Count              int                        `json:"count"`
	Pages              []models.PageDiagnostic    `json:"pages,omitempty"`
	PagesWithHeader    int                        `json:"pagesWithHeader"`
	PagesWithoutHeader int                        `json:"pagesWithoutHeader"`
	UnresolvedLines    []string                   `json:"unresolvedLines,omitempty"`
	DebugLines         []models.DebugLine         `json:"debugLines,omitempty"`
	CSV                string                     `json:"csv,omitempty"`
	RawText            string                     `json:"rawText,omitempty"`
	Version            string                     `json:"version,omitempty"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	// Source extracts uploaded PDFs.
	Source extractor.PageSource
	// Parser, when set, is used unless the request names a layout;
	// otherwise the layout is auto-detected.
	Parser   parser.Parser
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// NewApp returns a fiber app with all routes registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "broker-statement-importer",
		BodyLimit:             maxUpload,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/extract", h.HandleExtract)

	gatherer := h.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": version,
	})
}

// HandleExtract parses an uploaded statement PDF (form field "file") or
// pre-extracted page text (form field "extractedText", pages separated by
// extractor.PageBreak). The optional "layout" field selects a built-in
// layout; "header=false" omits the CSV header row.
func (h *Handler) HandleExtract(c *fiber.Ctx) error {
	includeHeader := c.FormValue("header") != "false"
	extractedText := c.FormValue("extractedText")

	var pages []string
	source := textSource

	if strings.TrimSpace(extractedText) != "" {
		pages = extractor.SplitPages(extractedText)
	} else {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file' or 'extractedText'.")
		}
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
			return writeError(c, fiber.StatusBadRequest, "Only PDF files are supported.")
		}
		source = filepath.Base(fh.Filename)

		tmpDir, err := os.MkdirTemp("", "statement-")
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "Failed to create temp file.")
		}
		defer os.RemoveAll(tmpDir)

		tmpPath := filepath.Join(tmpDir, "upload.pdf")
		if err := c.SaveFile(fh, tmpPath); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "Failed to save uploaded file.")
		}

		pages, err = h.Source.ExtractPages(tmpPath)
		if err != nil {
			h.Metrics.ObserveFailure()
			h.Logger.Warn().Err(err).Str("document", source).Msg("pdf extraction failed")
			return writeError(c, fiber.StatusUnprocessableEntity, "PDF extraction failed: "+err.Error())
		}
	}

	p, err := h.parserFor(c.FormValue("layout"), pages)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	start := time.Now()
	res := p.Parse(source, pages)
	h.Metrics.ObserveExtraction(res, time.Since(start))

	var csvBuf bytes.Buffer
	csvWriter := &writer.CSVWriter{IncludeHeader: includeHeader}
	if err := csvWriter.Write(&csvBuf, res.Transactions); err != nil {
		return writeError(c, fiber.StatusInternalServerError, "CSV generation failed: "+err.Error())
	}

	h.Logger.Info().
		Str("document", source).
		Str("layout", res.Layout).
		Str("status", res.Status()).
		Int("parsed", len(res.Transactions)).
		Msg("extraction request")

	return c.JSON(ExtractResponse{
		Success:            true,
		Source:             source,
		Layout:             res.Layout,
		Status:             res.Status(),
		Transactions:       res.Transactions,
		Count:              len(res.Transactions),
		Pages:              res.Pages,
		PagesWithHeader:    res.PagesWithHeader,
		PagesWithoutHeader: res.PagesWithoutHeader,
		UnresolvedLines:    res.UnresolvedLines,
		DebugLines:         res.DebugLines,
		CSV:                csvBuf.String(),
		RawText:            strings.Join(pages, extractor.PageBreak),
		Version:            version,
	})
}

func (h *Handler) parserFor(layoutName string, pages []string) (parser.Parser, error) {
	if layoutName != "" {
		return parser.New(strings.ToLower(layoutName))
	}
	if h.Parser != nil {
		return h.Parser, nil
	}
	p, _ := parser.AutoDetect(pages)
	return p, nil
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ExtractResponse{
		Success:      false,
		Error:        msg,
		Transactions: []models.ParsedTransaction{},
	})
}
