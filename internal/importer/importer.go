// Package importer drives statement extraction for whole documents: it reads
// the file, extracts page text, runs the statement parser and persists the
// result so that re-running over the same files inserts nothing new.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/broker-statement-importer/internal/extractor"
	"github.com/insightdelivered/broker-statement-importer/internal/metrics"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
	"github.com/insightdelivered/broker-statement-importer/internal/parser"
)

// ErrUnreadableDocument marks a document whose bytes or text layer could not
// be read. Such documents are reported and skipped, never retried.
var ErrUnreadableDocument = errors.New("unreadable document")

// Store persists documents and transactions.
type Store interface {
	// RegisterDocument returns the same id and first-recorded source for the
	// same checksum.
	RegisterDocument(ctx context.Context, source, checksum string) (models.Document, error)
	// InsertTransactions returns how many transactions were new.
	InsertTransactions(ctx context.Context, documentID int64, txns []models.ParsedTransaction) (int, error)
}

// DebugSink receives page text and extraction diagnostics for offline
// inspection of layouts the parser does not handle.
type DebugSink interface {
	Dump(source string, pages []string, res *models.ExtractionResult) error
}

// Report is the outcome of importing one document.
type Report struct {
	Source     string
	DocumentID int64
	Layout     string
	Status     string
	Parsed     int
	Inserted   int
	Unresolved int
}

// Importer imports statement documents.
type Importer struct {
	Source extractor.PageSource
	Store  Store
	// Parser is used for every document; nil auto-detects the layout per
	// document.
	Parser parser.Parser
	// Sink, when set, receives a dump of every document without
	// transactions, or of every document when DebugAlways is set.
	Sink        DebugSink
	DebugAlways bool
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	// Workers bounds concurrent documents in ScanFolder; below 1 means 1.
	Workers int
}

// Checksum returns the hex SHA-256 of a document's bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ImportFile imports a single document. The file name is used as the source
// document identifier unless the same bytes were recorded under another one.
func (i *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	return i.importDocument(ctx, path, filepath.Base(path))
}

func (i *Importer) importDocument(ctx context.Context, path, source string) (Report, error) {
	log := i.Logger.With().Str("document", source).Logger()
	rep := Report{Source: source}

	data, err := os.ReadFile(path)
	if err != nil {
		i.Metrics.ObserveFailure()
		return rep, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	doc, err := i.Store.RegisterDocument(ctx, source, Checksum(data))
	if err != nil {
		i.Metrics.ObserveFailure()
		return rep, err
	}
	rep.DocumentID = doc.ID
	// Identical bytes keep the source they were first imported under, so
	// their fingerprints do not change with the path or scan root.
	recorded := source
	if doc.Source != "" && doc.Source != source {
		recorded = doc.Source
		log = log.With().Str("recorded_as", recorded).Logger()
	}

	pages, err := i.Source.ExtractPages(path)
	if err != nil {
		i.Metrics.ObserveFailure()
		return rep, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	p := i.Parser
	if p == nil {
		detected, found := parser.AutoDetect(pages)
		if !found {
			log.Warn().Str("layout", detected.Layout()).Msg("no known table header, using default layout")
		}
		p = detected
	}

	start := time.Now()
	res := p.Parse(recorded, pages)
	i.Metrics.ObserveExtraction(res, time.Since(start))

	rep.Layout = res.Layout
	rep.Status = res.Status()
	rep.Parsed = len(res.Transactions)
	rep.Unresolved = len(res.UnresolvedLines)

	if i.Sink != nil && (i.DebugAlways || rep.Parsed == 0) {
		if err := i.Sink.Dump(recorded, pages, res); err != nil {
			log.Warn().Err(err).Msg("failed to write debug dump")
		}
	}

	if rep.Status != models.StatusOK {
		log.Warn().
			Str("status", rep.Status).
			Int("pages_with_header", res.PagesWithHeader).
			Int("pages_without_header", res.PagesWithoutHeader).
			Int("data_lines", res.DataLines()).
			Msg("no transactions extracted")
	}
	if rep.Unresolved > 0 {
		log.Warn().
			Strs("lines", res.UnresolvedLines).
			Msg("dropped unresolved lines at end of document")
	}

	rep.Inserted, err = i.Store.InsertTransactions(ctx, rep.DocumentID, res.Transactions)
	if err != nil {
		i.Metrics.ObserveFailure()
		return rep, err
	}
	i.Metrics.ObserveStored(rep.Inserted)

	log.Info().
		Int64("document_id", rep.DocumentID).
		Str("layout", rep.Layout).
		Int("parsed", rep.Parsed).
		Int("inserted", rep.Inserted).
		Msg("document imported")

	return rep, nil
}
