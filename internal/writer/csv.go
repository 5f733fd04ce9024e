// Package writer renders parsed transactions as CSV or XLSX.
package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// Columns is the column order of every export format.
var Columns = []string{
	"date", "type", "isin", "instrument_name", "quantity",
	"amount_in", "amount_out", "balance", "source_document", "identity_hash",
}

// Writer renders transactions in one output format.
type Writer interface {
	Write(out io.Writer, txns []models.ParsedTransaction) error
	WriteToFile(path string, txns []models.ParsedTransaction) error
}

// New returns the writer for format ("csv" or "xlsx").
func New(format string) (Writer, error) {
	switch format {
	case "csv", "":
		return &CSVWriter{IncludeHeader: true}, nil
	case "xlsx":
		return &XLSXWriter{}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// CSVWriter writes transactions to CSV format.
type CSVWriter struct {
	// IncludeHeader writes Columns as the first record.
	IncludeHeader bool
}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, txns []models.ParsedTransaction) error {
	return writeFile(path, w, txns)
}

// Write writes transactions in CSV format to the given writer. Absent values
// are written as empty fields.
func (w *CSVWriter) Write(out io.Writer, txns []models.ParsedTransaction) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		if err := writer.Write(Columns); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	for _, txn := range txns {
		if err := writer.Write(record(txn)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func record(txn models.ParsedTransaction) []string {
	return []string{
		txn.Date,
		string(txn.Type),
		txn.ISIN,
		txn.InstrumentName,
		formatDecimal(txn.Quantity),
		formatDecimal(txn.AmountIn),
		formatDecimal(txn.AmountOut),
		formatDecimal(txn.Balance),
		txn.SourceDocument,
		txn.IdentityHash,
	}
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func writeFile(path string, w Writer, txns []models.ParsedTransaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	if err := w.Write(f, txns); err != nil {
		return err
	}
	return f.Close()
}
