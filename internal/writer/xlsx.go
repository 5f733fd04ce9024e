package writer

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// SheetName is the worksheet that holds the exported transactions.
const SheetName = "Transactions"

// XLSXWriter writes transactions to a single-sheet workbook. Amounts and
// quantities are numeric cells; absent values are left empty.
type XLSXWriter struct{}

// WriteToFile writes transactions to an XLSX file at the given path.
func (w *XLSXWriter) WriteToFile(path string, txns []models.ParsedTransaction) error {
	return writeFile(path, w, txns)
}

// Write writes the workbook to out.
func (w *XLSXWriter) Write(out io.Writer, txns []models.ParsedTransaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write XLSX header: %w", err)
	}

	for i, txn := range txns {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			txn.Date,
			string(txn.Type),
			txn.ISIN,
			txn.InstrumentName,
			cellDecimal(txn.Quantity),
			cellDecimal(txn.AmountIn),
			cellDecimal(txn.AmountOut),
			cellDecimal(txn.Balance),
			txn.SourceDocument,
			txn.IdentityHash,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write XLSX row %d: %w", i+1, err)
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}

func cellDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
