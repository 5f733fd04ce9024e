package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// fieldSeparator cannot occur in extracted statement text.
const fieldSeparator = "\x1f"

// Fingerprint returns the identity hash of a transaction: the hex SHA-256 of
// its date, type, identifier, name, quantity, amounts, balance and source
// document. Absent values hash as empty fields. The IdentityHash field itself
// is ignored.
func Fingerprint(txn models.ParsedTransaction) string {
	fields := []string{
		txn.Date,
		string(txn.Type),
		txn.ISIN,
		txn.InstrumentName,
		nullString(txn.Quantity),
		nullString(txn.AmountIn),
		nullString(txn.AmountOut),
		nullString(txn.Balance),
		txn.SourceDocument,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
