// Package store persists statement documents and their transactions in
// PostgreSQL. Re-importing a document is idempotent: documents are keyed by
// content checksum and transactions by identity hash.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements the importer's persistence contract.
type Postgres struct {
	db DB
}

// New wraps a connection pool.
func New(db DB) *Postgres {
	return &Postgres{db: db}
}

// Connect opens and pings a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

const upsertDocumentSQL = `
	INSERT INTO documents (source, checksum)
	VALUES ($1, $2)
	ON CONFLICT (checksum) DO UPDATE SET scanned_at = now()
	RETURNING id, source`

// RegisterDocument records a document and returns it as first recorded: the
// same checksum always maps to the same id and source, whatever path the
// bytes are seen under later.
func (s *Postgres) RegisterDocument(ctx context.Context, source, checksum string) (models.Document, error) {
	var doc models.Document
	if err := s.db.QueryRow(ctx, upsertDocumentSQL, source, checksum).Scan(&doc.ID, &doc.Source); err != nil {
		return models.Document{}, fmt.Errorf("failed to upsert document %s: %w", source, err)
	}
	return doc, nil
}

// UpsertDocument records a document and returns its id. The same checksum
// always maps to the same id.
func (s *Postgres) UpsertDocument(ctx context.Context, source, checksum string) (int64, error) {
	doc, err := s.RegisterDocument(ctx, source, checksum)
	if err != nil {
		return 0, err
	}
	return doc.ID, nil
}

const insertTransactionSQL = `
	INSERT INTO transactions (
		document_id, txn_date, txn_type, isin, instrument_name,
		quantity, amount_in, amount_out, balance, source_document, identity_hash
	)
	VALUES ($1, $2::date, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11)
	ON CONFLICT (identity_hash) DO NOTHING`

// InsertTransactions stores txns for a document in one database transaction
// and returns how many were new. Rows whose identity hash already exists are
// skipped without error.
func (s *Postgres) InsertTransactions(ctx context.Context, documentID int64, txns []models.ParsedTransaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, t := range txns {
		tag, err := tx.Exec(ctx, insertTransactionSQL,
			documentID,
			t.Date,
			string(t.Type),
			optionalText(t.ISIN),
			optionalText(t.InstrumentName),
			numericText(t.Quantity),
			numericText(t.AmountIn),
			numericText(t.AmountOut),
			numericText(t.Balance),
			t.SourceDocument,
			t.IdentityHash,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", t.IdentityHash, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

const listTransactionsSQL = `
	SELECT
		to_char(txn_date, 'YYYY-MM-DD'),
		txn_type,
		COALESCE(isin, ''),
		COALESCE(instrument_name, ''),
		quantity::text,
		amount_in::text,
		amount_out::text,
		balance::text,
		source_document,
		identity_hash
	FROM transactions
	ORDER BY txn_date, id`

// ListTransactions returns all stored transactions ordered by date, then by
// insertion order.
func (s *Postgres) ListTransactions(ctx context.Context) ([]models.ParsedTransaction, error) {
	rows, err := s.db.Query(ctx, listTransactionsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.ParsedTransaction
	for rows.Next() {
		var (
			t                         models.ParsedTransaction
			kind                      string
			qty, in, out, balanceText *string
		)
		if err := rows.Scan(
			&t.Date, &kind, &t.ISIN, &t.InstrumentName,
			&qty, &in, &out, &balanceText,
			&t.SourceDocument, &t.IdentityHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Type = models.TxnKind(kind)
		nums, err := parseNumerics(qty, in, out, balanceText)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.IdentityHash, err)
		}
		t.Quantity, t.AmountIn, t.AmountOut, t.Balance = nums[0], nums[1], nums[2], nums[3]
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return txns, nil
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func numericText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNumerics(texts ...*string) ([]decimal.NullDecimal, error) {
	out := make([]decimal.NullDecimal, len(texts))
	for i, s := range texts {
		if s == nil {
			continue
		}
		d, err := decimal.NewFromString(*s)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric %q: %w", *s, err)
		}
		out[i] = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return out, nil
}
