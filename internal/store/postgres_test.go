package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

func strPtr(s string) *string { return &s }

func sampleTxns() []models.ParsedTransaction {
	return []models.ParsedTransaction{
		{
			Date:           "2024-02-01",
			Type:           models.KindBuy,
			ISIN:           "DE0001234567",
			InstrumentName: "Example AG",
			Quantity:       decimal.NewNullDecimal(decimal.NewFromInt(10)),
			AmountOut:      decimal.NewNullDecimal(decimal.RequireFromString("1234.56")),
			Balance:        decimal.NewNullDecimal(decimal.RequireFromString("5000")),
			SourceDocument: "statement.pdf",
			IdentityHash:   "hash-1",
		},
		{
			Date:           "2024-03-01",
			Type:           models.KindTransfer,
			AmountIn:       decimal.NewNullDecimal(decimal.RequireFromString("100")),
			Balance:        decimal.NewNullDecimal(decimal.RequireFromString("5100")),
			SourceDocument: "statement.pdf",
			IdentityHash:   "hash-2",
		},
	}
}

func TestPostgres_UpsertDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("statement.pdf", "abc123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source"}).AddRow(int64(7), "statement.pdf"))
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("renamed.pdf", "abc123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source"}).AddRow(int64(7), "statement.pdf"))

	s := New(mock)
	first, err := s.UpsertDocument(context.Background(), "statement.pdf", "abc123")
	require.NoError(t, err)
	second, err := s.UpsertDocument(context.Background(), "renamed.pdf", "abc123")
	require.NoError(t, err)

	assert.Equal(t, int64(7), first)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RegisterDocument_KeepsFirstSource(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ON CONFLICT \(checksum\) DO UPDATE SET scanned_at = now\(\)\s+RETURNING id, source`).
		WithArgs("2024/januar.pdf", "abc123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source"}).AddRow(int64(7), "januar.pdf"))

	doc, err := New(mock).RegisterDocument(context.Background(), "2024/januar.pdf", "abc123")
	require.NoError(t, err)
	assert.Equal(t, models.Document{ID: 7, Source: "januar.pdf"}, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertDocument_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("statement.pdf", "abc123").
		WillReturnError(errors.New("connection refused"))

	_, err = New(mock).UpsertDocument(context.Background(), "statement.pdf", "abc123")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertTransactions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	txns := sampleTxns()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(int64(7), "2024-02-01", "buy", strPtr("DE0001234567"), strPtr("Example AG"),
			strPtr("10"), (*string)(nil), strPtr("1234.56"), strPtr("5000"), "statement.pdf", "hash-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(int64(7), "2024-03-01", "transfer", (*string)(nil), (*string)(nil),
			(*string)(nil), strPtr("100"), (*string)(nil), strPtr("5100"), "statement.pdf", "hash-2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := New(mock).InsertTransactions(context.Background(), 7, txns)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertTransactions_SecondRunInsertsNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	for range sampleTxns() {
		mock.ExpectExec(`ON CONFLICT \(identity_hash\) DO NOTHING`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
	}
	mock.ExpectCommit()

	n, err := New(mock).InsertTransactions(context.Background(), 7, sampleTxns())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertTransactions_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := New(mock).InsertTransactions(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertTransactions_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = New(mock).InsertTransactions(context.Background(), 7, sampleTxns())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListTransactions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{
		"txn_date", "txn_type", "isin", "instrument_name", "quantity",
		"amount_in", "amount_out", "balance", "source_document", "identity_hash",
	}
	mock.ExpectQuery(`FROM transactions\s+ORDER BY txn_date, id`).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("2024-02-01", "buy", "DE0001234567", "Example AG", strPtr("10"),
				nil, strPtr("1234.56"), strPtr("5000.00"), "statement.pdf", "hash-1").
			AddRow("2024-03-01", "transfer", "", "", nil,
				strPtr("100"), nil, strPtr("5100"), "statement.pdf", "hash-2"))

	txns, err := New(mock).ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txns, 2)

	first := txns[0]
	assert.Equal(t, "2024-02-01", first.Date)
	assert.Equal(t, models.KindBuy, first.Type)
	assert.Equal(t, "Example AG", first.InstrumentName)
	assert.True(t, first.Quantity.Valid)
	assert.False(t, first.AmountIn.Valid)
	assert.True(t, first.AmountOut.Decimal.Equal(decimal.RequireFromString("1234.56")))
	assert.True(t, first.Balance.Decimal.Equal(decimal.RequireFromString("5000")))

	second := txns[1]
	assert.Equal(t, models.KindTransfer, second.Type)
	assert.Empty(t, second.ISIN)
	assert.False(t, second.Quantity.Valid)
	assert.True(t, second.AmountIn.Decimal.Equal(decimal.NewFromInt(100)))

	assert.NoError(t, mock.ExpectationsWereMet())
}
