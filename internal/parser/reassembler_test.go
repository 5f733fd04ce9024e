package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/broker-statement-importer/internal/layout"
)

func TestReassembler_MultiLine(t *testing.T) {
	r := NewReassembler(mustLayout(t, layout.German), "statement.pdf")

	_, ok := r.Push("01.02.2024 Kauf Example")
	require.False(t, ok)
	assert.Equal(t, []string{"01.02.2024 Kauf Example"}, r.Pending())

	txn, ok := r.Push("AG DE0001234567 10 0,00 1.234,56 5.000,00")
	require.True(t, ok)
	assert.Equal(t, "Example AG", txn.InstrumentName)
	assert.Equal(t, "DE0001234567", txn.ISIN)
	assert.Empty(t, r.Pending())
}

func TestReassembler_DateArrivesLast(t *testing.T) {
	r := NewReassembler(mustLayout(t, layout.German), "statement.pdf")

	_, ok := r.Push("Example AG DE0001234567 10 0,00 1.234,56 5.000,00")
	require.False(t, ok)

	txn, ok := r.Push("01.02.2024 Kauf")
	require.True(t, ok)
	assert.Equal(t, "2024-02-01", txn.Date)
	assertAmount(t, "amount_out", "1234.56", txn.AmountOut)
	assertAmount(t, "balance", "5000", txn.Balance)
	assert.Empty(t, r.Pending())
}

func TestReassembler_SingleLine(t *testing.T) {
	r := NewReassembler(mustLayout(t, layout.German), "statement.pdf")

	txn, ok := r.Push("01.03.2024 Verkauf Demo SE DE0009999999 5 2.000,00 0,00 7.000,00")
	require.True(t, ok)
	assert.Equal(t, "Demo SE", txn.InstrumentName)
	assert.Empty(t, r.Pending())
}

func TestReassembler_Flush(t *testing.T) {
	r := NewReassembler(mustLayout(t, layout.German), "statement.pdf")

	_, ok := r.Push("01.02.2024 Kauf Example")
	require.False(t, ok)
	_, ok = r.Push("Summe Depot")
	require.False(t, ok)

	assert.Equal(t, []string{"01.02.2024 Kauf Example", "Summe Depot"}, r.Flush())
	assert.Empty(t, r.Pending())
	assert.Empty(t, r.Flush())
}

func TestStep_DoesNotModifyInput(t *testing.T) {
	de := mustLayout(t, layout.German)

	buf := PendingBuffer{"01.02.2024 Kauf Example"}
	next, _, ok := Step(de, buf, "AG", "statement.pdf")
	require.False(t, ok)
	assert.Equal(t, PendingBuffer{"01.02.2024 Kauf Example"}, buf)
	assert.Equal(t, PendingBuffer{"01.02.2024 Kauf Example", "AG"}, next)

	next, txn, ok := Step(de, next, "DE0001234567 10 0,00 1.234,56 5.000,00", "statement.pdf")
	require.True(t, ok)
	assert.Empty(t, next)
	assert.Equal(t, "Example AG", txn.InstrumentName)
}
