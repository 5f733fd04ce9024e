package parser

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/broker-statement-importer/internal/layout"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// ParseLine parses one logical statement line into a transaction. It returns
// false when the line lacks a date, a type keyword or any amount, which means
// the caller should keep buffering.
//
// Amounts are taken from the whole line once the date is cut out; the
// description is the text between the keyword and the next amount.
func ParseLine(vocab *layout.Vocabulary, line, source string) (models.ParsedTransaction, bool) {
	date, rest, ok := extractDate(vocab, line)
	if !ok {
		return models.ParsedTransaction{}, false
	}

	kind, kwEnd, ok := classifyType(vocab, rest)
	if !ok {
		return models.ParsedTransaction{}, false
	}

	amounts, rawDesc, ok := splitAmounts(vocab, rest, kwEnd)
	if !ok {
		return models.ParsedTransaction{}, false
	}

	kind = resolveTrade(vocab, kind, rawDesc)
	in, out, balance := assignAmounts(kind, amounts)

	isin, name, qtyText := splitInstrument(vocab.StripNoise(rawDesc))

	txn := models.ParsedTransaction{
		Date:           date,
		Type:           kind,
		ISIN:           isin,
		InstrumentName: name,
		Quantity:       extractQuantity(qtyText),
		AmountIn:       in,
		AmountOut:      out,
		Balance:        balance,
		SourceDocument: source,
	}
	txn.IdentityHash = Fingerprint(txn)
	return txn, true
}

// classifyType finds the type keyword and returns the offset just past it.
func classifyType(vocab *layout.Vocabulary, text string) (models.TxnKind, int, bool) {
	kind, _, end, ok := vocab.MatchKeyword(text)
	if !ok {
		return "", 0, false
	}
	return kind, end, true
}

// resolveTrade narrows the generic trade kind using buy/sell markers in the
// description. A trade without a marker is recorded as a transfer.
func resolveTrade(vocab *layout.Vocabulary, kind models.TxnKind, desc string) models.TxnKind {
	if kind != models.KindTrade {
		return kind
	}
	if k, ok := vocab.TradeMarker(desc); ok {
		return k
	}
	return models.KindTransfer
}

// splitAmounts returns all amounts in text, wherever they sit relative to the
// keyword, and the description: the text from descStart up to the first
// amount after it. With no amount after descStart the description is empty.
func splitAmounts(vocab *layout.Vocabulary, text string, descStart int) ([]decimal.Decimal, string, bool) {
	spans := findAmounts(vocab, text)
	if len(spans) == 0 {
		return nil, "", false
	}
	values := make([]decimal.Decimal, len(spans))
	descEnd := -1
	for i, s := range spans {
		values[i] = s.value
		if descEnd < 0 && s.start >= descStart {
			descEnd = s.start
		}
	}
	if descEnd < 0 {
		descEnd = descStart
	}
	return values, strings.TrimSpace(text[descStart:descEnd]), true
}

// assignAmounts maps the amounts of a line onto money-in, money-out and
// balance.
//
//	3 or more: the last three are in, out and balance, in column order.
//	2: the first is the transaction amount, routed by kind or sign; the
//	   second is the balance.
//	1: balance only.
//
// Zero amounts are kept as present values.
func assignAmounts(kind models.TxnKind, amounts []decimal.Decimal) (in, out, balance decimal.NullDecimal) {
	switch n := len(amounts); {
	case n >= 3:
		in = present(amounts[n-3].Abs())
		out = present(amounts[n-2].Abs())
		balance = present(amounts[n-1])
	case n == 2:
		amt := amounts[0]
		switch {
		case kind == models.KindBuy:
			out = present(amt.Abs())
		case kind == models.KindSell:
			in = present(amt.Abs())
		case amt.IsNegative():
			out = present(amt.Abs())
		default:
			in = present(amt)
		}
		balance = present(amounts[1])
	case n == 1:
		balance = present(amounts[0])
	}
	return in, out, balance
}

// splitInstrument separates the security identifier from the description.
// The name is the text before the identifier; the text after it carries the
// quantity. Without an identifier there is no name and the whole description
// is searched for the quantity.
func splitInstrument(desc string) (isin, name, rest string) {
	start, end, ok := findISIN(desc)
	if !ok {
		return "", "", strings.TrimSpace(desc)
	}
	return desc[start:end], strings.TrimSpace(desc[:start]), strings.TrimSpace(desc[end:])
}

func present(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
