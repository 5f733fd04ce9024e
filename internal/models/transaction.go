package models

import "github.com/shopspring/decimal"

// TxnKind is the classified type of a statement transaction.
type TxnKind string

const (
	KindBuy      TxnKind = "buy"
	KindSell     TxnKind = "sell"
	KindTransfer TxnKind = "transfer"
	// KindTrade is only used by layout vocabularies; it is always resolved to
	// buy, sell or transfer before a transaction is emitted.
	KindTrade TxnKind = "trade"
)

// Valid reports whether k is one of the known kinds.
func (k TxnKind) Valid() bool {
	switch k {
	case KindBuy, KindSell, KindTransfer, KindTrade:
		return true
	}
	return false
}

// ParsedTransaction is a single resolved row of a statement's transaction table.
type ParsedTransaction struct {
	Date           string              `json:"date"` // YYYY-MM-DD
	Type           TxnKind             `json:"type"`
	ISIN           string              `json:"isin,omitempty"`
	InstrumentName string              `json:"instrumentName,omitempty"`
	Quantity       decimal.NullDecimal `json:"quantity"`
	AmountIn       decimal.NullDecimal `json:"amountIn"`
	AmountOut      decimal.NullDecimal `json:"amountOut"`
	Balance        decimal.NullDecimal `json:"balance"`
	SourceDocument string              `json:"sourceDocument"`
	IdentityHash   string              `json:"identityHash"`
}

// Document is a statement file as recorded by the store.
type Document struct {
	ID     int64
	Source string // source identifier the checksum was first recorded under
}

// TableRegion is the part of one page that follows the transaction table header.
type TableRegion struct {
	Page        int
	HeaderFound bool
	HeaderLine  int // index into the page's trimmed lines, -1 when not found
	Lines       []string
}

// DebugLine captures what the extraction pass did with each input line.
type DebugLine struct {
	Page    int    `json:"page"`
	LineNum int    `json:"lineNum"`
	Text    string `json:"text"`
	Result  string `json:"result"` // "skipped-pre-header", "header", "buffered", "resolved", "dropped"
}

// Debug line outcomes.
const (
	LineSkipped  = "skipped-pre-header"
	LineHeader   = "header"
	LineBuffered = "buffered"
	LineResolved = "resolved"
	LineDropped  = "dropped"
)

// PageDiagnostic records the table locator outcome for one page.
type PageDiagnostic struct {
	Page        int  `json:"page"`
	HeaderFound bool `json:"headerFound"`
	HeaderLine  int  `json:"headerLine"`
	DataLines   int  `json:"dataLines"`
}

// Extraction statuses returned by ExtractionResult.Status.
const (
	StatusOK              = "ok"
	StatusNoHeader        = "no-header"
	StatusNoResolvedLines = "no-resolved-lines"
	StatusEmptyTable      = "empty-table"
)

// ExtractionResult holds the transactions and diagnostics of one document.
type ExtractionResult struct {
	Source             string              `json:"source"`
	Layout             string              `json:"layout"`
	Transactions       []ParsedTransaction `json:"transactions"`
	HeaderFound        bool                `json:"headerFound"`
	Pages              []PageDiagnostic    `json:"pages"`
	PagesWithHeader    int                 `json:"pagesWithHeader"`
	PagesWithoutHeader int                 `json:"pagesWithoutHeader"`
	UnresolvedLines    []string            `json:"unresolvedLines,omitempty"`
	DebugLines         []DebugLine         `json:"debugLines,omitempty"`
}

// Status classifies the result. A document without transactions is either
// "no-header" (the layout was not recognised), "no-resolved-lines" (table
// lines were seen but none resolved) or "empty-table".
func (r *ExtractionResult) Status() string {
	if len(r.Transactions) > 0 {
		return StatusOK
	}
	if !r.HeaderFound {
		return StatusNoHeader
	}
	for _, p := range r.Pages {
		if p.DataLines > 0 {
			return StatusNoResolvedLines
		}
	}
	return StatusEmptyTable
}

// DataLines returns the total number of table data lines over all pages.
func (r *ExtractionResult) DataLines() int {
	n := 0
	for _, p := range r.Pages {
		n += p.DataLines
	}
	return n
}
