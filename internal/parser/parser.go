package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/insightdelivered/broker-statement-importer/internal/layout"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// Parser defines the interface for statement parsers.
type Parser interface {
	// Parse takes raw text from PDF pages and returns the extracted
	// transactions with diagnostics. source identifies the document.
	Parse(source string, pages []string) *models.ExtractionResult
	// Layout returns the name of the layout vocabulary in use.
	Layout() string
}

// StatementParser extracts the transaction table of one statement layout.
type StatementParser struct {
	Vocab *layout.Vocabulary
}

// New returns the parser for a built-in layout name.
func New(layoutName string) (*StatementParser, error) {
	v, err := layout.Get(layoutName)
	if err != nil {
		return nil, fmt.Errorf("unsupported layout: %w", err)
	}
	return &StatementParser{Vocab: v}, nil
}

// AutoDetect picks the built-in layout whose table header appears in the
// pages. When none matches it returns the default layout and false.
func AutoDetect(pages []string) (*StatementParser, bool) {
	v, found := layout.Detect(pages)
	return &StatementParser{Vocab: v}, found
}

// Layout returns the vocabulary name.
func (p *StatementParser) Layout() string {
	return p.Vocab.Name()
}

// Parse runs table location and line reassembly over all pages of one
// document. Pages are processed in order and share a single pending buffer,
// so a transaction may span a page break. Lines still buffered at the end are
// reported as unresolved.
func (p *StatementParser) Parse(source string, pages []string) *models.ExtractionResult {
	res := &models.ExtractionResult{
		Source:       source,
		Layout:       p.Vocab.Name(),
		Transactions: []models.ParsedTransaction{},
	}

	r := NewReassembler(p.Vocab, source)
	// debug line indexes of the lines currently buffered
	var buffered []int

	for i, page := range pages {
		pageNum := i + 1
		lines := SplitLines(page)
		region := LocateTable(p.Vocab, pageNum, lines)

		res.Pages = append(res.Pages, models.PageDiagnostic{
			Page:        pageNum,
			HeaderFound: region.HeaderFound,
			HeaderLine:  region.HeaderLine,
			DataLines:   len(region.Lines),
		})
		if !region.HeaderFound {
			res.PagesWithoutHeader++
			for j, line := range lines {
				res.DebugLines = append(res.DebugLines, debugLine(pageNum, j, line, models.LineSkipped))
			}
			continue
		}
		res.PagesWithHeader++
		res.HeaderFound = true

		for j := 0; j <= region.HeaderLine; j++ {
			result := models.LineSkipped
			if j == region.HeaderLine {
				result = models.LineHeader
			}
			res.DebugLines = append(res.DebugLines, debugLine(pageNum, j, lines[j], result))
		}

		for k, line := range region.Lines {
			lineIdx := region.HeaderLine + 1 + k
			res.DebugLines = append(res.DebugLines, debugLine(pageNum, lineIdx, line, models.LineBuffered))
			buffered = append(buffered, len(res.DebugLines)-1)

			txn, ok := r.Push(line)
			if !ok {
				continue
			}
			res.Transactions = append(res.Transactions, txn)
			for _, d := range buffered {
				res.DebugLines[d].Result = models.LineResolved
			}
			buffered = buffered[:0]
		}
	}

	res.UnresolvedLines = r.Flush()
	for _, d := range buffered {
		res.DebugLines[d].Result = models.LineDropped
	}

	return res
}

func debugLine(page, idx int, line, result string) models.DebugLine {
	dl := models.DebugLine{Page: page, LineNum: idx + 1, Result: result}
	// Truncate long lines for debug display
	if len(line) > 120 {
		cut := 120
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		dl.Text = line[:cut] + "..."
	} else {
		dl.Text = line
	}
	return dl
}
