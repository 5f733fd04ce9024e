package extractor

import (
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// PageBreak separates pages in pre-extracted statement text.
const PageBreak = "\n---PAGE_BREAK---\n"

// ErrNoText is returned when no readable text layer could be extracted.
var ErrNoText = errors.New("no readable text in document")

// PageSource turns a document into one plain-text block per page, in
// physical page order.
type PageSource interface {
	ExtractPages(path string) ([]string, error)
}

// PDF extracts page text with the ledongthuc/pdf library and falls back to
// the external pdftotext command (poppler-utils) when the library output is
// unreadable.
type PDF struct {
	// DisablePdftotext skips the poppler fallback.
	DisablePdftotext bool
}

// ExtractPages implements PageSource.
func (p PDF) ExtractPages(path string) ([]string, error) {
	pages, libErr := extractWithLibrary(path)
	if libErr == nil && isReadableText(pages) {
		return pages, nil
	}

	if !p.DisablePdftotext {
		popplerPages, popplerErr := extractWithPdftotext(path)
		if popplerErr == nil && isReadableText(popplerPages) {
			return popplerPages, nil
		}
	}

	if libErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoText, path, libErr)
	}
	return nil, fmt.Errorf("%w: %s is image-based or uses fonts without a text mapping", ErrNoText, path)
}

// SplitPages splits pre-extracted text on PageBreak markers.
func SplitPages(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, PageBreak)
}

// textQuality returns the share of characters that are expected in a Latin
// script statement. Arbitrary unicode letters are not counted; they show up
// in garbage from identity-encoded fonts.
func textQuality(pages []string) float64 {
	total := 0
	readable := 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || unicode.IsSpace(r) ||
				strings.ContainsRune(".,-/:;()'\"€$£%&+*#", r) ||
				strings.ContainsRune("äöüÄÖÜßéèàÉ", r) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords appear in virtually every broker statement.
var commonWords = []string{
	"depot", "konto", "saldo", "datum", "wertpapier", "kauf", "buchung",
	"seite", "isin", "account", "balance", "date", "statement",
	"transaction", "page", "total",
}

func containsCommonWords(pages []string) bool {
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range commonWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// isReadableText requires more than 50 characters, a 60% readable share and
// at least one common statement word.
func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return containsCommonWords(pages)
}

// extractWithPdftotext runs pdftotext page by page so page boundaries are
// kept.
func extractWithPdftotext(filePath string) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	numPages := 1
	if out, err := exec.Command("pdfinfo", filePath).Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.HasPrefix(line, "Pages:") {
				continue
			}
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:"))); err == nil && n > 0 {
				numPages = n
			}
		}
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		n := strconv.Itoa(i)
		out, err := exec.Command("pdftotext", "-layout", "-f", n, "-l", n, filePath, "-").Output()
		if err != nil {
			return nil, fmt.Errorf("pdftotext page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(string(out)))
	}
	return pages, nil
}

// extractWithLibrary tries row-based extraction first and coordinate-based
// row reconstruction second.
func extractWithLibrary(filePath string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages = extractByRow(r, numPages)
	if isReadableText(pages) {
		return pages, nil
	}
	return extractByContent(r, numPages), nil
}

// extractByRow uses GetTextByRow. Pages that cannot be read stay in the
// result as empty text so page numbers line up.
func extractByRow(r *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			pages = append(pages, "")
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent groups text pieces by Y coordinate to rebuild rows, then
// orders each row by X.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type textItem struct {
		x float64
		s string
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		rowMap := make(map[int][]textItem)
		for _, t := range page.Content().Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rowMap[y] = append(rowMap[y], textItem{x: t.X, s: t.S})
		}

		// PDF Y grows bottom-to-top
		ys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			items := rowMap[y]
			sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

			var sb strings.Builder
			var prevX float64
			for j, item := range items {
				if j > 0 && item.x-prevX > 15 {
					sb.WriteString(" ")
				}
				sb.WriteString(item.s)
				prevX = item.x
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
