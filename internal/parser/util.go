package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/broker-statement-importer/internal/layout"
)

var (
	// DD.MM.YYYY (also DD/MM/YYYY)
	datePatternNumeric = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	// DD[.] Month[.] YYYY (e.g., "01 Feb. 2024", "1. Februar 2024")
	datePatternText = regexp.MustCompile(`(\d{1,2})\.?\s+(\p{L}+)\.?\s+(\d{4})`)
	// Two letters followed by ten alphanumerics.
	isinPattern = regexp.MustCompile(`[A-Z]{2}[A-Z0-9]{10}`)
	// Integer or decimal with either separator.
	quantityPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// SplitLines splits page text into whitespace-trimmed, non-empty lines.
func SplitLines(page string) []string {
	var lines []string
	for _, line := range strings.Split(page, "\n") {
		line = normalizeLine(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// normalizeLine cleans up common PDF extraction artifacts.
func normalizeLine(line string) string {
	line = strings.ReplaceAll(line, "\u200b", "")
	line = strings.ReplaceAll(line, "\u00a0", " ")
	line = strings.ReplaceAll(line, "\t", " ")
	line = strings.ReplaceAll(line, "\r", "")
	return strings.TrimSpace(line)
}

// extractDate finds the first valid date in text and returns it in ISO form
// together with the text that remains once the date is cut out.
func extractDate(vocab *layout.Vocabulary, text string) (string, string, bool) {
	for _, loc := range datePatternNumeric.FindAllStringSubmatchIndex(text, -1) {
		if !standalone(text, loc[0], loc[1], ".,") {
			continue
		}
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso, ok := isoDate(year, month, day); ok {
			return iso, cut(text, loc[0], loc[1]), true
		}
	}

	for _, loc := range datePatternText.FindAllStringSubmatchIndex(text, -1) {
		if !standalone(text, loc[0], loc[1], ".,") {
			continue
		}
		month, ok := vocab.Month(text[loc[4]:loc[5]])
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		year, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if iso, ok := isoDate(year, month, day); ok {
			return iso, cut(text, loc[0], loc[1]), true
		}
	}

	return "", text, false
}

// isoDate validates a calendar date and formats it as YYYY-MM-DD.
func isoDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// amountSpan is one formatted amount found in a line.
type amountSpan struct {
	value decimal.Decimal
	start int
}

// findAmounts returns every locale-formatted amount in text, in order.
func findAmounts(vocab *layout.Vocabulary, text string) []amountSpan {
	var spans []amountSpan
	seps := vocab.ThousandsSep() + vocab.DecimalSep()
	for _, loc := range vocab.AmountPattern().FindAllStringIndex(text, -1) {
		if !standalone(text, loc[0], loc[1], seps) {
			continue
		}
		v, err := parseAmount(vocab, text[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		spans = append(spans, amountSpan{value: v, start: loc[0]})
	}
	return spans
}

// parseAmount converts "1.234,56" (or the layout's equivalent) to a decimal.
func parseAmount(vocab *layout.Vocabulary, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, vocab.ThousandsSep(), "")
	s = strings.ReplaceAll(s, vocab.DecimalSep(), ".")
	return decimal.NewFromString(s)
}

// findISIN returns the span of the first security identifier in text.
func findISIN(text string) (start, end int, ok bool) {
	for _, loc := range isinPattern.FindAllStringIndex(text, -1) {
		if standaloneWord(text, loc[0], loc[1]) {
			return loc[0], loc[1], true
		}
	}
	return 0, 0, false
}

// extractQuantity parses the first standalone number in text.
func extractQuantity(text string) decimal.NullDecimal {
	for _, loc := range quantityPattern.FindAllStringIndex(text, -1) {
		if !standaloneWord(text, loc[0], loc[1]) || !standalone(text, loc[0], loc[1], ".,") {
			continue
		}
		q, err := decimal.NewFromString(strings.ReplaceAll(text[loc[0]:loc[1]], ",", "."))
		if err != nil {
			continue
		}
		return decimal.NullDecimal{Decimal: q.Abs(), Valid: true}
	}
	return decimal.NullDecimal{}
}

// cut removes text[start:end], leaving a single space in its place.
func cut(text string, start, end int) string {
	return strings.TrimSpace(text[:start]) + " " + strings.TrimSpace(text[end:])
}

// standalone reports whether the number at text[start:end] is not glued to
// another digit or to one of the given separator characters.
func standalone(text string, start, end int, seps string) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsDigit(r) || strings.ContainsRune(seps, r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsDigit(r) {
			return false
		}
		if strings.ContainsRune(seps, r) && end+1 < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end+1:])
			if unicode.IsDigit(next) {
				return false
			}
		}
	}
	return true
}

// standaloneWord reports whether text[start:end] has no letter or digit
// directly on either side.
func standaloneWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
