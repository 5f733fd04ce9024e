// Package layout holds the statement vocabularies the extraction engine is
// driven by: table header tokens, type keywords, month names and the number
// format of one statement layout. A Layout is plain data that can be loaded
// from YAML; Compile turns it into an immutable Vocabulary that is safe for
// concurrent use by any number of extraction passes.
package layout

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// Layout describes one statement layout/locale.
type Layout struct {
	Name          string                    `yaml:"name"`
	HeaderTokens  []string                  `yaml:"header_tokens"`
	TypeKeywords  map[string]models.TxnKind `yaml:"type_keywords"`
	MonthNames    map[string]int            `yaml:"month_names"`
	BuyMarkers    []string                  `yaml:"buy_markers"`
	SellMarkers   []string                  `yaml:"sell_markers"`
	NoisePrefixes []string                  `yaml:"noise_prefixes"`
	ThousandsSep  string                    `yaml:"thousands_separator"`
	DecimalSep    string                    `yaml:"decimal_separator"`
}

type keyword struct {
	text string
	kind models.TxnKind
	re   *regexp.Regexp
}

type marker struct {
	text string
	kind models.TxnKind
}

// Vocabulary is a compiled Layout.
type Vocabulary struct {
	name         string
	headerTokens []string
	header       *ahocorasick.Matcher
	keywords     []keyword
	months       map[string]int
	markers      []marker
	noise        []string
	thousandsSep string
	decimalSep   string
	amount       *regexp.Regexp
}

// Compile validates l and builds its matchers.
func Compile(l Layout) (*Vocabulary, error) {
	if l.Name == "" {
		return nil, fmt.Errorf("layout: name is required")
	}

	v := &Vocabulary{
		name:         l.Name,
		months:       make(map[string]int, len(l.MonthNames)),
		thousandsSep: l.ThousandsSep,
		decimalSep:   l.DecimalSep,
	}

	seen := make(map[string]bool)
	for _, tok := range l.HeaderTokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		v.headerTokens = append(v.headerTokens, tok)
	}
	if len(v.headerTokens) == 0 {
		return nil, fmt.Errorf("layout %q: no header tokens", l.Name)
	}
	v.header = ahocorasick.NewStringMatcher(v.headerTokens)

	if len(l.TypeKeywords) == 0 {
		return nil, fmt.Errorf("layout %q: no type keywords", l.Name)
	}
	for text, kind := range l.TypeKeywords {
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			continue
		}
		if !kind.Valid() {
			return nil, fmt.Errorf("layout %q: keyword %q has unknown kind %q", l.Name, text, kind)
		}
		v.keywords = append(v.keywords, keyword{text: text, kind: kind, re: boundedPattern(text)})
	}
	sort.Slice(v.keywords, func(i, j int) bool {
		return longerFirst(v.keywords[i].text, v.keywords[j].text)
	})

	for name, month := range l.MonthNames {
		if month < 1 || month > 12 {
			return nil, fmt.Errorf("layout %q: month %q out of range: %d", l.Name, name, month)
		}
		v.months[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))] = month
	}

	for _, m := range l.BuyMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			v.markers = append(v.markers, marker{text: m, kind: models.KindBuy})
		}
	}
	for _, m := range l.SellMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			v.markers = append(v.markers, marker{text: m, kind: models.KindSell})
		}
	}
	// "verkauf" must be tried before "kauf".
	sort.SliceStable(v.markers, func(i, j int) bool {
		return longerFirst(v.markers[i].text, v.markers[j].text)
	})

	for _, p := range l.NoisePrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			v.noise = append(v.noise, p)
		}
	}
	sort.Slice(v.noise, func(i, j int) bool { return longerFirst(v.noise[i], v.noise[j]) })

	if v.thousandsSep == "" {
		v.thousandsSep = "."
	}
	if v.decimalSep == "" {
		v.decimalSep = ","
	}
	if v.thousandsSep == v.decimalSep {
		return nil, fmt.Errorf("layout %q: thousands and decimal separator are both %q", l.Name, v.decimalSep)
	}
	t := regexp.QuoteMeta(v.thousandsSep)
	d := regexp.QuoteMeta(v.decimalSep)
	v.amount = regexp.MustCompile(`-?(?:\d{1,3}(?:` + t + `\d{3})+|\d+)` + d + `\d{2}`)

	return v, nil
}

// MustCompile is like Compile but panics on an invalid layout.
func MustCompile(l Layout) *Vocabulary {
	v, err := Compile(l)
	if err != nil {
		panic(err)
	}
	return v
}

// Name returns the layout name.
func (v *Vocabulary) Name() string { return v.name }

// IsHeader reports whether line contains every header token, ignoring case.
func (v *Vocabulary) IsHeader(line string) bool {
	hits := v.header.MatchThreadSafe([]byte(strings.ToLower(line)))
	found := make(map[int]bool, len(hits))
	for _, h := range hits {
		found[h] = true
	}
	return len(found) == len(v.headerTokens)
}

// MatchKeyword finds the longest type keyword in text. It returns the
// keyword's kind and byte span.
func (v *Vocabulary) MatchKeyword(text string) (kind models.TxnKind, start, end int, ok bool) {
	for _, kw := range v.keywords {
		loc := kw.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		return kw.kind, loc[2], loc[3], true
	}
	return "", 0, 0, false
}

// Month looks up a month name or abbreviation.
func (v *Vocabulary) Month(name string) (int, bool) {
	m, ok := v.months[strings.ToLower(strings.TrimSuffix(name, "."))]
	return m, ok
}

// TradeMarker returns buy or sell when text contains a buy/sell marker.
func (v *Vocabulary) TradeMarker(text string) (models.TxnKind, bool) {
	lower := strings.ToLower(text)
	for _, m := range v.markers {
		if strings.Contains(lower, m.text) {
			return m.kind, true
		}
	}
	return "", false
}

// StripNoise removes leading noise prefixes from a description.
func (v *Vocabulary) StripNoise(desc string) string {
	desc = strings.TrimSpace(desc)
	for {
		stripped := false
		for _, p := range v.noise {
			if len(desc) < len(p) || !strings.EqualFold(desc[:len(p)], p) || !boundaryAt(desc, len(p)) {
				continue
			}
			desc = strings.TrimSpace(desc[len(p):])
			stripped = true
			break
		}
		if !stripped || desc == "" {
			return desc
		}
	}
}

// AmountPattern matches one formatted money amount of this layout.
func (v *Vocabulary) AmountPattern() *regexp.Regexp { return v.amount }

// ThousandsSep returns the thousands separator.
func (v *Vocabulary) ThousandsSep() string { return v.thousandsSep }

// DecimalSep returns the decimal separator.
func (v *Vocabulary) DecimalSep() string { return v.decimalSep }

// boundedPattern matches word case-insensitively when it is not part of a
// longer word. Go's \b is ASCII only, which would break on "übertrag".
func boundedPattern(word string) *regexp.Regexp {
	quoted := strings.ReplaceAll(regexp.QuoteMeta(word), " ", `\s+`)
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + quoted + `)(?:[^\p{L}\p{N}]|$)`)
}

// boundaryAt reports whether s has no letter or digit at byte offset i.
func boundaryAt(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func longerFirst(a, b string) bool {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la != lb {
		return la > lb
	}
	return a < b
}
