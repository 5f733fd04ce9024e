package layout

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// Built-in layout names.
const (
	German  = "de"
	English = "en"
)

// Default is the layout used when none is configured or detected.
const Default = German

var germanLayout = Layout{
	Name: German,
	// DATUM TYP BESCHREIBUNG ZAHLUNGSEINGANG ZAHLUNGSAUSGANG SALDO
	HeaderTokens: []string{"datum", "typ", "beschreibung", "zahlungseingang", "zahlungsausgang", "saldo"},
	TypeKeywords: map[string]models.TxnKind{
		"kauf":              models.KindBuy,
		"verkauf":           models.KindSell,
		"handel":            models.KindTrade,
		"übertrag":          models.KindTransfer,
		"überweisung":       models.KindTransfer,
		"einzahlung":        models.KindTransfer,
		"auszahlung":        models.KindTransfer,
		"dividende":         models.KindTransfer,
		"erträge":           models.KindTransfer,
		"zinszahlung":       models.KindTransfer,
		"steuer":            models.KindTransfer,
		"steuern":           models.KindTransfer,
		"gebühr":            models.KindTransfer,
		"kartentransaktion": models.KindTransfer,
		"prämie":            models.KindTransfer,
		"transfer":          models.KindTransfer,
	},
	MonthNames: map[string]int{
		"januar": 1, "jan": 1, "jänner": 1,
		"februar": 2, "feb": 2,
		"märz": 3, "mär": 3, "maerz": 3,
		"april": 4, "apr": 4,
		"mai": 5,
		"juni": 6, "jun": 6,
		"juli": 7, "jul": 7,
		"august": 8, "aug": 8,
		"september": 9, "sep": 9, "sept": 9,
		"oktober": 10, "okt": 10,
		"november": 11, "nov": 11,
		"dezember": 12, "dez": 12,
	},
	BuyMarkers:    []string{"kauf", "buy"},
	SellMarkers:   []string{"verkauf", "sell"},
	NoisePrefixes: []string{"kauforder", "verkaufsorder", "kauf", "verkauf", "buy trade", "sell trade", "sparplanausführung", "savings plan execution"},
	ThousandsSep:  ".",
	DecimalSep:    ",",
}

var englishLayout = Layout{
	Name:         English,
	HeaderTokens: []string{"date", "type", "description", "money in", "money out", "balance"},
	TypeKeywords: map[string]models.TxnKind{
		"buy":              models.KindBuy,
		"sell":             models.KindSell,
		"trade":            models.KindTrade,
		"transfer":         models.KindTransfer,
		"deposit":          models.KindTransfer,
		"withdrawal":       models.KindTransfer,
		"dividend":         models.KindTransfer,
		"interest payment": models.KindTransfer,
		"tax":              models.KindTransfer,
		"fee":              models.KindTransfer,
		"card transaction": models.KindTransfer,
	},
	MonthNames: map[string]int{
		"january": 1, "jan": 1,
		"february": 2, "feb": 2,
		"march": 3, "mar": 3,
		"april": 4, "apr": 4,
		"may": 5,
		"june": 6, "jun": 6,
		"july": 7, "jul": 7,
		"august": 8, "aug": 8,
		"september": 9, "sep": 9, "sept": 9,
		"october": 10, "oct": 10,
		"november": 11, "nov": 11,
		"december": 12, "dec": 12,
	},
	BuyMarkers:    []string{"buy"},
	SellMarkers:   []string{"sell"},
	NoisePrefixes: []string{"buy trade", "sell trade", "buy", "sell", "savings plan execution"},
	ThousandsSep:  ",",
	DecimalSep:    ".",
}

var builtins = map[string]*Vocabulary{
	German:  MustCompile(germanLayout),
	English: MustCompile(englishLayout),
}

// detectOrder is the order layouts are tried in by Detect.
var detectOrder = []string{German, English}

// Names returns the built-in layout names.
func Names() []string {
	return append([]string(nil), detectOrder...)
}

// Get returns a built-in vocabulary by name.
func Get(name string) (*Vocabulary, error) {
	v, ok := builtins[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown layout %q (available: %s)", name, strings.Join(detectOrder, ", "))
	}
	return v, nil
}

// Load reads a layout definition from a YAML file and compiles it.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout file: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML layout definition.
func Parse(data []byte) (*Vocabulary, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return Compile(l)
}

// Detect returns the first built-in vocabulary whose table header appears on
// any page. It falls back to Default when no header is recognised, so the
// caller still gets diagnostics for the unsupported layout.
func Detect(pages []string) (*Vocabulary, bool) {
	for _, name := range detectOrder {
		v := builtins[name]
		for _, page := range pages {
			for _, line := range strings.Split(page, "\n") {
				if v.IsHeader(line) {
					return v, true
				}
			}
		}
	}
	return builtins[Default], false
}
