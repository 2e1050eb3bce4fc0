// Package ticker derives one canonical security symbol per filing.
package ticker

import (
	"strings"
)

// Placeholder tokens the source uses where a symbol should be. Treated the
// same as an empty field.
var placeholders = map[string]bool{
	"":     true,
	"NA":   true,
	"NONE": true,
	"N/A":  true,
	"NAN":  true,
	"NULL": true,
}

const maxSymbolLen = 6

// Symbol is a resolved ticker. LowConfidence marks pseudo-tickers derived
// from a name prefix; those can collide across unrelated issuers sharing a
// prefix, which the ledger tolerates by design of the source data.
type Symbol struct {
	Ticker        string
	LowConfidence bool
}

// Resolve picks the filing's explicit symbol when it is usable, otherwise
// derives a pseudo-ticker from the owner name, falling back to the issuer
// name. ok is false only when no symbol can be produced at all.
func Resolve(rawSymbol, ownerName, issuerName string) (Symbol, bool) {
	sym := strings.ToUpper(strings.TrimSpace(rawSymbol))
	if !placeholders[sym] && len(sym) <= maxSymbolLen && isAlphanumeric(sym) {
		return Symbol{Ticker: sym}, true
	}

	for _, name := range []string{ownerName, issuerName} {
		if derived := derive(name); derived != "" {
			return Symbol{Ticker: derived, LowConfidence: true}, true
		}
	}
	return Symbol{}, false
}

// derive builds a fixed-length prefix pseudo-ticker: first four letters of
// the first word plus first two of the second, or the first six letters of a
// single-word name. Corporate suffix tokens are ignored.
func derive(name string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToUpper(name)) {
		w = stripNonAlphanumeric(w)
		switch w {
		case "", "CORP", "INC", "LLC", "LP", "LTD", "CO":
			continue
		}
		words = append(words, w)
	}

	var t string
	switch {
	case len(words) >= 2:
		t = prefix(words[0], 4) + prefix(words[1], 2)
	case len(words) == 1:
		t = prefix(words[0], 6)
	default:
		return ""
	}

	if len(t) < 2 {
		return ""
	}
	return t
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
