// Package normalize maps raw transaction codes to canonical types and
// bounds-checks the numeric fields of linked filings.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/insider-alpha/form4-pipeline/internal/models"
	"github.com/insider-alpha/form4-pipeline/internal/ticker"
)

// Hard limits for a single transaction. Values outside these are source
// noise (fat-fingered filings, unit confusion), not real trades.
const (
	MaxShares     = 10_000_000
	MaxPrice      = 10_000
	MaxTotalValue = 1_000_000_000
)

var codeMap = map[string]string{
	"A": models.TypeBuy,
	"P": models.TypeBuy,
	"D": models.TypeSell,
	"S": models.TypeSell,
	"M": models.TypeOptionExercise,
	"F": models.TypeTaxWithholding,
	"G": models.TypeGift,
	"C": models.TypeConversion,
}

// MapCode maps a raw one-letter transaction code to its canonical type.
// Unknown codes map to OTHER.
func MapCode(code string) string {
	if t, ok := codeMap[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return t
	}
	return models.TypeOther
}

// Source extracts have carried two date formats over the years.
var dateFormats = []string{"02-Jan-2006", "2006-01-02"}

// Normalizer validates linked filings against a fixed processing date so a
// run's accept/reject decisions are reproducible.
type Normalizer struct {
	Now time.Time
}

func New(now time.Time) *Normalizer {
	return &Normalizer{Now: now}
}

// Result carries the canonical trader identity and trade produced from one
// filing record. Trade.TraderID is filled by the store.
type Result struct {
	Trader models.Trader
	Trade  models.Trade
}

// Normalize validates and converts one linked filing record. A non-nil error
// is a validation reject: expected in noisy source data, counted by the
// caller, never fatal.
func (n *Normalizer) Normalize(fr models.FilingRecord, sym ticker.Symbol, period models.Period) (Result, error) {
	shares, err := parseNumber(fr.Transaction.RawShares)
	if err != nil {
		return Result{}, fmt.Errorf("bad share count %q: %w", fr.Transaction.RawShares, err)
	}
	if shares <= 0 || shares > MaxShares {
		return Result{}, fmt.Errorf("share count %v outside (0, %d]", shares, MaxShares)
	}

	price, err := parseNumber(fr.Transaction.RawPrice)
	if err != nil {
		return Result{}, fmt.Errorf("bad price %q: %w", fr.Transaction.RawPrice, err)
	}
	if price <= 0 || price > MaxPrice {
		return Result{}, fmt.Errorf("price %v outside (0, %d]", price, MaxPrice)
	}

	// Always recomputed; an externally supplied total is never trusted.
	total := shares * price
	if total > MaxTotalValue {
		return Result{}, fmt.Errorf("total value %v exceeds %d", total, MaxTotalValue)
	}

	date, err := parseDate(fr.Transaction.RawDate)
	if err != nil {
		return Result{}, err
	}
	if date.After(n.Now) {
		return Result{}, fmt.Errorf("transaction date %s is in the future", date.Format("2006-01-02"))
	}

	name := NormalizeName(fr.Owner.OwnerName)
	if name == "" {
		return Result{}, fmt.Errorf("filing %s has no owner name", fr.Transaction.AccessionNumber)
	}

	return Result{
		Trader: models.Trader{
			Name:                name,
			Title:               cleanField(fr.Owner.Title),
			Ticker:              sym.Ticker,
			CompanyName:         cleanField(fr.Issuer.IssuerName),
			Relationship:        cleanField(fr.Owner.Relationship),
			LowConfidenceTicker: sym.LowConfidence,
		},
		Trade: models.Trade{
			Ticker:          sym.Ticker,
			TransactionDate: date,
			TransactionType: MapCode(fr.Transaction.RawCode),
			Shares:          shares,
			PricePerShare:   price,
			TotalValue:      total,
			Period:          period.String(),
		},
	}, nil
}

// NormalizeName trims and collapses whitespace; identity comparison is
// case-insensitive downstream, so case is preserved for display.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "nan", "NaN", "None", "NULL":
		return ""
	}
	const maxLen = 100
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "None" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	// ParseFloat accepts "NaN" and "Inf" spellings; both slip past ordered
	// bounds comparisons, so reject them here.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable transaction date %q", s)
}
