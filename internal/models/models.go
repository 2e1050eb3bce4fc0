package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period identifies one quarterly filing bundle, e.g. "2023q1".
type Period struct {
	Year    int
	Quarter int
}

func (p Period) String() string {
	return fmt.Sprintf("%dq%d", p.Year, p.Quarter)
}

// Next returns the quarter immediately following p.
func (p Period) Next() Period {
	if p.Quarter == 4 {
		return Period{Year: p.Year + 1, Quarter: 1}
	}
	return Period{Year: p.Year, Quarter: p.Quarter + 1}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Quarter < other.Quarter
}

// ParsePeriod parses a period tag of the form "2023q1".
func ParsePeriod(s string) (Period, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(s)), "q", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("invalid period %q: expected <year>q<quarter>", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1990 || year > 2100 {
		return Period{}, fmt.Errorf("invalid period %q: bad year", s)
	}
	quarter, err := strconv.Atoi(parts[1])
	if err != nil || quarter < 1 || quarter > 4 {
		return Period{}, fmt.Errorf("invalid period %q: quarter must be 1-4", s)
	}
	return Period{Year: year, Quarter: quarter}, nil
}

// PeriodRange expands the inclusive range [start, end] into individual periods.
func PeriodRange(start, end Period) ([]Period, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("period range end %s precedes start %s", end, start)
	}
	var periods []Period
	for p := start; !end.Before(p); p = p.Next() {
		periods = append(periods, p)
	}
	return periods, nil
}

// SubmissionRecord is one row of the submission extract: filing-level issuer
// metadata keyed by the filing's accession number.
type SubmissionRecord struct {
	AccessionNumber string
	IssuerCIK       string
	IssuerName      string
	RawSymbol       string
	FilingDate      string
}

// OwnerRecord is one row of the reporting-owner extract.
type OwnerRecord struct {
	AccessionNumber string
	OwnerCIK        string
	OwnerName       string
	Relationship    string
	Title           string
}

// RawTransaction is one unvalidated row of a transaction extract. All fields
// are carried as source text until the normalizer has had a look at them.
type RawTransaction struct {
	AccessionNumber string
	RawDate         string
	RawCode         string
	RawShares       string
	RawPrice        string
	RawSharesOwned  string
	SecurityTitle   string
	Derivative      bool
}

// FilingRecord is a RawTransaction joined with its filing's issuer and owner
// metadata. It exists only inside one ingestion run.
type FilingRecord struct {
	Transaction RawTransaction
	Issuer      SubmissionRecord
	Owner       OwnerRecord
}

// Canonical transaction types produced by the normalizer.
const (
	TypeBuy            = "BUY"
	TypeSell           = "SELL"
	TypeOptionExercise = "OPTION_EXERCISE"
	TypeTaxWithholding = "TAX_WITHHOLDING"
	TypeGift           = "GIFT"
	TypeConversion     = "CONVERSION"
	TypeOther          = "OTHER"
)

// Trader is the persistent canonical insider identity. Identity key is the
// case-insensitive (Name, Ticker) pair; performance fields are owned by the
// aggregation engine.
type Trader struct {
	ID                  int64
	Name                string
	Title               string
	Ticker              string
	CompanyName         string
	Relationship        string
	Sector              string
	LowConfidenceTicker bool

	TotalTrades      int
	WinRate          float64
	AvgReturn30d     float64
	AvgReturn90d     float64
	AvgReturn1y      float64
	TotalProfitLoss  float64
	PerformanceScore float64
	LastCalculated   *time.Time
}

// Trade is one validated, deduplicated ledger row. The dedup key is
// (TraderID, TransactionDate, Shares, PricePerShare, TransactionType);
// everything except the return back-fill fields is immutable after insert.
type Trade struct {
	ID              int64
	TraderID        int64
	Ticker          string
	TransactionDate time.Time
	TransactionType string
	Shares          float64
	PricePerShare   float64
	TotalValue      float64
	Period          string

	CurrentPrice *float64
	Return30d    *float64
	Return90d    *float64
	Return1y     *float64
}

// Performance holds the full-replace rollup the aggregation engine writes
// back onto a trader row.
type Performance struct {
	TotalTrades      int
	WinRate          float64
	AvgReturn30d     float64
	AvgReturn90d     float64
	AvgReturn1y      float64
	TotalProfitLoss  float64
	PerformanceScore float64
	CalculatedAt     time.Time
}

// Run statuses recorded in the ingestion_runs ledger.
const (
	RunStatusProcessing     = "PROCESSING"
	RunStatusDone           = "DONE"
	RunStatusDoneWithErrors = "DONE_WITH_ERRORS"
	RunStatusFailed         = "FAILED"
)

// PeriodSummary is the per-period audit trail reported at the end of a run.
type PeriodSummary struct {
	Period            Period
	Processed         int
	Inserted          int
	Duplicates        int
	LinkageMisses     int
	ValidationRejects int
	Dropped           int
	AlreadyIngested   bool
	Failed            bool
	FailureReason     string
}

func (s PeriodSummary) String() string {
	if s.Failed {
		return fmt.Sprintf("%s: FAILED (%s)", s.Period, s.FailureReason)
	}
	if s.AlreadyIngested {
		return fmt.Sprintf("%s: skipped, bundle already ingested", s.Period)
	}
	return fmt.Sprintf("%s: processed=%d inserted=%d duplicates=%d linkage-miss=%d validation-reject=%d dropped=%d",
		s.Period, s.Processed, s.Inserted, s.Duplicates, s.LinkageMisses, s.ValidationRejects, s.Dropped)
}

// RunSummary aggregates the period summaries of one batch run.
type RunSummary struct {
	RunID   string
	Periods []PeriodSummary
	Started time.Time
	Ended   time.Time
}

// FailedPeriods returns the periods that were skipped because their bundle
// could not be ingested.
func (r RunSummary) FailedPeriods() []Period {
	var failed []Period
	for _, s := range r.Periods {
		if s.Failed {
			failed = append(failed, s.Period)
		}
	}
	return failed
}

// BundleUnavailableError marks a period whose archive is missing or corrupt.
// It aborts only that period, never the run.
type BundleUnavailableError struct {
	Period Period
	Err    error
}

func (e *BundleUnavailableError) Error() string {
	return fmt.Sprintf("bundle for period %s unavailable: %v", e.Period, e.Err)
}

func (e *BundleUnavailableError) Unwrap() error { return e.Err }
