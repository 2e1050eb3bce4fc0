// Package linker joins raw transaction rows to their filing's issuer and
// owner metadata by accession number.
package linker

import (
	"errors"
	"io"

	"github.com/insider-alpha/form4-pipeline/internal/bundle"
	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
)

// Linker indexes one period's submission and owner extracts. A transaction
// links only when both an issuer and an owner record exist for its accession
// number (inner join); anything else is a linkage miss, not an error.
type Linker struct {
	filings map[string]models.SubmissionRecord
	owners  map[string]models.OwnerRecord
}

// Build drains both metadata extracts into in-memory indexes. When a filing
// carries multiple submission or owner rows the first one in source order
// wins on both sides; that is a deterministic policy, not disambiguation.
func Build(subs, owners *bundle.Extract) (*Linker, error) {
	l := &Linker{
		filings: make(map[string]models.SubmissionRecord),
		owners:  make(map[string]models.OwnerRecord),
	}

	for {
		row, err := subs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Get().Debugw("skipping malformed submission row", "error", err)
			continue
		}
		rec := models.SubmissionRecord{
			AccessionNumber: subs.Field(row, bundle.ColAccession),
			IssuerCIK:       subs.Field(row, bundle.ColIssuerCIK),
			IssuerName:      subs.Field(row, bundle.ColIssuerName),
			RawSymbol:       subs.Field(row, bundle.ColIssuerSymbol),
			FilingDate:      subs.Field(row, bundle.ColFilingDate),
		}
		if rec.AccessionNumber == "" {
			continue
		}
		if _, seen := l.filings[rec.AccessionNumber]; !seen {
			l.filings[rec.AccessionNumber] = rec
		}
	}

	for {
		row, err := owners.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Get().Debugw("skipping malformed owner row", "error", err)
			continue
		}
		rec := models.OwnerRecord{
			AccessionNumber: owners.Field(row, bundle.ColAccession),
			OwnerCIK:        owners.Field(row, bundle.ColOwnerCIK),
			OwnerName:       owners.Field(row, bundle.ColOwnerName),
			Relationship:    owners.Field(row, bundle.ColOwnerRelationship),
			Title:           owners.Field(row, bundle.ColOwnerTitle),
		}
		if rec.AccessionNumber == "" {
			continue
		}
		if _, seen := l.owners[rec.AccessionNumber]; !seen {
			l.owners[rec.AccessionNumber] = rec
		}
	}

	return l, nil
}

// Link resolves a raw transaction against the indexes. ok is false when
// either side of the join is missing.
func (l *Linker) Link(tx models.RawTransaction) (models.FilingRecord, bool) {
	issuer, ok := l.filings[tx.AccessionNumber]
	if !ok {
		return models.FilingRecord{}, false
	}
	owner, ok := l.owners[tx.AccessionNumber]
	if !ok {
		return models.FilingRecord{}, false
	}
	return models.FilingRecord{Transaction: tx, Issuer: issuer, Owner: owner}, true
}

// Filings returns the number of indexed filings.
func (l *Linker) Filings() int { return len(l.filings) }
