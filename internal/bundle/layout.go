package bundle

import "github.com/insider-alpha/form4-pipeline/internal/models"

// ExtractLayout names the columns of one tabular extract. Optional columns
// may be absent from the header without failing the extract; their values
// read as empty strings.
type ExtractLayout struct {
	FileName string
	Columns  []string
	Optional []string
}

// Layout describes the column layout of every extract in a bundle for a span
// of filing years. The linker selects a layout by period, never by sniffing
// headers at runtime; schema drift across years is handled by adding a new
// versioned entry here.
type Layout struct {
	FromYear int
	ToYear   int // inclusive; 0 means open-ended

	Submission   ExtractLayout
	Owner        ExtractLayout
	Transactions ExtractLayout
	Derivatives  ExtractLayout
}

// Submission extract columns.
const (
	ColAccession    = "ACCESSION_NUMBER"
	ColFilingDate   = "FILING_DATE"
	ColIssuerCIK    = "ISSUERCIK"
	ColIssuerName   = "ISSUERNAME"
	ColIssuerSymbol = "ISSUERTRADINGSYMBOL"
)

// Reporting-owner extract columns.
const (
	ColOwnerCIK          = "RPTOWNERCIK"
	ColOwnerName         = "RPTOWNERNAME"
	ColOwnerRelationship = "RPTOWNER_RELATIONSHIP"
	ColOwnerTitle        = "RPTOWNER_TITLE"
)

// Transaction extract columns, shared by the non-derivative and derivative
// extracts.
const (
	ColTransDate     = "TRANS_DATE"
	ColTransCode     = "TRANS_CODE"
	ColTransShares   = "TRANS_SHARES"
	ColTransPrice    = "TRANS_PRICEPERSHARE"
	ColSharesOwned   = "SHRS_OWND_FOLWNG_TRANS"
	ColSecurityTitle = "SECURITY_TITLE"
)

var layouts = []Layout{
	{
		// Early structured datasets: no trading-symbol column at all. The
		// ticker resolver falls back to pseudo-tickers for these years.
		FromYear: 2003,
		ToYear:   2005,
		Submission: ExtractLayout{
			FileName: "SUBMISSION.tsv",
			Columns:  []string{ColAccession, ColFilingDate, ColIssuerCIK, ColIssuerName},
		},
		Owner: ExtractLayout{
			FileName: "REPORTINGOWNER.tsv",
			Columns:  []string{ColAccession, ColOwnerCIK, ColOwnerName, ColOwnerRelationship, ColOwnerTitle},
			Optional: []string{ColOwnerTitle},
		},
		Transactions: ExtractLayout{
			FileName: "NONDERIV_TRANS.tsv",
			Columns:  []string{ColAccession, ColTransDate, ColTransCode, ColTransShares, ColTransPrice, ColSharesOwned, ColSecurityTitle},
			Optional: []string{ColSharesOwned, ColSecurityTitle},
		},
		Derivatives: ExtractLayout{
			FileName: "DERIV_TRANS.tsv",
			Columns:  []string{ColAccession, ColTransDate, ColTransCode, ColTransShares, ColTransPrice, ColSharesOwned, ColSecurityTitle},
			Optional: []string{ColSharesOwned, ColSecurityTitle},
		},
	},
	{
		// Current layout, stable since 2006: submission carries the issuer
		// trading symbol, which may still be a placeholder token.
		FromYear: 2006,
		Submission: ExtractLayout{
			FileName: "SUBMISSION.tsv",
			Columns:  []string{ColAccession, ColFilingDate, ColIssuerCIK, ColIssuerName, ColIssuerSymbol},
			Optional: []string{ColIssuerSymbol},
		},
		Owner: ExtractLayout{
			FileName: "REPORTINGOWNER.tsv",
			Columns:  []string{ColAccession, ColOwnerCIK, ColOwnerName, ColOwnerRelationship, ColOwnerTitle},
			Optional: []string{ColOwnerTitle},
		},
		Transactions: ExtractLayout{
			FileName: "NONDERIV_TRANS.tsv",
			Columns:  []string{ColAccession, ColTransDate, ColTransCode, ColTransShares, ColTransPrice, ColSharesOwned, ColSecurityTitle},
			Optional: []string{ColSharesOwned, ColSecurityTitle},
		},
		Derivatives: ExtractLayout{
			FileName: "DERIV_TRANS.tsv",
			Columns:  []string{ColAccession, ColTransDate, ColTransCode, ColTransShares, ColTransPrice, ColSharesOwned, ColSecurityTitle},
			Optional: []string{ColSharesOwned, ColSecurityTitle},
		},
	},
}

// LayoutFor returns the extract layout in effect for the given period.
func LayoutFor(period models.Period) Layout {
	for _, l := range layouts {
		if period.Year >= l.FromYear && (l.ToYear == 0 || period.Year <= l.ToYear) {
			return l
		}
	}
	// Periods predating the first versioned layout get the oldest one; the
	// loader will surface missing extracts as BundleUnavailable.
	return layouts[0]
}
