// Package bundle opens quarterly filing archives and exposes their tabular
// extracts as streamable tables.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"

	"github.com/insider-alpha/form4-pipeline/internal/models"
	"github.com/insider-alpha/form4-pipeline/internal/parser"
	"github.com/insider-alpha/form4-pipeline/pkg/checksum"
)

// Loader locates period archives under a data directory. Archives are named
// <period>_form345.zip, e.g. 2023q1_form345.zip.
type Loader struct {
	dataDir string
}

func NewLoader(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

// Bundle is one opened period archive. The three mandatory extracts are
// guaranteed openable; the derivative extract may be absent.
type Bundle struct {
	Period   models.Period
	Layout   Layout
	Checksum string

	zr *zip.ReadCloser
}

// Open opens the archive for the given period and verifies that the
// mandatory extracts are present. Any failure here is a BundleUnavailable
// condition: the period is skipped, the run continues.
func (l *Loader) Open(period models.Period) (*Bundle, error) {
	path := filepath.Join(l.dataDir, fmt.Sprintf("%s_form345.zip", period))

	sum, err := checksum.File(path)
	if err != nil {
		return nil, &models.BundleUnavailableError{Period: period, Err: err}
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &models.BundleUnavailableError{Period: period, Err: fmt.Errorf("failed to open archive: %w", err)}
	}

	b := &Bundle{
		Period:   period,
		Layout:   LayoutFor(period),
		Checksum: sum,
		zr:       zr,
	}

	for _, el := range []ExtractLayout{b.Layout.Submission, b.Layout.Owner, b.Layout.Transactions} {
		if b.member(el.FileName) == nil {
			zr.Close()
			return nil, &models.BundleUnavailableError{Period: period, Err: fmt.Errorf("archive is missing extract %s", el.FileName)}
		}
	}

	return b, nil
}

func (b *Bundle) Close() error {
	return b.zr.Close()
}

func (b *Bundle) member(name string) *zip.File {
	for _, f := range b.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Extract is one opened tabular extract stream. Close releases the
// underlying archive member.
type Extract struct {
	*parser.Table
	rc io.ReadCloser
}

func (e *Extract) Close() error {
	return e.rc.Close()
}

func (b *Bundle) openExtract(el ExtractLayout) (*Extract, error) {
	f := b.member(el.FileName)
	if f == nil {
		return nil, fmt.Errorf("archive is missing extract %s", el.FileName)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open extract %s: %w", el.FileName, err)
	}

	table, err := parser.NewTable(rc, el.Columns, el.Optional)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("extract %s: %w", el.FileName, err)
	}

	return &Extract{Table: table, rc: rc}, nil
}

// Submissions opens the filing/issuer metadata extract.
func (b *Bundle) Submissions() (*Extract, error) {
	return b.openExtract(b.Layout.Submission)
}

// Owners opens the reporting-owner metadata extract.
func (b *Bundle) Owners() (*Extract, error) {
	return b.openExtract(b.Layout.Owner)
}

// Transactions opens the non-derivative transaction extract.
func (b *Bundle) Transactions() (*Extract, error) {
	return b.openExtract(b.Layout.Transactions)
}

// Derivatives opens the derivative transaction extract, returning
// (nil, nil) when the bundle does not carry one. Older bundles routinely
// omit it.
func (b *Bundle) Derivatives() (*Extract, error) {
	if b.member(b.Layout.Derivatives.FileName) == nil {
		return nil, nil
	}
	return b.openExtract(b.Layout.Derivatives)
}
