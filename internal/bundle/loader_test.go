package bundle

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insider-alpha/form4-pipeline/internal/models"
)

func writeBundle(t *testing.T, dir string, period models.Period, members map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, period.String()+"_form345.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

const (
	subHeader   = "ACCESSION_NUMBER\tFILING_DATE\tISSUERCIK\tISSUERNAME\tISSUERTRADINGSYMBOL\n"
	ownerHeader = "ACCESSION_NUMBER\tRPTOWNERCIK\tRPTOWNERNAME\tRPTOWNER_RELATIONSHIP\tRPTOWNER_TITLE\n"
	transHeader = "ACCESSION_NUMBER\tTRANS_DATE\tTRANS_CODE\tTRANS_SHARES\tTRANS_PRICEPERSHARE\tSHRS_OWND_FOLWNG_TRANS\tSECURITY_TITLE\n"
)

func minimalMembers() map[string]string {
	return map[string]string{
		"SUBMISSION.tsv":     subHeader + "acc-1\t01-Feb-2023\t123\tAcme Corp\tACME\n",
		"REPORTINGOWNER.tsv": ownerHeader + "acc-1\t456\tDoe John\tOfficer\tCEO\n",
		"NONDERIV_TRANS.tsv": transHeader + "acc-1\t15-Jan-2023\tP\t100\t10\t500\tCommon Stock\n",
	}
}

func TestOpenBundle(t *testing.T) {
	dir := t.TempDir()
	period := models.Period{Year: 2023, Quarter: 1}
	writeBundle(t, dir, period, minimalMembers())

	b, err := NewLoader(dir).Open(period)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEmpty(t, b.Checksum)
	assert.Equal(t, 2006, b.Layout.FromYear)

	subs, err := b.Submissions()
	require.NoError(t, err)
	defer subs.Close()

	row, err := subs.Next()
	require.NoError(t, err)
	assert.Equal(t, "acc-1", subs.Field(row, ColAccession))
	assert.Equal(t, "ACME", subs.Field(row, ColIssuerSymbol))
}

func TestOpenBundleMissingArchive(t *testing.T) {
	period := models.Period{Year: 2023, Quarter: 2}
	_, err := NewLoader(t.TempDir()).Open(period)

	var bu *models.BundleUnavailableError
	require.ErrorAs(t, err, &bu)
	assert.Equal(t, period, bu.Period)
}

func TestOpenBundleMissingMandatoryExtract(t *testing.T) {
	dir := t.TempDir()
	period := models.Period{Year: 2023, Quarter: 1}
	members := minimalMembers()
	delete(members, "REPORTINGOWNER.tsv")
	writeBundle(t, dir, period, members)

	_, err := NewLoader(dir).Open(period)
	var bu *models.BundleUnavailableError
	require.ErrorAs(t, err, &bu)
	assert.ErrorContains(t, err, "REPORTINGOWNER.tsv")
}

func TestOpenBundleCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	period := models.Period{Year: 2023, Quarter: 3}
	path := filepath.Join(dir, period.String()+"_form345.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := NewLoader(dir).Open(period)
	var bu *models.BundleUnavailableError
	assert.ErrorAs(t, err, &bu)
}

func TestDerivativesOptional(t *testing.T) {
	dir := t.TempDir()
	period := models.Period{Year: 2023, Quarter: 1}
	writeBundle(t, dir, period, minimalMembers())

	b, err := NewLoader(dir).Open(period)
	require.NoError(t, err)
	defer b.Close()

	deriv, err := b.Derivatives()
	require.NoError(t, err)
	assert.Nil(t, deriv, "missing derivative extract is not an error")
}

func TestDerivativesPresent(t *testing.T) {
	dir := t.TempDir()
	period := models.Period{Year: 2023, Quarter: 1}
	members := minimalMembers()
	members["DERIV_TRANS.tsv"] = transHeader + "acc-1\t16-Jan-2023\tM\t50\t5\t550\tStock Option\n"
	writeBundle(t, dir, period, members)

	b, err := NewLoader(dir).Open(period)
	require.NoError(t, err)
	defer b.Close()

	deriv, err := b.Derivatives()
	require.NoError(t, err)
	require.NotNil(t, deriv)
	defer deriv.Close()

	row, err := deriv.Next()
	require.NoError(t, err)
	assert.Equal(t, "M", deriv.Field(row, ColTransCode))
}

func TestLayoutForSelectsByYear(t *testing.T) {
	legacy := LayoutFor(models.Period{Year: 2004, Quarter: 2})
	assert.Equal(t, 2003, legacy.FromYear)
	assert.NotContains(t, legacy.Submission.Columns, ColIssuerSymbol)

	current := LayoutFor(models.Period{Year: 2023, Quarter: 4})
	assert.Equal(t, 2006, current.FromYear)
	assert.Contains(t, current.Submission.Columns, ColIssuerSymbol)
}

func TestChecksumStableAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	period := models.Period{Year: 2023, Quarter: 1}
	writeBundle(t, dir, period, minimalMembers())

	b1, err := NewLoader(dir).Open(period)
	require.NoError(t, err)
	b1.Close()

	b2, err := NewLoader(dir).Open(period)
	require.NoError(t, err)
	b2.Close()

	assert.Equal(t, b1.Checksum, b2.Checksum)
}
