// Package parser streams tab-separated extract rows against an explicit
// column layout.
package parser

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Table reads one tab-separated extract. Columns are located once from the
// header row; rows are then streamed in source order.
type Table struct {
	r     *csv.Reader
	index map[string]int
}

// NewTable reads the header row and verifies that every required column is
// present. Columns listed in optional may be absent; Field returns "" for
// them.
func NewTable(r io.Reader, required []string, optional []string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	optionalSet := make(map[string]bool, len(optional))
	for _, name := range optional {
		optionalSet[name] = true
	}

	for _, name := range required {
		if _, ok := index[name]; !ok && !optionalSet[name] {
			return nil, fmt.Errorf("extract is missing required column %s", name)
		}
	}

	return &Table{r: reader, index: index}, nil
}

// Next returns the next data row, or io.EOF when the extract is exhausted.
// A malformed row is returned as a non-EOF error; callers are expected to
// count and skip it.
func (t *Table) Next() ([]string, error) {
	row, err := t.r.Read()
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Field returns the named column's value in row, or "" when the column is
// absent from this extract or the row is short.
func (t *Table) Field(row []string, name string) string {
	i, ok := t.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
