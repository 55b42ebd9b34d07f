// Package table is the in-memory form of a harmonized dataset: named columns and
// ordered rows of string cells.
package table

import (
	"fmt"
	"slices"
	"strings"
)

// Row is one record. Index is the position of the row in the source dataset and
// never changes while the row moves through a run.
type Row struct {
	Index  int
	Values []string
}

// Table is an ordered set of rows sharing one header.
type Table struct {
	Columns []string
	Rows    []Row

	index map[string]int
}

// New builds a table from a header and raw records. Records shorter than the header
// are padded with empty cells; longer records are rejected.
func New(columns []string, records [][]string) (*Table, error) {
	t := &Table{Columns: slices.Clone(columns)}
	t.reindex()
	t.Rows = make([]Row, 0, len(records))
	for i, rec := range records {
		if len(rec) > len(columns) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+1, len(rec), len(columns))
		}
		vals := make([]string, len(columns))
		copy(vals, rec)
		t.Rows = append(t.Rows, Row{Index: i, Values: vals})
	}
	return t, nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; dup {
			continue
		}
		t.index[c] = i
	}
}

// ColumnIndex returns the position of an exact column name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Get returns the cell of row r in column name, or "" when the column is absent.
func (t *Table) Get(r Row, name string) string {
	i, ok := t.ColumnIndex(name)
	if !ok || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Clone deep-copies the table so callers can mutate the copy freely.
func (t *Table) Clone() *Table {
	out := &Table{Columns: slices.Clone(t.Columns), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = Row{Index: r.Index, Values: slices.Clone(r.Values)}
	}
	out.reindex()
	return out
}

// InsertColumn adds an empty column at position at (clamped to the header bounds)
// and returns its index. Existing columns are left in place.
func (t *Table) InsertColumn(name string, at int) int {
	if i, ok := t.ColumnIndex(name); ok {
		return i
	}
	if at < 0 || at > len(t.Columns) {
		at = len(t.Columns)
	}
	t.Columns = slices.Insert(t.Columns, at, name)
	for i := range t.Rows {
		t.Rows[i].Values = slices.Insert(t.Rows[i].Values, at, "")
	}
	t.reindex()
	return at
}

// Set writes value into row position ri of column name. The column must exist.
func (t *Table) Set(ri int, name string, value string) error {
	ci, ok := t.ColumnIndex(name)
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	if ri < 0 || ri >= len(t.Rows) {
		return fmt.Errorf("row %d out of range", ri)
	}
	t.Rows[ri].Values[ci] = value
	return nil
}

// NormalizeHeader trims whitespace and a leading byte order mark from column names.
func NormalizeHeader(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}
	return out
}
