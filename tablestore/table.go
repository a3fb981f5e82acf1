// Package tablestore reads the keyed-table files produced by the event
// generation step. A source directory holds files of exactly one of two
// formats: Arrow IPC containers (.arrow), which support row-range reads, or
// gob bundles (.gob), which have to be decoded wholesale. Both expose the
// same Store contract, so callers never branch on the format.
//
// Every file carries a NumValues table (one row per entry, one column per
// object type, giving that entry's row count) plus one table per object
// type.
package tablestore

import "fmt"

// NumValuesTable is the name of the per-entry row-count index table every
// source file must carry.
const NumValuesTable = "NumValues"

// Table is an in-memory slice of a named table: ordered columns and
// row-major numeric data.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// NewTable allocates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// ColIndex returns the position of the named column, or -1.
func (t *Table) ColIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Col returns the values of the named column.
func (t *Table) Col(name string) ([]float64, error) {
	i := t.ColIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("table has no column %q", name)
	}
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Slice returns a view of rows [start, stop). The underlying row slices are
// shared with the parent table.
func (t *Table) Slice(start, stop int) *Table {
	return &Table{Columns: t.Columns, Rows: t.Rows[start:stop]}
}

// Append adds one row. The row length must match the column count.
func (t *Table) Append(row ...float64) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}
