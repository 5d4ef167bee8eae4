package survey

import (
	"fmt"
	"math"

	"gofactor/domain/core"
)

// Table is the raw ingested survey table: named numeric columns over
// respondent rows. Missing values are NaN. A Table is never mutated after
// construction; filtering and projection return new values.
type Table struct {
	Columns []string
	Rows    [][]float64 // rows=respondents, cols=Columns
}

// NewTable creates a table from a header and row-major values.
func NewTable(columns []string, rows [][]float64) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// Validate ensures the table is internally consistent
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return core.NewConfigurationError("columns", "must not be empty")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%w: row %d has %d values, expected %d",
				core.ErrRaggedRow, i, len(row), len(t.Columns))
		}
	}
	return nil
}

// ColumnIndex returns the index of a named column
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// RowCount returns the number of respondent rows
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// Filter returns a new table containing the rows that satisfy every
// condition. Rows with a missing value in a condition column never match.
func (t *Table) Filter(conditions []Condition) (*Table, error) {
	idx := make([]int, len(conditions))
	for i, c := range conditions {
		j, ok := t.ColumnIndex(c.Column)
		if !ok {
			return nil, core.NewUnknownColumnError(c.Column)
		}
		idx[i] = j
	}

	var kept [][]float64
	for _, row := range t.Rows {
		match := true
		for i, c := range conditions {
			if !c.Op.Matches(row[idx[i]], c.Value) {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, row)
		}
	}
	return &Table{Columns: t.Columns, Rows: kept}, nil
}

// SelectItems projects the table onto the ordered item columns, dropping
// auxiliary columns. The item order of the result is exactly the order of
// the argument, which keeps loadings and correlation fingerprints aligned
// across groups.
func (t *Table) SelectItems(items []core.ItemKey) (*ItemMatrix, error) {
	idx := make([]int, len(items))
	for i, item := range items {
		j, ok := t.ColumnIndex(string(item))
		if !ok {
			return nil, core.NewUnknownColumnError(string(item))
		}
		idx[i] = j
	}

	rows := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		projected := make([]float64, len(items))
		for i, j := range idx {
			projected[i] = row[j]
		}
		rows[r] = projected
	}
	return &ItemMatrix{Items: append([]core.ItemKey(nil), items...), Rows: rows}, nil
}

// IsMissing reports whether a cell value is the missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}
