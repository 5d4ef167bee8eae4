package survey

import (
	"fmt"
	"math"

	"gofactor/domain/core"
)

// ItemMatrix is the canonical input to all statistical computation:
// rows = respondents, columns = the fixed ordered item set. Values are
// ordinal scores with NaN marking missing responses.
//
// The item order is stable across every group being compared; factor
// loadings and correlation-matrix fingerprints depend on it. No component
// mutates an ItemMatrix in place - every transformation returns a new one.
type ItemMatrix struct {
	Items []core.ItemKey `json:"items"`
	Rows  [][]float64    `json:"rows"`
}

// Validate ensures the matrix is internally consistent
func (m *ItemMatrix) Validate() error {
	if len(m.Items) == 0 {
		return core.NewConfigurationError("items", "must not be empty")
	}
	for i, row := range m.Rows {
		if len(row) != len(m.Items) {
			return fmt.Errorf("%w: row %d has %d values, expected %d",
				core.ErrRaggedRow, i, len(row), len(m.Items))
		}
	}
	return nil
}

// RowCount returns the number of respondent rows
func (m *ItemMatrix) RowCount() int {
	return len(m.Rows)
}

// ItemCount returns the number of item columns
func (m *ItemMatrix) ItemCount() int {
	return len(m.Items)
}

// Column returns a copy of one item's scores across all rows.
func (m *ItemMatrix) Column(j int) []float64 {
	col := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		col[i] = row[j]
	}
	return col
}

// CompleteCases returns a new matrix containing only the rows with no
// missing value in any item column ("drop" imputation policy).
func (m *ItemMatrix) CompleteCases() *ItemMatrix {
	var kept [][]float64
	for _, row := range m.Rows {
		complete := true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, row)
		}
	}
	return &ItemMatrix{Items: m.Items, Rows: kept}
}

// SampleRows returns a new matrix holding copies of the rows at the given
// indices, in index order. Used by the bootstrap estimator; the receiver is
// left untouched.
func (m *ItemMatrix) SampleRows(indices []int) *ItemMatrix {
	rows := make([][]float64, len(indices))
	for i, idx := range indices {
		rows[i] = append([]float64(nil), m.Rows[idx]...)
	}
	return &ItemMatrix{Items: m.Items, Rows: rows}
}

// SameItems reports whether two matrices share the identical ordered item set.
func (m *ItemMatrix) SameItems(other *ItemMatrix) bool {
	if len(m.Items) != len(other.Items) {
		return false
	}
	for i := range m.Items {
		if m.Items[i] != other.Items[i] {
			return false
		}
	}
	return true
}
