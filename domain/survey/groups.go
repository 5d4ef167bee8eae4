package survey

import (
	"fmt"
	"math"

	"gofactor/domain/core"
)

// CompareOp is a comparison operator for declarative row conditions.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
)

// Matches evaluates the operator against a cell value. Missing cells (NaN)
// never match, mirroring how the source data treats unanswered auxiliary
// questions.
func (op CompareOp) Matches(cell, value float64) bool {
	if math.IsNaN(cell) {
		return false
	}
	switch op {
	case OpEq:
		return cell == value
	case OpNe:
		return cell != value
	case OpLt:
		return cell < value
	case OpLe:
		return cell <= value
	case OpGt:
		return cell > value
	case OpGe:
		return cell >= value
	default:
		return false
	}
}

// Valid reports whether the operator is one of the recognized comparisons.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Condition is one declarative boolean predicate over an auxiliary
// categorical column, e.g. {formatUp eq 1}.
type Condition struct {
	Column string    `json:"column"`
	Op     CompareOp `json:"op"`
	Value  float64   `json:"value"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %g", c.Column, c.Op, c.Value)
}

// GroupSpec defines one experimental group as the conjunction of its
// conditions. Specs are evaluated against the original filtered row set,
// never against previously produced groups.
type GroupSpec struct {
	Key   core.GroupKey `json:"key"`
	Label string        `json:"label"`
	All   []Condition   `json:"all"`
}

// FormatGroup is an ItemMatrix subset produced by the partitioner for one
// group spec.
type FormatGroup struct {
	Key    core.GroupKey
	Label  string
	Matrix *ItemMatrix
}

// Empty reports whether the group's predicate matched zero rows.
func (g FormatGroup) Empty() bool {
	return g.Matrix == nil || g.Matrix.RowCount() == 0
}

// FormatOrderSpecs builds the four canonical presentation-format by
// item-order groups of the study: format in {1,2} crossed with the order
// column at or below / above the threshold.
func FormatOrderSpecs(formatCol, orderCol string, orderThreshold float64) []GroupSpec {
	return []GroupSpec{
		{
			Key:   "format1_orderA",
			Label: "Single Page - Order A",
			All: []Condition{
				{Column: formatCol, Op: OpEq, Value: 1},
				{Column: orderCol, Op: OpLe, Value: orderThreshold},
			},
		},
		{
			Key:   "format1_orderB",
			Label: "Single Page - Order B",
			All: []Condition{
				{Column: formatCol, Op: OpEq, Value: 1},
				{Column: orderCol, Op: OpGt, Value: orderThreshold},
			},
		},
		{
			Key:   "format2_orderA",
			Label: "Slides - Order A",
			All: []Condition{
				{Column: formatCol, Op: OpEq, Value: 2},
				{Column: orderCol, Op: OpLe, Value: orderThreshold},
			},
		},
		{
			Key:   "format2_orderB",
			Label: "Slides - Order B",
			All: []Condition{
				{Column: formatCol, Op: OpEq, Value: 2},
				{Column: orderCol, Op: OpGt, Value: orderThreshold},
			},
		},
	}
}
