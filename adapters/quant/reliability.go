package quant

import (
	"math"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
)

// ReliabilityEngine computes the internal-consistency metrics for one
// group's item battery: Cronbach's alpha over complete cases and the mean
// inter-item correlation over the group's correlation matrix.
type ReliabilityEngine struct{}

// NewReliabilityEngine creates a new reliability engine
func NewReliabilityEngine() *ReliabilityEngine {
	return &ReliabilityEngine{}
}

// Analyze computes the reliability report for one group. The correlation
// matrix is the group's reported matrix so the mean inter-item correlation
// uses the same association measure the rest of the run reports.
func (e *ReliabilityEngine) Analyze(m *survey.ItemMatrix, corr *factor.CorrelationMatrix) (*factor.ReliabilityReport, error) {
	if m.ItemCount() < 2 {
		return nil, core.NewInsufficientDataError(2, m.ItemCount())
	}
	complete := m.CompleteCases()
	if complete.RowCount() < 2 {
		return nil, core.NewInsufficientDataError(2, complete.RowCount())
	}

	return &factor.ReliabilityReport{
		CronbachAlpha: cronbachAlpha(complete.Rows),
		MeanInterItem: MeanInterItem(corr),
		Items:         m.ItemCount(),
		CompleteRows:  complete.RowCount(),
	}, nil
}

// cronbachAlpha computes Cronbach's alpha for a complete response matrix
// shaped [rows][items]. Population variance is used consistently so that
// perfectly correlated items yield exactly 1. Degenerate input (no variance
// in the total scores) yields 0, and the result is clamped to [0,1].
func cronbachAlpha(rows [][]float64) float64 {
	n := len(rows)
	if n == 0 {
		return 0
	}
	k := len(rows[0])
	if k < 2 {
		return 0
	}

	means := make([]float64, k)
	totals := make([]float64, n)
	for i, row := range rows {
		for j, v := range row {
			means[j] += v
			totals[i] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	var sumItemVars float64
	for j := 0; j < k; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			d := rows[i][j] - means[j]
			sum += d * d
		}
		sumItemVars += sum / float64(n)
	}

	var totalMean float64
	for _, t := range totals {
		totalMean += t
	}
	totalMean /= float64(n)
	var totalVar float64
	for _, t := range totals {
		d := t - totalMean
		totalVar += d * d
	}
	totalVar /= float64(n)

	if totalVar == 0 {
		return 0
	}

	kf := float64(k)
	alpha := (kf / (kf - 1)) * (1 - sumItemVars/totalVar)
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}

// MeanInterItem averages the strictly-upper-triangular entries of a
// correlation matrix, skipping undefined cells. Returns NaN when no pair has
// a defined correlation.
func MeanInterItem(corr *factor.CorrelationMatrix) float64 {
	var sum float64
	var count int
	for _, v := range corr.UpperTriangle() {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}
