// Package quant implements the quantitative engines of the survey analysis
// pipeline: correlation structure, sampling adequacy, factor extraction,
// bootstrap stability, group comparisons and reliability.
package quant

import (
	"math"
	"sort"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
)

// pairwiseComplete filters two observation vectors down to the positions
// where both are observed. Correlation semantics over missing data follow
// pairwise-complete observations, the behavior questionnaire tooling
// conventionally applies.
func pairwiseComplete(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

// computeRanks converts values to ranks, handling ties by averaging
func computeRanks(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return []float64{}
	}

	type pair struct {
		value float64
		index int
	}

	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		groupSize := j - i
		avgRank := float64(i+1) + float64(groupSize-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		i = j
	}
	return ranks
}

// Pearson computes the linear correlation of two observation vectors over
// their pairwise-complete positions. Returns NaN when fewer than two
// complete pairs remain or either side has zero variance.
func Pearson(x, y []float64) float64 {
	xs, ys := pairwiseComplete(x, y)
	return pearsonComplete(xs, ys)
}

func pearsonComplete(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varX*varY)
}

// Spearman computes the rank correlation of two observation vectors: the
// Pearson correlation of their tie-averaged ranks, which stays exact in the
// presence of ties.
func Spearman(x, y []float64) float64 {
	xs, ys := pairwiseComplete(x, y)
	if len(xs) < 2 {
		return math.NaN()
	}
	return pearsonComplete(computeRanks(xs), computeRanks(ys))
}

// KendallTauB computes Kendall's tau-b, the tie-corrected rank correlation.
// tau-b = (P - Q) / sqrt((n0 - n1)(n0 - n2)) with P/Q the concordant and
// discordant pair counts and n1/n2 the tie corrections for each side.
func KendallTauB(x, y []float64) float64 {
	xs, ys := pairwiseComplete(x, y)
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}

	var concordant, discordant float64
	var tiesX, tiesY float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := xs[i] - xs[j]
			dy := ys[i] - ys[j]
			switch {
			case dx == 0 && dy == 0:
				tiesX++
				tiesY++
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx*dy > 0:
				concordant++
			default:
				discordant++
			}
		}
	}

	n0 := float64(n*(n-1)) / 2
	denom := math.Sqrt((n0 - tiesX) * (n0 - tiesY))
	if denom == 0 {
		return math.NaN()
	}
	return (concordant - discordant) / denom
}

// Correlate dispatches on the association measure.
func Correlate(measure factor.Measure, x, y []float64) float64 {
	switch measure {
	case factor.MeasureSpearman:
		return Spearman(x, y)
	case factor.MeasureKendall:
		return KendallTauB(x, y)
	default:
		return Pearson(x, y)
	}
}

// CorrelationMatrixOf builds the item correlation matrix of m under the
// given measure: square, symmetric, unit diagonal, computed fresh. Cells for
// degenerate items (zero variance, too few complete pairs) are NaN; callers
// that need an invertible matrix treat NaN cells as a singularity.
func CorrelationMatrixOf(m *survey.ItemMatrix, measure factor.Measure) *factor.CorrelationMatrix {
	p := m.ItemCount()
	cols := make([][]float64, p)
	for j := 0; j < p; j++ {
		cols[j] = m.Column(j)
	}

	values := make([][]float64, p)
	for i := range values {
		values[i] = make([]float64, p)
		values[i][i] = 1.0
	}
	for i := 0; i < p; i++ {
		for j := i + 1; j < p; j++ {
			r := Correlate(measure, cols[i], cols[j])
			values[i][j] = r
			values[j][i] = r
		}
	}

	return &factor.CorrelationMatrix{
		Items:   append([]core.ItemKey(nil), m.Items...),
		Values:  values,
		Measure: measure,
	}
}

// HasUndefinedCells reports whether any off-diagonal correlation is NaN.
func HasUndefinedCells(c *factor.CorrelationMatrix) bool {
	for i := range c.Values {
		for j := range c.Values[i] {
			if math.IsNaN(c.Values[i][j]) {
				return true
			}
		}
	}
	return false
}
