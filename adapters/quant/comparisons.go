package quant

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"gofactor/domain/core"
	"gofactor/domain/factor"
)

// ComparisonEngine runs the between-group hypothesis tests: Mann-Whitney U
// for a numeric column split by format, and chi-square with the Phi effect
// size for 2x2 response contingencies.
type ComparisonEngine struct{}

// NewComparisonEngine creates a new comparison engine
func NewComparisonEngine() *ComparisonEngine {
	return &ComparisonEngine{}
}

// MannWhitney performs a two-sided Mann-Whitney U test between two
// independent samples using the normal approximation with tie and continuity
// corrections. NaN observations are dropped per side before testing.
func (e *ComparisonEngine) MannWhitney(column, labelA, labelB string, sideA, sideB []float64) (*factor.ComparisonReport, error) {
	a := dropMissing(sideA)
	b := dropMissing(sideB)
	if len(a) < 1 || len(b) < 1 {
		return nil, core.NewInsufficientDataError(1, 0)
	}

	n1 := float64(len(a))
	n2 := float64(len(b))

	pooled := make([]float64, 0, len(a)+len(b))
	pooled = append(pooled, a...)
	pooled = append(pooled, b...)
	ranks := computeRanks(pooled)

	var rankSumA float64
	for i := range a {
		rankSumA += ranks[i]
	}
	u1 := rankSumA - n1*(n1+1)/2
	u2 := n1*n2 - u1

	mu := n1 * n2 / 2
	sigma := mannWhitneySigma(n1, n2, pooled)

	pValue := 1.0
	if sigma > 0 {
		// Two-sided: take the larger U and correct for continuity.
		u := math.Max(u1, u2)
		z := (u - mu - 0.5) / sigma
		pValue = 2 * distuv.UnitNormal.Survival(z)
		if pValue > 1 {
			pValue = 1
		}
	}

	return &factor.ComparisonReport{
		Kind:       factor.ComparisonMannWhitney,
		Column:     column,
		UStatistic: u1,
		PValue:     pValue,
		SideA:      Describe(a),
		SideB:      Describe(b),
		LabelA:     labelA,
		LabelB:     labelB,
	}, nil
}

// mannWhitneySigma is the standard deviation of U under the null, shrunk for
// ties in the pooled sample.
func mannWhitneySigma(n1, n2 float64, pooled []float64) float64 {
	n := n1 + n2
	tieSum := 0.0
	sorted := append([]float64(nil), pooled...)
	sort.Float64s(sorted)
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		t := float64(j - i)
		tieSum += t*t*t - t
		i = j
	}
	variance := n1 * n2 / 12 * ((n + 1) - tieSum/(n*(n-1)))
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// ChiSquare2x2 performs a chi-square independence test with Yates continuity
// correction on a 2x2 contingency table and reports the Phi coefficient as
// effect size. Rows are the two groups, columns the two outcomes.
func (e *ComparisonEngine) ChiSquare2x2(column, labelA, labelB string, observed [2][2]float64) (*factor.ComparisonReport, error) {
	var rowSums [2]float64
	var colSums [2]float64
	var total float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if observed[i][j] < 0 {
				return nil, core.NewConfigurationError("contingency", "cell counts must be non-negative")
			}
			rowSums[i] += observed[i][j]
			colSums[j] += observed[i][j]
			total += observed[i][j]
		}
	}
	if rowSums[0] == 0 || rowSums[1] == 0 || colSums[0] == 0 || colSums[1] == 0 {
		return nil, core.NewInsufficientDataError(1, 0)
	}

	chiSquare := 0.0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			expected := rowSums[i] * colSums[j] / total
			deviation := math.Abs(observed[i][j]-expected) - 0.5
			if deviation < 0 {
				deviation = 0
			}
			chiSquare += deviation * deviation / expected
		}
	}

	dist := distuv.ChiSquared{K: 1}
	pValue := 1 - dist.CDF(chiSquare)
	phi := math.Sqrt(chiSquare / total)

	return &factor.ComparisonReport{
		Kind:       factor.ComparisonChiSquare,
		Column:     column,
		ChiSquare:  chiSquare,
		PValue:     pValue,
		Phi:        phi,
		EffectBand: factor.PhiBand(phi),
		LabelA:     labelA,
		LabelB:     labelB,
	}, nil
}

// Describe summarizes one comparison side. The input must already be free of
// missing values.
func Describe(values []float64) *factor.DescriptiveStats {
	if len(values) == 0 {
		return nil
	}
	mean, _ := stats.Mean(values)
	median, _ := stats.Median(values)
	std, _ := stats.StandardDeviationSample(values)
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	q25, err25 := stats.Percentile(values, 25)
	if err25 != nil {
		q25 = min
	}
	q75, err75 := stats.Percentile(values, 75)
	if err75 != nil {
		q75 = max
	}
	return &factor.DescriptiveStats{
		N:      len(values),
		Mean:   mean,
		Median: median,
		Std:    std,
		Min:    min,
		Max:    max,
		Q25:    q25,
		Q75:    q75,
	}
}

func dropMissing(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
