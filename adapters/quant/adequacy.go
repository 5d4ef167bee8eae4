package quant

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
)

// AdequacyEngine computes sphericity and sampling-adequacy diagnostics on an
// item matrix. Pure computation, no side effects.
type AdequacyEngine struct{}

// NewAdequacyEngine creates a new adequacy engine
func NewAdequacyEngine() *AdequacyEngine {
	return &AdequacyEngine{}
}

// Analyze runs Bartlett's sphericity test and the KMO measure over the
// complete-case rows of m. Requires at least items+1 complete rows; fewer is
// an insufficient-data failure for this group only.
func (e *AdequacyEngine) Analyze(m *survey.ItemMatrix) (*factor.AdequacyReport, error) {
	cc := m.CompleteCases()
	p := cc.ItemCount()
	n := cc.RowCount()
	if n < p+1 {
		return nil, core.NewInsufficientDataError(p+1, n)
	}

	corr := CorrelationMatrixOf(cc, factor.MeasurePearson)
	if HasUndefinedCells(corr) {
		return nil, core.NewSingularMatrixError("correlation undefined for a degenerate item")
	}

	chiSquare, df, pValue, err := bartlettSphericity(corr, n)
	if err != nil {
		return nil, err
	}

	kmoOverall, kmoPerItem, err := kmo(corr)
	if err != nil {
		return nil, err
	}

	return &factor.AdequacyReport{
		SphericityChiSquare: chiSquare,
		SphericityDF:        df,
		SphericityPValue:    pValue,
		KMOOverall:          kmoOverall,
		KMOPerItem:          kmoPerItem,
		CompleteRows:        n,
	}, nil
}

// bartlettSphericity tests H0: the correlation matrix is identity.
// chi2 = -(n - 1 - (2p+5)/6) * ln det(R), df = p(p-1)/2.
func bartlettSphericity(c *factor.CorrelationMatrix, n int) (float64, int, float64, error) {
	p := c.Size()
	dense := denseOf(c)

	var lu mat.LU
	lu.Factorize(dense)
	logDet, sign := lu.LogDet()
	if sign <= 0 || math.IsInf(logDet, -1) {
		return 0, 0, 0, core.NewSingularMatrixError("correlation matrix has non-positive determinant")
	}

	// det(R) <= 1 for a correlation matrix, so the statistic is >= 0.
	statistic := -logDet * (float64(n-1) - (2*float64(p)+5)/6)
	df := p * (p - 1) / 2

	chiDist := distuv.ChiSquared{K: float64(df)}
	pValue := 1 - chiDist.CDF(statistic)

	return statistic, df, pValue, nil
}

// kmo compares shared variance against total variance using the partial
// correlations from the inverted correlation matrix. Per item j:
// KMO_j = sum_i!=j R_ij^2 / (sum_i!=j R_ij^2 + sum_i!=j partial_ij^2);
// the overall measure sums both terms over every off-diagonal cell.
func kmo(c *factor.CorrelationMatrix) (float64, []float64, error) {
	p := c.Size()
	dense := denseOf(c)

	var inv mat.Dense
	if err := inv.Inverse(dense); err != nil {
		// Ill-conditioning still produces a usable inverse; true
		// singularity does not.
		if _, ok := err.(mat.Condition); !ok {
			return 0, nil, core.NewSingularMatrixError("correlation matrix is not invertible")
		}
	}

	partialSq := make([][]float64, p)
	for i := 0; i < p; i++ {
		partialSq[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			if i == j {
				continue
			}
			partial := inv.At(i, j) / math.Sqrt(inv.At(i, i)*inv.At(j, j))
			partialSq[i][j] = partial * partial
		}
	}

	perItem := make([]float64, p)
	var totalCorrSq, totalPartialSq float64
	for j := 0; j < p; j++ {
		var corrSq, partSq float64
		for i := 0; i < p; i++ {
			if i == j {
				continue
			}
			r := c.Values[i][j]
			corrSq += r * r
			partSq += partialSq[i][j]
		}
		perItem[j] = corrSq / (corrSq + partSq)
		totalCorrSq += corrSq
		totalPartialSq += partSq
	}

	overall := totalCorrSq / (totalCorrSq + totalPartialSq)
	return overall, perItem, nil
}

// denseOf copies a correlation matrix into a gonum dense matrix.
func denseOf(c *factor.CorrelationMatrix) *mat.Dense {
	p := c.Size()
	flat := make([]float64, 0, p*p)
	for i := 0; i < p; i++ {
		flat = append(flat, c.Values[i]...)
	}
	return mat.NewDense(p, p, flat)
}

// symDenseOf copies a correlation matrix into a gonum symmetric matrix.
func symDenseOf(c *factor.CorrelationMatrix) *mat.SymDense {
	p := c.Size()
	flat := make([]float64, 0, p*p)
	for i := 0; i < p; i++ {
		flat = append(flat, c.Values[i]...)
	}
	return mat.NewSymDense(p, flat)
}
