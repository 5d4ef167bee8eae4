package quant

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
)

// ExtractionEngine extracts a fixed number of common factors from an item
// matrix by principal-axis eigendecomposition of its Pearson correlation
// matrix, then applies the configured orthogonal rotation.
type ExtractionEngine struct{}

// NewExtractionEngine creates a new extraction engine
func NewExtractionEngine() *ExtractionEngine {
	return &ExtractionEngine{}
}

// Extract runs the full extraction for one group. Rows with any missing item
// value are dropped first. The returned solution carries the rotated
// loadings, the top-k eigenvalues in extraction order, and the full spectrum
// (all items, descending) for scree use.
//
// Rotated loadings are reported exactly as computed; values outside [-1,1]
// from ill-conditioned inputs pass through unclamped.
func (e *ExtractionEngine) Extract(m *survey.ItemMatrix, cfg factor.AnalysisConfig) (*factor.FactorSolution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cc := m.CompleteCases()
	p := cc.ItemCount()
	n := cc.RowCount()
	k := cfg.FactorCount
	if k > p {
		return nil, core.NewConfigurationError("factor_count", "exceeds item count")
	}
	if n < p+1 {
		return nil, core.NewInsufficientDataError(p+1, n)
	}

	corr := CorrelationMatrixOf(cc, factor.MeasurePearson)
	if HasUndefinedCells(corr) {
		return nil, core.NewSingularMatrixError("correlation undefined for a degenerate item")
	}

	var es mat.EigenSym
	if !es.Factorize(symDenseOf(corr), true) {
		return nil, core.NewSingularMatrixError("eigendecomposition failed")
	}

	values := es.Values(nil) // ascending
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	// Full spectrum, descending. For a correlation matrix it sums to the
	// item count.
	spectrum := make([]float64, p)
	for i := 0; i < p; i++ {
		spectrum[i] = values[p-1-i]
	}

	// Initial loadings: top-k eigenvectors scaled by sqrt(eigenvalue).
	initial := mat.NewDense(p, k, nil)
	initialEigen := make([]float64, k)
	for j := 0; j < k; j++ {
		idx := p - 1 - j
		ev := values[idx]
		if ev <= 0 {
			return nil, core.NewSingularMatrixError("fewer positive eigenvalues than requested factors")
		}
		initialEigen[j] = ev
		scale := math.Sqrt(ev)
		for i := 0; i < p; i++ {
			initial.Set(i, j, vectors.At(i, idx)*scale)
		}
	}

	loadings := initial
	converged := true
	iterations := 0
	if cfg.Rotation == factor.RotationVarimax && k >= 2 {
		loadings, converged, iterations = varimax(initial, cfg.RotationTol, cfg.RotationMaxIter)
	}
	applySignConvention(loadings)

	out := make([][]float64, p)
	communalities := make([]float64, p)
	for i := 0; i < p; i++ {
		out[i] = make([]float64, k)
		var h2 float64
		for j := 0; j < k; j++ {
			v := loadings.At(i, j)
			out[i][j] = v
			h2 += v * v
		}
		communalities[i] = h2
	}

	return &factor.FactorSolution{
		Items:              append([]core.ItemKey(nil), cc.Items...),
		Loadings:           out,
		InitialEigenvalues: initialEigen,
		FullSpectrum:       spectrum,
		Communalities:      communalities,
		FactorCount:        k,
		RotationConverged:  converged,
		RotationIterations: iterations,
	}, nil
}

// varimax applies the orthogonal variance-maximizing rotation with Kaiser
// row normalization: rows are scaled to unit communality, the rotation
// matrix is iterated as UV' of X'(B^3 - B diag(colsums B^2)/p) where
// B = X*rotation, and iteration stops when the singular-value sum stops
// growing by more than tol or maxIter is reached. Non-convergence returns
// the last iterate with converged=false; it is reported, never fatal.
func varimax(loadings *mat.Dense, tol float64, maxIter int) (*mat.Dense, bool, int) {
	p, k := loadings.Dims()
	x := mat.DenseCopyOf(loadings)

	norms := make([]float64, p)
	for i := 0; i < p; i++ {
		var ss float64
		for j := 0; j < k; j++ {
			v := x.At(i, j)
			ss += v * v
		}
		norms[i] = math.Sqrt(ss)
		if norms[i] > 0 {
			for j := 0; j < k; j++ {
				x.Set(i, j, x.At(i, j)/norms[i])
			}
		}
	}

	rotation := eye(k)
	criterion := 0.0
	converged := false
	iterations := 0

	for iter := 1; iter <= maxIter; iter++ {
		iterations = iter
		old := criterion

		var basis mat.Dense
		basis.Mul(x, rotation)

		colSums := make([]float64, k)
		for j := 0; j < k; j++ {
			var s float64
			for i := 0; i < p; i++ {
				b := basis.At(i, j)
				s += b * b
			}
			colSums[j] = s
		}

		target := mat.NewDense(p, k, nil)
		for i := 0; i < p; i++ {
			for j := 0; j < k; j++ {
				b := basis.At(i, j)
				target.Set(i, j, b*b*b-b*colSums[j]/float64(p))
			}
		}

		var transformed mat.Dense
		transformed.Mul(x.T(), target)

		var svd mat.SVD
		if !svd.Factorize(&transformed, mat.SVDThin) {
			break
		}
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)

		next := &mat.Dense{}
		next.Mul(&u, v.T())
		rotation = next

		criterion = 0
		for _, sv := range svd.Values(nil) {
			criterion += sv
		}
		if criterion < old*(1+tol) {
			converged = true
			break
		}
	}

	var rotated mat.Dense
	rotated.Mul(x, rotation)
	for i := 0; i < p; i++ {
		if norms[i] > 0 {
			for j := 0; j < k; j++ {
				rotated.Set(i, j, rotated.At(i, j)*norms[i])
			}
		}
	}
	return &rotated, converged, iterations
}

// applySignConvention flips each factor column so its largest-magnitude
// loading is positive. Eigenvector signs are arbitrary; fixing them keeps
// repeated runs bit-identical.
func applySignConvention(loadings *mat.Dense) {
	p, k := loadings.Dims()
	for j := 0; j < k; j++ {
		maxAbs := 0.0
		sign := 1.0
		for i := 0; i < p; i++ {
			v := loadings.At(i, j)
			if math.Abs(v) > maxAbs {
				maxAbs = math.Abs(v)
				if v < 0 {
					sign = -1.0
				} else {
					sign = 1.0
				}
			}
		}
		if sign < 0 {
			for i := 0; i < p; i++ {
				loadings.Set(i, j, -loadings.At(i, j))
			}
		}
	}
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
