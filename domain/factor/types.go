package factor

import (
	"time"

	"gofactor/domain/core"
)

// Measure selects the association used to build a correlation matrix.
type Measure string

const (
	MeasurePearson  Measure = "pearson"
	MeasureSpearman Measure = "spearman"
	MeasureKendall  Measure = "kendall"
)

// Valid reports whether the measure is recognized.
func (m Measure) Valid() bool {
	switch m {
	case MeasurePearson, MeasureSpearman, MeasureKendall:
		return true
	}
	return false
}

// Rotation selects the rotation applied to extracted factor axes.
type Rotation string

const (
	RotationVarimax Rotation = "varimax"
	RotationNone    Rotation = "none"
)

// Valid reports whether the rotation is recognized.
func (r Rotation) Valid() bool {
	return r == RotationVarimax || r == RotationNone
}

// CorrelationMatrix is a square symmetric matrix with unit diagonal over a
// fixed item order. Computed fresh per use and never mutated in place.
type CorrelationMatrix struct {
	Items   []core.ItemKey `json:"items"`
	Values  [][]float64    `json:"values"`
	Measure Measure        `json:"measure"`
}

// Size returns the matrix dimension.
func (c *CorrelationMatrix) Size() int {
	return len(c.Items)
}

// UpperTriangle returns the strictly-upper-triangular entries row by row,
// excluding the diagonal. This is the pairwise-relationship fingerprint used
// to compare two groups' correlation structures.
func (c *CorrelationMatrix) UpperTriangle() []float64 {
	n := len(c.Values)
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, c.Values[i][j])
		}
	}
	return out
}

// AdequacyReport carries the sampling-adequacy diagnostics for one group.
type AdequacyReport struct {
	SphericityChiSquare float64   `json:"sphericity_chi_square"`
	SphericityDF        int       `json:"sphericity_df"`
	SphericityPValue    float64   `json:"sphericity_p_value"`
	KMOOverall          float64   `json:"kmo_overall"`
	KMOPerItem          []float64 `json:"kmo_per_item"`
	CompleteRows        int       `json:"complete_rows"`
}

// Sphericity supports factor analysis when the test rejects the identity
// hypothesis at the conventional threshold.
const SphericityThreshold = 0.001

// SphericitySupported reports whether the sphericity p-value falls under the
// conventional reporting threshold. Informational only, never control flow.
func (r *AdequacyReport) SphericitySupported() bool {
	return r.SphericityPValue < SphericityThreshold
}

// KMOBand maps a KMO value onto the conventional interpretation bands.
func KMOBand(kmo float64) string {
	switch {
	case kmo < 0.5:
		return "unacceptable"
	case kmo < 0.6:
		return "miserable"
	case kmo < 0.7:
		return "mediocre"
	case kmo < 0.8:
		return "middling"
	case kmo < 0.9:
		return "meritorious"
	default:
		return "marvelous"
	}
}

// FactorSolution is an extracted and rotated factor model for one group.
//
// Loadings are reported exactly as the rotation produced them. Ill-conditioned
// inputs can push a rotated loading marginally outside [-1,1]; such values are
// passed through untouched so the analyst sees the ill-conditioning.
type FactorSolution struct {
	Items              []core.ItemKey `json:"items"`
	Loadings           [][]float64    `json:"loadings"` // items x factors, rotated
	InitialEigenvalues []float64      `json:"initial_eigenvalues"`
	FullSpectrum       []float64      `json:"full_spectrum"` // all items, descending
	Communalities      []float64      `json:"communalities"`
	FactorCount        int            `json:"factor_count"`
	RotationConverged  bool           `json:"rotation_converged"`
	RotationIterations int            `json:"rotation_iterations"`
}

// BootstrapEstimate is the stability estimate for one group pair: the
// distribution of rank correlations between the two groups' correlation
// fingerprints across resamples, with its mean and percentile interval.
// Never mutated after assembly; independent across pairs.
type BootstrapEstimate struct {
	Pair       core.PairKey `json:"pair"`
	Samples    []float64    `json:"samples"` // iteration order
	Mean       float64      `json:"mean"`
	CILow      float64      `json:"ci_low"`  // 2.5th percentile
	CIHigh     float64      `json:"ci_high"` // 97.5th percentile
	Iterations int          `json:"iterations"`
	Fraction   float64      `json:"fraction"`
	Measure    Measure      `json:"measure"`
}

// ReliabilityReport carries the internal-consistency metrics for one group.
type ReliabilityReport struct {
	CronbachAlpha float64 `json:"cronbach_alpha"`
	MeanInterItem float64 `json:"mean_inter_item"`
	Items         int     `json:"items"`
	CompleteRows  int     `json:"complete_rows"`
}

// InterItemOptimal reports whether the mean inter-item correlation falls in
// the conventional 0.15-0.50 range.
func (r *ReliabilityReport) InterItemOptimal() bool {
	return r.MeanInterItem >= 0.15 && r.MeanInterItem <= 0.50
}

// DescriptiveStats summarizes one side of a group comparison.
type DescriptiveStats struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Comparison kinds.
const (
	ComparisonMannWhitney = "mann_whitney"
	ComparisonChiSquare   = "chi_square"
)

// ComparisonReport is the outcome of one between-group comparison, either a
// Mann-Whitney U on a numeric column or a chi-square independence test on a
// 2x2 contingency.
type ComparisonReport struct {
	Kind       string            `json:"kind"` // "mann_whitney" | "chi_square"
	Column     string            `json:"column"`
	UStatistic float64           `json:"u_statistic,omitempty"`
	ChiSquare  float64           `json:"chi_square,omitempty"`
	PValue     float64           `json:"p_value"`
	Phi        float64           `json:"phi,omitempty"`
	EffectBand string            `json:"effect_band,omitempty"`
	SideA      *DescriptiveStats `json:"side_a,omitempty"`
	SideB      *DescriptiveStats `json:"side_b,omitempty"`
	LabelA     string            `json:"label_a,omitempty"`
	LabelB     string            `json:"label_b,omitempty"`
}

// PhiBand maps a Phi effect size onto the conventional bands.
func PhiBand(phi float64) string {
	switch {
	case phi < 0.1:
		return "negligible"
	case phi < 0.3:
		return "small"
	case phi < 0.5:
		return "medium"
	default:
		return "large"
	}
}

// UnitFailure records an analysis unit that was skipped or failed while its
// siblings proceeded.
type UnitFailure struct {
	Unit    string `json:"unit"` // group key or pair key
	Stage   string `json:"stage"`
	Kind    string `json:"kind"` // empty_group | insufficient_data | singular_matrix
	Message string `json:"message"`
}

// GroupAnalysis bundles everything computed for one group. Any of the
// analysis fields may be nil when the group failed a precondition; Failure
// then says why.
type GroupAnalysis struct {
	Key          core.GroupKey      `json:"key"`
	Label        string             `json:"label"`
	RowCount     int                `json:"row_count"`
	CompleteRows int                `json:"complete_rows"`
	Adequacy     *AdequacyReport    `json:"adequacy,omitempty"`
	Solution     *FactorSolution    `json:"solution,omitempty"`
	Correlations *CorrelationMatrix `json:"correlations,omitempty"`
	Reliability  *ReliabilityReport `json:"reliability,omitempty"`
	Failure      *UnitFailure       `json:"failure,omitempty"`
}

// StudyResult is the immutable top-level output of one pipeline run.
type StudyResult struct {
	RunID       core.RunID          `json:"run_id"`
	CreatedAt   time.Time           `json:"created_at"`
	Config      AnalysisConfig      `json:"config"`
	Items       []core.ItemKey      `json:"items"`
	Groups      []GroupAnalysis     `json:"groups"`
	Bootstrap   []BootstrapEstimate `json:"bootstrap"`
	Comparisons []ComparisonReport  `json:"comparisons,omitempty"`
	Failures    []UnitFailure       `json:"failures,omitempty"`
}

// FailureCount returns the number of per-unit failures recorded in the run.
func (r *StudyResult) FailureCount() int {
	return len(r.Failures)
}
