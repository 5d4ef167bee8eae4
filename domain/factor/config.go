package factor

import (
	"gofactor/domain/core"
)

// Default analysis parameters, matching the study the pipeline was built for.
const (
	DefaultFactorCount         = 3
	DefaultBootstrapIterations = 1000
	DefaultBootstrapFraction   = 0.6
	DefaultRotationTol         = 1e-5
	DefaultRotationMaxIter     = 500
	DefaultSeed                = 42
)

// AnalysisConfig is the explicit configuration for one pipeline run. It is
// validated up front; a violation is fatal to the whole run since it
// indicates a caller contract violation rather than a data condition.
type AnalysisConfig struct {
	FactorCount         int      `json:"factor_count"`
	Rotation            Rotation `json:"rotation"`
	Association         Measure  `json:"association"`
	BootstrapIterations int      `json:"bootstrap_iterations"`
	BootstrapFraction   float64  `json:"bootstrap_fraction"`
	RotationTol         float64  `json:"rotation_tol"`
	RotationMaxIter     int      `json:"rotation_max_iter"`
	Seed                int64    `json:"seed"`
}

// DefaultConfig returns the canonical study configuration: three factors,
// varimax rotation, kendall association, 1000 bootstrap iterations at a 0.6
// resample fraction.
func DefaultConfig() AnalysisConfig {
	return AnalysisConfig{
		FactorCount:         DefaultFactorCount,
		Rotation:            RotationVarimax,
		Association:         MeasureKendall,
		BootstrapIterations: DefaultBootstrapIterations,
		BootstrapFraction:   DefaultBootstrapFraction,
		RotationTol:         DefaultRotationTol,
		RotationMaxIter:     DefaultRotationMaxIter,
		Seed:                DefaultSeed,
	}
}

// Validate checks every recognized option before any computation begins.
func (c AnalysisConfig) Validate() error {
	if c.FactorCount < 1 {
		return core.NewConfigurationError("factor_count", "must be >= 1")
	}
	if !c.Rotation.Valid() {
		return core.NewConfigurationError("rotation", "must be varimax or none")
	}
	if !c.Association.Valid() {
		return core.NewConfigurationError("association", "must be pearson, spearman or kendall")
	}
	if c.BootstrapIterations < 1 {
		return core.NewConfigurationError("bootstrap_iterations", "must be >= 1")
	}
	if c.BootstrapFraction <= 0 || c.BootstrapFraction > 1 {
		return core.NewConfigurationError("bootstrap_fraction", "must be in (0,1]")
	}
	if c.RotationTol <= 0 {
		return core.NewConfigurationError("rotation_tol", "must be > 0")
	}
	if c.RotationMaxIter < 1 {
		return core.NewConfigurationError("rotation_max_iter", "must be >= 1")
	}
	return nil
}
