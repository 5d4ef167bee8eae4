package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gofactor/adapters/quant"
	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
	"gofactor/ports"
)

// maxConcurrentGroups bounds the per-group analysis fan-out. The canonical
// study has four groups; wider runs queue on the semaphore.
const maxConcurrentGroups = 4

// maxCompletionSeconds is the cutoff above which a completion time counts as
// an abandoned session rather than reading time.
const maxCompletionSeconds = 3600

// AnalysisService runs the full factor-structure pipeline for one survey
// table: population filtering, group partitioning, per-group adequacy and
// extraction with reliability, pairwise bootstrap stability, and the
// configured between-group comparisons. Results are assembled into one
// immutable StudyResult and persisted through the result store.
type AnalysisService struct {
	adequacy    *quant.AdequacyEngine
	extraction  *quant.ExtractionEngine
	reliability *quant.ReliabilityEngine
	bootstrap   *quant.BootstrapEstimator
	comparisons *quant.ComparisonEngine

	store ports.ResultStore
	sink  ports.ProgressSink

	groupSlots *semaphore.Weighted
}

// NewAnalysisService wires the statistical engines to the injected ports.
// Store and sink may be nil; persistence and progress reporting are then
// skipped.
func NewAnalysisService(rng ports.RNGPort, store ports.ResultStore, sink ports.ProgressSink) *AnalysisService {
	return &AnalysisService{
		adequacy:    quant.NewAdequacyEngine(),
		extraction:  quant.NewExtractionEngine(),
		reliability: quant.NewReliabilityEngine(),
		bootstrap:   quant.NewBootstrapEstimator(rng),
		comparisons: quant.NewComparisonEngine(),
		store:       store,
		sink:        sink,
		groupSlots:  semaphore.NewWeighted(maxConcurrentGroups),
	}
}

// StudyRequest carries one run's inputs. The filter conditions select the
// study population before partitioning; comparisons run on the raw table
// under their own row filters.
type StudyRequest struct {
	Table       *survey.Table         `json:"table"`
	Items       []core.ItemKey        `json:"items"`
	Filter      []survey.Condition    `json:"filter,omitempty"`
	Groups      []survey.GroupSpec    `json:"groups"`
	Config      factor.AnalysisConfig `json:"config"`
	Comparisons []ComparisonSpec      `json:"comparisons,omitempty"`
}

// ComparisonSpec declares one between-group contrast: a numeric column split
// into two sides by a categorical code and tested with Mann-Whitney U, or a
// response-indicator column tabulated into a 2x2 contingency and tested with
// chi-square.
type ComparisonSpec struct {
	Kind        string             `json:"kind"`
	Column      string             `json:"column"`
	Where       []survey.Condition `json:"where,omitempty"`
	SplitColumn string             `json:"split_column"`
	ValueA      float64            `json:"value_a"`
	ValueB      float64            `json:"value_b"`
	LabelA      string             `json:"label_a"`
	LabelB      string             `json:"label_b"`
	// PresentValue is the indicator code counted as a response in the
	// chi-square contingency. Ignored for Mann-Whitney.
	PresentValue float64 `json:"present_value,omitempty"`
}

// CompletionTimeSpec builds the canonical completion-time contrast between
// the two presentation formats, capped at the one-hour cutoff.
func CompletionTimeSpec(timeColumn, formatColumn string) ComparisonSpec {
	return ComparisonSpec{
		Kind:   factor.ComparisonMannWhitney,
		Column: timeColumn,
		Where: []survey.Condition{
			{Column: timeColumn, Op: survey.OpLt, Value: maxCompletionSeconds},
		},
		SplitColumn: formatColumn,
		ValueA:      1,
		ValueB:      2,
		LabelA:      "Single Page",
		LabelB:      "Slides",
	}
}

// TextResponseSpec builds the canonical response-rate contrast: whether the
// share of respondents leaving a free-text answer differs between the two
// presentation formats. The indicator column codes 1 = answered.
func TextResponseSpec(indicatorColumn, formatColumn string) ComparisonSpec {
	return ComparisonSpec{
		Kind:         factor.ComparisonChiSquare,
		Column:       indicatorColumn,
		SplitColumn:  formatColumn,
		ValueA:       1,
		ValueB:       2,
		LabelA:       "Single Page",
		LabelB:       "Slides",
		PresentValue: 1,
	}
}

// RunStudy executes the whole pipeline for one request and returns the
// assembled StudyResult.
//
// Failures local to one group, pair or comparison are recorded in the result
// and never abort their siblings; only an invalid configuration (or a
// cancelled context) is fatal. A store failure is logged, not returned: the
// computed result is still valid.
func (s *AnalysisService) RunStudy(ctx context.Context, req StudyRequest) (*factor.StudyResult, error) {
	startTime := time.Now()

	if req.Table == nil {
		return nil, core.NewConfigurationError("table", "must not be nil")
	}
	if len(req.Items) == 0 {
		return nil, core.NewConfigurationError("items", "must not be empty")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if req.Config.FactorCount > len(req.Items) {
		return nil, core.NewConfigurationError("factor_count", "exceeds item count")
	}

	runID := core.NewRunID()
	s.publish(ports.ProgressEvent{
		Kind:   ports.EventRunStarted,
		RunID:  runID,
		Fields: map[string]float64{"rows": float64(req.Table.RowCount())},
	})

	filtered, err := req.Table.Filter(req.Filter)
	if err != nil {
		return nil, err
	}

	groups, err := survey.Partition(filtered, req.Items, req.Groups)
	if err != nil {
		return nil, err
	}

	// Groups share no mutable state, so their stages fan out across the
	// semaphore. Each slot writes only its own index.
	analyses := make([]factor.GroupAnalysis, len(groups))
	matrices := make([]*survey.ItemMatrix, len(groups))
	var wg sync.WaitGroup
	var acquireErr error
	for i := range groups {
		if err := s.groupSlots.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer s.groupSlots.Release(1)
			analyses[i], matrices[i] = s.analyzeGroup(runID, groups[i], req.Config)
		}(i)
	}
	wg.Wait()
	if acquireErr != nil {
		return nil, acquireErr
	}

	// Loadings from every group must reference the run's ordered item set,
	// or downstream alignment (workbook columns, fingerprints) is garbage.
	for _, analysis := range analyses {
		if analysis.Solution == nil {
			continue
		}
		if !sameItemOrder(analysis.Solution.Items, req.Items) {
			return nil, fmt.Errorf("group %s: solution items diverge from the run's item order", analysis.Key)
		}
	}

	var failures []factor.UnitFailure
	for _, analysis := range analyses {
		if analysis.Failure != nil {
			failures = append(failures, *analysis.Failure)
		}
	}

	// Pairwise stability, a <= b with self-pairs included as sanity checks.
	// Empty groups have no matrix and are skipped; any other per-pair
	// precondition failure is recorded and the remaining pairs proceed.
	var estimates []factor.BootstrapEstimate
	for i := 0; i < len(groups); i++ {
		if matrices[i] == nil {
			continue
		}
		for j := i; j < len(groups); j++ {
			if matrices[j] == nil {
				continue
			}
			pair := core.PairKey{GroupA: groups[i].Key, GroupB: groups[j].Key}
			estimate, err := s.bootstrap.Estimate(ctx, quant.BootstrapRequest{
				Pair:       pair,
				MatrixA:    matrices[i],
				MatrixB:    matrices[j],
				Measure:    req.Config.Association,
				Fraction:   req.Config.BootstrapFraction,
				Iterations: req.Config.BootstrapIterations,
				Seed:       req.Config.Seed,
			})
			if err != nil {
				if !core.IsUnitFailure(err) {
					return nil, err
				}
				failures = append(failures, factor.UnitFailure{
					Unit:    pair.String(),
					Stage:   "bootstrap",
					Kind:    failureKind(err),
					Message: err.Error(),
				})
				s.publish(ports.ProgressEvent{
					Kind:    ports.EventUnitFailed,
					RunID:   runID,
					Pair:    pair,
					Message: "bootstrap: " + err.Error(),
				})
				continue
			}
			estimates = append(estimates, *estimate)
			s.publish(ports.ProgressEvent{
				Kind:  ports.EventBootstrapDone,
				RunID: runID,
				Pair:  pair,
				Fields: map[string]float64{
					"mean":    estimate.Mean,
					"ci_low":  estimate.CILow,
					"ci_high": estimate.CIHigh,
				},
			})
		}
	}

	var reports []factor.ComparisonReport
	for _, spec := range req.Comparisons {
		report, err := s.compare(req.Table, spec)
		if err != nil {
			if !core.IsUnitFailure(err) {
				return nil, err
			}
			failures = append(failures, factor.UnitFailure{
				Unit:    spec.Kind + ":" + spec.Column,
				Stage:   "comparison",
				Kind:    failureKind(err),
				Message: err.Error(),
			})
			s.publish(ports.ProgressEvent{
				Kind:    ports.EventUnitFailed,
				RunID:   runID,
				Message: "comparison " + spec.Column + ": " + err.Error(),
			})
			continue
		}
		reports = append(reports, *report)
	}

	result := &factor.StudyResult{
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
		Config:      req.Config,
		Items:       append([]core.ItemKey(nil), req.Items...),
		Groups:      analyses,
		Bootstrap:   estimates,
		Comparisons: reports,
		Failures:    failures,
	}

	if s.store != nil {
		if err := s.store.Save(ctx, result); err != nil {
			log.Printf("[AnalysisService] Failed to persist run %s: %v", runID, err)
		}
	}

	runtimeMs := time.Since(startTime).Milliseconds()
	s.publish(ports.ProgressEvent{
		Kind:  ports.EventRunFinished,
		RunID: runID,
		Fields: map[string]float64{
			"groups":      float64(len(analyses)),
			"failures":    float64(len(failures)),
			"duration_ms": float64(runtimeMs),
		},
	})
	log.Printf("[AnalysisService] Run %s finished in %dms (%d groups, %d pairs, %d failures)",
		runID, runtimeMs, len(analyses), len(estimates), len(failures))

	return result, nil
}

// analyzeGroup runs the per-group stages. Failures are recorded on the
// analysis and never abort sibling groups; the returned matrix feeds the
// pairwise bootstrap stage and is nil only for empty groups.
func (s *AnalysisService) analyzeGroup(runID core.RunID, group survey.FormatGroup, cfg factor.AnalysisConfig) (factor.GroupAnalysis, *survey.ItemMatrix) {
	analysis := factor.GroupAnalysis{
		Key:      group.Key,
		Label:    group.Label,
		RowCount: group.Matrix.RowCount(),
	}

	if group.Empty() {
		err := core.NewEmptyGroupError(group.Key)
		analysis.Failure = &factor.UnitFailure{
			Unit:    string(group.Key),
			Stage:   "partition",
			Kind:    failureKind(err),
			Message: err.Error(),
		}
		s.publish(ports.ProgressEvent{
			Kind:    ports.EventGroupEmpty,
			RunID:   runID,
			Group:   group.Key,
			Message: err.Error(),
		})
		return analysis, nil
	}

	analysis.CompleteRows = group.Matrix.CompleteCases().RowCount()
	s.publish(ports.ProgressEvent{
		Kind:  ports.EventGroupPartitioned,
		RunID: runID,
		Group: group.Key,
		Fields: map[string]float64{
			"rows":          float64(analysis.RowCount),
			"complete_rows": float64(analysis.CompleteRows),
		},
	})

	adequacy, err := s.adequacy.Analyze(group.Matrix)
	if err != nil {
		return s.failGroup(runID, analysis, "adequacy", err), group.Matrix
	}
	analysis.Adequacy = adequacy
	s.publish(ports.ProgressEvent{
		Kind:  ports.EventAdequacyComputed,
		RunID: runID,
		Group: group.Key,
		Fields: map[string]float64{
			"kmo":          adequacy.KMOOverall,
			"sphericity_p": adequacy.SphericityPValue,
		},
	})

	solution, err := s.extraction.Extract(group.Matrix, cfg)
	if err != nil {
		return s.failGroup(runID, analysis, "extraction", err), group.Matrix
	}
	analysis.Solution = solution
	s.publish(ports.ProgressEvent{
		Kind:  ports.EventExtractionDone,
		RunID: runID,
		Group: group.Key,
		Fields: map[string]float64{
			"factors":    float64(solution.FactorCount),
			"iterations": float64(solution.RotationIterations),
		},
	})
	if !solution.RotationConverged {
		s.publish(ports.ProgressEvent{
			Kind:    ports.EventRotationDiverged,
			RunID:   runID,
			Group:   group.Key,
			Message: "rotation stopped at the iteration cap",
			Fields:  map[string]float64{"iterations": float64(solution.RotationIterations)},
		})
	}

	// The reported matrix uses the configured association over all group
	// rows, pairwise-complete, so it matches what the bootstrap resamples.
	analysis.Correlations = quant.CorrelationMatrixOf(group.Matrix, cfg.Association)

	reliability, err := s.reliability.Analyze(group.Matrix, analysis.Correlations)
	if err != nil {
		return s.failGroup(runID, analysis, "reliability", err), group.Matrix
	}
	analysis.Reliability = reliability

	return analysis, group.Matrix
}

// failGroup records a unit-local failure and leaves the remaining stages of
// this group unattempted.
func (s *AnalysisService) failGroup(runID core.RunID, analysis factor.GroupAnalysis, stage string, err error) factor.GroupAnalysis {
	analysis.Failure = &factor.UnitFailure{
		Unit:    string(analysis.Key),
		Stage:   stage,
		Kind:    failureKind(err),
		Message: err.Error(),
	}
	s.publish(ports.ProgressEvent{
		Kind:    ports.EventUnitFailed,
		RunID:   runID,
		Group:   analysis.Key,
		Message: stage + ": " + err.Error(),
	})
	return analysis
}

// compare runs one declarative contrast on the raw table. Comparisons filter
// rows independently of the factor-analysis population filter.
func (s *AnalysisService) compare(t *survey.Table, spec ComparisonSpec) (*factor.ComparisonReport, error) {
	subset := t
	if len(spec.Where) > 0 {
		var err error
		subset, err = t.Filter(spec.Where)
		if err != nil {
			return nil, err
		}
	}

	valuesA, err := sideValues(subset, spec, spec.ValueA)
	if err != nil {
		return nil, err
	}
	valuesB, err := sideValues(subset, spec, spec.ValueB)
	if err != nil {
		return nil, err
	}

	switch spec.Kind {
	case factor.ComparisonMannWhitney:
		return s.comparisons.MannWhitney(spec.Column, spec.LabelA, spec.LabelB, valuesA, valuesB)
	case factor.ComparisonChiSquare:
		observed := contingency(valuesA, valuesB, spec.PresentValue)
		return s.comparisons.ChiSquare2x2(spec.Column, spec.LabelA, spec.LabelB, observed)
	default:
		return nil, core.NewConfigurationError("comparison_kind", fmt.Sprintf("unknown kind %q", spec.Kind))
	}
}

// sideValues extracts the tested column for the rows on one side of the
// split. Missing values stay in; the tests drop them per side.
func sideValues(t *survey.Table, spec ComparisonSpec, splitValue float64) ([]float64, error) {
	side, err := t.Filter([]survey.Condition{{Column: spec.SplitColumn, Op: survey.OpEq, Value: splitValue}})
	if err != nil {
		return nil, err
	}
	j, ok := side.ColumnIndex(spec.Column)
	if !ok {
		return nil, core.NewUnknownColumnError(spec.Column)
	}
	values := make([]float64, 0, len(side.Rows))
	for _, row := range side.Rows {
		values = append(values, row[j])
	}
	return values, nil
}

// contingency tabulates responder counts per side: the first column counts
// cells equal to presentValue, the second every other observed cell.
func contingency(sideA, sideB []float64, presentValue float64) [2][2]float64 {
	var observed [2][2]float64
	for _, v := range sideA {
		if math.IsNaN(v) {
			continue
		}
		if v == presentValue {
			observed[0][0]++
		} else {
			observed[0][1]++
		}
	}
	for _, v := range sideB {
		if math.IsNaN(v) {
			continue
		}
		if v == presentValue {
			observed[1][0]++
		} else {
			observed[1][1]++
		}
	}
	return observed
}

func (s *AnalysisService) publish(event ports.ProgressEvent) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(event)
}

// failureKind maps a unit-local error onto its reported failure kind.
func failureKind(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyGroup):
		return "empty_group"
	case errors.Is(err, core.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, core.ErrSingularMatrix):
		return "singular_matrix"
	default:
		return "internal"
	}
}

func sameItemOrder(a, b []core.ItemKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
