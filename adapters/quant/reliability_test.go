package quant

import (
	"errors"
	"math"
	"testing"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
)

// TestReliability_PerfectScale verifies alpha is exactly 1 for perfectly
// correlated items under the population-variance formula.
func TestReliability_PerfectScale(t *testing.T) {
	m := &survey.ItemMatrix{
		Items: []core.ItemKey{"g01", "g02", "g03"},
		Rows: [][]float64{
			{1, 1, 1},
			{2, 2, 2},
			{3, 3, 3},
			{4, 4, 4},
		},
	}
	engine := NewReliabilityEngine()

	report, err := engine.Analyze(m, CorrelationMatrixOf(m, factor.MeasurePearson))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if math.Abs(report.CronbachAlpha-1) > 1e-9 {
		t.Errorf("Expected alpha 1 for duplicated items, got %f", report.CronbachAlpha)
	}
	if math.Abs(report.MeanInterItem-1) > 1e-9 {
		t.Errorf("Expected mean inter-item correlation 1, got %f", report.MeanInterItem)
	}
	if report.Items != 3 || report.CompleteRows != 4 {
		t.Errorf("Expected 3 items over 4 rows, got %d over %d", report.Items, report.CompleteRows)
	}
}

// TestReliability_StructureBeatsNoise verifies alpha orders coherent and
// incoherent batteries correctly and stays in bounds.
func TestReliability_StructureBeatsNoise(t *testing.T) {
	engine := NewReliabilityEngine()

	coherent := makeClusteredMatrix(80, []int{6}, 0.6, 107)
	noise := makeNoiseMatrix(80, 6, 109)

	structured, err := engine.Analyze(coherent, CorrelationMatrixOf(coherent, factor.MeasurePearson))
	if err != nil {
		t.Fatalf("Analyze coherent failed: %v", err)
	}
	random, err := engine.Analyze(noise, CorrelationMatrixOf(noise, factor.MeasurePearson))
	if err != nil {
		t.Fatalf("Analyze noise failed: %v", err)
	}

	for name, report := range map[string]*factor.ReliabilityReport{"structured": structured, "noise": random} {
		if report.CronbachAlpha < 0 || report.CronbachAlpha > 1 {
			t.Errorf("%s: alpha out of [0,1]: %f", name, report.CronbachAlpha)
		}
	}
	if structured.CronbachAlpha <= random.CronbachAlpha {
		t.Errorf("Expected structured alpha (%f) above noise alpha (%f)",
			structured.CronbachAlpha, random.CronbachAlpha)
	}
	if structured.CronbachAlpha < 0.8 {
		t.Errorf("Expected high alpha for a clean one-factor battery, got %f", structured.CronbachAlpha)
	}
}

// TestReliability_ZeroTotalVariance verifies the degenerate clamp
func TestReliability_ZeroTotalVariance(t *testing.T) {
	// Anti-correlated pair: every total score is 5.
	m := &survey.ItemMatrix{
		Items: []core.ItemKey{"g01", "g02"},
		Rows: [][]float64{
			{1, 4},
			{2, 3},
			{3, 2},
			{4, 1},
		},
	}
	engine := NewReliabilityEngine()

	report, err := engine.Analyze(m, CorrelationMatrixOf(m, factor.MeasurePearson))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.CronbachAlpha != 0 {
		t.Errorf("Expected alpha 0 for zero total variance, got %f", report.CronbachAlpha)
	}
}

// TestReliability_CompleteCasesOnly verifies rows with gaps are dropped
func TestReliability_CompleteCasesOnly(t *testing.T) {
	m := makeClusteredMatrix(40, []int{4}, 0.5, 113)
	m.Rows[5][0] = math.NaN()
	m.Rows[17][3] = math.NaN()

	engine := NewReliabilityEngine()
	report, err := engine.Analyze(m, CorrelationMatrixOf(m, factor.MeasureKendall))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.CompleteRows != 38 {
		t.Errorf("Expected 38 complete rows, got %d", report.CompleteRows)
	}
}

// TestReliability_Failures verifies the precondition errors
func TestReliability_Failures(t *testing.T) {
	engine := NewReliabilityEngine()

	t.Run("single item", func(t *testing.T) {
		m := &survey.ItemMatrix{Items: []core.ItemKey{"g01"}, Rows: [][]float64{{1}, {2}, {3}}}
		_, err := engine.Analyze(m, CorrelationMatrixOf(m, factor.MeasurePearson))
		if !errors.Is(err, core.ErrInsufficientData) {
			t.Errorf("Expected insufficient-data error, got %v", err)
		}
	})

	t.Run("one complete row", func(t *testing.T) {
		nan := math.NaN()
		m := &survey.ItemMatrix{
			Items: []core.ItemKey{"g01", "g02"},
			Rows:  [][]float64{{1, 2}, {nan, 3}, {4, nan}},
		}
		_, err := engine.Analyze(m, CorrelationMatrixOf(m, factor.MeasurePearson))
		if !errors.Is(err, core.ErrInsufficientData) {
			t.Errorf("Expected insufficient-data error, got %v", err)
		}
	})
}

// TestMeanInterItem_SkipsUndefined verifies NaN cells are excluded
func TestMeanInterItem_SkipsUndefined(t *testing.T) {
	corr := &factor.CorrelationMatrix{
		Items: []core.ItemKey{"g01", "g02", "g03"},
		Values: [][]float64{
			{1, 0.2, 0.3},
			{0.2, 1, 0.4},
			{0.3, 0.4, 1},
		},
		Measure: factor.MeasurePearson,
	}

	if got := MeanInterItem(corr); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("Expected mean 0.3, got %f", got)
	}

	report := &factor.ReliabilityReport{MeanInterItem: 0.3}
	if !report.InterItemOptimal() {
		t.Error("Expected 0.3 to fall in the optimal band")
	}

	corr.Values[1][2] = math.NaN()
	corr.Values[2][1] = math.NaN()
	if got := MeanInterItem(corr); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("Expected mean 0.25 after skipping the NaN cell, got %f", got)
	}

	corr.Values[0][1], corr.Values[1][0] = math.NaN(), math.NaN()
	corr.Values[0][2], corr.Values[2][0] = math.NaN(), math.NaN()
	if got := MeanInterItem(corr); !math.IsNaN(got) {
		t.Errorf("Expected NaN when every pair is undefined, got %f", got)
	}
}
