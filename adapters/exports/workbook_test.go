package exports

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"gofactor/domain/core"
	"gofactor/domain/factor"
)

func sampleResult() *factor.StudyResult {
	items := []core.ItemKey{"g01", "g02", "g03"}
	return &factor.StudyResult{
		RunID:     "run-wb",
		CreatedAt: time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC),
		Config:    factor.AnalysisConfig{FactorCount: 2, Rotation: factor.RotationVarimax, Association: factor.MeasureKendall, BootstrapIterations: 100, BootstrapFraction: 0.6, RotationTol: 1e-5, RotationMaxIter: 500, Seed: 42},
		Items:     items,
		Groups: []factor.GroupAnalysis{
			{
				Key: "format1_orderA", Label: "Single Page - Order A",
				RowCount: 120, CompleteRows: 114,
				Adequacy: &factor.AdequacyReport{
					SphericityChiSquare: 215.4, SphericityDF: 3, SphericityPValue: 0.00001,
					KMOOverall: 0.84, KMOPerItem: []float64{0.81, 0.86, 0.85}, CompleteRows: 114,
				},
				Solution: &factor.FactorSolution{
					Items:              items,
					Loadings:           [][]float64{{0.91, 0.10}, {0.88, 0.07}, {0.12, 0.83}},
					InitialEigenvalues: []float64{1.9, 0.8},
					FullSpectrum:       []float64{1.9, 0.8, 0.3},
					Communalities:      []float64{0.84, 0.78, 0.70},
					FactorCount:        2, RotationConverged: true, RotationIterations: 6,
				},
				Reliability: &factor.ReliabilityReport{
					CronbachAlpha: 0.87, MeanInterItem: 0.42, Items: 3, CompleteRows: 114,
				},
			},
			{
				Key: "format2_orderB", Label: "Slides - Order B",
				RowCount: 9, CompleteRows: 9,
				Failure: &factor.UnitFailure{
					Unit: "format2_orderB", Stage: "extraction",
					Kind: "insufficient_data", Message: "need at least 10 complete rows, have 9",
				},
			},
		},
		Bootstrap: []factor.BootstrapEstimate{
			{
				Pair: core.PairKey{GroupA: "format1_orderA", GroupB: "format2_orderB"},
				Mean: 0.41, CILow: 0.18, CIHigh: 0.63,
				Iterations: 100, Fraction: 0.6, Measure: factor.MeasureKendall,
			},
		},
		Comparisons: []factor.ComparisonReport{
			{
				Kind: factor.ComparisonMannWhitney, Column: "interviewtime",
				LabelA: "Single Page", LabelB: "Slides",
				UStatistic: 1234, PValue: 0.021,
				SideA: &factor.DescriptiveStats{N: 60, Median: 188},
				SideB: &factor.DescriptiveStats{N: 58, Median: 204},
			},
		},
		Failures: []factor.UnitFailure{
			{Unit: "format2_orderB", Stage: "extraction", Kind: "insufficient_data", Message: "need at least 10 complete rows, have 9"},
		},
	}
}

// TestWorkbook_SheetLayout verifies every stage gets a sheet and the
// default sheet is gone.
func TestWorkbook_SheetLayout(t *testing.T) {
	buf, err := NewWorkbookWriter().Build(sampleResult())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer f.Close()

	want := []string{"Summary", "Adequacy", "Loadings", "Eigenvalues", "Reliability", "Bootstrap", "Comparisons", "Failures"}
	sheets := f.GetSheetList()
	if len(sheets) != len(want) {
		t.Fatalf("Expected %d sheets, got %v", len(want), sheets)
	}
	for _, name := range want {
		if idx, err := f.GetSheetIndex(name); err != nil || idx == -1 {
			t.Errorf("Expected sheet %s to exist", name)
		}
	}
}

// TestWorkbook_SummaryCells verifies run metadata and the group status
// table.
func TestWorkbook_SummaryCells(t *testing.T) {
	buf, err := NewWorkbookWriter().Build(sampleResult())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("Summary", "B1"); got != "run-wb" {
		t.Errorf("Expected run ID in B1, got %q", got)
	}
	if got, _ := f.GetCellValue("Summary", "B3"); got != "g01, g02, g03" {
		t.Errorf("Expected item list in B3, got %q", got)
	}
	if got, _ := f.GetCellValue("Summary", "A12"); got != "format1_orderA" {
		t.Errorf("Expected first group row at A12, got %q", got)
	}
	if got, _ := f.GetCellValue("Summary", "E13"); got != "insufficient_data: need at least 10 complete rows, have 9" {
		t.Errorf("Expected failure status in E13, got %q", got)
	}
}

// TestWorkbook_LoadingsCells verifies the loadings grid carries values and
// skips failed groups.
func TestWorkbook_LoadingsCells(t *testing.T) {
	buf, err := NewWorkbookWriter().Build(sampleResult())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Loadings")
	if err != nil {
		t.Fatalf("Failed to read Loadings: %v", err)
	}
	// Header plus three item rows for the one solved group.
	if len(rows) != 4 {
		t.Fatalf("Expected 4 loading rows, got %d", len(rows))
	}

	got, _ := f.GetCellValue("Loadings", "C2")
	loading, err := strconv.ParseFloat(got, 64)
	if err != nil || loading != 0.91 {
		t.Errorf("Expected loading 0.91 in C2, got %q", got)
	}
	if got, _ := f.GetCellValue("Loadings", "E2"); got == "" {
		t.Error("Expected communality in E2")
	}
}

// TestWorkbook_BootstrapAndComparisons verifies pair estimates and test
// rows.
func TestWorkbook_BootstrapAndComparisons(t *testing.T) {
	buf, err := NewWorkbookWriter().Build(sampleResult())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Failed to reopen workbook: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("Bootstrap", "A2"); got != "format1_orderA" {
		t.Errorf("Expected pair group A in A2, got %q", got)
	}
	if got, _ := f.GetCellValue("Bootstrap", "H2"); got != "kendall" {
		t.Errorf("Expected measure kendall in H2, got %q", got)
	}
	if got, _ := f.GetCellValue("Comparisons", "A2"); got != "mann_whitney" {
		t.Errorf("Expected comparison kind in A2, got %q", got)
	}
	if got, _ := f.GetCellValue("Failures", "D2"); got == "" {
		t.Error("Expected failure message in D2")
	}
}

// TestWorkbook_WriteFile verifies the on-disk path.
func TestWorkbook_WriteFile(t *testing.T) {
	path := t.TempDir() + "/result.xlsx"
	if err := NewWorkbookWriter().WriteFile(path, sampleResult()); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to open saved workbook: %v", err)
	}
	defer f.Close()
	if idx, err := f.GetSheetIndex("Summary"); err != nil || idx == -1 {
		t.Error("Expected saved workbook to contain Summary sheet")
	}
}
