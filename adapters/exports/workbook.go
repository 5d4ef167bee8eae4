package exports

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gofactor/domain/factor"
)

// WorkbookWriter renders a study result as a multi-sheet Excel workbook:
// one sheet per analysis stage, shaped for side-by-side group comparison.
type WorkbookWriter struct{}

// NewWorkbookWriter creates a workbook writer.
func NewWorkbookWriter() *WorkbookWriter {
	return &WorkbookWriter{}
}

// Build renders the workbook into a buffer, ready for download.
func (w *WorkbookWriter) Build(result *factor.StudyResult) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeSheets(f, result); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf, nil
}

// WriteFile saves the workbook to disk.
func (w *WorkbookWriter) WriteFile(path string, result *factor.StudyResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeSheets(f, result); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *WorkbookWriter) writeSheets(f *excelize.File, result *factor.StudyResult) error {
	sheets := []struct {
		name  string
		write func(*excelize.File, string, *factor.StudyResult) error
	}{
		{"Summary", writeSummary},
		{"Adequacy", writeAdequacy},
		{"Loadings", writeLoadings},
		{"Eigenvalues", writeEigenvalues},
		{"Reliability", writeReliability},
		{"Bootstrap", writeBootstrap},
		{"Comparisons", writeComparisons},
		{"Failures", writeFailures},
	}

	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}
		if err := sheet.write(f, sheet.name, result); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sheet.name, err)
		}
	}

	// Drop the default sheet and land on the summary.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	index, err := f.GetSheetIndex("Summary")
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	return nil
}

func writeSummary(f *excelize.File, sheet string, result *factor.StudyResult) error {
	items := make([]string, len(result.Items))
	for i, item := range result.Items {
		items[i] = item.String()
	}

	rows := [][]interface{}{
		{"Run ID", result.RunID.String()},
		{"Created At", result.CreatedAt.Format(time.RFC3339)},
		{"Items", strings.Join(items, ", ")},
		{"Factor Count", result.Config.FactorCount},
		{"Rotation", string(result.Config.Rotation)},
		{"Association", string(result.Config.Association)},
		{"Bootstrap Iterations", result.Config.BootstrapIterations},
		{"Bootstrap Fraction", result.Config.BootstrapFraction},
		{"Seed", result.Config.Seed},
		{},
		{"Group", "Label", "Rows", "Complete Rows", "Status"},
	}
	for _, group := range result.Groups {
		status := "ok"
		if group.Failure != nil {
			status = group.Failure.Kind + ": " + group.Failure.Message
		}
		rows = append(rows, []interface{}{
			group.Key.String(), group.Label, group.RowCount, group.CompleteRows, status,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeAdequacy(f *excelize.File, sheet string, result *factor.StudyResult) error {
	rows := [][]interface{}{
		{"Group", "Complete Rows", "Chi-Square", "DF", "P-Value", "Supported", "KMO Overall", "KMO Band"},
	}
	for _, group := range result.Groups {
		a := group.Adequacy
		if a == nil {
			continue
		}
		rows = append(rows, []interface{}{
			group.Key.String(), a.CompleteRows,
			cellValue(a.SphericityChiSquare), a.SphericityDF, cellValue(a.SphericityPValue),
			a.SphericitySupported(), cellValue(a.KMOOverall), factor.KMOBand(a.KMOOverall),
		})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Per-Item KMO"})
	header := []interface{}{"Item"}
	withAdequacy := make([]factor.GroupAnalysis, 0, len(result.Groups))
	for _, group := range result.Groups {
		if group.Adequacy != nil {
			withAdequacy = append(withAdequacy, group)
			header = append(header, group.Key.String())
		}
	}
	rows = append(rows, header)
	for i, item := range result.Items {
		row := []interface{}{item.String()}
		for _, group := range withAdequacy {
			if i < len(group.Adequacy.KMOPerItem) {
				row = append(row, cellValue(group.Adequacy.KMOPerItem[i]))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return writeRows(f, sheet, rows)
}

func writeLoadings(f *excelize.File, sheet string, result *factor.StudyResult) error {
	factorCount := result.Config.FactorCount
	header := []interface{}{"Group", "Item"}
	for k := 1; k <= factorCount; k++ {
		header = append(header, fmt.Sprintf("Factor %d", k))
	}
	header = append(header, "Communality")
	rows := [][]interface{}{header}

	for _, group := range result.Groups {
		s := group.Solution
		if s == nil {
			continue
		}
		for i, item := range s.Items {
			row := []interface{}{group.Key.String(), item.String()}
			for k := 0; k < factorCount; k++ {
				if i < len(s.Loadings) && k < len(s.Loadings[i]) {
					row = append(row, cellValue(s.Loadings[i][k]))
				} else {
					row = append(row, "")
				}
			}
			if i < len(s.Communalities) {
				row = append(row, cellValue(s.Communalities[i]))
			}
			rows = append(rows, row)
		}
	}
	return writeRows(f, sheet, rows)
}

func writeEigenvalues(f *excelize.File, sheet string, result *factor.StudyResult) error {
	rows := [][]interface{}{{"Group", "Position", "Eigenvalue", "Retained"}}
	for _, group := range result.Groups {
		s := group.Solution
		if s == nil {
			continue
		}
		for i, ev := range s.FullSpectrum {
			rows = append(rows, []interface{}{
				group.Key.String(), i + 1, cellValue(ev), i < s.FactorCount,
			})
		}
	}
	return writeRows(f, sheet, rows)
}

func writeReliability(f *excelize.File, sheet string, result *factor.StudyResult) error {
	rows := [][]interface{}{
		{"Group", "Cronbach Alpha", "Mean Inter-Item r", "In Optimal Range", "Items", "Complete Rows"},
	}
	for _, group := range result.Groups {
		r := group.Reliability
		if r == nil {
			continue
		}
		rows = append(rows, []interface{}{
			group.Key.String(), cellValue(r.CronbachAlpha), cellValue(r.MeanInterItem),
			r.InterItemOptimal(), r.Items, r.CompleteRows,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeBootstrap(f *excelize.File, sheet string, result *factor.StudyResult) error {
	rows := [][]interface{}{
		{"Group A", "Group B", "Mean", "CI 2.5%", "CI 97.5%", "Iterations", "Fraction", "Measure"},
	}
	for _, est := range result.Bootstrap {
		rows = append(rows, []interface{}{
			est.Pair.GroupA.String(), est.Pair.GroupB.String(),
			cellValue(est.Mean), cellValue(est.CILow), cellValue(est.CIHigh),
			est.Iterations, est.Fraction, string(est.Measure),
		})
	}
	return writeRows(f, sheet, rows)
}

func writeComparisons(f *excelize.File, sheet string, result *factor.StudyResult) error {
	rows := [][]interface{}{
		{"Kind", "Column", "Side A", "Side B", "U", "Chi-Square", "P-Value", "Phi", "Effect",
			"N A", "Median A", "N B", "Median B"},
	}
	for _, c := range result.Comparisons {
		row := []interface{}{
			c.Kind, c.Column, c.LabelA, c.LabelB,
			cellValue(c.UStatistic), cellValue(c.ChiSquare), cellValue(c.PValue),
			cellValue(c.Phi), c.EffectBand,
		}
		for _, side := range []*factor.DescriptiveStats{c.SideA, c.SideB} {
			if side != nil {
				row = append(row, side.N, cellValue(side.Median))
			} else {
				row = append(row, "", "")
			}
		}
		rows = append(rows, row)
	}
	return writeRows(f, sheet, rows)
}

func writeFailures(f *excelize.File, sheet string, result *factor.StudyResult) error {
	rows := [][]interface{}{{"Unit", "Stage", "Kind", "Message"}}
	for _, failure := range result.Failures {
		rows = append(rows, []interface{}{failure.Unit, failure.Stage, failure.Kind, failure.Message})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// cellValue keeps undefined statistics out of the workbook; Excel has no
// NaN cell.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
