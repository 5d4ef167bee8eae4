package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gofactor/domain/survey"
	"gofactor/internal/errors"
)

// DataReader loads a survey export from an Excel or CSV file into a numeric
// table. Cells that do not parse as numbers (empty, NA markers, free text)
// become missing values.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string // empty means first sheet
}

// NewDataReader creates a reader for the given file, dispatching on its
// extension.
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// WithSheet selects a named worksheet instead of the first one. CSV input
// ignores the selection.
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// ReadTable reads the file into a survey table.
func (r *DataReader) ReadTable() (*survey.Table, error) {
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, errors.ReadError(r.filePath, err)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}

	if len(rows) < 2 {
		return nil, fmt.Errorf("%s file must have a header row and at least one data row", strings.ToUpper(r.fileType))
	}

	table, err := r.processRows(rows)
	if err != nil {
		return nil, err
	}

	log.Printf("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(table.Columns), table.RowCount())
	return table, nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.ReadError(r.filePath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}

	sheet := sheets[0]
	if r.sheet != "" {
		sheet = r.sheet
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.ReadError(r.filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // ragged rows are padded later
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows converts raw string rows into a numeric table. Short rows are
// padded with missing values; cells beyond the header are dropped.
func (r *DataReader) processRows(rows [][]string) (*survey.Table, error) {
	headerRow := rows[0]
	columns := make([]string, len(headerRow))
	for i, header := range headerRow {
		columns[i] = strings.TrimSpace(header)
	}

	data := make([][]float64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		values := make([]float64, len(columns))
		for j := range columns {
			if j < len(row) {
				values[j] = parseCell(row[j])
			} else {
				values[j] = math.NaN()
			}
		}
		data = append(data, values)
	}

	table := survey.NewTable(columns, data)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// parseCell converts one cell to a float. Survey exports mark missing
// answers with empty cells or NA variants, and some locales write decimal
// commas; anything else non-numeric (free-text answers) is missing too.
func parseCell(cell string) float64 {
	value := strings.TrimSpace(cell)
	switch strings.ToUpper(value) {
	case "", "NA", "N/A", "-":
		return math.NaN()
	}

	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64); err == nil {
		return v
	}
	return math.NaN()
}
