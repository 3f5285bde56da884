package multiecho

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// PercentileFirstColumn and PercentileColumnCount locate the RMSE percentile
// columns (2nd, 25th, 50th, 75th, 98th) as the 4th to 8th confound columns
const (
	PercentileFirstColumn = 3
	PercentileColumnCount = 5
)

// Table is a parsed confound time series
type Table struct {
	Header []string
	Rows   [][]float64
}

// ReadConfounds parses a tab-separated confound table with a header row.
// Non-numeric cells such as "n/a" are read as NaN.
func ReadConfounds(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open confounds: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse confounds %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("confounds %s has no data rows", path)
	}

	t := &Table{Header: records[0]}
	for _, rec := range records[1:] {
		row := make([]float64, len(rec))
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				v = math.NaN()
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Percentiles extracts the percentile columns per row along with their header names
func (t *Table) Percentiles() ([][]float64, []string, error) {
	end := PercentileFirstColumn + PercentileColumnCount
	if len(t.Header) < end {
		return nil, nil, fmt.Errorf("confounds have %d columns, need %d", len(t.Header), end)
	}
	names := append([]string(nil), t.Header[PercentileFirstColumn:end]...)
	out := make([][]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if len(row) < end {
			return nil, nil, fmt.Errorf("confound row has %d columns, need %d", len(row), end)
		}
		out = append(out, append([]float64(nil), row[PercentileFirstColumn:end]...))
	}
	return out, names, nil
}

// ScaleMax returns the temporal mean of the 98th percentile column, located by
// header name and falling back to the last percentile column
func ScaleMax(percentiles [][]float64, names []string) float64 {
	col := len(names) - 1
	for i, n := range names {
		if strings.Contains(n, "98") {
			col = i
		}
	}
	var vals []float64
	for _, row := range percentiles {
		if col < len(row) && !math.IsNaN(row[col]) {
			vals = append(vals, row[col])
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// WriteTrace writes the percentile columns as a whitespace-separated 1D file
func WriteTrace(path string, percentiles [][]float64) error {
	var b strings.Builder
	for _, row := range percentiles {
		for i, v := range row {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
		}
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write rmse trace: %w", err)
	}
	return nil
}
