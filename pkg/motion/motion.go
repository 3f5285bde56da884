// Package motion derives framewise-displacement (enorm) signals from rigid-body
// motion traces and applies the censoring policy.
package motion

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultWeights weight the three translations by 0.9 and the three rotations by 1.0
var DefaultWeights = []float64{0.9, 0.9, 0.9, 1, 1, 1}

// Censoring is the outcome of censoring an enorm trace at one limit
type Censoring struct {
	Limit   float64
	Count   int
	Indices []int
}

// ReadTrace reads a 6-column motion parameter file, one row per volume
func ReadTrace(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open motion trace: %w", err)
	}
	defer f.Close()

	var rows [][]float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 6 {
			return nil, fmt.Errorf("%s:%d: expected 6 motion parameters, got %d", path, line, len(fields))
		}
		row := make([]float64, 6)
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan motion trace: %w", err)
	}
	return rows, nil
}

// Enorm returns the weighted Euclidean norm of the frame-to-frame derivative of a
// motion trace, sqrt(sum(w[k] * d[k]^2)). The first volume has no predecessor and is 0.
func Enorm(trace [][]float64, weights []float64) []float64 {
	if len(weights) == 0 {
		weights = DefaultWeights
	}
	out := make([]float64, len(trace))
	diff := make([]float64, len(weights))
	for t := 1; t < len(trace); t++ {
		for k := range weights {
			d := trace[t][k] - trace[t-1][k]
			diff[k] = d * d
		}
		out[t] = math.Sqrt(floats.Dot(weights, diff))
	}
	return out
}

// Censor returns the indices whose enorm exceeds limit
func Censor(enorm []float64, limit float64) []int {
	var idx []int
	for i, v := range enorm {
		if v > limit {
			idx = append(idx, i)
		}
	}
	return idx
}

// CensorAll evaluates every limit independently, ordered by ascending limit
func CensorAll(enorm []float64, limits []float64) []Censoring {
	sorted := append([]float64(nil), limits...)
	sort.Float64s(sorted)

	out := make([]Censoring, 0, len(sorted))
	for _, l := range sorted {
		idx := Censor(enorm, l)
		out = append(out, Censoring{Limit: l, Count: len(idx), Indices: idx})
	}
	return out
}

// Summary holds the scalar summaries of an enorm trace
type Summary struct {
	Mean float64
	Max  float64
}

// Summarize returns mean and max of a trace; an empty trace is not computable
func Summarize(trace []float64) Summary {
	if len(trace) == 0 {
		return Summary{Mean: math.NaN(), Max: math.NaN()}
	}
	return Summary{Mean: stat.Mean(trace, nil), Max: floats.Max(trace)}
}

// Mean returns the mean of a series, NaN when empty
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return stat.Mean(series, nil)
}

// Union merges index lists into one sorted, de-duplicated list
func Union(lists ...[]int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range lists {
		for _, v := range l {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// WriteSeries writes one value per line for plotting
func WriteSeries(path string, series []float64) error {
	var b strings.Builder
	for _, v := range series {
		b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write series: %w", err)
	}
	return nil
}
