// Package gsr computes ghost-to-signal ratios along the two in-plane phase-encode axes.
//
// For each axis the brain mask is shifted by half the field of view in both directions;
// the union of the shifted copies minus the mask is the ghost region, and everything
// outside the mask and its shifted copies is the non-ghost background. The ratio is
//
//	(mean(signal, ghost) - mean(signal, non-ghost)) / median(signal, mask)
package gsr

import "math"

// Axis is an in-plane phase-encode axis
type Axis int

const (
	X Axis = iota
	Y
)

func (a Axis) String() string {
	if a == Y {
		return "y"
	}
	return "x"
}

// Result holds the per-axis ratios; NaN marks a ratio that was not computable
type Result struct {
	X float64
	Y float64
}

// NotComputable returns a result with both axes unavailable
func NotComputable() Result {
	return Result{X: math.NaN(), Y: math.NaN()}
}

func (r *Result) set(a Axis, v float64) {
	if a == Y {
		r.Y = v
	} else {
		r.X = v
	}
}

// Ratio combines the region means and the brain median into a ratio rounded to 4 digits.
// A zero or undefined median, or an undefined region mean, yields (NaN, false).
func Ratio(ghostMean, nonGhostMean, median float64) (float64, bool) {
	if median == 0 || math.IsNaN(median) || math.IsInf(median, 0) {
		return math.NaN(), false
	}
	if math.IsNaN(ghostMean) || math.IsNaN(nonGhostMean) {
		return math.NaN(), false
	}
	return Round4((ghostMean - nonGhostMean) / median), true
}

// Round4 rounds to 4 decimal digits
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
