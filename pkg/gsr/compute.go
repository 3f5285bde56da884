package gsr

import (
	"context"
	"fmt"
	"math"
	"strings"

	"bidsqc/pkg/toolkit"
)

// Toolkit is the subset of delegate operations the ghost computation needs
type Toolkit interface {
	Tstat(ctx context.Context, vol, stat, out string) error
	Automask(ctx context.Context, vol string, clfrac float64, out string) error
	Dimensions(ctx context.Context, vol string) (int, int, error)
	ShiftMask(ctx context.Context, mask string, di, dj int, out string) error
	Calc(ctx context.Context, out, expr string, inputs ...string) error
	MaskAverage(ctx context.Context, vol, mask string) (float64, error)
	MaskMedian(ctx context.Context, vol, mask string) (float64, error)
}

// Params controls one per-file ghost computation
type Params struct {
	// ScratchParent is where the per-file scratch directory is created
	ScratchParent string

	// Label names the scratch directory, usually the file stem
	Label string

	// Clfrac is the automask clip fraction
	Clfrac float64

	// KeepScratch leaves intermediate masks on disk
	KeepScratch bool
}

// Compute runs the ghost computation for one functional file through the toolkit.
// All intermediates live in a unique scratch directory removed on every exit path.
func Compute(ctx context.Context, tk Toolkit, vol string, p Params) (Result, error) {
	scratch, err := toolkit.NewScratch(p.ScratchParent, "gsr_"+p.Label, p.KeepScratch)
	if err != nil {
		return NotComputable(), err
	}
	defer scratch.Close()

	mean := scratch.Path("mean.nii.gz")
	if err := tk.Tstat(ctx, vol, "mean", mean); err != nil {
		return NotComputable(), fmt.Errorf("mean volume: %w", err)
	}
	mask := scratch.Path("mask.nii.gz")
	if err := tk.Automask(ctx, mean, p.Clfrac, mask); err != nil {
		return NotComputable(), fmt.Errorf("brain mask: %w", err)
	}
	nx, ny, err := tk.Dimensions(ctx, vol)
	if err != nil {
		return NotComputable(), fmt.Errorf("dimensions: %w", err)
	}
	median, err := tk.MaskMedian(ctx, mean, mask)
	if err != nil {
		return NotComputable(), fmt.Errorf("brain median: %w", err)
	}

	res := NotComputable()
	for _, axis := range []Axis{X, Y} {
		ratio, err := axisRatio(ctx, tk, scratch, mean, mask, axis, nx, ny, median)
		if err != nil {
			return res, fmt.Errorf("axis %s: %w", axis, err)
		}
		res.set(axis, ratio)
	}
	return res, nil
}

func axisRatio(ctx context.Context, tk Toolkit, scratch *toolkit.Scratch, mean, mask string, axis Axis, nx, ny int, median float64) (float64, error) {
	extent := nx
	if axis == Y {
		extent = ny
	}
	name := func(s string) string { return scratch.Path(fmt.Sprintf("%s_%s.nii.gz", s, axis)) }

	var parts []string
	for i, n := range HalfShifts(extent) {
		di, dj := n, 0
		if axis == Y {
			di, dj = 0, n
		}
		part := name(fmt.Sprintf("shift%d", i))
		if err := tk.ShiftMask(ctx, mask, di, dj, part); err != nil {
			return math.NaN(), err
		}
		parts = append(parts, part)
	}
	shifted := name("shifted")
	if err := tk.Calc(ctx, shifted, unionExpr(len(parts)), parts...); err != nil {
		return math.NaN(), err
	}
	ghost := name("ghost")
	if err := tk.Calc(ctx, ghost, "step(a-b)", shifted, mask); err != nil {
		return math.NaN(), err
	}
	nonGhost := name("nonghost")
	if err := tk.Calc(ctx, nonGhost, "1-step(a+b)", mask, shifted); err != nil {
		return math.NaN(), err
	}

	ghostMean, err := tk.MaskAverage(ctx, mean, ghost)
	if err != nil {
		return math.NaN(), err
	}
	nonGhostMean, err := tk.MaskAverage(ctx, mean, nonGhost)
	if err != nil {
		return math.NaN(), err
	}
	ratio, _ := Ratio(ghostMean, nonGhostMean, median)
	return ratio, nil
}

// unionExpr is the calc expression that is 1 wherever any of n inputs is set
func unionExpr(n int) string {
	terms := make([]string, n)
	for i := range terms {
		terms[i] = string(rune('a' + i))
	}
	return "step(" + strings.Join(terms, "+") + ")"
}
