package multiecho

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strings"

	"bidsqc/internal/models"
	"bidsqc/pkg/qcerrors"
	"bidsqc/pkg/toolkit"
)

// Toolkit is the subset of delegate operations the grouper needs
type Toolkit interface {
	FitMultiEcho(ctx context.Context, echoes []string, echoTimesMs []float64, outDir, prefix string) (*toolkit.MultiEchoOutputs, error)
	Snapshot(ctx context.Context, underlay, overlay string, rangeMax float64, out string) error
	Plot(ctx context.Context, out, title string, highlight []int, series ...string) error
}

// Grouper processes the echo groups of one session
type Grouper struct {
	tk        Toolkit
	groupSize int

	// OutDir receives the fit outputs, one subdirectory per group
	OutDir string

	// ImageDir receives the report images
	ImageDir string
}

// NewGrouper creates a grouper that fits groups of exactly groupSize echoes
func NewGrouper(tk Toolkit, groupSize int, outDir, imageDir string) *Grouper {
	return &Grouper{tk: tk, groupSize: groupSize, OutDir: outDir, ImageDir: imageDir}
}

// Run detects and processes every echo group among files.
// Groups smaller than the configured size are skipped and produce no result.
func (g *Grouper) Run(ctx context.Context, files []models.ScanFile) []models.EchoGroupResult {
	var results []models.EchoGroupResult
	for _, group := range FindGroups(files) {
		switch Classify(group, g.groupSize) {
		case Skip:
			log.Printf("Warning: %s has %d echoes, skipping multi-echo processing", group.Stem, group.Size())
		case DetectedOnly:
			results = append(results, models.EchoGroupResult{
				Group: group,
				Note:  fmt.Sprintf("Multi-echo detected (%d echoes); derived maps are generated for %d-echo acquisitions only", group.Size(), g.groupSize),
			})
		case Process:
			results = append(results, g.process(ctx, group))
		}
	}
	return results
}

func (g *Grouper) process(ctx context.Context, group models.EchoGroup) models.EchoGroupResult {
	res := models.EchoGroupResult{Group: group, Images: make(map[string]string)}

	times, err := EchoTimes(group)
	if err != nil {
		log.Printf("Warning: %v", err)
		if qcerrors.IsMissingMetadata(err) {
			res.Note = "Multi-echo detected; echo times unavailable, derived maps not generated"
		} else {
			res.Note = "Multi-echo detected; echo times malformed, derived maps not generated"
		}
		return res
	}
	res.Group.EchoTimesMs = times

	prefix := strings.ReplaceAll(group.Stem, "_echo-*", "")
	echoes := make([]string, len(group.Members))
	for i, m := range group.Members {
		echoes[i] = m.Path
	}

	outs, err := g.tk.FitMultiEcho(ctx, echoes, times, filepath.Join(g.OutDir, prefix), prefix)
	if err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(group.Stem, "t2smap", err))
		res.Note = "Multi-echo detected; derived map generation failed"
		return res
	}

	maps := &models.DerivedMaps{
		T2StarMap:     outs.T2StarMap,
		S0Map:         outs.S0Map,
		RMSEMap:       outs.RMSEMap,
		ConfoundsPath: outs.Confounds,
		RMSEScaleMax:  math.NaN(),
	}
	res.Maps = maps
	res.Processed = true

	if table, err := ReadConfounds(outs.Confounds); err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(group.Stem, "rmseConfounds", err))
	} else if pct, names, err := table.Percentiles(); err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(group.Stem, "rmsePercentiles", err))
	} else {
		maps.Percentiles = pct
		maps.PercentileNames = names
		maps.RMSEScaleMax = ScaleMax(pct, names)

		trace := filepath.Join(g.OutDir, prefix, prefix+"_rmse_percentiles.1D")
		if err := WriteTrace(trace, pct); err != nil {
			log.Printf("Warning: %v", err)
		} else {
			g.image(ctx, &res, "rmseTrace", func(out string) error {
				return g.tk.Plot(ctx, out, "RMSE percentiles", nil, trace)
			}, prefix)
		}
	}

	g.image(ctx, &res, "t2star", func(out string) error {
		return g.tk.Snapshot(ctx, outs.S0Map, outs.T2StarMap, 0, out)
	}, prefix)
	g.image(ctx, &res, "s0", func(out string) error {
		return g.tk.Snapshot(ctx, outs.S0Map, "", 0, out)
	}, prefix)
	g.image(ctx, &res, "rmse", func(out string) error {
		scale := maps.RMSEScaleMax
		if math.IsNaN(scale) {
			scale = 0
		}
		return g.tk.Snapshot(ctx, outs.S0Map, outs.RMSEMap, scale, out)
	}, prefix)

	return res
}

func (g *Grouper) image(ctx context.Context, res *models.EchoGroupResult, role string, render func(out string) error, prefix string) {
	if ctx.Err() != nil {
		return
	}
	out := filepath.Join(g.ImageDir, fmt.Sprintf("%s_%s.png", prefix, role))
	if err := render(out); err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(res.Group.Stem, role, err))
		return
	}
	res.Images[role] = out
}
