// Package metrics computes the per-file QC metrics of anatomical, diffusion and
// functional scans by driving the imaging toolkit. Every metric is attempted
// independently: a failed delegate call is logged, recorded on the MetricRecord
// and the remaining metrics still run unless they depend on the failed output.
package metrics

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"bidsqc/internal/models"
	"bidsqc/pkg/config"
	"bidsqc/pkg/gsr"
	"bidsqc/pkg/motion"
	"bidsqc/pkg/qcerrors"
)

// Toolkit is the set of delegate operations used for per-file metrics
type Toolkit interface {
	gsr.Toolkit
	VolumeCount(ctx context.Context, vol string) (int, error)
	Snapshot(ctx context.Context, underlay, overlay string, rangeMax float64, out string) error
	SliceDropBadList(ctx context.Context, vol, prefix string) ([]int, error)
	Volreg(ctx context.Context, vol, motionFile string) error
	OutlierFractions(ctx context.Context, vol, mask string) ([]float64, error)
	QualityIndex(ctx context.Context, vol string) ([]float64, error)
	Trace(ctx context.Context, vol, mask, method string) ([]float64, error)
	Plot(ctx context.Context, out, title string, highlight []int, series ...string) error
}

// Computer computes metric records for the files of one session
type Computer struct {
	tk  Toolkit
	cfg *config.Config

	// WorkDir receives intermediate maps, traces and scratch directories
	WorkDir string

	// ImageDir receives the images embedded in the report
	ImageDir string
}

// NewComputer creates a metric computer writing into workDir and imageDir
func NewComputer(tk Toolkit, cfg *config.Config, workDir, imageDir string) *Computer {
	return &Computer{tk: tk, cfg: cfg, WorkDir: workDir, ImageDir: imageDir}
}

// Compute dispatches on the file's modality. Field maps receive no automated metrics.
func (c *Computer) Compute(ctx context.Context, f models.ScanFile) *models.MetricRecord {
	for _, dir := range []string{c.WorkDir, c.ImageDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Warning: failed to create %s: %v", dir, err)
		}
	}

	switch f.Modality {
	case models.Anatomical:
		return c.Anatomical(ctx, f)
	case models.Diffusion:
		return c.Diffusion(ctx, f)
	case models.Functional:
		return c.Functional(ctx, f)
	default:
		return nil
	}
}

// Anatomical renders a tri-planar montage; no scalar metrics are computed
func (c *Computer) Anatomical(ctx context.Context, f models.ScanFile) *models.MetricRecord {
	rec := models.NewMetricRecord(f)
	c.image(ctx, rec, "montage", func(out string) error {
		return c.tk.Snapshot(ctx, f.Path, "", 0, out)
	})
	return rec
}

// Diffusion computes the slice-drop bad list and the volume-wise motion censoring
func (c *Computer) Diffusion(ctx context.Context, f models.ScanFile) *models.MetricRecord {
	rec := models.NewMetricRecord(f)

	volumes := c.volumeCount(ctx, rec)

	var bad []int
	if c.attempt(rec, "sliceDrop", func() error {
		var err error
		bad, err = c.tk.SliceDropBadList(ctx, f.Path, c.work(f, "zz"))
		return err
	}) {
		rec.Vectors[models.VectorBadList] = bad
		rec.Scalars[models.MetricBadVolumes] = float64(len(bad))
	}

	highlighted := c.motion(ctx, rec, volumes)
	rec.Vectors[models.VectorVisualInspection] = motion.Union(bad, highlighted)
	return rec
}

// Functional computes temporal statistics, outlier, quality, motion, intensity-change and ghosting metrics
func (c *Computer) Functional(ctx context.Context, f models.ScanFile) *models.MetricRecord {
	rec := models.NewMetricRecord(f)

	volumes := c.volumeCount(ctx, rec)

	tsnr := c.work(f, "tsnr.nii.gz")
	haveTSNR := c.attempt(rec, "tsnr", func() error {
		return c.tk.Tstat(ctx, f.Path, "cvarinv", tsnr)
	})
	stdev := c.work(f, "stdev.nii.gz")
	haveStdev := c.attempt(rec, "tstd", func() error {
		return c.tk.Tstat(ctx, f.Path, "stdev", stdev)
	})

	mask := c.work(f, "mask.nii.gz")
	haveMask := false
	if haveTSNR {
		haveMask = c.attempt(rec, "automask", func() error {
			return c.tk.Automask(ctx, tsnr, c.cfg.Policy.AutomaskClfrac, mask)
		})
	} else {
		rec.Fail("automask")
	}

	if haveTSNR && haveMask {
		c.attempt(rec, models.MetricMeanTSNR, func() error {
			v, err := c.tk.MaskAverage(ctx, tsnr, mask)
			rec.Scalars[models.MetricMeanTSNR] = v
			return err
		})
	}
	if haveTSNR {
		c.image(ctx, rec, "tsnr", func(out string) error {
			return c.tk.Snapshot(ctx, tsnr, "", 0, out)
		})
	}
	if haveStdev {
		c.image(ctx, rec, "tstd", func(out string) error {
			return c.tk.Snapshot(ctx, stdev, "", 0, out)
		})
	}

	if haveMask {
		c.series(ctx, rec, models.MetricMeanOutlier, "outliers", func() ([]float64, error) {
			return c.tk.OutlierFractions(ctx, f.Path, mask)
		})
	} else {
		rec.Fail(models.MetricMeanOutlier)
	}

	c.series(ctx, rec, models.MetricMeanQuality, "quality", func() ([]float64, error) {
		return c.tk.QualityIndex(ctx, f.Path)
	})

	c.motion(ctx, rec, volumes)

	if haveMask {
		c.series(ctx, rec, models.MetricMeanDVARS, "dvars", func() ([]float64, error) {
			return c.tk.Trace(ctx, f.Path, mask, "dvars")
		})
		c.series(ctx, rec, models.MetricMeanSRMS, "srms", func() ([]float64, error) {
			return c.tk.Trace(ctx, f.Path, mask, "srms")
		})
	} else {
		rec.Fail(models.MetricMeanDVARS)
		rec.Fail(models.MetricMeanSRMS)
	}

	c.ghost(ctx, rec)
	return rec
}

func (c *Computer) volumeCount(ctx context.Context, rec *models.MetricRecord) int {
	volumes := 0
	c.attempt(rec, models.MetricVolumes, func() error {
		var err error
		volumes, err = c.tk.VolumeCount(ctx, rec.File.Path)
		rec.Scalars[models.MetricVolumes] = float64(volumes)
		return err
	})
	return volumes
}

// motion registers the series, derives the enorm trace and censors it at every limit.
// It returns the indices censored at the highlight limit.
func (c *Computer) motion(ctx context.Context, rec *models.MetricRecord, volumes int) []int {
	f := rec.File
	motionFile := c.work(f, "motion.1D")

	var enorm []float64
	ok := c.attempt(rec, "motion", func() error {
		if err := c.tk.Volreg(ctx, f.Path, motionFile); err != nil {
			return err
		}
		trace, err := motion.ReadTrace(motionFile)
		if err != nil {
			return err
		}
		if len(trace) == 0 {
			return fmt.Errorf("empty motion trace")
		}
		enorm = motion.Enorm(trace, c.cfg.Policy.MotionWeights)
		return nil
	})
	if !ok {
		rec.Fail(models.MetricMeanFD)
		return nil
	}

	summary := motion.Summarize(enorm)
	rec.Scalars[models.MetricMeanFD] = summary.Mean
	rec.Scalars[models.MetricMaxFD] = summary.Max

	var highlighted []int
	for _, cens := range motion.CensorAll(enorm, c.cfg.Policy.CensorLimits) {
		rec.Scalars[models.CensoredCountMetric(cens.Limit)] = float64(cens.Count)
		rec.Vectors[models.CensoredIndicesVector(cens.Limit)] = cens.Indices
		if cens.Limit == c.cfg.Policy.HighlightLimit {
			highlighted = cens.Indices
		}
	}

	if f.Modality == models.Diffusion && volumes > 0 && volumes < c.cfg.Policy.MinPlotVolumes {
		return highlighted
	}
	enormFile := c.work(f, "enorm.1D")
	if err := motion.WriteSeries(enormFile, enorm); err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(f.Name, "enormPlot", err))
		return highlighted
	}
	c.image(ctx, rec, "motion", func(out string) error {
		return c.tk.Plot(ctx, out, fmt.Sprintf("enorm (censor > %.1f mm in red)", c.cfg.Policy.HighlightLimit), highlighted, motionFile, enormFile)
	})
	return highlighted
}

func (c *Computer) ghost(ctx context.Context, rec *models.MetricRecord) {
	res, err := gsr.Compute(ctx, c.tk, rec.File.Path, gsr.Params{
		ScratchParent: c.WorkDir,
		Label:         rec.File.Stem,
		Clfrac:        c.cfg.Policy.AutomaskClfrac,
		KeepScratch:   c.cfg.Output.KeepScratch,
	})
	if err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(rec.File.Name, "gsr", err))
		rec.Fail("gsr")
	}
	rec.Scalars[models.MetricGhostToSignalX] = res.X
	rec.Scalars[models.MetricGhostToSignalY] = res.Y
}

// series runs a per-volume trace delegate, stores its mean and plots it
func (c *Computer) series(ctx context.Context, rec *models.MetricRecord, metric, role string, fn func() ([]float64, error)) {
	var values []float64
	if !c.attempt(rec, metric, func() error {
		var err error
		values, err = fn()
		return err
	}) {
		return
	}
	rec.Scalars[metric] = motion.Mean(values)

	file := c.work(rec.File, role+".1D")
	if err := motion.WriteSeries(file, values); err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(rec.File.Name, role+"Plot", err))
		return
	}
	c.image(ctx, rec, role, func(out string) error {
		return c.tk.Plot(ctx, out, role, nil, file)
	})
}

func (c *Computer) image(ctx context.Context, rec *models.MetricRecord, role string, render func(out string) error) {
	out := filepath.Join(c.ImageDir, fmt.Sprintf("%s_%s.png", rec.File.Stem, role))
	if c.attempt(rec, role+"Image", func() error { return render(out) }) {
		rec.Images[role] = out
	}
}

func (c *Computer) attempt(rec *models.MetricRecord, metric string, fn func() error) bool {
	if err := fn(); err != nil {
		log.Printf("Warning: %v", qcerrors.NewMetricComputationError(rec.File.Name, metric, err))
		rec.Fail(metric)
		delete(rec.Scalars, metric)
		return false
	}
	return true
}

func (c *Computer) work(f models.ScanFile, name string) string {
	return filepath.Join(c.WorkDir, f.Stem+"_"+name)
}
