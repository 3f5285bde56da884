package report

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"bidsqc/internal/models"
	"bidsqc/pkg/bids"
	"bidsqc/pkg/config"
	"bidsqc/pkg/decision"
	"bidsqc/pkg/ledger"
	"bidsqc/pkg/qcerrors"
)

var imageOrder = map[models.Modality][]string{
	models.Anatomical: {"montage"},
	models.Diffusion:  {"motion"},
	models.Functional: {"tsnr", "tstd", "motion", "outliers", "quality", "dvars", "srms"},
}

var echoImageOrder = []string{"t2star", "s0", "rmse", "rmseTrace"}

// Inputs are the per-session results gathered by the pipeline
type Inputs struct {
	Session *models.Session
	Records []*models.MetricRecord
	Echo    []models.EchoGroupResult

	// Bvals maps a diffusion file name to its b-values; files without a readable b-value file are absent
	Bvals map[string][]float64

	// Ledger is the initial review state; a fresh Unreviewed ledger is built when nil
	Ledger *ledger.Ledger
}

// Builder assembles SessionReports under a fixed policy
type Builder struct {
	Policy config.Policy

	// Dir is the directory reports are written to
	Dir string
}

// NewBuilder creates a report builder
func NewBuilder(policy config.Policy, dir string) *Builder {
	return &Builder{Policy: policy, Dir: dir}
}

// Build assembles the report of one session
func (b *Builder) Build(in Inputs) *SessionReport {
	s := in.Session
	r := &SessionReport{
		Subject: s.SubjectID,
		Session: s.Label,
		Key:     s.Key(),
		Dir:     b.Dir,
		Ledger:  in.Ledger,
	}
	if r.Ledger == nil {
		r.Ledger = ledger.FromSession(s)
	}
	r.DecisionFile = ledger.DecisionFileName(r.Key)
	for _, l := range b.Policy.CensorLimits {
		r.CensorLimits = append(r.CensorLimits, strconv.FormatFloat(l, 'f', -1, 64))
	}

	for _, m := range models.AllModalities() {
		for _, f := range s.PrimaryFiles(m) {
			r.Params = append(r.Params, paramRow(f))
		}
	}

	checked := make(map[models.Modality]int)
	failed := make(map[models.Modality]int)
	for _, rec := range in.Records {
		if rec == nil {
			continue
		}
		m := rec.File.Modality
		checked[m]++
		failed[m] += len(rec.Failures)

		r.Files = append(r.Files, FileSection{
			Modality: m.Dir(),
			File:     rec.File.Name,
			Images:   r.images(rec.Images, imageOrder[m]),
			Failures: append([]string(nil), rec.Failures...),
		})

		switch m {
		case models.Diffusion:
			r.DWI = append(r.DWI, b.dwiRow(rec, in.Bvals[rec.File.Name]))
		case models.Functional:
			r.Func = append(r.Func, b.funcRow(rec))
		}
	}

	for _, m := range models.AllModalities() {
		listed := len(s.Files[m])
		if listed == 0 {
			continue
		}
		r.Summaries = append(r.Summaries, ModalitySummary{
			Modality: m.Dir(),
			Listed:   listed,
			Checked:  checked[m],
			Failed:   failed[m],
		})
	}

	for _, res := range in.Echo {
		r.Echo = append(r.Echo, r.echoSection(res))
	}
	return r
}

func paramRow(f models.ScanFile) ParamRow {
	row := ParamRow{Modality: f.Modality.Dir(), File: f.Name, Values: make([]string, len(ParamColumns))}
	for i := range row.Values {
		row.Values[i] = NA
	}
	if f.SidecarPath == "" {
		log.Printf("Warning: %v", qcerrors.NewMissingMetadataError(f.Name, "sidecar"))
		return row
	}
	sc, err := bids.ReadSidecar(f.SidecarPath)
	if err != nil {
		log.Printf("Warning: %v", err)
		return row
	}

	number := func(v *float64, format string) string {
		if v == nil {
			return NA
		}
		return fmt.Sprintf(format, *v)
	}
	text := func(v string) string {
		if v == "" {
			return NA
		}
		return v
	}

	row.Values[0] = number(sc.RepetitionTime, "%g")
	if te, ok := sc.EchoTimeMs(); ok {
		row.Values[1] = strconv.FormatFloat(te, 'f', 2, 64)
	}
	row.Values[2] = number(sc.FlipAngle, "%g")
	row.Values[3] = number(sc.SliceThickness, "%g")
	if pe, ok := sc.PhaseEncoding(); ok {
		row.Values[4] = pe
	} else {
		log.Printf("Warning: %v", qcerrors.NewMissingMetadataError(f.Name, "PhaseEncodingDirection"))
	}
	row.Values[5] = number(sc.MultibandAccelerationFactor, "%g")
	row.Values[6] = text(sc.Manufacturer)
	return row
}

func (b *Builder) dwiRow(rec *models.MetricRecord, bvals []float64) DWIRow {
	row := DWIRow{
		File:             rec.File.Name,
		Volumes:          FormatCount(rec.Scalar(models.MetricVolumes)),
		BadVolumes:       FormatCount(rec.Scalar(models.MetricBadVolumes)),
		BadLimit:         NA,
		UsableB0:         NA,
		Status:           NA,
		MeanFD:           FormatValue(rec.Scalar(models.MetricMeanFD)),
		Censored:         b.censored(rec),
		VisualInspection: FormatIndices(rec.Vectors[models.VectorVisualInspection]),
	}
	if res, ok := decision.EvaluateDWIRecord(rec, bvals, b.Policy); ok {
		row.BadLimit = strconv.FormatFloat(res.Limit, 'f', -1, 64)
		row.UsableB0 = res.UsableB0Text()
		row.Status = res.Status.String()
	}
	return row
}

func (b *Builder) funcRow(rec *models.MetricRecord) FuncRow {
	row := FuncRow{
		File:        rec.File.Name,
		Volumes:     FormatCount(rec.Scalar(models.MetricVolumes)),
		MeanFD:      FormatValue(rec.Scalar(models.MetricMeanFD)),
		MaxFD:       FormatValue(rec.Scalar(models.MetricMaxFD)),
		FDFlag:      NA,
		MeanDVARS:   FormatValue(rec.Scalar(models.MetricMeanDVARS)),
		MeanSRMS:    FormatValue(rec.Scalar(models.MetricMeanSRMS)),
		MeanOutlier: FormatValue(rec.Scalar(models.MetricMeanOutlier)),
		MeanQuality: FormatValue(rec.Scalar(models.MetricMeanQuality)),
		MeanTSNR:    FormatValue(rec.Scalar(models.MetricMeanTSNR)),
		GhostX:      FormatValue(rec.Scalar(models.MetricGhostToSignalX)),
		GhostY:      FormatValue(rec.Scalar(models.MetricGhostToSignalY)),
		Censored:    b.censored(rec),
	}
	if fd, ok := rec.Scalar(models.MetricMeanFD); ok {
		row.FDFlag = decision.FDFlag(fd, b.Policy)
	}
	return row
}

func (b *Builder) censored(rec *models.MetricRecord) []string {
	out := make([]string, len(b.Policy.CensorLimits))
	for i, l := range b.Policy.CensorLimits {
		out[i] = FormatCount(rec.Scalar(models.CensoredCountMetric(l)))
	}
	return out
}

func (r *SessionReport) echoSection(res models.EchoGroupResult) EchoSection {
	sec := EchoSection{
		Stem:      res.Group.Stem,
		EchoTimes: NA,
		Processed: res.Processed,
		Note:      res.Note,
		ScaleMax:  NA,
		Images:    r.images(res.Images, echoImageOrder),
	}
	for _, m := range res.Group.Members {
		sec.Echoes = append(sec.Echoes, m.Name)
	}
	if len(res.Group.EchoTimesMs) > 0 {
		parts := make([]string, len(res.Group.EchoTimesMs))
		for i, te := range res.Group.EchoTimesMs {
			parts[i] = strconv.FormatFloat(te, 'f', 2, 64)
		}
		sec.EchoTimes = strings.Join(parts, ", ") + " ms"
	}
	if res.Maps != nil {
		sec.ScaleMax = FormatValue(res.Maps.RMSEScaleMax, true)
	}
	return sec
}
