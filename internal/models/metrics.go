package models

import (
	"math"
	"strconv"
)

// NotComputable marks a scalar metric that could not be evaluated
var NotComputable = math.NaN()

// MetricRecord holds the named metrics of one ScanFile.
// Records are built once by the metric computation and never mutated afterwards.
type MetricRecord struct {
	File ScanFile

	// Scalars maps metric names (meanFD, meanDVARS, ghostToSignalX, ...) to values
	Scalars map[string]float64

	// Vectors holds small index lists such as the DWI bad list or censored indices
	Vectors map[string][]int

	// Images maps an image role (montage, motion, tsnr, ...) to a path relative to the report
	Images map[string]string

	// Failures lists the metric names whose computation failed
	Failures []string
}

// NewMetricRecord creates an empty record for a file
func NewMetricRecord(f ScanFile) *MetricRecord {
	return &MetricRecord{
		File:    f,
		Scalars: make(map[string]float64),
		Vectors: make(map[string][]int),
		Images:  make(map[string]string),
	}
}

// Scalar returns a metric value and whether it is available and computable
func (r *MetricRecord) Scalar(name string) (float64, bool) {
	v, ok := r.Scalars[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Fail records a failed metric
func (r *MetricRecord) Fail(metric string) {
	r.Failures = append(r.Failures, metric)
}

// Metric names shared by the computation and report layers
const (
	MetricVolumes        = "volumes"
	MetricMeanFD         = "meanFD"
	MetricMaxFD          = "maxFD"
	MetricMeanDVARS      = "meanDVARS"
	MetricMeanSRMS       = "meanSRMS"
	MetricMeanOutlier    = "meanOutlierFraction"
	MetricMeanQuality    = "meanQualityIndex"
	MetricMeanTSNR       = "meanTSNR"
	MetricGhostToSignalX = "ghostToSignalX"
	MetricGhostToSignalY = "ghostToSignalY"
	MetricBadVolumes     = "badVolumeCount"

	VectorBadList          = "badList"
	VectorVisualInspection = "visualInspection"
)

// CensoredCountMetric returns the scalar name for the censored count at a limit
func CensoredCountMetric(limit float64) string {
	return "censoredCount@" + formatLimit(limit)
}

// CensoredIndicesVector returns the vector name for the censored indices at a limit
func CensoredIndicesVector(limit float64) string {
	return "censored@" + formatLimit(limit)
}

func formatLimit(limit float64) string {
	return strconv.FormatFloat(limit, 'f', -1, 64)
}
