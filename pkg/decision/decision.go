// Package decision applies the QC policy thresholds to computed metrics.
// Nothing here touches the filesystem; callers supply counts, lists and b-values.
package decision

import (
	"fmt"

	"bidsqc/internal/models"
	"bidsqc/pkg/config"
)

// Status is a pass/fail verdict
type Status int

const (
	Fail Status = iota
	Pass
)

func (s Status) String() string {
	if s == Pass {
		return "Pass"
	}
	return "Fail"
}

// Flag texts for the functional motion check
const (
	FDExceeds = "exceeds acceptable thresholds"
	FDWithin  = "within acceptable thresholds"
)

// DWIResult is the outcome of the diffusion pass/fail rule
type DWIResult struct {
	Total int
	Bad   int

	// UsableB0 is nil when no b-value file was available
	UsableB0 *int

	// Limit is the exclusive upper bound on bad volumes, Total * BadVolumeFraction
	Limit  float64
	Status Status
}

// UsableB0Text renders the usable-b0 count or N/A
func (r DWIResult) UsableB0Text() string {
	if r.UsableB0 == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *r.UsableB0)
}

// UsableB0 counts volumes whose b-value is below threshold and that are not in the bad list
func UsableB0(bvals []float64, bad []int, threshold float64) int {
	flagged := make(map[int]bool, len(bad))
	for _, b := range bad {
		flagged[b] = true
	}
	n := 0
	for i, b := range bvals {
		if b < threshold && !flagged[i] {
			n++
		}
	}
	return n
}

// EvaluateDWI passes a diffusion series iff bad < total*fraction and at least one usable b0 remains.
// A nil bvals slice means the b-value file is absent and the b0 condition is skipped.
func EvaluateDWI(total int, bad []int, bvals []float64, policy config.Policy) DWIResult {
	res := DWIResult{
		Total: total,
		Bad:   len(bad),
		Limit: float64(total) * policy.BadVolumeFraction,
	}
	ok := float64(res.Bad) < res.Limit
	if bvals != nil {
		n := UsableB0(bvals, bad, policy.B0Threshold)
		res.UsableB0 = &n
		ok = ok && n >= 1
	}
	if ok {
		res.Status = Pass
	}
	return res
}

// EvaluateDWIRecord applies EvaluateDWI to a diffusion metric record.
// It returns false when the volume count or bad list was not computed.
func EvaluateDWIRecord(rec *models.MetricRecord, bvals []float64, policy config.Policy) (DWIResult, bool) {
	total, ok := rec.Scalar(models.MetricVolumes)
	if !ok {
		return DWIResult{}, false
	}
	bad, ok := rec.Vectors[models.VectorBadList]
	if !ok {
		if _, computed := rec.Scalar(models.MetricBadVolumes); !computed {
			return DWIResult{}, false
		}
	}
	return EvaluateDWI(int(total), bad, bvals, policy), true
}

// FDFlag returns the textual motion flag for a mean framewise displacement
func FDFlag(meanFD float64, policy config.Policy) string {
	if meanFD > policy.MeanFDLimit {
		return FDExceeds
	}
	return FDWithin
}
