// Package multiecho detects multi-echo functional acquisitions and drives the
// monoexponential fit that produces T2*, S0 and residual-error maps.
package multiecho

import (
	"fmt"
	"sort"

	"bidsqc/internal/models"
	"bidsqc/pkg/bids"
	"bidsqc/pkg/qcerrors"
)

// Action is what the pipeline does with a detected group
type Action int

const (
	// Skip drops groups with too few echoes
	Skip Action = iota
	// DetectedOnly reports the group without generating derived maps
	DetectedOnly
	// Process generates derived maps
	Process
)

// FindGroups returns one group per canonical middle-echo file, collecting every
// sibling that shares its stem apart from the echo entity
func FindGroups(files []models.ScanFile) []models.EchoGroup {
	byPattern := make(map[string][]models.ScanFile)
	for _, f := range files {
		if f.Reference || f.Echo == 0 {
			continue
		}
		pattern := bids.ReplaceEcho(f.Stem, "*")
		byPattern[pattern] = append(byPattern[pattern], f)
	}

	var groups []models.EchoGroup
	for _, f := range files {
		if f.Reference || f.Role() != models.Middle {
			continue
		}
		pattern := bids.ReplaceEcho(f.Stem, "*")
		members := append([]models.ScanFile(nil), byPattern[pattern]...)
		sort.Slice(members, func(i, j int) bool { return members[i].Echo < members[j].Echo })
		groups = append(groups, models.EchoGroup{
			Task:    f.Task,
			Run:     f.Run,
			Stem:    pattern,
			Members: members,
		})
	}
	return groups
}

// Classify decides how a group of a given size is handled
func Classify(g models.EchoGroup, wantSize int) Action {
	switch {
	case g.Size() == wantSize:
		return Process
	case g.Size() > wantSize:
		return DetectedOnly
	default:
		return Skip
	}
}

// EchoTimes reads each member's echo time in milliseconds.
// Every member must carry an echo time and the times must strictly increase with echo index.
func EchoTimes(g models.EchoGroup) ([]float64, error) {
	times := make([]float64, 0, g.Size())
	for _, f := range g.Members {
		if f.SidecarPath == "" {
			return nil, qcerrors.NewMissingMetadataError(f.Name, "EchoTime")
		}
		sc, err := bids.ReadSidecar(f.SidecarPath)
		if err != nil {
			return nil, qcerrors.NewMissingMetadataError(f.Name, "EchoTime")
		}
		te, ok := sc.EchoTimeMs()
		if !ok {
			return nil, qcerrors.NewMissingMetadataError(f.Name, "EchoTime")
		}
		times = append(times, te)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("echo times not ascending in %s: %v", g.Stem, times)
		}
	}
	return times, nil
}
