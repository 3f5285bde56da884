// Package report assembles the per-session QC document: acquisition parameters,
// modality summaries, quantitative tables, multi-echo maps and the review ledger.
// Unavailable values are rendered as N/A rather than dropped.
package report

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"bidsqc/internal/models"
	"bidsqc/pkg/ledger"
)

// NA marks a value that could not be read or computed
const NA = "N/A"

// ReportFileName is the report file name for a session key such as sub-01_ses-01
func ReportFileName(sessionKey string) string {
	return sessionKey + "_qc_report.html"
}

// ImageRef is an image embedded by path relative to the report file
type ImageRef struct {
	Role string
	Path string
}

// ParamRow is one scan's acquisition parameters
type ParamRow struct {
	Modality string
	File     string
	Values   []string
}

// ModalitySummary counts the files of one modality
type ModalitySummary struct {
	Modality string

	// Listed is the number of files in the review ledger
	Listed int

	// Checked is the number of files that received automated QC
	Checked int

	// Failed lists metrics that could not be computed, across all files
	Failed int
}

// FileSection is the per-file block of images and failures
type FileSection struct {
	Modality string
	File     string
	Images   []ImageRef
	Failures []string
}

// DWIRow summarizes the corruption and motion of one diffusion series
type DWIRow struct {
	File             string
	Volumes          string
	BadVolumes       string
	BadLimit         string
	UsableB0         string
	Status           string
	MeanFD           string
	Censored         []string
	VisualInspection string
}

// FuncRow summarizes the motion, intensity and ghosting metrics of one functional run
type FuncRow struct {
	File        string
	Volumes     string
	MeanFD      string
	MaxFD       string
	FDFlag      string
	MeanDVARS   string
	MeanSRMS    string
	MeanOutlier string
	MeanQuality string
	MeanTSNR    string
	GhostX      string
	GhostY      string
	Censored    []string
}

// EchoSection describes one multi-echo group
type EchoSection struct {
	Stem      string
	Echoes    []string
	EchoTimes string
	Processed bool
	Note      string
	ScaleMax  string
	Images    []ImageRef
}

// LedgerRow is one file's verdict in the review table
type LedgerRow struct {
	File    string
	State   int
	Comment string
}

// LedgerTable is the review table of one modality
type LedgerTable struct {
	Modality string
	Header   string
	Rows     []LedgerRow
}

// SessionReport is the complete document for one session
type SessionReport struct {
	Subject string
	Session string
	Key     string

	// Dir is the directory the report is written to; image paths are relative to it
	Dir string

	CensorLimits []string
	Params       []ParamRow
	Summaries    []ModalitySummary
	Files        []FileSection
	DWI          []DWIRow
	Func         []FuncRow
	Echo         []EchoSection

	Ledger       *ledger.Ledger
	DecisionFile string
}

// ParamColumns are the acquisition-parameter table headers
var ParamColumns = []string{
	"RepetitionTime (s)",
	"EchoTime (ms)",
	"FlipAngle (deg)",
	"SliceThickness (mm)",
	"PhaseEncodingDirection",
	"MultibandAccelerationFactor",
	"Manufacturer",
}

// Path returns the report file path
func (r *SessionReport) Path() string {
	return filepath.Join(r.Dir, ReportFileName(r.Key))
}

// LedgerTables converts the ledger into per-modality display tables
func (r *SessionReport) LedgerTables() []LedgerTable {
	if r.Ledger == nil {
		return nil
	}
	var tables []LedgerTable
	for _, m := range models.AllModalities() {
		files := r.Ledger.Files(m)
		if len(files) == 0 {
			continue
		}
		t := LedgerTable{Modality: m.Dir(), Header: ledger.Header(m)}
		for _, f := range files {
			v, _ := r.Ledger.Get(m, f)
			t.Rows = append(t.Rows, LedgerRow{File: f, State: v.State.Code(), Comment: v.Comment})
		}
		tables = append(tables, t)
	}
	return tables
}

// Columns returns the acquisition-parameter headers
func (r *SessionReport) Columns() []string {
	return ParamColumns
}

// States lists the verdict states for the review buttons
func (r *SessionReport) States() []ledger.State {
	return ledger.AllStates()
}

func (r *SessionReport) relative(path string) string {
	rel, err := filepath.Rel(r.Dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (r *SessionReport) images(paths map[string]string, order []string) []ImageRef {
	var refs []ImageRef
	seen := make(map[string]bool)
	for _, role := range order {
		if p, ok := paths[role]; ok {
			refs = append(refs, ImageRef{Role: role, Path: r.relative(p)})
			seen[role] = true
		}
	}
	var rest []string
	for role := range paths {
		if !seen[role] {
			rest = append(rest, role)
		}
	}
	sort.Strings(rest)
	for _, role := range rest {
		refs = append(refs, ImageRef{Role: role, Path: r.relative(paths[role])})
	}
	return refs
}

// FormatValue renders a metric to 4 decimal digits, or N/A when absent or not computable
func FormatValue(v float64, ok bool) string {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return NA
	}
	return fmt.Sprintf("%.4f", v)
}

// FormatCount renders an integer-valued metric, or N/A
func FormatCount(v float64, ok bool) string {
	if !ok || math.IsNaN(v) {
		return NA
	}
	return fmt.Sprintf("%d", int(v))
}

// FormatIndices renders a volume index list
func FormatIndices(idx []int) string {
	if len(idx) == 0 {
		return "none"
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
