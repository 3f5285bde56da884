package models

import (
	"fmt"
	"strings"
)

// Modality is the closed set of BIDS modality directories handled by QC
type Modality int

const (
	Anatomical Modality = iota
	Diffusion
	Functional
	FieldMap
)

// AllModalities returns the modalities in report order
func AllModalities() []Modality {
	return []Modality{Anatomical, Diffusion, Functional, FieldMap}
}

// Dir returns the BIDS directory name of the modality
func (m Modality) Dir() string {
	switch m {
	case Anatomical:
		return "anat"
	case Diffusion:
		return "dwi"
	case Functional:
		return "func"
	case FieldMap:
		return "fmap"
	default:
		return "unknown"
	}
}

func (m Modality) String() string {
	return m.Dir()
}

// ParseModality maps a BIDS directory name to a Modality
func ParseModality(dir string) (Modality, error) {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "anat":
		return Anatomical, nil
	case "dwi":
		return Diffusion, nil
	case "func":
		return Functional, nil
	case "fmap":
		return FieldMap, nil
	default:
		return 0, fmt.Errorf("unknown modality: %q", dir)
	}
}

// EchoRole tags a scan by its position in a multi-echo acquisition
type EchoRole int

const (
	// Single is a scan without an echo entity
	Single EchoRole = iota
	First
	Middle
	Last
)

func (r EchoRole) String() string {
	switch r {
	case First:
		return "first"
	case Middle:
		return "middle"
	case Last:
		return "last"
	default:
		return "single"
	}
}

// RoleForEcho maps a 1-based echo index to its role. Index 0 means no echo entity.
func RoleForEcho(index int) EchoRole {
	switch {
	case index <= 0:
		return Single
	case index == 1:
		return First
	case index == 2:
		return Middle
	default:
		return Last
	}
}

// ScanFile represents one acquired volume and its companions
type ScanFile struct {
	// Path is the absolute path of the image file
	Path string

	// Name is the base filename including extension
	Name string

	// Stem is the filename with the image extension removed
	Stem string

	Modality Modality

	// Suffix is the BIDS suffix (bold, dwi, T1w, epi, ...)
	Suffix string

	// Task and Run are the BIDS task and run labels, empty when absent
	Task string
	Run  string

	// Echo is the 1-based echo index, 0 when the file has no echo entity
	Echo int

	// Reference marks calibration/reference scans (e.g. sbref) that are never QC'd standalone
	Reference bool

	// SidecarPath is the companion JSON path, empty if missing
	SidecarPath string

	// BvalPath is the companion b-value file, DWI only, empty if missing
	BvalPath string
}

// Role returns the echo role of the file
func (f ScanFile) Role() EchoRole {
	return RoleForEcho(f.Echo)
}

// Primary reports whether the file drives standalone per-file QC.
// Reference scans and non-middle echoes are listed in the review ledger only.
func (f ScanFile) Primary() bool {
	if f.Reference {
		return false
	}
	role := f.Role()
	return role == Single || role == Middle
}

// Session is one subject/session with its files bucketed by modality
type Session struct {
	SubjectID string
	Label     string

	// Dir is the session directory (or the subject directory for session-less datasets)
	Dir string

	// Files holds every image file per modality, sorted by name
	Files map[Modality][]ScanFile
}

// Key returns the sub-<id>_ses-<label> prefix used for output filenames
func (s *Session) Key() string {
	if s.Label == "" {
		return s.SubjectID
	}
	return s.SubjectID + "_" + s.Label
}

// PrimaryFiles returns the files of a modality that receive automated QC
func (s *Session) PrimaryFiles(m Modality) []ScanFile {
	var out []ScanFile
	for _, f := range s.Files[m] {
		if f.Primary() {
			out = append(out, f)
		}
	}
	return out
}
