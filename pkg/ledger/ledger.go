// Package ledger holds the per-file review verdicts of a session.
//
// The ledger is an explicit map from filename to Verdict per modality. Transitions are
// applied through pure functions that return a new ledger; serialization to the flat
// decision file is separate from state changes.
package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bidsqc/internal/models"
	"bidsqc/pkg/qcerrors"
)

// State is a reviewer verdict
type State int

const (
	Unreviewed State = iota
	Reject
	Borderline
	Ok
)

// AllStates lists the states in code order
func AllStates() []State {
	return []State{Unreviewed, Reject, Borderline, Ok}
}

func (s State) String() string {
	switch s {
	case Reject:
		return "Reject"
	case Borderline:
		return "Borderline"
	case Ok:
		return "Ok"
	default:
		return "Unreviewed"
	}
}

// Code is the numeric state written to the decision file
func (s State) Code() int {
	return int(s)
}

// ParseState accepts a state code or a case-insensitive state name
func ParseState(v string) (State, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		if n < int(Unreviewed) || n > int(Ok) {
			return Unreviewed, fmt.Errorf("unknown state code %d", n)
		}
		return State(n), nil
	}
	for _, s := range AllStates() {
		if strings.EqualFold(v, s.String()) {
			return s, nil
		}
	}
	return Unreviewed, fmt.Errorf("unknown state %q", v)
}

// Verdict is one file's state and free-text comment
type Verdict struct {
	State   State
	Comment string
}

// Ledger lists every file of a session per modality with its verdict
type Ledger struct {
	// Modalities is the display order of the modality tables
	Modalities []models.Modality

	files    map[models.Modality][]string
	verdicts map[models.Modality]map[string]Verdict
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		files:    make(map[models.Modality][]string),
		verdicts: make(map[models.Modality]map[string]Verdict),
	}
}

// FromSession lists every file found under the session's modality directories as Unreviewed,
// including reference scans and non-primary echoes.
func FromSession(s *models.Session) *Ledger {
	l := New()
	for _, m := range models.AllModalities() {
		for _, f := range s.Files[m] {
			l.add(m, f.Name)
		}
	}
	return l
}

func (l *Ledger) add(m models.Modality, filename string) {
	if _, ok := l.verdicts[m]; !ok {
		l.Modalities = append(l.Modalities, m)
		l.verdicts[m] = make(map[string]Verdict)
	}
	if _, dup := l.verdicts[m][filename]; dup {
		return
	}
	l.files[m] = append(l.files[m], filename)
	l.verdicts[m][filename] = Verdict{State: Unreviewed}
}

// Files returns the filenames of one modality in listing order
func (l *Ledger) Files(m models.Modality) []string {
	return append([]string(nil), l.files[m]...)
}

// Len returns the number of files across all modalities
func (l *Ledger) Len() int {
	n := 0
	for _, files := range l.files {
		n += len(files)
	}
	return n
}

// Get returns the verdict of one file
func (l *Ledger) Get(m models.Modality, filename string) (Verdict, bool) {
	v, ok := l.verdicts[m][filename]
	return v, ok
}

// Counts tallies the states of one modality
func (l *Ledger) Counts(m models.Modality) map[State]int {
	counts := make(map[State]int)
	for _, v := range l.verdicts[m] {
		counts[v.State]++
	}
	return counts
}

// Clone returns an independent copy
func (l *Ledger) Clone() *Ledger {
	c := New()
	c.Modalities = append([]models.Modality(nil), l.Modalities...)
	for m, files := range l.files {
		c.files[m] = append([]string(nil), files...)
	}
	for m, vs := range l.verdicts {
		c.verdicts[m] = make(map[string]Verdict, len(vs))
		for k, v := range vs {
			c.verdicts[m][k] = v
		}
	}
	return c
}

// ApplyTransition returns a new ledger with one file moved to state; the input is not modified
func ApplyTransition(l *Ledger, m models.Modality, filename string, state State) (*Ledger, error) {
	v, ok := l.Get(m, filename)
	if !ok {
		return l, qcerrors.NewNotFoundError("ledger entry", m.Dir()+"/"+filename)
	}
	next := l.Clone()
	v.State = state
	next.verdicts[m][filename] = v
	return next, nil
}

// SetComment returns a new ledger with one file's comment replaced
func SetComment(l *Ledger, m models.Modality, filename, comment string) (*Ledger, error) {
	v, ok := l.Get(m, filename)
	if !ok {
		return l, qcerrors.NewNotFoundError("ledger entry", m.Dir()+"/"+filename)
	}
	next := l.Clone()
	v.Comment = comment
	next.verdicts[m][filename] = v
	return next, nil
}

// SetAll applies the same transition to every file of one modality, leaving other modalities unchanged
func SetAll(l *Ledger, m models.Modality, state State) *Ledger {
	next := l
	for _, f := range l.files[m] {
		next, _ = ApplyTransition(next, m, f, state)
	}
	return next
}

// Merge copies the verdicts of files present in both ledgers from other onto a new copy of l.
// Files only listed in other are ignored.
func Merge(l, other *Ledger) *Ledger {
	next := l.Clone()
	for m, vs := range other.verdicts {
		for filename, v := range vs {
			if _, ok := next.verdicts[m][filename]; ok {
				next.verdicts[m][filename] = v
			}
		}
	}
	return next
}

// sortedModalities orders the ledger's modalities canonically
func (l *Ledger) sortedModalities() []models.Modality {
	ms := append([]models.Modality(nil), l.Modalities...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i] < ms[j] })
	return ms
}
