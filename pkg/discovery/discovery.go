// Package discovery resolves subjects, sessions and per-modality file sets in a BIDS dataset.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"bidsqc/internal/models"
	"bidsqc/pkg/bids"
	"bidsqc/pkg/qcerrors"
)

var alnum = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Options controls how a dataset is scanned
type Options struct {
	// SessionPrefix is the directory prefix of session folders (ses-)
	SessionPrefix string

	// ReferenceInfix marks reference/calibration scans excluded from primary QC
	ReferenceInfix string
}

// SubjectDir returns the subject directory, accepting ids with or without the sub- prefix
func SubjectDir(root, subject string) string {
	return filepath.Join(root, SubjectLabel(subject))
}

// SubjectLabel normalises a subject id to its sub-<id> form
func SubjectLabel(subject string) string {
	if strings.HasPrefix(subject, "sub-") {
		return subject
	}
	return "sub-" + subject
}

// Sessions resolves the session set of a subject.
// A requested session is returned alone if it exists. Otherwise every directory matching
// the session prefix with an alphanumeric label is returned in lexicographic order.
// Datasets without session folders yield a single session rooted at the subject directory.
func Sessions(root, subject, session string, opts Options) ([]*models.Session, error) {
	if subject == "" {
		return nil, qcerrors.NewConfigurationError("subject", "subject identifier is required")
	}
	subLabel := SubjectLabel(subject)
	subDir := SubjectDir(root, subject)
	info, err := os.Stat(subDir)
	if err != nil || !info.IsDir() {
		return nil, qcerrors.NewNotFoundError("subject", subDir)
	}

	if session != "" {
		label := session
		if !strings.HasPrefix(label, opts.SessionPrefix) {
			label = opts.SessionPrefix + label
		}
		dir := filepath.Join(subDir, label)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, qcerrors.NewNotFoundError("session", dir)
		}
		s, err := loadSession(subLabel, label, dir, opts)
		if err != nil {
			return nil, err
		}
		return []*models.Session{s}, nil
	}

	entries, err := os.ReadDir(subDir)
	if err != nil {
		return nil, fmt.Errorf("read subject directory: %w", err)
	}

	var labels []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), opts.SessionPrefix) {
			continue
		}
		if alnum.MatchString(strings.TrimPrefix(entry.Name(), opts.SessionPrefix)) {
			labels = append(labels, entry.Name())
		}
	}
	sort.Strings(labels)

	if len(labels) == 0 {
		s, err := loadSession(subLabel, "", subDir, opts)
		if err != nil {
			return nil, err
		}
		return []*models.Session{s}, nil
	}

	sessions := make([]*models.Session, 0, len(labels))
	for _, label := range labels {
		s, err := loadSession(subLabel, label, filepath.Join(subDir, label), opts)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func loadSession(subject, label, dir string, opts Options) (*models.Session, error) {
	s := &models.Session{
		SubjectID: subject,
		Label:     label,
		Dir:       dir,
		Files:     make(map[models.Modality][]models.ScanFile),
	}
	for _, m := range models.AllModalities() {
		files, err := ModalityFiles(dir, m, opts)
		if err != nil {
			if qcerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		s.Files[m] = files
	}
	return s, nil
}

// ModalityFiles lists the image files of one modality directory in lexicographic order.
// It returns a NotFoundError when the modality directory is absent.
func ModalityFiles(sessionDir string, m models.Modality, opts Options) ([]models.ScanFile, error) {
	dir := filepath.Join(sessionDir, m.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qcerrors.NewNotFoundError("modality", dir)
		}
		return nil, fmt.Errorf("read modality directory: %w", err)
	}

	var files []models.ScanFile
	for _, entry := range entries {
		if entry.IsDir() || !bids.IsImage(entry.Name()) {
			continue
		}
		files = append(files, newScanFile(dir, entry.Name(), m, opts))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func newScanFile(dir, name string, m models.Modality, opts Options) models.ScanFile {
	stem := bids.Stem(name)
	ent := bids.ParseName(name)

	f := models.ScanFile{
		Path:     filepath.Join(dir, name),
		Name:     name,
		Stem:     stem,
		Modality: m,
		Suffix:   ent.Suffix,
		Task:     ent.Get("task"),
		Run:      ent.Get("run"),
		Echo:     ent.Echo(),
	}
	if opts.ReferenceInfix != "" && strings.Contains(name, opts.ReferenceInfix) {
		f.Reference = true
	}
	if sidecar := filepath.Join(dir, stem+".json"); fileExists(sidecar) {
		f.SidecarPath = sidecar
	}
	if m == models.Diffusion {
		if bval := filepath.Join(dir, stem+".bval"); fileExists(bval) {
			f.BvalPath = bval
		}
	}
	return f
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
