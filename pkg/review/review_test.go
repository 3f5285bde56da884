package review

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bidsqc/internal/models"
	"bidsqc/pkg/ledger"
)

// scriptedPrompter answers bulk prompts per modality and marks every other file Borderline
type scriptedPrompter struct {
	bulk  map[models.Modality]ledger.State
	asked []string
	fail  error
}

func (p *scriptedPrompter) Bulk(m models.Modality, files []string) (ledger.State, bool, error) {
	if p.fail != nil {
		return ledger.Unreviewed, false, p.fail
	}
	s, ok := p.bulk[m]
	return s, ok, nil
}

func (p *scriptedPrompter) File(m models.Modality, filename string, current ledger.Verdict) (ledger.Verdict, error) {
	p.asked = append(p.asked, filename)
	return ledger.Verdict{State: ledger.Borderline, Comment: "checked " + filename}, nil
}

func testSession() *models.Session {
	return &models.Session{
		SubjectID: "sub-01",
		Label:     "ses-01",
		Files: map[models.Modality][]models.ScanFile{
			models.Anatomical: {{Name: "sub-01_ses-01_T1w.nii.gz"}, {Name: "sub-01_ses-01_T2w.nii.gz"}},
			models.FieldMap:   {{Name: "sub-01_ses-01_dir-AP_epi.nii.gz"}},
		},
	}
}

func TestRun(t *testing.T) {
	l := ledger.FromSession(testSession())
	p := &scriptedPrompter{bulk: map[models.Modality]ledger.State{models.Anatomical: ledger.Ok}}

	out, err := Run(l, p)
	if err != nil {
		t.Fatalf("Failed to run review: %v", err)
	}
	if n := out.Counts(models.Anatomical)[ledger.Ok]; n != 2 {
		t.Errorf("Expected 2 anatomical files Ok, got %d", n)
	}
	if len(p.asked) != 1 || p.asked[0] != "sub-01_ses-01_dir-AP_epi.nii.gz" {
		t.Errorf("Expected only the field map to be asked individually, got %v", p.asked)
	}
	v, _ := out.Get(models.FieldMap, "sub-01_ses-01_dir-AP_epi.nii.gz")
	if v.State != ledger.Borderline || v.Comment == "" {
		t.Errorf("Expected Borderline with comment, got %+v", v)
	}
}

func TestRunPropagatesPromptError(t *testing.T) {
	l := ledger.FromSession(testSession())
	aborted := errors.New("user aborted")
	if _, err := Run(l, &scriptedPrompter{fail: aborted}); !errors.Is(err, aborted) {
		t.Errorf("Expected prompt error, got %v", err)
	}
}

func TestLoadMergesSavedDecisions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ledger.DecisionFileName("sub-01_ses-01"))

	l, err := Load(testSession(), path)
	if err != nil {
		t.Fatalf("Failed to load without a decision file: %v", err)
	}
	if l.Len() != 3 {
		t.Errorf("Expected 3 rows, got %d", l.Len())
	}

	saved := "[fmap]\nsub-01_ses-01_dir-AP_epi.nii.gz : 1 | Comment: wrong direction\n"
	if err := os.WriteFile(path, []byte(saved), 0644); err != nil {
		t.Fatalf("Failed to write decision file: %v", err)
	}
	l, err = Load(testSession(), path)
	if err != nil {
		t.Fatalf("Failed to load decision file: %v", err)
	}
	v, _ := l.Get(models.FieldMap, "sub-01_ses-01_dir-AP_epi.nii.gz")
	if v.State != ledger.Reject || v.Comment != "wrong direction" {
		t.Errorf("Expected saved verdict, got %+v", v)
	}

	if err := os.WriteFile(path, []byte("garbage\n"), 0644); err != nil {
		t.Fatalf("Failed to write decision file: %v", err)
	}
	if _, err := Load(testSession(), path); err == nil {
		t.Error("Expected error for malformed decision file")
	}
}

func TestSummary(t *testing.T) {
	l := ledger.SetAll(ledger.FromSession(testSession()), models.Anatomical, ledger.Ok)
	out := Summary(l)
	if !strings.Contains(out, "2 Ok") || !strings.Contains(out, "1 Unreviewed") {
		t.Errorf("Unexpected summary:\n%s", out)
	}
}
