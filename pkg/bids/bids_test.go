package bids

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name   string
		task   string
		run    string
		echo   int
		suffix string
	}{
		{"sub-01_ses-01_task-rest_run-1_echo-2_bold.nii.gz", "rest", "1", 2, "bold"},
		{"sub-01_ses-01_task-nback_bold.nii", "nback", "", 0, "bold"},
		{"sub-01_ses-01_T1w.nii.gz", "", "", 0, "T1w"},
		{"sub-01_ses-01_task-rest_echo-x_bold.nii.gz", "rest", "", 0, "bold"},
		{"sub-01_ses-01_task-rest_sbref.nii.gz", "rest", "", 0, "sbref"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ParseName(tt.name)
			if e.Get("task") != tt.task {
				t.Errorf("task = %q, want %q", e.Get("task"), tt.task)
			}
			if e.Get("run") != tt.run {
				t.Errorf("run = %q, want %q", e.Get("run"), tt.run)
			}
			if e.Echo() != tt.echo {
				t.Errorf("echo = %d, want %d", e.Echo(), tt.echo)
			}
			if e.Suffix != tt.suffix {
				t.Errorf("suffix = %q, want %q", e.Suffix, tt.suffix)
			}
		})
	}
}

func TestStemAndIsImage(t *testing.T) {
	if Stem("a_bold.nii.gz") != "a_bold" {
		t.Errorf("Expected stem a_bold, got %q", Stem("a_bold.nii.gz"))
	}
	if Stem("a_bold.nii") != "a_bold" {
		t.Errorf("Expected stem a_bold, got %q", Stem("a_bold.nii"))
	}
	if IsImage("a_bold.json") {
		t.Error("JSON sidecar should not be an image")
	}
}

func TestReplaceEcho(t *testing.T) {
	got := ReplaceEcho("sub-01_task-rest_run-2_echo-2_bold", "*")
	if got != "sub-01_task-rest_run-2_echo-*_bold" {
		t.Errorf("Expected wildcard echo stem, got %q", got)
	}
}

func TestReadSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x_bold.json")
	data := `{"EchoTime": 0.0302, "RepetitionTime": 1.5, "PhaseEncodingDirection": "j-"}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := ReadSidecar(path)
	if err != nil {
		t.Fatalf("Failed to read sidecar: %v", err)
	}
	te, ok := sc.EchoTimeMs()
	if !ok || te < 30.19 || te > 30.21 {
		t.Errorf("Expected echo time ~30.2 ms, got %v (%v)", te, ok)
	}
	pe, ok := sc.PhaseEncoding()
	if !ok || pe != "j-" {
		t.Errorf("Expected phase encoding j-, got %q", pe)
	}
	if sc.FlipAngle != nil {
		t.Error("Expected missing flip angle to stay nil")
	}

	var empty *Sidecar
	if _, ok := empty.EchoTimeMs(); ok {
		t.Error("Nil sidecar should have no echo time")
	}
}

func TestReadBvals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_dwi.bval")
	if err := os.WriteFile(path, []byte("0 1000 1000\n5 2000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	vals, err := ReadBvals(path)
	if err != nil {
		t.Fatalf("Failed to read bvals: %v", err)
	}
	want := []float64{0, 1000, 1000, 5, 2000}
	if len(vals) != len(want) {
		t.Fatalf("Expected %d values, got %d", len(want), len(vals))
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("Expected %v at %d, got %v", want[i], i, vals[i])
		}
	}

	if _, err := ReadBvals(filepath.Join(t.TempDir(), "missing.bval")); err == nil {
		t.Error("Expected error for missing bval file")
	}
}
