package toolkit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bidsqc/pkg/config"
	"bidsqc/pkg/qcerrors"
	"bidsqc/pkg/toolkit/toolkittest"
)

func newFakeToolkit() (*Toolkit, *toolkittest.Runner) {
	fake := toolkittest.New()
	return New(fake, config.DefaultConfig()), fake
}

func TestVolumeCountAndDimensions(t *testing.T) {
	tk, fake := newFakeToolkit()
	fake.Volumes = 42
	fake.NX, fake.NY = 96, 80

	n, err := tk.VolumeCount(context.Background(), "bold.nii.gz")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("Expected 42 volumes, got %d", n)
	}

	nx, ny, err := tk.Dimensions(context.Background(), "bold.nii.gz")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if nx != 96 || ny != 80 {
		t.Errorf("Expected 96x80, got %dx%d", nx, ny)
	}
}

func TestSnapshotComposesAndCleansUp(t *testing.T) {
	tk, _ := newFakeToolkit()
	dir := t.TempDir()
	out := filepath.Join(dir, "sub-01_T1w.png")

	if err := tk.Snapshot(context.Background(), "T1w.nii.gz", "", 0, out); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("Expected composite image: %v", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*_view*"))
	if len(leftovers) != 0 {
		t.Errorf("Expected per-view images to be removed, found %v", leftovers)
	}
}

func TestSnapshotMissingViews(t *testing.T) {
	tk, fake := newFakeToolkit()
	fake.SkipOutput["@chauffeur_afni"] = true

	err := tk.Snapshot(context.Background(), "T1w.nii.gz", "", 0, filepath.Join(t.TempDir(), "x.png"))
	if err == nil {
		t.Error("Expected error when no views were produced, got nil")
	}
}

func TestSliceDropBadList(t *testing.T) {
	tk, fake := newFakeToolkit()
	fake.BadList = []int{3, 17, 40}

	got, err := tk.SliceDropBadList(context.Background(), "dwi.nii.gz", filepath.Join(t.TempDir(), "zz"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != 3 || got[2] != 40 {
		t.Errorf("Expected [3 17 40], got %v", got)
	}

	fake.BadList = nil
	got, err = tk.SliceDropBadList(context.Background(), "dwi.nii.gz", filepath.Join(t.TempDir(), "zz"))
	if err != nil {
		t.Fatalf("Unexpected error for empty bad list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty bad list, got %v", got)
	}
}

func TestMissingOutputIsError(t *testing.T) {
	tk, fake := newFakeToolkit()
	fake.SkipOutput["3dvolreg"] = true

	if err := tk.Volreg(context.Background(), "dwi.nii.gz", filepath.Join(t.TempDir(), "m.1D")); err == nil {
		t.Error("Expected error when the motion file is missing, got nil")
	}
}

func TestCalcBindsInputs(t *testing.T) {
	tk, fake := newFakeToolkit()
	out := filepath.Join(t.TempDir(), "ghost.nii.gz")

	if err := tk.Calc(context.Background(), out, "step(a+b)-c", "m1", "m2", "m3"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	calls := fake.CallsTo("3dcalc")
	if len(calls) != 1 {
		t.Fatalf("Expected one 3dcalc call, got %d", len(calls))
	}
	joined := strings.Join(calls[0].Args, " ")
	if !strings.Contains(joined, "-a m1 -b m2 -c m3 -expr step(a+b)-c") {
		t.Errorf("Unexpected calc arguments: %s", joined)
	}
}

func TestFitMultiEcho(t *testing.T) {
	tk, fake := newFakeToolkit()
	dir := t.TempDir()

	outs, err := tk.FitMultiEcho(context.Background(),
		[]string{"e1.nii.gz", "e2.nii.gz", "e3.nii.gz"}, []float64{12.5, 30, 47.5}, dir, "rest")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if filepath.Base(outs.Confounds) != "rest_desc-confounds_timeseries.tsv" {
		t.Errorf("Unexpected confounds path %s", outs.Confounds)
	}

	args := strings.Join(fake.CallsTo("t2smap")[0].Args, " ")
	if !strings.Contains(args, "-e 12.5 30 47.5") {
		t.Errorf("Expected echo times in ms, got %s", args)
	}

	if _, err := tk.FitMultiEcho(context.Background(), []string{"e1"}, []float64{1, 2}, dir, "x"); err == nil {
		t.Error("Expected error for mismatched echo times, got nil")
	}
}

func TestParseSeries(t *testing.T) {
	got, err := ParseSeries([]byte("# header\n0.1\n\n0.25 extra\n3\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 3 || got[1] != 0.25 {
		t.Errorf("Expected [0.1 0.25 3], got %v", got)
	}
	if _, err := ParseSeries([]byte("\n# only comments\n")); err == nil {
		t.Error("Expected error for empty series, got nil")
	}
	if _, err := ParseSeries([]byte("abc\n")); err == nil {
		t.Error("Expected error for non-numeric series, got nil")
	}
}

func TestScratchRemovedOnClose(t *testing.T) {
	parent := t.TempDir()
	a, err := NewScratch(parent, "gsr", false)
	if err != nil {
		t.Fatalf("Failed to create scratch: %v", err)
	}
	b, err := NewScratch(parent, "gsr", false)
	if err != nil {
		t.Fatalf("Failed to create scratch: %v", err)
	}
	if a.Dir == b.Dir {
		t.Error("Expected unique scratch directories")
	}

	if err := os.WriteFile(a.Path("mask.nii.gz"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(a.Dir); !os.IsNotExist(err) {
		t.Error("Expected scratch directory to be removed")
	}

	kept, err := NewScratch(parent, "keep", true)
	if err != nil {
		t.Fatal(err)
	}
	kept.Close()
	if _, err := os.Stat(kept.Dir); err != nil {
		t.Error("Expected kept scratch directory to remain")
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	ctx := context.Background()

	t.Run("Output", func(t *testing.T) {
		r := NewExecRunner(5*time.Second, 0, false)
		out, err := r.Run(ctx, "/bin/sh", "-c", "echo 7")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if strings.TrimSpace(string(out)) != "7" {
			t.Errorf("Expected output 7, got %q", out)
		}
	})

	t.Run("RetryThenFail", func(t *testing.T) {
		counter := filepath.Join(t.TempDir(), "attempts")
		r := NewExecRunner(5*time.Second, 2, false)
		_, err := r.Run(ctx, "/bin/sh", "-c", "echo x >> "+counter+"; exit 1")
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		data, _ := os.ReadFile(counter)
		if n := strings.Count(string(data), "x"); n != 3 {
			t.Errorf("Expected 3 attempts, got %d", n)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		r := NewExecRunner(50*time.Millisecond, 0, false)
		_, err := r.Run(ctx, "/bin/sh", "-c", "exec sleep 5")
		var timeout *qcerrors.TimeoutError
		if !errors.As(err, &timeout) {
			t.Errorf("Expected TimeoutError, got %v", err)
		}
	})
}
