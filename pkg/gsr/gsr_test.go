package gsr

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"bidsqc/pkg/config"
	"bidsqc/pkg/toolkit"
	"bidsqc/pkg/toolkit/toolkittest"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name       string
		ghost      float64
		nonGhost   float64
		median     float64
		want       float64
		computable bool
	}{
		{"Positive", 12, 2, 100, 0.1, true},
		{"Rounded", 1, 0, 3, 0.3333, true},
		{"ZeroMedian", 1, 0, 0, math.NaN(), false},
		{"NaNMedian", 1, 0, math.NaN(), math.NaN(), false},
		{"NaNGhost", math.NaN(), 0, 10, math.NaN(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Ratio(tt.ghost, tt.nonGhost, tt.median)
			if ok != tt.computable {
				t.Fatalf("computable = %v, want %v", ok, tt.computable)
			}
			if !ok {
				if !math.IsNaN(got) {
					t.Errorf("Expected NaN marker, got %v", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Ratio = %v, want %v", got, tt.want)
			}
		})
	}
}

// brainVolume builds an 8x8x1 grid with a 2x2 brain block in the middle
func brainVolume() (signal, mask Volume) {
	signal = NewVolume(8, 8, 1)
	mask = NewVolume(8, 8, 1)
	for j := 3; j < 5; j++ {
		for i := 3; i < 5; i++ {
			signal.Data[signal.Index(i, j, 0)] = 100
			mask.Data[mask.Index(i, j, 0)] = 1
		}
	}
	return signal, mask
}

func TestShiftWrap(t *testing.T) {
	v := NewVolume(4, 2, 1)
	v.Data[v.Index(3, 0, 0)] = 1

	got := ShiftWrap(v, X, 2)
	if got.Data[got.Index(1, 0, 0)] != 1 {
		t.Error("Expected voxel to wrap from x=3 to x=1")
	}
	got = ShiftWrap(v, Y, -1)
	if got.Data[got.Index(3, 1, 0)] != 1 {
		t.Error("Expected voxel to wrap from y=0 to y=1")
	}
}

// TestRegionsPartitionBackground verifies ghost and non-ghost masks are disjoint
// and together with the brain mask cover the field of view
func TestRegionsPartitionBackground(t *testing.T) {
	_, mask := brainVolume()
	for _, axis := range []Axis{X, Y} {
		r := BuildRegions(mask, axis)
		ghostCount := 0
		for i := range mask.Data {
			covered := int(mask.Data[i]) + int(r.Ghost.Data[i]) + int(r.NonGhost.Data[i])
			if covered != 1 {
				t.Fatalf("axis %s voxel %d covered %d times", axis, i, covered)
			}
			ghostCount += int(r.Ghost.Data[i])
		}
		if ghostCount != 4 {
			t.Errorf("axis %s: expected 4 ghost voxels, got %d", axis, ghostCount)
		}
	}
}

// TestZeroBackground verifies an all-zero background yields a ratio of 0 on both axes
func TestZeroBackground(t *testing.T) {
	signal, mask := brainVolume()

	res, err := FromVolumes(signal, mask)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.X != 0 || res.Y != 0 {
		t.Errorf("Expected GSR 0 on both axes, got %+v", res)
	}
}

// TestGhostSignal verifies ghost intensity along one axis raises only that axis' ratio
func TestGhostSignal(t *testing.T) {
	signal, mask := brainVolume()
	for j := 3; j < 5; j++ {
		for i := 7; i < 8; i++ {
			signal.Data[signal.Index(i, j, 0)] = 10
		}
	}

	res, err := FromVolumes(signal, mask)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.X <= 0 {
		t.Errorf("Expected positive x ratio, got %v", res.X)
	}
	if res.Y >= 0 {
		t.Errorf("Expected negative y ratio from background-only signal, got %v", res.Y)
	}
}

func TestFromVolumesEmptyMask(t *testing.T) {
	signal := NewVolume(4, 4, 1)
	mask := NewVolume(4, 4, 1)

	res, err := FromVolumes(signal, mask)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !math.IsNaN(res.X) || !math.IsNaN(res.Y) {
		t.Errorf("Expected not-computable result for empty mask, got %+v", res)
	}

	if _, err := FromVolumes(NewVolume(2, 2, 1), mask); err == nil {
		t.Error("Expected error for mismatched grids, got nil")
	}
}

// shiftZero shifts v by n voxels along axis, dropping voxels pushed past the edge
func shiftZero(v Volume, axis Axis, n int) Volume {
	out := NewVolume(v.NX, v.NY, v.NZ)
	for k := 0; k < v.NZ; k++ {
		for j := 0; j < v.NY; j++ {
			for i := 0; i < v.NX; i++ {
				di, dj := i, j
				if axis == X {
					di = i + n
				} else {
					dj = j + n
				}
				if di < 0 || di >= v.NX || dj < 0 || dj >= v.NY {
					continue
				}
				out.Data[out.Index(di, dj, k)] = v.Data[v.Index(i, j, k)]
			}
		}
	}
	return out
}

// TestHalfShiftsMatchWrap verifies the zero-filled shift union reproduces the
// wrap-around ghost region for odd and even extents
func TestHalfShiftsMatchWrap(t *testing.T) {
	for _, size := range [][2]int{{4, 6}, {5, 7}, {7, 5}, {9, 8}} {
		for _, axis := range []Axis{X, Y} {
			extent := size[0]
			if axis == Y {
				extent = size[1]
			}
			for voxel := 0; voxel < size[0]*size[1]; voxel++ {
				mask := NewVolume(size[0], size[1], 1)
				mask.Data[voxel] = 1

				want := BuildRegions(mask, axis).Ghost
				union := NewVolume(size[0], size[1], 1)
				for _, n := range HalfShifts(extent) {
					shifted := shiftZero(mask, axis, n)
					for i, v := range shifted.Data {
						if v > 0 {
							union.Data[i] = 1
						}
					}
				}
				for i := range union.Data {
					got := 0.0
					if union.Data[i] > 0 && mask.Data[i] == 0 {
						got = 1
					}
					if got != want.Data[i] {
						t.Fatalf("%dx%d axis %s mask voxel %d: ghost voxel %d expected %v, got %v",
							size[0], size[1], axis, voxel, i, want.Data[i], got)
					}
				}
			}
		}
	}
}

func TestHalfShifts(t *testing.T) {
	if got := HalfShifts(64); len(got) != 2 || got[0] != 32 || got[1] != -32 {
		t.Errorf("Expected [32 -32] for an even extent, got %v", got)
	}
	if got := HalfShifts(5); len(got) != 4 || got[0] != 2 || got[1] != -2 || got[2] != 3 || got[3] != -3 {
		t.Errorf("Expected [2 -2 3 -3] for an odd extent, got %v", got)
	}
}

func scratchEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read scratch parent: %v", err)
	}
	return len(entries)
}

func TestComputeWithToolkit(t *testing.T) {
	fake := toolkittest.New()
	fake.MaskAverages["ghost"] = 12
	fake.MaskAverages["nonghost"] = 2
	fake.Median = 100
	tk := toolkit.New(fake, config.DefaultConfig())
	parent := t.TempDir()

	res, err := Compute(context.Background(), tk, "bold.nii.gz", Params{ScratchParent: parent, Label: "bold", Clfrac: 0.5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.X != 0.1 || res.Y != 0.1 {
		t.Errorf("Expected 0.1 on both axes, got %+v", res)
	}
	if n := len(fake.CallsTo("3dmaskave")); n != 4 {
		t.Errorf("Expected 4 region averages, got %d", n)
	}
	if scratchEntries(t, parent) != 0 {
		t.Error("Expected scratch directory removed after success")
	}
}

// TestComputeOddExtent verifies an odd axis gets the extra shifts that complete the wrap-around
func TestComputeOddExtent(t *testing.T) {
	fake := toolkittest.New()
	fake.NX, fake.NY = 5, 6
	tk := toolkit.New(fake, config.DefaultConfig())

	if _, err := Compute(context.Background(), tk, "bold.nii.gz", Params{ScratchParent: t.TempDir(), Label: "bold"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var offsets []string
	var unions []string
	for _, c := range fake.CallsTo("3dcalc") {
		for i, a := range c.Args {
			if a == "-b" && strings.HasPrefix(c.Args[i+1], "a[") {
				offsets = append(offsets, c.Args[i+1])
			}
			if a == "-expr" && strings.HasPrefix(c.Args[i+1], "step(a+b") {
				unions = append(unions, c.Args[i+1])
			}
		}
	}
	want := []string{
		"a[-2,0,0,0]", "a[2,0,0,0]", "a[-3,0,0,0]", "a[3,0,0,0]",
		"a[0,-3,0,0]", "a[0,3,0,0]",
	}
	if len(offsets) != len(want) {
		t.Fatalf("Expected %d shifts, got %v", len(want), offsets)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("Expected shift %d to be %s, got %s", i, want[i], offsets[i])
		}
	}
	if len(unions) != 2 || unions[0] != "step(a+b+c+d)" || unions[1] != "step(a+b)" {
		t.Errorf("Expected 4-way x union and 2-way y union, got %v", unions)
	}
}

func TestComputeZeroMedian(t *testing.T) {
	fake := toolkittest.New()
	fake.Median = 0
	tk := toolkit.New(fake, config.DefaultConfig())

	res, err := Compute(context.Background(), tk, "bold.nii.gz", Params{ScratchParent: t.TempDir(), Label: "bold"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !math.IsNaN(res.X) || !math.IsNaN(res.Y) {
		t.Errorf("Expected not-computable marker, got %+v", res)
	}
}

func TestComputeCleansUpOnFailure(t *testing.T) {
	fake := toolkittest.New()
	fake.Fail["3dcalc"] = errors.New("exit status 1")
	tk := toolkit.New(fake, config.DefaultConfig())
	parent := t.TempDir()

	if _, err := Compute(context.Background(), tk, "bold.nii.gz", Params{ScratchParent: parent, Label: "bold"}); err == nil {
		t.Fatal("Expected error, got nil")
	}
	if scratchEntries(t, parent) != 0 {
		t.Error("Expected scratch directory removed after failure")
	}
}
