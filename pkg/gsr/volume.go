package gsr

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Volume is a single 3D volume in x-fastest order
type Volume struct {
	NX, NY, NZ int
	Data       []float64
}

// NewVolume allocates a zero volume
func NewVolume(nx, ny, nz int) Volume {
	return Volume{NX: nx, NY: ny, NZ: nz, Data: make([]float64, nx*ny*nz)}
}

// Index returns the linear index of voxel (i, j, k)
func (v Volume) Index(i, j, k int) int {
	return k*v.NX*v.NY + j*v.NX + i
}

// ShiftWrap returns a copy of v shifted by n voxels along an in-plane axis with wrap-around
func ShiftWrap(v Volume, axis Axis, n int) Volume {
	out := NewVolume(v.NX, v.NY, v.NZ)
	for k := 0; k < v.NZ; k++ {
		for j := 0; j < v.NY; j++ {
			for i := 0; i < v.NX; i++ {
				di, dj := i, j
				if axis == X {
					di = mod(i+n, v.NX)
				} else {
					dj = mod(j+n, v.NY)
				}
				out.Data[out.Index(di, dj, k)] = v.Data[v.Index(i, j, k)]
			}
		}
	}
	return out
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// HalfShifts returns the zero-filled shift offsets whose union equals the
// wrap-around shift by half the extent in both directions
func HalfShifts(extent int) []int {
	half := extent / 2
	shifts := []int{half, -half}
	if rest := extent - half; rest != half {
		shifts = append(shifts, rest, -rest)
	}
	return shifts
}

// Regions holds the binary masks used for one axis
type Regions struct {
	Ghost    Volume
	NonGhost Volume
}

// BuildRegions derives the ghost and non-ghost masks of a brain mask along an axis
func BuildRegions(mask Volume, axis Axis) Regions {
	extent := mask.NX
	if axis == Y {
		extent = mask.NY
	}
	half := extent / 2
	up := ShiftWrap(mask, axis, half)
	down := ShiftWrap(mask, axis, -half)

	ghost := NewVolume(mask.NX, mask.NY, mask.NZ)
	nonGhost := NewVolume(mask.NX, mask.NY, mask.NZ)
	for i := range mask.Data {
		inMask := mask.Data[i] > 0
		shifted := up.Data[i] > 0 || down.Data[i] > 0
		if shifted && !inMask {
			ghost.Data[i] = 1
		}
		if !shifted && !inMask {
			nonGhost.Data[i] = 1
		}
	}
	return Regions{Ghost: ghost, NonGhost: nonGhost}
}

// FromVolumes computes both ratios directly from an in-memory mean signal and brain mask
func FromVolumes(signal, mask Volume) (Result, error) {
	if len(signal.Data) != len(mask.Data) || signal.NX != mask.NX || signal.NY != mask.NY {
		return NotComputable(), fmt.Errorf("signal and mask grids differ")
	}

	median := maskedMedian(signal, mask)
	res := NotComputable()
	for _, axis := range []Axis{X, Y} {
		r := BuildRegions(mask, axis)
		ratio, _ := Ratio(maskedMean(signal, r.Ghost), maskedMean(signal, r.NonGhost), median)
		res.set(axis, ratio)
	}
	return res, nil
}

func masked(signal, mask Volume) []float64 {
	var vals []float64
	for i, m := range mask.Data {
		if m > 0 {
			vals = append(vals, signal.Data[i])
		}
	}
	return vals
}

func maskedMean(signal, mask Volume) float64 {
	vals := masked(signal, mask)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

func maskedMedian(signal, mask Volume) float64 {
	vals := masked(signal, mask)
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}
