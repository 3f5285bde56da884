// Package toolkit adapts the external imaging toolkit and multi-echo fitting tool.
// Every operation is a synchronous, blocking delegate call; outputs are either parsed
// from the call's standard output or located on disk by prefix and suffix.
package toolkit

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bidsqc/pkg/config"
	"bidsqc/pkg/visualization"
)

// Toolkit issues typed operations through a Runner
type Toolkit struct {
	runner Runner
	cfg    *config.Config
}

// New creates a toolkit bound to a runner and program configuration
func New(runner Runner, cfg *config.Config) *Toolkit {
	return &Toolkit{runner: runner, cfg: cfg}
}

func (t *Toolkit) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	return t.runner.Run(ctx, t.cfg.Program(op), args...)
}

// VolumeCount returns the number of volumes (sub-bricks) in a dataset
func (t *Toolkit) VolumeCount(ctx context.Context, vol string) (int, error) {
	out, err := t.run(ctx, "info", "-nv", vol)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("no volume count reported for %s", vol)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parse volume count %q: %w", fields[0], err)
	}
	return n, nil
}

// Dimensions returns the in-plane grid size (nx, ny) of a dataset
func (t *Toolkit) Dimensions(ctx context.Context, vol string) (int, int, error) {
	out, err := t.run(ctx, "info", "-n4", vol)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("no dimensions reported for %s", vol)
	}
	nx, errX := strconv.Atoi(fields[0])
	ny, errY := strconv.Atoi(fields[1])
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("parse dimensions %q", strings.TrimSpace(string(out)))
	}
	return nx, ny, nil
}

// Snapshot renders tri-planar views of a volume, composes them into out and removes the per-view files.
// overlay and rangeMax are optional; rangeMax <= 0 leaves the color scale automatic.
func (t *Toolkit) Snapshot(ctx context.Context, underlay, overlay string, rangeMax float64, out string) error {
	prefix := strings.TrimSuffix(out, filepath.Ext(out)) + "_view"
	args := []string{
		"-ulay", underlay,
		"-prefix", prefix,
		"-montx", "1", "-monty", "1",
		"-set_xhairs", "OFF",
		"-label_mode", "1",
		"-save_ftype", "PNG",
	}
	if overlay != "" {
		args = append(args, "-olay", overlay, "-cbar", "Plasma", "-pbar_posonly")
		if rangeMax > 0 {
			args = append(args, "-func_range", strconv.FormatFloat(rangeMax, 'f', 4, 64))
		}
	} else {
		args = append(args, "-olay_off")
	}
	if _, err := t.run(ctx, "chauffeur", args...); err != nil {
		return err
	}

	views, err := visualization.FindByPrefix(prefix, ".png")
	if err != nil {
		return err
	}
	if len(views) == 0 {
		return fmt.Errorf("no snapshot images found for prefix %s", prefix)
	}
	defer func() {
		for _, v := range views {
			os.Remove(v)
		}
	}()

	labels := make([]string, len(views))
	for i, v := range views {
		labels[i] = viewLabel(v, prefix)
	}
	return visualization.Compose(views, out, visualization.Options{Gap: 4, Labels: labels})
}

func viewLabel(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, ".png")
	return strings.Trim(rest, "._")
}

// SliceDropBadList runs the intra-volume slice-drop detector and returns the flagged volume indices
func (t *Toolkit) SliceDropBadList(ctx context.Context, vol, prefix string) ([]int, error) {
	if _, err := t.run(ctx, "zipper",
		"-input", vol,
		"-prefix", prefix,
		"-do_out_slice_param",
		"-no_out_bad_mask",
	); err != nil {
		return nil, err
	}

	path := prefix + "_badlist.txt"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bad list: %w", err)
	}
	return parseInts(data)
}

// Volreg registers every volume to volume 0 and writes the 6-parameter motion trace to motionFile
func (t *Toolkit) Volreg(ctx context.Context, vol, motionFile string) error {
	if _, err := t.run(ctx, "volreg",
		"-base", "0",
		"-zpad", "4",
		"-1Dfile", motionFile,
		"-prefix", "NULL",
		vol,
	); err != nil {
		return err
	}
	return requireFile(motionFile)
}

// Tstat computes a temporal statistic map (mean, stdev, cvarinv) into out
func (t *Toolkit) Tstat(ctx context.Context, vol, stat, out string) error {
	if _, err := t.run(ctx, "tstat", "-"+stat, "-prefix", out, vol); err != nil {
		return err
	}
	return requireFile(out)
}

// Automask builds a brain mask from vol at the given clip fraction
func (t *Toolkit) Automask(ctx context.Context, vol string, clfrac float64, out string) error {
	if _, err := t.run(ctx, "automask",
		"-clfrac", strconv.FormatFloat(clfrac, 'f', -1, 64),
		"-prefix", out,
		vol,
	); err != nil {
		return err
	}
	return requireFile(out)
}

// OutlierFractions returns the per-volume fraction of outlier voxels inside mask
func (t *Toolkit) OutlierFractions(ctx context.Context, vol, mask string) ([]float64, error) {
	out, err := t.run(ctx, "outcount", "-mask", mask, "-fraction", "-polort", "3", "-legendre", vol)
	if err != nil {
		return nil, err
	}
	return ParseSeries(out)
}

// QualityIndex returns the per-volume rank-correlation distance to the median volume
func (t *Toolkit) QualityIndex(ctx context.Context, vol string) ([]float64, error) {
	out, err := t.run(ctx, "tqual", "-range", "-spearman", vol)
	if err != nil {
		return nil, err
	}
	return ParseSeries(out)
}

// Trace returns a per-volume intensity-change trace (dvars, srms) inside mask
func (t *Toolkit) Trace(ctx context.Context, vol, mask, method string) ([]float64, error) {
	out, err := t.run(ctx, "tto1d", "-input", vol, "-mask", mask, "-method", method)
	if err != nil {
		return nil, err
	}
	return ParseSeries(out)
}

// Calc evaluates expr over the inputs bound to a, b, c, ... and writes out
func (t *Toolkit) Calc(ctx context.Context, out, expr string, inputs ...string) error {
	if len(inputs) > 26 {
		return fmt.Errorf("too many calc inputs: %d", len(inputs))
	}
	args := make([]string, 0, 2*len(inputs)+4)
	for i, in := range inputs {
		args = append(args, "-"+string(rune('a'+i)), in)
	}
	args = append(args, "-expr", expr, "-prefix", out)
	if _, err := t.run(ctx, "calc", args...); err != nil {
		return err
	}
	return requireFile(out)
}

// ShiftMask copies mask shifted by (di, dj) voxels; voxels shifted past the edge are dropped
func (t *Toolkit) ShiftMask(ctx context.Context, mask string, di, dj int, out string) error {
	shifted := fmt.Sprintf("a[%d,%d,0,0]", -di, -dj)
	if _, err := t.run(ctx, "calc", "-a", mask, "-b", shifted, "-expr", "step(b)", "-prefix", out); err != nil {
		return err
	}
	return requireFile(out)
}

// MaskAverage returns the mean of vol inside mask
func (t *Toolkit) MaskAverage(ctx context.Context, vol, mask string) (float64, error) {
	out, err := t.run(ctx, "maskave", "-quiet", "-mask", mask, vol)
	if err != nil {
		return 0, err
	}
	return lastFloat(out)
}

// MaskMedian returns the median of vol inside mask
func (t *Toolkit) MaskMedian(ctx context.Context, vol, mask string) (float64, error) {
	out, err := t.run(ctx, "brickstat", "-median", "-mask", mask, vol)
	if err != nil {
		return 0, err
	}
	return lastFloat(out)
}

// Plot renders one or more 1D files into a PNG, drawing highlighted indices in red
func (t *Toolkit) Plot(ctx context.Context, out, title string, highlight []int, series ...string) error {
	args := []string{"-png", out, "-one", "-plabel", title, "-xlabel", "volume"}
	if len(highlight) > 0 {
		idx := make([]string, len(highlight))
		for i, h := range highlight {
			idx[i] = strconv.Itoa(h)
		}
		args = append(args, "-censor_RGB", "red", "-CENSORTR", strings.Join(idx, ","))
	}
	args = append(args, series...)
	if _, err := t.run(ctx, "plot", args...); err != nil {
		return err
	}
	return requireFile(out)
}

// MultiEchoOutputs are the files written by the monoexponential fit
type MultiEchoOutputs struct {
	T2StarMap string
	S0Map     string
	RMSEMap   string
	Confounds string
}

// FitMultiEcho runs the multi-echo fitting tool on ordered echo volumes with echo times in ms
func (t *Toolkit) FitMultiEcho(ctx context.Context, echoes []string, echoTimesMs []float64, outDir, prefix string) (*MultiEchoOutputs, error) {
	if len(echoes) != len(echoTimesMs) {
		return nil, fmt.Errorf("echo count %d does not match echo time count %d", len(echoes), len(echoTimesMs))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create multi-echo dir: %w", err)
	}

	args := []string{"-d"}
	args = append(args, echoes...)
	args = append(args, "-e")
	for _, te := range echoTimesMs {
		args = append(args, strconv.FormatFloat(te, 'f', -1, 64))
	}
	args = append(args, "--out-dir", outDir, "--prefix", prefix, "--fittype", "loglin")

	if _, err := t.runner.Run(ctx, t.cfg.Toolkit.MultiEchoProgram, args...); err != nil {
		return nil, err
	}

	outs := &MultiEchoOutputs{
		T2StarMap: filepath.Join(outDir, prefix+"_T2starmap.nii.gz"),
		S0Map:     filepath.Join(outDir, prefix+"_S0map.nii.gz"),
		RMSEMap:   filepath.Join(outDir, prefix+"_desc-rmse_statmap.nii.gz"),
		Confounds: filepath.Join(outDir, prefix+"_desc-confounds_timeseries.tsv"),
	}
	for _, p := range []string{outs.T2StarMap, outs.S0Map, outs.RMSEMap, outs.Confounds} {
		if err := requireFile(p); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

// ParseSeries reads one value per line from a 1D text output, taking the first
// numeric column and skipping comments and blank lines
func ParseSeries(data []byte) ([]float64, error) {
	var out []float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse series value %q: %w", fields[0], err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty series output")
	}
	return out, nil
}

func parseInts(data []byte) ([]int, error) {
	var out []int
	for _, field := range strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	}) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("parse index %q: %w", field, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func lastFloat(data []byte) (float64, error) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty numeric output")
	}
	v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric output %q: %w", fields[len(fields)-1], err)
	}
	return v, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("expected output missing: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("expected output is a directory: %s", path)
	}
	return nil
}
