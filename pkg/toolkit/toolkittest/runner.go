// Package toolkittest provides a scripted toolkit.Runner that fabricates
// delegate outputs on disk, so QC code can be exercised without the imaging toolkit.
package toolkittest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Call is one recorded delegate invocation
type Call struct {
	Program string
	Args    []string
}

// Runner fabricates the outputs of the default toolkit programs
type Runner struct {
	mu sync.Mutex

	// Volumes is reported by 3dinfo -nv
	Volumes int

	// NX and NY are reported by 3dinfo -n4
	NX, NY int

	// BadList is written as the slice-drop detector's bad list
	BadList []int

	// Motion rows are written as the 6-parameter registration trace; nil writes zeros
	Motion [][]float64

	// Series is returned by the outlier, quality and trace programs
	Series []float64

	// MaskAverages maps a mask filename fragment to the mean returned by 3dmaskave.
	// The longest matching fragment wins.
	MaskAverages map[string]float64

	// Median is returned by 3dBrickStat
	Median float64

	// Confounds is written as the multi-echo confound table
	Confounds string

	// Fail makes a program return an error
	Fail map[string]error

	// SkipOutput makes a program succeed without writing its output file
	SkipOutput map[string]bool

	Calls []Call
}

// DefaultConfounds is a 4-volume confound table with RMSE percentile columns
const DefaultConfounds = "volume\trmse_mean\trmse_std\trmse_percentile02\trmse_percentile25\trmse_percentile50\trmse_percentile75\trmse_percentile98\n" +
	"0\t5\t1\t1\t2\t3\t4\t10\n" +
	"1\t5\t1\t1\t2\t3\t4\t12\n" +
	"2\t5\t1\t1\t2\t3\t4\t14\n" +
	"3\t5\t1\t1\t2\t3\t4\t16\n"

// New creates a runner with benign defaults
func New() *Runner {
	return &Runner{
		Volumes:      60,
		NX:           64,
		NY:           64,
		Series:       []float64{0.01, 0.02, 0.01, 0.03},
		MaskAverages: map[string]float64{},
		Median:       100,
		Confounds:    DefaultConfounds,
		Fail:         map[string]error{},
		SkipOutput:   map[string]bool{},
	}
}

// Run records the call and fabricates the program's output
func (r *Runner) Run(ctx context.Context, program string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Calls = append(r.Calls, Call{Program: program, Args: append([]string(nil), args...)})
	if err := r.Fail[program]; err != nil {
		return nil, err
	}
	if r.SkipOutput[program] {
		return nil, nil
	}

	switch program {
	case "3dinfo":
		if len(args) > 0 && args[0] == "-n4" {
			return []byte(fmt.Sprintf("%d %d 32 %d\n", r.NX, r.NY, r.Volumes)), nil
		}
		return []byte(fmt.Sprintf("%d\n", r.Volumes)), nil
	case "@chauffeur_afni":
		prefix := argAfter(args, "-prefix")
		for _, view := range []string{"axi", "cor", "sag"} {
			if err := writePNG(prefix + "." + view + ".png"); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "3dZipperZapper":
		parts := make([]string, len(r.BadList))
		for i, b := range r.BadList {
			parts[i] = strconv.Itoa(b)
		}
		return nil, writeFile(argAfter(args, "-prefix")+"_badlist.txt", strings.Join(parts, " "))
	case "3dvolreg":
		return nil, writeFile(argAfter(args, "-1Dfile"), r.motionText())
	case "3dTstat", "3dAutomask", "3dcalc":
		return nil, writeFile(argAfter(args, "-prefix"), "")
	case "3dToutcount", "3dTqual", "3dTto1D":
		return []byte(seriesText(r.Series)), nil
	case "3dmaskave":
		return []byte(fmt.Sprintf("%g\n", r.maskAverage(argAfter(args, "-mask")))), nil
	case "3dBrickStat":
		return []byte(fmt.Sprintf("50 %g\n", r.Median)), nil
	case "1dplot":
		return nil, writePNG(argAfter(args, "-png"))
	case "t2smap":
		dir := argAfter(args, "--out-dir")
		prefix := argAfter(args, "--prefix")
		for _, name := range []string{"_T2starmap.nii.gz", "_S0map.nii.gz", "_desc-rmse_statmap.nii.gz"} {
			if err := writeFile(filepath.Join(dir, prefix+name), ""); err != nil {
				return nil, err
			}
		}
		return nil, writeFile(filepath.Join(dir, prefix+"_desc-confounds_timeseries.tsv"), r.Confounds)
	default:
		return nil, fmt.Errorf("toolkittest: unknown program %s", program)
	}
}

// CallsTo returns the recorded calls of one program
func (r *Runner) CallsTo(program string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.Calls {
		if c.Program == program {
			out = append(out, c)
		}
	}
	return out
}

func (r *Runner) motionText() string {
	rows := r.Motion
	if rows == nil {
		rows = make([][]float64, r.Volumes)
		for i := range rows {
			rows[i] = make([]float64, 6)
		}
	}
	var b strings.Builder
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Runner) maskAverage(mask string) float64 {
	base := filepath.Base(mask)
	best, value := -1, 0.0
	for key, v := range r.MaskAverages {
		if strings.Contains(base, key) && len(key) > best {
			best, value = len(key), v
		}
	}
	return value
}

func seriesText(series []float64) string {
	var b strings.Builder
	for _, v := range series {
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		b.WriteByte('\n')
	}
	return b.String()
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func writeFile(path, content string) error {
	if path == "" {
		return fmt.Errorf("toolkittest: missing output path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

func writePNG(path string) error {
	if path == "" {
		return fmt.Errorf("toolkittest: missing image path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	img.SetGray(0, 0, color.Gray{Y: 255})
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
