package bids

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Sidecar is the subset of acquisition metadata read from a scan's JSON companion
type Sidecar struct {
	EchoTime                    *float64 `json:"EchoTime"`
	RepetitionTime              *float64 `json:"RepetitionTime"`
	FlipAngle                   *float64 `json:"FlipAngle"`
	SliceThickness              *float64 `json:"SliceThickness"`
	PhaseEncodingDirection      string   `json:"PhaseEncodingDirection"`
	PhaseEncodingAxis           string   `json:"PhaseEncodingAxis"`
	MultibandAccelerationFactor *float64 `json:"MultibandAccelerationFactor"`
	Manufacturer                string   `json:"Manufacturer"`
}

// ReadSidecar decodes a JSON sidecar
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return &sc, nil
}

// EchoTimeMs returns the echo time in milliseconds. Sidecars store seconds.
func (s *Sidecar) EchoTimeMs() (float64, bool) {
	if s == nil || s.EchoTime == nil || *s.EchoTime <= 0 {
		return 0, false
	}
	return *s.EchoTime * 1000, true
}

// PhaseEncoding returns the direction, falling back to the axis
func (s *Sidecar) PhaseEncoding() (string, bool) {
	if s == nil {
		return "", false
	}
	if s.PhaseEncodingDirection != "" {
		return s.PhaseEncodingDirection, true
	}
	if s.PhaseEncodingAxis != "" {
		return s.PhaseEncodingAxis, true
	}
	return "", false
}

// ReadBvals reads a whitespace-separated b-value file
func ReadBvals(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bval: %w", err)
	}
	defer f.Close()

	var out []float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("parse bval %q in %s: %w", field, path, err)
			}
			out = append(out, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan bval: %w", err)
	}
	return out, nil
}
