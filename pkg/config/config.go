// Package config provides configuration loading and management for bidsqc.
// It handles loading configuration from YAML files and provides default values
// for every QC policy constant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the QC decision thresholds and plotting limits
type Policy struct {
	// BadVolumeFraction is the fraction of slice-drop volumes at which a DWI series fails
	BadVolumeFraction float64 `yaml:"badVolumeFraction"`

	// MeanFDLimit is the mean framewise displacement (mm) above which a functional run is flagged
	MeanFDLimit float64 `yaml:"meanFDLimit"`

	// CensorLimits are the enorm limits (mm) at which censored volumes are counted
	CensorLimits []float64 `yaml:"censorLimits"`

	// HighlightLimit is the censor limit highlighted in motion plots
	HighlightLimit float64 `yaml:"highlightLimit"`

	// B0Threshold is the b-value below which a DWI volume counts as b0
	B0Threshold float64 `yaml:"b0Threshold"`

	// MinPlotVolumes is the minimum volume count for a motion plot
	MinPlotVolumes int `yaml:"minPlotVolumes"`

	// AutomaskClfrac is the intensity clip fraction for the functional automask
	AutomaskClfrac float64 `yaml:"automaskClfrac"`

	// MotionWeights weight the 3 translation and 3 rotation derivatives in the enorm
	MotionWeights []float64 `yaml:"motionWeights"`

	// EchoGroupSize is the echo count that triggers derived-map generation
	EchoGroupSize int `yaml:"echoGroupSize"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Policy holds the QC decision thresholds
	Policy Policy `yaml:"policy"`

	// Toolkit holds the delegate program names and invocation limits
	Toolkit struct {
		Programs map[string]string `yaml:"programs"`

		// MultiEchoProgram is the monoexponential fitting tool
		MultiEchoProgram string `yaml:"multiEchoProgram"`

		// Timeout bounds each delegate invocation
		Timeout string `yaml:"timeout"`

		// Retries is the number of extra attempts after a failed invocation
		Retries int `yaml:"retries"`
	} `yaml:"toolkit"`

	Discovery struct {
		SessionPrefix  string `yaml:"sessionPrefix"`
		ReferenceInfix string `yaml:"referenceInfix"`
	} `yaml:"discovery"`

	// Output parameters
	Output struct {
		// Verbose echoes every delegate command line
		Verbose bool `yaml:"verbose"`

		// KeepScratch leaves per-file scratch directories on disk for debugging
		KeepScratch bool `yaml:"keepScratch"`
	} `yaml:"output"`
}

// DefaultPrograms maps toolkit operations to their executables
func DefaultPrograms() map[string]string {
	return map[string]string{
		"info":      "3dinfo",
		"tstat":     "3dTstat",
		"automask":  "3dAutomask",
		"outcount":  "3dToutcount",
		"tqual":     "3dTqual",
		"volreg":    "3dvolreg",
		"tto1d":     "3dTto1D",
		"zipper":    "3dZipperZapper",
		"calc":      "3dcalc",
		"maskave":   "3dmaskave",
		"brickstat": "3dBrickStat",
		"chauffeur": "@chauffeur_afni",
		"plot":      "1dplot",
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Policy.BadVolumeFraction = 0.2
	cfg.Policy.MeanFDLimit = 0.3
	cfg.Policy.CensorLimits = []float64{0.2, 0.3, 0.4, 0.5}
	cfg.Policy.HighlightLimit = 0.3
	cfg.Policy.B0Threshold = 10
	cfg.Policy.MinPlotVolumes = 10
	cfg.Policy.AutomaskClfrac = 0.5
	cfg.Policy.MotionWeights = []float64{0.9, 0.9, 0.9, 1, 1, 1}
	cfg.Policy.EchoGroupSize = 3

	cfg.Toolkit.Programs = DefaultPrograms()
	cfg.Toolkit.MultiEchoProgram = "t2smap"
	cfg.Toolkit.Timeout = "30m"
	cfg.Toolkit.Retries = 1

	cfg.Discovery.SessionPrefix = "ses-"
	cfg.Discovery.ReferenceInfix = "sbref"

	cfg.Output.Verbose = false
	cfg.Output.KeepScratch = false

	return cfg
}

// Validate checks the policy values for consistency
func (c *Config) Validate() error {
	if c.Policy.BadVolumeFraction <= 0 || c.Policy.BadVolumeFraction > 1 {
		return fmt.Errorf("policy.badVolumeFraction must be in (0, 1], got %v", c.Policy.BadVolumeFraction)
	}
	if c.Policy.MeanFDLimit <= 0 {
		return fmt.Errorf("policy.meanFDLimit must be positive, got %v", c.Policy.MeanFDLimit)
	}
	if len(c.Policy.CensorLimits) == 0 {
		return fmt.Errorf("policy.censorLimits must not be empty")
	}
	if len(c.Policy.MotionWeights) != 6 {
		return fmt.Errorf("policy.motionWeights must have 6 entries, got %d", len(c.Policy.MotionWeights))
	}
	if c.Policy.EchoGroupSize < 2 {
		return fmt.Errorf("policy.echoGroupSize must be at least 2, got %d", c.Policy.EchoGroupSize)
	}
	if _, err := c.ToolkitTimeout(); err != nil {
		return err
	}
	if c.Toolkit.Retries < 0 {
		return fmt.Errorf("toolkit.retries must not be negative")
	}
	return nil
}

// ToolkitTimeout parses the delegate timeout. Zero disables the timeout.
func (c *Config) ToolkitTimeout() (time.Duration, error) {
	if c.Toolkit.Timeout == "" || c.Toolkit.Timeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Toolkit.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid toolkit.timeout %q: %w", c.Toolkit.Timeout, err)
	}
	return d, nil
}

// Program returns the executable for a toolkit operation, falling back to the defaults
func (c *Config) Program(op string) string {
	if p, ok := c.Toolkit.Programs[op]; ok && p != "" {
		return p
	}
	return DefaultPrograms()[op]
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
