package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies the QC policy defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Policy.BadVolumeFraction != 0.2 {
		t.Errorf("Expected bad volume fraction 0.2, got %v", cfg.Policy.BadVolumeFraction)
	}
	if cfg.Policy.MeanFDLimit != 0.3 {
		t.Errorf("Expected mean FD limit 0.3, got %v", cfg.Policy.MeanFDLimit)
	}
	want := []float64{0.2, 0.3, 0.4, 0.5}
	if len(cfg.Policy.CensorLimits) != len(want) {
		t.Fatalf("Expected %d censor limits, got %d", len(want), len(cfg.Policy.CensorLimits))
	}
	for i, l := range want {
		if cfg.Policy.CensorLimits[i] != l {
			t.Errorf("Expected censor limit %v at %d, got %v", l, i, cfg.Policy.CensorLimits[i])
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

// TestLoadConfigMissingFile verifies that a missing file yields defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Discovery.SessionPrefix != "ses-" {
		t.Errorf("Expected default session prefix, got %q", cfg.Discovery.SessionPrefix)
	}
}

// TestSaveLoadRoundTrip verifies that overrides survive a save/load cycle
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "bidsqc.yaml")

	cfg := DefaultConfig()
	cfg.Policy.MeanFDLimit = 0.5
	cfg.Toolkit.Timeout = "90s"
	cfg.Toolkit.Programs["tstat"] = "/opt/afni/3dTstat"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Policy.MeanFDLimit != 0.5 {
		t.Errorf("Expected mean FD limit 0.5, got %v", loaded.Policy.MeanFDLimit)
	}
	d, err := loaded.ToolkitTimeout()
	if err != nil || d != 90*time.Second {
		t.Errorf("Expected 90s timeout, got %v (%v)", d, err)
	}
	if loaded.Program("tstat") != "/opt/afni/3dTstat" {
		t.Errorf("Expected overridden program, got %q", loaded.Program("tstat"))
	}
	if loaded.Program("calc") != "3dcalc" {
		t.Errorf("Expected default program 3dcalc, got %q", loaded.Program("calc"))
	}
}

// TestLoadConfigInvalid verifies that invalid policy values are rejected
func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := []byte("policy:\n  motionWeights: [1, 1]\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid motion weights, got nil")
	}
}
