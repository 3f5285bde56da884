package qcerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestMetricComputationErrorUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewMetricComputationError("sub-01_bold.nii.gz", "tqual", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the wrapped cause")
	}

	wrapped := fmt.Errorf("session ses-01: %w", err)
	var target *MetricComputationError
	if !errors.As(wrapped, &target) {
		t.Fatal("Expected errors.As to find MetricComputationError")
	}
	if target.Metric != "tqual" {
		t.Errorf("Metric = %v, want tqual", target.Metric)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"Configuration", NewConfigurationError("subject", "required")},
		{"NotFound", NewNotFoundError("subject", "/data/sub-01")},
		{"AlreadyExists", NewAlreadyExistsError("/qc/report.html")},
		{"MetricNoCause", NewMetricComputationError("f", "m", nil)},
		{"MissingMetadata", NewMissingMetadataError("f", "EchoTime")},
		{"Timeout", NewTimeoutError("3dvolreg", "30m0s")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"Nil", nil, false},
		{"MissingSubjectArg", NewConfigurationError("subject", "required"), true},
		{"MissingSubjectDir", NewNotFoundError("subject", "/data/sub-01"), true},
		{"MissingSession", fmt.Errorf("discover: %w", NewNotFoundError("session", "/data/sub-01/ses-09")), false},
		{"MissingModality", NewNotFoundError("modality", "/data/sub-01/ses-01/dwi"), false},
		{"ReportExists", fmt.Errorf("skip: %w", NewAlreadyExistsError("/qc/r.html")), false},
		{"MetricFailure", NewMetricComputationError("f", "m", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(fmt.Errorf("x: %w", NewNotFoundError("session", "p"))) {
		t.Error("IsNotFound should be true for wrapped NotFoundError")
	}
	if !IsAlreadyExists(NewAlreadyExistsError("p")) {
		t.Error("IsAlreadyExists should be true")
	}
	if !IsMissingMetadata(NewMissingMetadataError("f", "bval")) {
		t.Error("IsMissingMetadata should be true")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("IsNotFound should be false for unrelated errors")
	}
	if !NewTimeoutError("op", "1s").Timeout() {
		t.Error("Timeout() should return true")
	}
}
