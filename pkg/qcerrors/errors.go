// Package qcerrors provides the error types raised by the QC pipeline.
// Dataset-level errors abort a run; per-file and per-metric errors are logged and skipped.
package qcerrors

import (
	"errors"
	"fmt"
)

// ConfigurationError is raised when a required identifier or setting is missing
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, msg string) *ConfigurationError {
	return &ConfigurationError{Field: field, Msg: msg}
}

// NotFoundError reports an absent subject, session or modality directory
type NotFoundError struct {
	Kind string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Path)
}

// NewNotFoundError creates a new not-found error
func NewNotFoundError(kind, path string) *NotFoundError {
	return &NotFoundError{Kind: kind, Path: path}
}

// AlreadyExistsError reports a session report that is already on disk
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("report already exists: %s", e.Path)
}

// NewAlreadyExistsError creates a new already-exists error
func NewAlreadyExistsError(path string) *AlreadyExistsError {
	return &AlreadyExistsError{Path: path}
}

// MetricComputationError reports a delegate call that failed or produced no output
type MetricComputationError struct {
	File   string
	Metric string
	Err    error
}

func (e *MetricComputationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("metric %s failed for %s", e.Metric, e.File)
	}
	return fmt.Sprintf("metric %s failed for %s: %v", e.Metric, e.File, e.Err)
}

func (e *MetricComputationError) Unwrap() error {
	return e.Err
}

// NewMetricComputationError creates a new metric computation error
func NewMetricComputationError(file, metric string, err error) *MetricComputationError {
	return &MetricComputationError{File: file, Metric: metric, Err: err}
}

// MissingMetadataError reports an absent echo time, phase-encoding field or b-value file
type MissingMetadataError struct {
	File  string
	Field string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("missing metadata %s for %s", e.Field, e.File)
}

// NewMissingMetadataError creates a new missing metadata error
func NewMissingMetadataError(file, field string) *MissingMetadataError {
	return &MissingMetadataError{File: file, Field: field}
}

// TimeoutError reports a delegate invocation that exceeded its time budget
type TimeoutError struct {
	Operation string
	Duration  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation, duration string) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration}
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAlreadyExists reports whether err is or wraps an AlreadyExistsError
func IsAlreadyExists(err error) bool {
	var target *AlreadyExistsError
	return errors.As(err, &target)
}

// IsMissingMetadata reports whether err is or wraps a MissingMetadataError
func IsMissingMetadata(err error) bool {
	var target *MissingMetadataError
	return errors.As(err, &target)
}

// IsFatal reports whether err must abort the whole run
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return true
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Kind == "subject" || nf.Kind == "dataset"
	}
	return false
}
