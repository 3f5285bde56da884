package toolkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"bidsqc/pkg/qcerrors"
)

// waitDelay bounds how long a killed process may hold its output pipes open
const waitDelay = 2 * time.Second

// Runner executes one delegate program and returns its standard output
type Runner interface {
	Run(ctx context.Context, program string, args ...string) ([]byte, error)
}

// ExecRunner runs delegate programs as child processes.
// Each attempt is bounded by Timeout; a failed attempt is retried Retries times.
type ExecRunner struct {
	Timeout time.Duration
	Retries int
	Verbose bool
}

// NewExecRunner creates a runner with the given limits
func NewExecRunner(timeout time.Duration, retries int, verbose bool) *ExecRunner {
	return &ExecRunner{Timeout: timeout, Retries: retries, Verbose: verbose}
}

// Run executes program with args, retrying failed attempts
func (r *ExecRunner) Run(ctx context.Context, program string, args ...string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			log.Printf("Warning: retrying %s (attempt %d/%d): %v", program, attempt+1, r.Retries+1, lastErr)
		}
		out, err := r.runOnce(ctx, program, args)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *ExecRunner) runOnce(ctx context.Context, program string, args []string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if r.Verbose {
		fmt.Printf("  $ %s %s\n", program, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, qcerrors.NewTimeoutError(program, r.Timeout.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", program, err, tail(stderr.String(), 400))
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
