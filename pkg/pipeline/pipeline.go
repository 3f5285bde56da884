// Package pipeline runs same-day QC for one subject: discovery, per-file metrics,
// multi-echo maps, decisions and the write-once session report.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"bidsqc/internal/models"
	"bidsqc/pkg/bids"
	"bidsqc/pkg/config"
	"bidsqc/pkg/discovery"
	"bidsqc/pkg/metrics"
	"bidsqc/pkg/multiecho"
	"bidsqc/pkg/qcerrors"
	"bidsqc/pkg/report"
	"bidsqc/pkg/toolkit"
)

// Params holds the QC run parameters
type Params struct {
	// Subject is the subject id, with or without the sub- prefix. Required.
	Subject string

	// BIDSDir is the dataset root. Defaults to the current working directory.
	BIDSDir string

	// Session restricts the run to one session label; empty runs every session
	Session string

	// OutputDir receives one directory per session. Defaults to BIDSDir/../qc.
	OutputDir string

	// Config holds the QC policy and toolkit settings; nil uses the defaults
	Config *config.Config

	// Runner executes delegate programs; nil runs them as subprocesses
	Runner toolkit.Runner
}

// Status is the outcome of one session
type Status int

const (
	Written Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Written:
		return "written"
	case Skipped:
		return "skipped (report exists)"
	default:
		return "failed"
	}
}

// SessionOutcome records what happened to one session
type SessionOutcome struct {
	Key        string
	Status     Status
	ReportPath string

	// Failures counts metrics that could not be computed
	Failures int

	Err error
}

// Pipeline processes the sessions of one subject strictly in sequence
type Pipeline struct {
	params   *Params
	cfg      *config.Config
	tk       *toolkit.Toolkit
	outcomes []SessionOutcome
}

// NewPipeline validates the parameters and applies the defaults
func NewPipeline(params *Params) (*Pipeline, error) {
	if params.Subject == "" {
		return nil, qcerrors.NewConfigurationError("subject", "a subject id is required")
	}

	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if params.BIDSDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		params.BIDSDir = wd
	}
	if params.OutputDir == "" {
		params.OutputDir = DefaultOutputDir(params.BIDSDir)
	}

	runner := params.Runner
	if runner == nil {
		timeout, err := cfg.ToolkitTimeout()
		if err != nil {
			return nil, err
		}
		runner = toolkit.NewExecRunner(timeout, cfg.Toolkit.Retries, cfg.Output.Verbose)
	}

	return &Pipeline{
		params: params,
		cfg:    cfg,
		tk:     toolkit.New(runner, cfg),
	}, nil
}

// DefaultOutputDir places QC output next to the dataset root
func DefaultOutputDir(bidsDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(bidsDir)), "qc")
}

// SessionDir returns the output directory of a session
func (p *Pipeline) SessionDir(s *models.Session) string {
	return filepath.Join(p.params.OutputDir, s.Key())
}

// Process runs QC for every resolved session. Only dataset-level failures are returned;
// per-session and per-metric failures are logged and recorded in Outcomes.
func (p *Pipeline) Process(ctx context.Context) error {
	fmt.Println("Step 1: Discovering sessions...")
	sessions, err := discovery.Sessions(p.params.BIDSDir, p.params.Subject, p.params.Session, discovery.Options{
		SessionPrefix:  p.cfg.Discovery.SessionPrefix,
		ReferenceInfix: p.cfg.Discovery.ReferenceInfix,
	})
	if err != nil {
		if qcerrors.IsFatal(err) {
			return err
		}
		log.Printf("Warning: %v; nothing to process", err)
		return nil
	}
	fmt.Printf("Found %d session(s) for %s\n", len(sessions), discovery.SubjectLabel(p.params.Subject))

	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.outcomes = append(p.outcomes, p.processSession(ctx, s))
	}
	return nil
}

// Outcomes returns the per-session results of the last Process call
func (p *Pipeline) Outcomes() []SessionOutcome {
	return p.outcomes
}

func (p *Pipeline) processSession(ctx context.Context, s *models.Session) SessionOutcome {
	dir := p.SessionDir(s)
	out := SessionOutcome{Key: s.Key(), ReportPath: filepath.Join(dir, report.ReportFileName(s.Key()))}

	if report.Exists(out.ReportPath) {
		log.Printf("Warning: %v; skipping session %s", qcerrors.NewAlreadyExistsError(out.ReportPath), s.Key())
		out.Status = Skipped
		return out
	}

	fmt.Printf("Step 2: Computing per-file metrics for %s...\n", s.Key())
	workDir := filepath.Join(dir, "work")
	imageDir := filepath.Join(dir, "images")
	computer := metrics.NewComputer(p.tk, p.cfg, workDir, imageDir)

	var records []*models.MetricRecord
	for _, m := range []models.Modality{models.Anatomical, models.Diffusion, models.Functional} {
		files := s.PrimaryFiles(m)
		if len(files) == 0 {
			continue
		}
		fmt.Printf("  %s: %d file(s)\n", m.Dir(), len(files))
		for _, f := range files {
			rec := computer.Compute(ctx, f)
			out.Failures += len(rec.Failures)
			records = append(records, rec)
		}
	}
	if n := len(s.Files[models.FieldMap]); n > 0 {
		fmt.Printf("  fmap: %d file(s) listed for review only\n", n)
	}

	fmt.Println("Step 3: Processing multi-echo acquisitions...")
	grouper := multiecho.NewGrouper(p.tk, p.cfg.Policy.EchoGroupSize, filepath.Join(dir, "multiecho"), imageDir)
	echo := grouper.Run(ctx, s.Files[models.Functional])

	fmt.Println("Step 4: Applying QC decisions and assembling the report...")
	builder := report.NewBuilder(p.cfg.Policy, dir)
	r := builder.Build(report.Inputs{
		Session: s,
		Records: records,
		Echo:    echo,
		Bvals:   readBvals(s.PrimaryFiles(models.Diffusion)),
	})

	fmt.Println("Step 5: Writing the report...")
	path, err := report.Write(r)
	switch {
	case err == nil:
		out.Status = Written
		out.ReportPath = path
	case qcerrors.IsAlreadyExists(err):
		log.Printf("Warning: %v; skipping session %s", err, s.Key())
		out.Status = Skipped
	default:
		log.Printf("Warning: session %s: %v", s.Key(), err)
		out.Status = Failed
		out.Err = err
	}

	if !p.cfg.Output.KeepScratch {
		if err := os.RemoveAll(workDir); err != nil {
			log.Printf("Warning: failed to remove %s: %v", workDir, err)
		}
	}
	return out
}

// readBvals loads the b-value list of every diffusion file that has one
func readBvals(files []models.ScanFile) map[string][]float64 {
	bvals := make(map[string][]float64)
	for _, f := range files {
		if f.BvalPath == "" {
			log.Printf("Warning: %v", qcerrors.NewMissingMetadataError(f.Name, "bval"))
			continue
		}
		values, err := bids.ReadBvals(f.BvalPath)
		if err != nil {
			log.Printf("Warning: %v", qcerrors.NewMetricComputationError(f.Name, "bval", err))
			continue
		}
		bvals[f.Name] = values
	}
	return bvals
}
