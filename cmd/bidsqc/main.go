package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"bidsqc/pkg/config"
	"bidsqc/pkg/discovery"
	"bidsqc/pkg/ledger"
	"bidsqc/pkg/pipeline"
	"bidsqc/pkg/qcerrors"
	"bidsqc/pkg/review"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	statusStyles = map[pipeline.Status]lipgloss.Style{
		pipeline.Written: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		pipeline.Skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		pipeline.Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && (args[0] == "review" || args[0] == "init-config") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "review":
		err = runReview(args)
	case "init-config":
		err = runInitConfig(args)
	default:
		err = runQC(args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sessionFlags are shared by the run and review commands
type sessionFlags struct {
	subject    *string
	bidsDir    *string
	session    *string
	outDir     *string
	configPath *string
}

func addSessionFlags(fs *flag.FlagSet) sessionFlags {
	return sessionFlags{
		subject:    fs.String("subject", "", "Subject id, with or without the sub- prefix (required)"),
		bidsDir:    fs.String("bids-dir", "", "BIDS dataset root (default: current directory)"),
		session:    fs.String("session", "", "Session label (default: all sessions)"),
		outDir:     fs.String("out", "", "QC output directory (default: <bids-dir>/../qc)"),
		configPath: fs.String("config", "", "YAML configuration file (default: built-in policy)"),
	}
}

func runQC(args []string) error {
	fs := flag.NewFlagSet("bidsqc", flag.ExitOnError)
	sf := addSessionFlags(fs)
	verbose := fs.Bool("verbose", false, "Echo every delegate command")
	keepScratch := fs.Bool("keep-scratch", false, "Keep intermediate files")
	fs.Parse(args)

	if *sf.subject == "" {
		fs.Usage()
		return qcerrors.NewConfigurationError("subject", "-subject is required")
	}

	cfg, err := config.LoadConfig(*sf.configPath)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if *keepScratch {
		cfg.Output.KeepScratch = true
	}

	fmt.Println("================================")
	fmt.Println("SAME-DAY MRI QUALITY CONTROL")
	fmt.Println("================================")

	p, err := pipeline.NewPipeline(&pipeline.Params{
		Subject:   *sf.subject,
		BIDSDir:   *sf.bidsDir,
		Session:   *sf.session,
		OutputDir: *sf.outDir,
		Config:    cfg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	if err := p.Process(ctx); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("QC completed in %.1f seconds", time.Since(startTime).Seconds())))
	if len(p.Outcomes()) == 0 {
		fmt.Println(labelStyle.Render("No sessions processed"))
	}
	for _, out := range p.Outcomes() {
		line := fmt.Sprintf("%s  %s", out.Key, statusStyles[out.Status].Render(out.Status.String()))
		if out.Failures > 0 {
			line += labelStyle.Render(fmt.Sprintf("  (%d metrics not computed)", out.Failures))
		}
		fmt.Println(line)
		if out.Status != pipeline.Failed {
			fmt.Println(labelStyle.Render("  " + out.ReportPath))
		} else if out.Err != nil {
			fmt.Println(labelStyle.Render("  " + out.Err.Error()))
		}
	}
	return nil
}

func runReview(args []string) error {
	fs := flag.NewFlagSet("bidsqc review", flag.ExitOnError)
	sf := addSessionFlags(fs)
	accessible := fs.Bool("accessible", false, "Use line-based prompts")
	fs.Parse(args)

	if *sf.subject == "" {
		fs.Usage()
		return qcerrors.NewConfigurationError("subject", "-subject is required")
	}

	cfg, err := config.LoadConfig(*sf.configPath)
	if err != nil {
		return err
	}
	bidsDir := *sf.bidsDir
	if bidsDir == "" {
		if bidsDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	outDir := *sf.outDir
	if outDir == "" {
		outDir = pipeline.DefaultOutputDir(bidsDir)
	}

	sessions, err := discovery.Sessions(bidsDir, *sf.subject, *sf.session, discovery.Options{
		SessionPrefix:  cfg.Discovery.SessionPrefix,
		ReferenceInfix: cfg.Discovery.ReferenceInfix,
	})
	if err != nil {
		return err
	}

	prompter := &review.FormPrompter{Accessible: *accessible}
	for _, s := range sessions {
		path := filepath.Join(outDir, s.Key(), ledger.DecisionFileName(s.Key()))
		l, err := review.Load(s, path)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Reviewing " + s.Key()))
		if l, err = review.Run(l, prompter); err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := ledger.WriteFile(l, path); err != nil {
			return err
		}
		fmt.Print(review.Summary(l))
		fmt.Println(labelStyle.Render("Decisions saved to: " + path))
	}
	return nil
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("bidsqc init-config", flag.ExitOnError)
	fs.Parse(args)

	path := "bidsqc.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := os.Stat(path); err == nil {
		return qcerrors.NewAlreadyExistsError(path)
	}
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to: %s\n", path)
	return nil
}
