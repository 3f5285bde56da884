// Package review walks a session's review ledger in the terminal, so verdicts can be
// recorded without opening the HTML report. The result is written in the same flat
// decision format as the report's export.
package review

import (
	"errors"
	"fmt"
	"os"

	"bidsqc/internal/models"
	"bidsqc/pkg/ledger"
)

// Prompter asks the reviewer for decisions
type Prompter interface {
	// Bulk offers a "set all" transition for a modality; apply is false when the reviewer
	// prefers to review files individually
	Bulk(m models.Modality, files []string) (state ledger.State, apply bool, err error)

	// File asks for one file's verdict, starting from its current verdict
	File(m models.Modality, filename string, current ledger.Verdict) (ledger.Verdict, error)
}

// Load builds the session's ledger and merges the decisions saved at decisionPath, if any
func Load(session *models.Session, decisionPath string) (*ledger.Ledger, error) {
	l := ledger.FromSession(session)
	saved, err := ledger.ReadFile(decisionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	return ledger.Merge(l, saved), nil
}

// Run walks every modality table: a bulk transition first, then per-file verdicts
// when the reviewer declines the bulk transition
func Run(l *ledger.Ledger, p Prompter) (*ledger.Ledger, error) {
	for _, m := range models.AllModalities() {
		files := l.Files(m)
		if len(files) == 0 {
			continue
		}

		state, apply, err := p.Bulk(m, files)
		if err != nil {
			return l, err
		}
		if apply {
			l = ledger.SetAll(l, m, state)
			continue
		}

		for _, f := range files {
			current, _ := l.Get(m, f)
			v, err := p.File(m, f, current)
			if err != nil {
				return l, err
			}
			if l, err = ledger.ApplyTransition(l, m, f, v.State); err != nil {
				return l, err
			}
			if l, err = ledger.SetComment(l, m, f, v.Comment); err != nil {
				return l, err
			}
		}
	}
	return l, nil
}
