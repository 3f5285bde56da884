package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"bidsqc/internal/models"
	"bidsqc/pkg/ledger"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	stateStyles = map[ledger.State]lipgloss.Style{
		ledger.Unreviewed: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		ledger.Reject:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		ledger.Borderline: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		ledger.Ok:         lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

const individually = -1

// FormPrompter asks for decisions with interactive terminal forms
type FormPrompter struct {
	// Accessible switches to line-based prompts for screen readers and dumb terminals
	Accessible bool
}

// Bulk implements Prompter
func (p *FormPrompter) Bulk(m models.Modality, files []string) (ledger.State, bool, error) {
	choice := individually
	options := []huh.Option[int]{huh.NewOption("Review each file", individually)}
	for _, s := range ledger.AllStates() {
		options = append(options, huh.NewOption(fmt.Sprintf("Set all to %s", s), s.Code()))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(titleStyle.Render(fmt.Sprintf("%s (%d files)", m.Dir(), len(files)))).
				Description(subtitleStyle.Render(strings.Join(files, "\n"))),
			huh.NewSelect[int]().
				Title("Bulk action").
				Options(options...).
				Value(&choice),
		),
	).WithAccessible(p.Accessible)

	if err := form.Run(); err != nil {
		return ledger.Unreviewed, false, err
	}
	if choice == individually {
		return ledger.Unreviewed, false, nil
	}
	return ledger.State(choice), true, nil
}

// File implements Prompter
func (p *FormPrompter) File(m models.Modality, filename string, current ledger.Verdict) (ledger.Verdict, error) {
	v := current
	options := make([]huh.Option[ledger.State], 0, 4)
	for _, s := range ledger.AllStates() {
		options = append(options, huh.NewOption(s.String(), s))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ledger.State]().
				Title(titleStyle.Render(filename)).
				Description(subtitleStyle.Render(m.Dir())).
				Options(options...).
				Value(&v.State),
			huh.NewText().
				Title("Comment").
				CharLimit(500).
				Value(&v.Comment),
		),
	).WithAccessible(p.Accessible)

	if err := form.Run(); err != nil {
		return current, err
	}
	return v, nil
}

// Summary renders the per-modality verdict counts of a ledger
func Summary(l *ledger.Ledger) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Review summary"))
	b.WriteByte('\n')
	for _, m := range models.AllModalities() {
		files := l.Files(m)
		if len(files) == 0 {
			continue
		}
		counts := l.Counts(m)
		parts := make([]string, 0, 4)
		for _, s := range ledger.AllStates() {
			if counts[s] > 0 {
				parts = append(parts, stateStyles[s].Render(fmt.Sprintf("%d %s", counts[s], s)))
			}
		}
		fmt.Fprintf(&b, "  %-5s %s\n", m.Dir(), strings.Join(parts, ", "))
	}
	return b.String()
}
