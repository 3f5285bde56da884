package ledger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"bidsqc/internal/models"
)

const (
	fieldSeparator   = " : "
	commentSeparator = " | Comment: "
)

// DecisionFileName is the decision file name for a session key such as sub-01_ses-01
func DecisionFileName(sessionKey string) string {
	return sessionKey + "_qc_decisions.txt"
}

// Header returns the section header line of a modality
func Header(m models.Modality) string {
	return "[" + m.Dir() + "]"
}

// Line formats one ledger row
func Line(filename string, v Verdict) string {
	return fmt.Sprintf("%s%s%d%s%s", filename, fieldSeparator, v.State.Code(), commentSeparator, flatten(v.Comment))
}

func flatten(comment string) string {
	return strings.Join(strings.Fields(comment), " ")
}

// Export serializes the ledger by modality: a header line, then one line per listed file
func Export(l *Ledger) string {
	var b strings.Builder
	for i, m := range l.sortedModalities() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Header(m))
		b.WriteByte('\n')
		for _, f := range l.files[m] {
			b.WriteString(Line(f, l.verdicts[m][f]))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// WriteFile writes the exported ledger to path
func WriteFile(l *Ledger, path string) error {
	if err := os.WriteFile(path, []byte(Export(l)), 0644); err != nil {
		return fmt.Errorf("write decision file: %w", err)
	}
	return nil
}

// Parse reads a decision file back into a ledger
func Parse(r io.Reader) (*Ledger, error) {
	l := New()
	var current models.Modality
	haveSection := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			m, err := models.ParseModality(strings.Trim(line, "[]"))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current, haveSection = m, true
			if _, ok := l.verdicts[m]; !ok {
				l.Modalities = append(l.Modalities, m)
				l.verdicts[m] = make(map[string]Verdict)
			}
			continue
		}
		if !haveSection {
			return nil, fmt.Errorf("line %d: entry before any modality header", lineNo)
		}

		filename, rest, ok := strings.Cut(line, fieldSeparator)
		if !ok {
			return nil, fmt.Errorf("line %d: missing %q separator", lineNo, strings.TrimSpace(fieldSeparator))
		}
		code, comment, _ := strings.Cut(rest, strings.TrimRight(commentSeparator, " "))
		state, err := ParseState(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(code), "|")))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		filename = strings.TrimSpace(filename)
		l.add(current, filename)
		l.verdicts[current][filename] = Verdict{State: state, Comment: strings.TrimSpace(comment)}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read decision file: %w", err)
	}
	return l, nil
}

// ReadFile parses the decision file at path
func ReadFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
