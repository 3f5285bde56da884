package report

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"

	"bidsqc/pkg/qcerrors"
)

//go:embed templates/report.html.tmpl
var reportTemplate string

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

// Render writes the report as a self-contained HTML document
func Render(w io.Writer, r *SessionReport) error {
	if err := tmpl.Execute(w, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// Exists reports whether a report file is already present at path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Write renders the report and writes it to r.Path(). An existing report is never
// overwritten: the call fails with AlreadyExistsError instead.
func Write(r *SessionReport) (string, error) {
	path := r.Path()
	if Exists(path) {
		return path, qcerrors.NewAlreadyExistsError(path)
	}

	var buf bytes.Buffer
	if err := Render(&buf, r); err != nil {
		return path, err
	}

	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return path, fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, qcerrors.NewAlreadyExistsError(path)
		}
		return path, fmt.Errorf("create report: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(path)
		return path, fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return path, fmt.Errorf("close report: %w", err)
	}
	return path, nil
}
