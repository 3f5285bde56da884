package toolkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Scratch is a uniquely named temporary directory owned by one computation.
// Close removes it; callers defer Close right after acquiring.
type Scratch struct {
	Dir  string
	keep bool
}

// NewScratch creates a scratch directory under parent named <label>_<uuid>
func NewScratch(parent, label string, keep bool) (*Scratch, error) {
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("create scratch parent: %w", err)
	}
	dir := filepath.Join(parent, fmt.Sprintf("%s_%s", label, uuid.NewString()))
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{Dir: dir, keep: keep}, nil
}

// Path joins name onto the scratch directory
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Close removes the scratch directory and everything in it
func (s *Scratch) Close() error {
	if s == nil || s.keep {
		return nil
	}
	return os.RemoveAll(s.Dir)
}
