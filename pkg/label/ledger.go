package label

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Ledger caches OCR-derived labels as <dir>/<stem>.label so reruns do not read the strips again
type Ledger struct {
	dir string
}

func NewLedger(dir string) *Ledger {
	return &Ledger{dir: dir}
}

func (l *Ledger) path(stem string) string {
	return filepath.Join(l.dir, stem+".label")
}

// Lookup returns the recorded label for stem
func (l *Ledger) Lookup(stem string) (string, bool, error) {
	data, err := os.ReadFile(l.path(stem))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read label ledger: %w", err)
	}

	label := strings.TrimSpace(string(data))
	if label == "" {
		return "", false, nil
	}
	return label, true, nil
}

// Store records label for stem, replacing any earlier record atomically
func (l *Ledger) Store(stem, label string) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, "."+stem+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create ledger record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(label + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), l.path(stem))
}
