package label

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menta2k/plate-processor/internal/utils"
)

const (
	ColumnOld = "old_name"
	ColumnNew = "new_name"
)

var (
	// ErrMalformedTable means the rename table lacks the old_name/new_name header
	ErrMalformedTable = errors.New("rename table is missing old_name/new_name columns")
)

// RenameMap maps a lowercased stem to its label. It is built once per batch and never mutated.
type RenameMap map[string]string

// Lookup finds the label for stem, ignoring case
func (m RenameMap) Lookup(stem string) (string, bool) {
	if m == nil {
		return "", false
	}
	label, ok := m[strings.ToLower(stem)]
	return label, ok
}

// LoadRenameMap reads a CSV rename table. An empty path yields an empty map.
// A missing file or a missing column yields an empty map together with the error,
// so callers can log it and continue with OCR only.
func LoadRenameMap(path string) (RenameMap, error) {
	if path == "" {
		return RenameMap{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return RenameMap{}, fmt.Errorf("failed to open rename table: %w", err)
	}
	defer f.Close()

	m, err := ReadRenameMap(f)
	if err != nil {
		return RenameMap{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadRenameMap parses a rename table from r
func ReadRenameMap(r io.Reader) (RenameMap, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return RenameMap{}, ErrMalformedTable
	}
	if err != nil {
		return RenameMap{}, fmt.Errorf("failed to read header: %w", err)
	}

	oldCol, newCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnOld:
			oldCol = i
		case ColumnNew:
			newCol = i
		}
	}
	if oldCol < 0 || newCol < 0 {
		return RenameMap{}, ErrMalformedTable
	}

	m := RenameMap{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RenameMap{}, fmt.Errorf("failed to read row: %w", err)
		}
		if oldCol >= len(record) || newCol >= len(record) {
			continue
		}

		oldName := strings.ToLower(strings.TrimSpace(record[oldCol]))
		newName := utils.SanitizeFilename(strings.TrimSpace(record[newCol]))
		if oldName == "" || newName == "" {
			continue
		}
		m[oldName] = newName
	}
	return m, nil
}
