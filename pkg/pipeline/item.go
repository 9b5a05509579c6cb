package pipeline

import (
	"fmt"
	"strings"

	"github.com/menta2k/plate-processor/internal/utils"
)

// Item is one input photograph
type Item struct {
	Path string `json:"path"`
	Stem string `json:"stem"`
}

// Discover lists the supported files directly inside dir as items.
// Inputs whose stem differs only in case or extension from an earlier one are skipped,
// since every stage names its artifact after the stem.
func Discover(dir string, formats []string) ([]Item, []string, error) {
	if !utils.DirExists(dir) {
		return nil, nil, fmt.Errorf("input directory %s does not exist", dir)
	}

	files, skipped, err := utils.ListImageFiles(dir, formats)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	seen := make(map[string]bool, len(files))
	items := make([]Item, 0, len(files))
	for _, path := range files {
		stem := utils.Stem(path)
		key := strings.ToLower(stem)
		if seen[key] {
			skipped = append(skipped, path)
			continue
		}
		seen[key] = true
		items = append(items, Item{Path: path, Stem: stem})
	}
	return items, skipped, nil
}
