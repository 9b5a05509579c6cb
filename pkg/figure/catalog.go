// Package figure assembles cropped plates into a strain by substrate grid for one timepoint.
package figure

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/menta2k/plate-processor/pkg/stage"
)

var namePattern = regexp.MustCompile(`^(.+?)_(.+?)_(.+?)\.(?i:tiff)$`)

// Key identifies one plate photograph by its {strain}_{substrate}_{timepoint} name
type Key struct {
	Strain    string
	Substrate string
	Timepoint string
}

// ParseName splits a cropped file name into its key
func ParseName(name string) (Key, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Key{}, false
	}
	return Key{Strain: m[1], Substrate: m[2], Timepoint: m[3]}, true
}

// Catalog indexes a directory of cropped plates
type Catalog struct {
	Dir        string
	Images     map[Key]string
	Strains    []string
	Substrates []string
	Timepoints []string
}

// LoadCatalog reads dir non-recursively. Files that do not follow the naming convention are ignored.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	c := &Catalog{Dir: dir, Images: map[Key]string{}}
	strains, substrates, timepoints := map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		if e.IsDir() || stage.IsTemp(e.Name()) {
			continue
		}
		key, ok := ParseName(e.Name())
		if !ok {
			continue
		}
		c.Images[key] = filepath.Join(dir, e.Name())
		strains[key.Strain] = true
		substrates[key.Substrate] = true
		timepoints[key.Timepoint] = true
	}

	c.Strains = sortedKeys(strains)
	c.Substrates = sortedKeys(substrates)
	c.Timepoints = sortedKeys(timepoints)
	return c, nil
}

// Lookup returns the image path for a cell
func (c *Catalog) Lookup(strain, substrate, timepoint string) (string, bool) {
	path, ok := c.Images[Key{Strain: strain, Substrate: substrate, Timepoint: timepoint}]
	return path, ok
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
