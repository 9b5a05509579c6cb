package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/plate-processor/pkg/types"
)

// Counts tallies item outcomes
type Counts struct {
	OK      int `json:"ok"`
	Skipped int `json:"skipped"`
	Warn    int `json:"warn"`
	Failed  int `json:"failed"`
}

// Total is the number of items counted
func (c Counts) Total() int {
	return c.OK + c.Skipped + c.Warn + c.Failed
}

// Report is the per-item outcome of a batch
type Report struct {
	BatchID    string        `json:"batch_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Workers    int           `json:"workers"`
	Items      []ItemResult  `json:"items"`
	Ignored    []string      `json:"ignored,omitempty"`
	Counts     Counts        `json:"counts"`
}

func (r *Report) finish() {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.Counts = Counts{}
	for _, item := range r.Items {
		switch item.Outcome {
		case types.OutcomeOK:
			r.Counts.OK++
		case types.OutcomeSkipped:
			r.Counts.Skipped++
		case types.OutcomeWarn:
			r.Counts.Warn++
		default:
			r.Counts.Failed++
		}
	}
}

// Result returns the result for the item with stem, if any
func (r *Report) Result(stem string) (ItemResult, bool) {
	for _, item := range r.Items {
		if item.Item.Stem == stem {
			return item, true
		}
	}
	return ItemResult{}, false
}

// WriteJSON saves the report as indented JSON
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
