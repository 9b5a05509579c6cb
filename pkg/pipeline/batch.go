// Package pipeline runs every input photograph through convert, label and crop.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/plate-processor/internal/utils"
	"github.com/menta2k/plate-processor/pkg/analyzer"
	"github.com/menta2k/plate-processor/pkg/cropper"
	"github.com/menta2k/plate-processor/pkg/label"
	"github.com/menta2k/plate-processor/pkg/ocr"
	"github.com/menta2k/plate-processor/pkg/processing"
	"github.com/menta2k/plate-processor/pkg/stage"
	"github.com/menta2k/plate-processor/pkg/types"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// Config is everything a batch needs besides its collaborators
type Config struct {
	ConvertedDir string
	RenamedDir   string
	CroppedDir   string
	LabelDir     string // ledger of OCR-derived labels
	DebugDir     string // overlays are skipped when empty
	LockDir      string // cross-process locks are skipped when empty
	Workers      int
	OCR          label.Options
	Detection    vision.DetectionConfig
}

// Batch owns the shared, read-only state of one run
type Batch struct {
	config    Config
	logger    *slog.Logger
	analyzer  *analyzer.ImageAnalyzer
	resolver  *label.Resolver
	cropper   *cropper.PlateCropper
	processor *processing.Processor
}

// NewBatch wires a batch. renames and engine are shared by all workers and must not be mutated afterwards.
func NewBatch(cfg Config, renames label.RenameMap, engine ocr.Engine, logger *slog.Logger) *Batch {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var ledger *label.Ledger
	if cfg.LabelDir != "" {
		ledger = label.NewLedger(cfg.LabelDir)
	}

	return &Batch{
		config:    cfg,
		logger:    logger,
		analyzer:  analyzer.New(),
		resolver:  label.NewResolver(renames, engine, ledger, cfg.OCR),
		cropper:   cropper.NewWithLocator(vision.NewWithConfig(cfg.Detection)),
		processor: processing.NewProcessor(),
	}
}

// SetLocator replaces the plate detector, e.g. with the OpenCV backend
func (b *Batch) SetLocator(locator vision.Locator) {
	b.cropper.SetLocator(locator)
}

// ItemResult is what happened to one item
type ItemResult struct {
	Item    Item           `json:"item"`
	Label   string         `json:"label,omitempty"`
	Outcome types.Outcome  `json:"outcome"`
	Stages  []stage.Result `json:"stages"`
	Error   string         `json:"error,omitempty"`
}

// Run processes items on a fixed pool of workers. It never aborts on an item failure;
// cancelling ctx stops handing out items and the rest are reported as failed.
func (b *Batch) Run(ctx context.Context, items []Item) *Report {
	report := &Report{
		BatchID:   uuid.NewString(),
		StartedAt: time.Now(),
		Workers:   b.config.Workers,
		Items:     make([]ItemResult, len(items)),
	}
	logger := b.logger.With("batch_id", report.BatchID)
	logger.Info("batch started", "items", len(items), "workers", b.config.Workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < b.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				report.Items[i] = b.process(ctx, items[i], logger)
			}
		}()
	}

	dispatched := 0
feed:
	for i := range items {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(items); i++ {
		report.Items[i] = ItemResult{
			Item:    items[i],
			Outcome: types.OutcomeFailed,
			Error:   fmt.Sprintf("not started: %v", ctx.Err()),
		}
	}

	report.finish()
	logger.Info("batch complete",
		"ok", report.Counts.OK,
		"skipped", report.Counts.Skipped,
		"warn", report.Counts.Warn,
		"failed", report.Counts.Failed,
		"duration", report.Duration)
	return report
}

// Process runs the stage chain for a single item
func (b *Batch) Process(ctx context.Context, item Item) ItemResult {
	return b.process(ctx, item, b.logger)
}

func (b *Batch) process(ctx context.Context, item Item, logger *slog.Logger) (result ItemResult) {
	result = ItemResult{Item: item}
	itemLogger := logger.With("item", filepath.Base(item.Path))

	defer func() {
		if r := recover(); r != nil {
			itemLogger.Error("panic while processing item", "panic", r)
			result.Outcome = types.OutcomeFailed
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	runner := stage.NewRunner(itemLogger, b.config.LockDir)
	in := item.Path
	for _, s := range b.stages(item) {
		res := runner.Run(ctx, s, in)
		result.Stages = append(result.Stages, res)
		if s.Name == "label" && res.Output != "" {
			result.Label = utils.Stem(res.Output)
		}
		if !res.Outcome.Succeeded() {
			result.Error = res.Error
			break
		}
		in = res.Output
	}

	result.Outcome = summarize(result.Stages)
	return result
}

func (b *Batch) stages(item Item) []stage.Stage {
	return []stage.Stage{
		b.convertStage(item),
		b.labelStage(item),
		b.cropStage(item),
	}
}

// summarize folds stage outcomes: any failure wins, then any warning, then all-skipped
func summarize(results []stage.Result) types.Outcome {
	outcome := types.OutcomeSkipped
	for _, r := range results {
		switch r.Outcome {
		case types.OutcomeFailed:
			return types.OutcomeFailed
		case types.OutcomeWarn:
			outcome = types.OutcomeWarn
		case types.OutcomeOK:
			if outcome == types.OutcomeSkipped {
				outcome = types.OutcomeOK
			}
		}
	}
	if len(results) == 0 {
		return types.OutcomeFailed
	}
	return outcome
}

func (b *Batch) writeOverlay(img image.Image, circle types.Circle, name string) {
	path := utils.OutputPath(b.config.DebugDir, name, "png")
	if err := utils.EnsureDir(b.config.DebugDir); err != nil {
		b.logger.Warn("failed to create debug directory", "error", err)
		return
	}
	overlay := b.processor.CreateDebugOverlay(img, circle)
	if err := b.analyzer.SaveImage(overlay, path); err != nil {
		b.logger.Warn("failed to write debug overlay", "path", path, "error", err)
	}
}
