package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/plate-processor/internal/config"
	"github.com/menta2k/plate-processor/pkg/label"
	"github.com/menta2k/plate-processor/pkg/ocr"
	"github.com/menta2k/plate-processor/pkg/pipeline"
)

var stageColumns = []string{"convert", "label", "crop"}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		renameCSV  string
		input      string
		workers    int
		reportPath string
		debug      bool
		ocrBackend string
		backend    string
		fastFactor float64
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Convert, label, detect and crop every photo in the input directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("rename-csv") {
				cfg.Rename.CSV = renameCSV
			}
			if flags.Changed("input") {
				cfg.Paths.RawDir = input
			}
			if flags.Changed("workers") {
				cfg.Workers.Count = workers
			}
			if flags.Changed("report") {
				cfg.Output.Report = reportPath
			}
			if flags.Changed("debug") {
				cfg.Output.Debug = debug
			}
			if flags.Changed("ocr-backend") {
				cfg.OCR.Backend = ocrBackend
			}
			if flags.Changed("detector") {
				cfg.Detection.Backend = backend
			}
			if flags.Changed("fast-factor") {
				cfg.Detection.FastFactor = fastFactor
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			return runProcess(cmd, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&renameCSV, "rename-csv", "", "CSV table with old_name,new_name columns")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Directory of raw photographs")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of parallel workers (0 = one per CPU)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a JSON report of the batch to this path")
	cmd.Flags().BoolVar(&debug, "debug", false, "Write detection overlays to the debug directory")
	cmd.Flags().StringVar(&ocrBackend, "ocr-backend", "", "OCR backend (tesseract, ollama, llamacpp, none)")
	cmd.Flags().StringVar(&backend, "detector", "", "Circle detector (hough, opencv)")
	cmd.Flags().Float64Var(&fastFactor, "fast-factor", 0, "Detect on an image downscaled by this factor (0 = off)")

	return cmd
}

func runProcess(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	out := cmd.OutOrStdout()

	csvPath := cfg.Path(cfg.Rename.CSV)
	renames, err := label.LoadRenameMap(csvPath)
	switch {
	case err != nil:
		logger.Warn("rename table unavailable, labels come from OCR", "path", csvPath, "error", err)
	case csvPath != "":
		logger.Info("rename table loaded", "path", csvPath, "entries", len(renames))
	}

	engine, err := ocr.New(cfg.EngineOptions())
	if err != nil {
		return err
	}
	if t, ok := engine.(*ocr.Tesseract); ok && !t.Available() {
		logger.Warn("tesseract executable not found; items missing from the rename table will fail", "binary", cfg.OCR.Binary)
	}

	rawDir := cfg.Path(cfg.Paths.RawDir)
	items, ignored, err := pipeline.Discover(rawDir, cfg.Formats())
	if err != nil {
		return fmt.Errorf("read input directory: %w", err)
	}
	for _, path := range ignored {
		logger.Warn("skipping file", "path", path)
	}
	if len(items) == 0 {
		fmt.Fprintf(out, "No images found in %s\n", rawDir)
		return nil
	}

	batch := pipeline.NewBatch(cfg.PipelineConfig(), renames, engine, logger)
	if cfg.Detection.Backend == "opencv" {
		locator, err := newOpenCVLocator(cfg.VisionConfig())
		if err != nil {
			return err
		}
		batch.SetLocator(locator)
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := batch.Run(runCtx, items)
	report.Ignored = ignored

	printReport(out, report)

	if cfg.Output.Report != "" {
		path := cfg.Path(cfg.Output.Report)
		if err := report.WriteJSON(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", path)
	}

	if err := runCtx.Err(); err != nil {
		return err
	}
	if report.Counts.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", report.Counts.Failed, report.Counts.Total())
	}
	return nil
}

func printReport(w io.Writer, report *pipeline.Report) {
	headers := append([]string{"Item", "Label"}, stageColumns...)
	headers = append(headers, "Outcome", "Error")

	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		row := []string{item.Item.Stem, item.Label}
		for _, name := range stageColumns {
			cell := "-"
			for _, res := range item.Stages {
				if res.Stage == name {
					cell = string(res.Outcome)
				}
			}
			row = append(row, cell)
		}
		row = append(row, string(item.Outcome), item.Error)
		rows = append(rows, row)
	}
	fmt.Fprintln(w, renderTable(headers, rows, nil))

	c := report.Counts
	fmt.Fprintf(w, "%d items: %d ok, %d skipped, %d warn, %d failed in %s\n",
		c.Total(), c.OK, c.Skipped, c.Warn, c.Failed, report.Duration.Round(time.Millisecond))
}
