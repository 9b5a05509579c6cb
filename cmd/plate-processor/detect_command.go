package main

import (
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/plate-processor/internal/config"
	"github.com/menta2k/plate-processor/pkg/analyzer"
	"github.com/menta2k/plate-processor/pkg/cropper"
	"github.com/menta2k/plate-processor/pkg/processing"
	"github.com/menta2k/plate-processor/pkg/types"
	"github.com/menta2k/plate-processor/pkg/vision"
)

type detectOptions struct {
	dp         float64
	minDist    float64
	param1     float64
	param2     float64
	minRadius  int
	maxRadius  int
	fastFactor float64
	backend    string
	all        bool
	overlay    string
	crop       string
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var opts detectOptions

	cmd := &cobra.Command{
		Use:   "detect <image|->",
		Short: "Run plate detection on a single image to tune parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runDetect(cmd, cfg, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.dp, "dp", 0, "Inverse accumulator resolution")
	flags.Float64Var(&opts.minDist, "min-dist", 0, "Minimum distance between circle centers")
	flags.Float64Var(&opts.param1, "param1", 0, "Upper edge threshold")
	flags.Float64Var(&opts.param2, "param2", 0, "Accumulator threshold")
	flags.IntVar(&opts.minRadius, "min-radius", 0, "Minimum radius in pixels")
	flags.IntVar(&opts.maxRadius, "max-radius", 0, "Maximum radius in pixels (0 = unbounded)")
	flags.Float64Var(&opts.fastFactor, "fast-factor", 0, "Detect on an image downscaled by this factor (0 = off)")
	flags.StringVar(&opts.backend, "detector", "", "Circle detector (hough, opencv)")
	flags.BoolVar(&opts.all, "all", false, "List every candidate circle (hough only)")
	flags.StringVar(&opts.overlay, "overlay", "", "Write a debug overlay of the best circle to this path")
	flags.StringVar(&opts.crop, "crop", "", "Write the cropped and masked plate to this path")

	return cmd
}

func (o detectOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	d := &cfg.Detection
	if flags.Changed("dp") {
		d.DP = o.dp
	}
	if flags.Changed("min-dist") {
		d.MinDist = o.minDist
	}
	if flags.Changed("param1") {
		d.Param1 = o.param1
	}
	if flags.Changed("param2") {
		d.Param2 = o.param2
	}
	if flags.Changed("min-radius") {
		d.MinRadius = o.minRadius
	}
	if flags.Changed("max-radius") {
		d.MaxRadius = o.maxRadius
	}
	if flags.Changed("fast-factor") {
		d.FastFactor = o.fastFactor
	}
	if flags.Changed("detector") {
		d.Backend = o.backend
	}
}

func runDetect(cmd *cobra.Command, cfg *config.Config, path string, opts detectOptions) error {
	out := cmd.OutOrStdout()
	imgAnalyzer := analyzer.New()

	var img image.Image
	var err error
	if path == "-" {
		img, err = imgAnalyzer.LoadImageFromReader(cmd.InOrStdin())
	} else {
		img, err = imgAnalyzer.LoadImage(path)
	}
	if err != nil {
		return err
	}

	start := time.Now()
	var circles []types.Circle
	switch {
	case opts.all:
		circles = vision.NewWithConfig(cfg.VisionConfig()).DetectAll(img)
	case cfg.Detection.Backend == "opencv":
		locator, err := newOpenCVLocator(cfg.VisionConfig())
		if err != nil {
			return err
		}
		if c, ok := locator.Locate(img); ok {
			circles = append(circles, c)
		}
	default:
		if c, ok := vision.NewWithConfig(cfg.VisionConfig()).Locate(img); ok {
			circles = append(circles, c)
		}
	}
	elapsed := time.Since(start)

	b := img.Bounds()
	info := imgAnalyzer.GetImageInfo(img)
	fmt.Fprintf(out, "%s: %dx%d (ratio %.2f), detection took %s\n",
		path, info.Width, info.Height, info.AspectRatio, elapsed.Round(time.Millisecond))
	if len(circles) == 0 {
		return fmt.Errorf("%s: %w", path, vision.ErrNoCircle)
	}

	rows := make([][]string, 0, len(circles))
	for i, c := range circles {
		box := cropper.CropBox(b, c)
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.X),
			strconv.Itoa(c.Y),
			strconv.Itoa(c.R),
			box.String(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "X", "Y", "Radius", "Crop box"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
	))

	best := circles[0]
	if opts.overlay != "" {
		overlay := processing.NewProcessor().CreateDebugOverlay(img, best)
		if err := imgAnalyzer.SaveImage(overlay, opts.overlay); err != nil {
			return fmt.Errorf("write overlay: %w", err)
		}
		fmt.Fprintf(out, "Overlay written to %s\n", opts.overlay)
	}
	if opts.crop != "" {
		result, err := cropper.CropAndMask(img, best)
		if err != nil {
			return err
		}
		if err := imgAnalyzer.SaveImage(result.Image, opts.crop); err != nil {
			return fmt.Errorf("write crop: %w", err)
		}
		fmt.Fprintf(out, "Crop written to %s\n", opts.crop)
	}
	return nil
}
