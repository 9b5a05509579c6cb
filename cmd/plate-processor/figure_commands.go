package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/plate-processor/internal/config"
	"github.com/menta2k/plate-processor/internal/utils"
	"github.com/menta2k/plate-processor/pkg/figure"
)

func newFigureCommand(ctx *commandContext) *cobra.Command {
	figureCmd := &cobra.Command{
		Use:   "figure",
		Short: "Assemble cropped plates into comparison figures",
	}

	figureCmd.AddCommand(newFigureListCommand(ctx))
	figureCmd.AddCommand(newFigureRenderCommand(ctx))

	return figureCmd
}

func catalogDir(cfg *config.Config, dir string) string {
	if dir != "" {
		return dir
	}
	return cfg.Path(cfg.Paths.CroppedDir)
}

func newFigureListCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the strains, substrates and timepoints available for figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := figure.LoadCatalog(catalogDir(cfg, dir))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(catalog.Images) == 0 {
				fmt.Fprintf(out, "No strain_substrate_timepoint.tiff images in %s\n", catalog.Dir)
				return nil
			}
			fmt.Fprintf(out, "Strains:    %s\n", strings.Join(catalog.Strains, ", "))
			fmt.Fprintf(out, "Substrates: %s\n", strings.Join(catalog.Substrates, ", "))
			fmt.Fprintf(out, "Timepoints: %s\n", strings.Join(catalog.Timepoints, ", "))

			keys := make([]figure.Key, 0, len(catalog.Images))
			for k := range catalog.Images {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				a, b := keys[i], keys[j]
				if a.Strain != b.Strain {
					return a.Strain < b.Strain
				}
				if a.Substrate != b.Substrate {
					return a.Substrate < b.Substrate
				}
				return a.Timepoint < b.Timepoint
			})

			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				size := "-"
				if info, err := os.Stat(catalog.Images[k]); err == nil {
					size = utils.FormatFileSize(info.Size())
				}
				rows = append(rows, []string{k.Strain, k.Substrate, k.Timepoint, size})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Strain", "Substrate", "Timepoint", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of cropped plates (defaults to paths.cropped_dir)")
	return cmd
}

func newFigureRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		dir         string
		strains     string
		substrates  string
		timepoint   string
		orientation string
		cellSize    int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a strain by substrate grid for one timepoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := figure.LoadCatalog(catalogDir(cfg, dir))
			if err != nil {
				return err
			}

			o, err := figure.ParseOrientation(orientation)
			if err != nil {
				return err
			}
			opts := figure.Options{
				Strains:     splitList(strains),
				Substrates:  splitList(substrates),
				Timepoint:   strings.TrimSpace(timepoint),
				Orientation: o,
				CellSize:    cellSize,
			}
			if len(opts.Strains) == 0 {
				opts.Strains = catalog.Strains
			}
			if len(opts.Substrates) == 0 {
				opts.Substrates = catalog.Substrates
			}
			if opts.Timepoint == "" && len(catalog.Timepoints) == 1 {
				opts.Timepoint = catalog.Timepoints[0]
			}

			renderer := figure.NewRenderer()
			img, err := renderer.Render(catalog, opts)
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				name := "figure_" + utils.SanitizeFilename(opts.Timepoint) + ".pdf"
				target = filepath.Join(cfg.Path(cfg.Paths.FigureDir), name)
			}
			if err := utils.EnsureDir(filepath.Dir(target)); err != nil {
				return err
			}
			if err := renderer.Save(img, target); err != nil {
				return fmt.Errorf("save figure: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Figure written to %s (%d strains x %d substrates)\n",
				target, len(opts.Strains), len(opts.Substrates))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", "", "Directory of cropped plates (defaults to paths.cropped_dir)")
	flags.StringVar(&strains, "strains", "", "Comma-separated strains (default: all)")
	flags.StringVar(&substrates, "substrates", "", "Comma-separated substrates (default: all)")
	flags.StringVarP(&timepoint, "timepoint", "t", "", "Timepoint to show (required when several exist)")
	flags.StringVar(&orientation, "orientation", string(figure.Vertical), "vertical (strains on rows) or horizontal")
	flags.IntVar(&cellSize, "cell-size", figure.DefaultCellSize, "Cell edge in pixels")
	flags.StringVarP(&output, "out", "o", "", "Output file (.pdf, .png, .jpg, .tiff)")

	return cmd
}
