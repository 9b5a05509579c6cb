package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"github.com/menta2k/plate-processor/internal/utils"
	"github.com/menta2k/plate-processor/pkg/analyzer"
	"github.com/menta2k/plate-processor/pkg/label"
	"github.com/menta2k/plate-processor/pkg/stage"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// OutputFormat is the extension of every stage artifact
const OutputFormat = "tiff"

// ErrConvert marks an input that could not be read or re-encoded
var ErrConvert = errors.New("conversion failed")

func (b *Batch) convertStage(item Item) stage.Stage {
	return stage.Stage{
		Name: "convert",
		Output: func(context.Context, string) (string, error) {
			return utils.OutputPath(b.config.ConvertedDir, item.Stem, OutputFormat), nil
		},
		Run: func(_ context.Context, in, tmp string) error {
			switch utils.GetFileExtension(in) {
			case "tiff", "tif":
				if err := utils.CopyFile(in, tmp); err != nil {
					return fmt.Errorf("%w: %v", ErrConvert, err)
				}
				return nil
			}

			img, err := b.analyzer.LoadImage(in)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrConvert, err)
			}
			if err := b.analyzer.SaveImage(analyzer.Opaque(img), tmp); err != nil {
				return fmt.Errorf("%w: %v", ErrConvert, err)
			}
			return nil
		},
	}
}

func (b *Batch) labelStage(item Item) stage.Stage {
	return stage.Stage{
		Name: "label",
		Output: func(ctx context.Context, in string) (string, error) {
			res, err := b.resolver.Resolve(ctx, item.Stem, func() (image.Image, error) {
				return b.analyzer.LoadImage(in)
			})
			if err != nil {
				return "", err
			}
			return utils.OutputPath(b.config.RenamedDir, res.Label, OutputFormat), nil
		},
		Run: func(_ context.Context, in, tmp string) error {
			return utils.CopyFile(in, tmp)
		},
		Owns:      label.SameContent,
		Exclusive: true,
	}
}

func (b *Batch) cropStage(item Item) stage.Stage {
	return stage.Stage{
		Name: "crop",
		Output: func(_ context.Context, in string) (string, error) {
			return filepath.Join(b.config.CroppedDir, filepath.Base(in)), nil
		},
		Run: func(_ context.Context, in, tmp string) error {
			img, err := b.analyzer.LoadImage(in)
			if err != nil {
				return fmt.Errorf("failed to load labeled image: %w", err)
			}

			result, err := b.cropper.CropPlate(img)
			if errors.Is(err, vision.ErrNoCircle) {
				return stage.Warning(err)
			}
			if err != nil {
				return err
			}

			if b.config.DebugDir != "" {
				b.writeOverlay(img, result.Circle, utils.Stem(in))
			}
			b.logger.Debug("plate located", "item", item.Stem, "circle", result.Circle.String(), "box", result.Box.String())

			return b.analyzer.SaveImage(result.Image, tmp)
		},
	}
}
