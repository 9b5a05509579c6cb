package analyzer

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	_ "golang.org/x/image/webp"
)

// ImageAnalyzer loads, validates and saves plate photographs
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	JPEGQuality      int
	SupportedFormats []string
	MinImageSize     int
}

// DefaultFormats is the input whitelist, lowercase and without the dot
var DefaultFormats = []string{"png", "jpg", "jpeg", "tiff", "tif", "heic", "webp"}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			JPEGQuality:      95,
			SupportedFormats: DefaultFormats,
			MinImageSize:     16,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// LoadImage decodes a whitelisted file. EXIF orientation is applied to every format except HEIC,
// which is returned as stored.
func (a *ImageAnalyzer) LoadImage(path string) (image.Image, error) {
	ext := extension(path)
	if !a.IsFormatSupported(ext) {
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}

	if ext == "heic" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image file: %w", err)
		}
		defer f.Close()

		img, err := goheif.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode heic image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	if ext == "webp" {
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil, fmt.Errorf("failed to open image file: %w", ferr)
		}
		defer f.Close()
		if wimg, werr := webp.Decode(f); werr == nil {
			return wimg, nil
		}
	}
	return nil, fmt.Errorf("failed to decode image: %w", err)
}

// LoadImageFromReader decodes any registered format from reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// SaveImage encodes img according to the extension of path. TIFF output is deflate-compressed.
func (a *ImageAnalyzer) SaveImage(img image.Image, path string) error {
	switch ext := extension(path); ext {
	case "tiff", "tif", "png", "bmp", "gif":
		return imaging.Save(img, path)
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(a.config.JPEGQuality))
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		if err := webp.Encode(f, img, &webp.Options{Quality: float32(a.config.JPEGQuality)}); err != nil {
			return fmt.Errorf("failed to encode webp: %w", err)
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", ext)
	}
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// IsFormatSupported reports whether ext (with or without the dot) is on the whitelist
func (a *ImageAnalyzer) IsFormatSupported(ext string) bool {
	ext = strings.TrimPrefix(ext, ".")
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(ext, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// Opaque returns an RGB copy of img: alpha is discarded, colour values are kept
func Opaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
