// Package plateprocessor finds the petri dish in a photograph, crops to it and masks everything outside the plate.
//
// Basic usage:
//
//	p := plateprocessor.New()
//	img, err := p.LoadImage("plate.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := p.CropPlate(img)
//	if errors.Is(err, vision.ErrNoCircle) {
//		log.Printf("no plate in photo")
//		return
//	}
//	if err := p.SaveImage(result.Image, "plate_cropped.tiff"); err != nil {
//		log.Fatal(err)
//	}
//
// The package ties together the building blocks:
//
//  1. Analyzer (pkg/analyzer): decoding (JPEG, PNG, TIFF, HEIC, WebP) and encoding
//  2. Vision (pkg/vision): Hough circle detection
//  3. Cropper (pkg/cropper): bounding-box crop and circular mask
//
// Whole directories, with labelling by rename table or OCR, are handled by pkg/pipeline
// and the plate-processor command.
package plateprocessor

import (
	"fmt"
	"image"

	"github.com/menta2k/plate-processor/pkg/analyzer"
	"github.com/menta2k/plate-processor/pkg/cropper"
	"github.com/menta2k/plate-processor/pkg/processing"
	"github.com/menta2k/plate-processor/pkg/types"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// Version of the plate processor
const Version = "1.0.0"

// PlateProcessor is a single-image front end over detection and cropping
type PlateProcessor struct {
	analyzer  *analyzer.ImageAnalyzer
	detector  *vision.PlateDetector
	cropper   *cropper.PlateCropper
	processor *processing.Processor
}

// New creates a PlateProcessor with the default detection parameters
func New() *PlateProcessor {
	return NewWithConfig(vision.DefaultConfig())
}

// NewWithConfig creates a PlateProcessor with custom detection parameters
func NewWithConfig(config vision.DetectionConfig) *PlateProcessor {
	detector := vision.NewWithConfig(config)
	return &PlateProcessor{
		analyzer:  analyzer.New(),
		detector:  detector,
		cropper:   cropper.NewWithLocator(detector),
		processor: processing.NewProcessor(),
	}
}

// LoadImage loads an image from file
func (p *PlateProcessor) LoadImage(path string) (image.Image, error) {
	return p.analyzer.LoadImage(path)
}

// SaveImage saves an image to file, encoded by extension
func (p *PlateProcessor) SaveImage(img image.Image, path string) error {
	return p.analyzer.SaveImage(img, path)
}

// DetectPlate returns the strongest circle, or vision.ErrNoCircle
func (p *PlateProcessor) DetectPlate(img image.Image) (types.Circle, error) {
	circle, ok := p.detector.Locate(img)
	if !ok {
		return types.Circle{}, vision.ErrNoCircle
	}
	return circle, nil
}

// CropPlate detects the plate, crops to its bounding box and masks outside the inscribed circle
func (p *PlateProcessor) CropPlate(img image.Image) (cropper.CropResult, error) {
	return p.cropper.CropPlate(img)
}

// Overlay draws circle onto a copy of img for inspection
func (p *PlateProcessor) Overlay(img image.Image, circle types.Circle) image.Image {
	return p.processor.CreateDebugOverlay(img, circle)
}

// ProcessFile loads inputPath, crops the plate and writes it to outputPath
func (p *PlateProcessor) ProcessFile(inputPath, outputPath string) (cropper.CropResult, error) {
	img, err := p.LoadImage(inputPath)
	if err != nil {
		return cropper.CropResult{}, fmt.Errorf("failed to load image: %w", err)
	}

	if err := p.analyzer.ValidateImage(img); err != nil {
		return cropper.CropResult{}, fmt.Errorf("image validation failed: %w", err)
	}

	result, err := p.CropPlate(img)
	if err != nil {
		return cropper.CropResult{}, fmt.Errorf("%s: %w", inputPath, err)
	}

	if err := p.SaveImage(result.Image, outputPath); err != nil {
		return cropper.CropResult{}, fmt.Errorf("failed to save crop: %w", err)
	}
	return result, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
