package plateprocessor

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/menta2k/plate-processor/pkg/types"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// createPlateImage draws a bright disc on a dark background
func createPlateImage(width, height int, plate types.Circle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{20, 20, 20, 255}
			if dx, dy := x-plate.X, y-plate.Y; plate.R > 0 && dx*dx+dy*dy <= plate.R*plate.R {
				c = color.RGBA{230, 220, 200, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func testConfig() vision.DetectionConfig {
	return vision.DetectionConfig{
		DP: 1, MinDist: 50, Param1: 100, Param2: 30,
		MinRadius: 20, MaxRadius: 100, Equalize: true, BlurSigma: 2,
	}
}

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.analyzer == nil || p.detector == nil || p.cropper == nil || p.processor == nil {
		t.Error("Expected every component to be initialized")
	}
	if p.detector.Config() != vision.DefaultConfig() {
		t.Error("New() should use the default detection parameters")
	}
}

func TestDetectPlate(t *testing.T) {
	p := NewWithConfig(testConfig())
	plate := types.Circle{X: 100, Y: 90, R: 60}

	got, err := p.DetectPlate(createPlateImage(200, 200, plate))
	if err != nil {
		t.Fatalf("DetectPlate failed: %v", err)
	}
	if abs(got.X-plate.X) > 3 || abs(got.Y-plate.Y) > 3 || abs(got.R-plate.R) > 3 {
		t.Errorf("Expected a circle near %v, got %v", plate, got)
	}
}

func TestDetectPlateNone(t *testing.T) {
	p := NewWithConfig(testConfig())
	if _, err := p.DetectPlate(createPlateImage(200, 200, types.Circle{})); !errors.Is(err, vision.ErrNoCircle) {
		t.Errorf("Expected ErrNoCircle, got %v", err)
	}
}

func TestProcessFile(t *testing.T) {
	p := NewWithConfig(testConfig())
	dir := t.TempDir()
	in := filepath.Join(dir, "plate.png")
	out := filepath.Join(dir, "plate.tiff")

	if err := p.SaveImage(createPlateImage(200, 200, types.Circle{X: 100, Y: 90, R: 60}), in); err != nil {
		t.Fatal(err)
	}

	result, err := p.ProcessFile(in, out)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	img, err := p.LoadImage(out)
	if err != nil {
		t.Fatalf("Cropped output unreadable: %v", err)
	}
	if img.Bounds().Size() != result.Box.Size() {
		t.Errorf("Output %v does not match crop box %v", img.Bounds(), result.Box)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Error("Corner of the crop should be masked")
	}
}

func TestProcessFileNoPlate(t *testing.T) {
	p := NewWithConfig(testConfig())
	dir := t.TempDir()
	in := filepath.Join(dir, "blank.png")
	if err := p.SaveImage(createPlateImage(200, 200, types.Circle{}), in); err != nil {
		t.Fatal(err)
	}

	if _, err := p.ProcessFile(in, filepath.Join(dir, "blank.tiff")); !errors.Is(err, vision.ErrNoCircle) {
		t.Errorf("Expected ErrNoCircle, got %v", err)
	}
}

func TestOverlay(t *testing.T) {
	p := New()
	src := createPlateImage(200, 200, types.Circle{X: 100, Y: 100, R: 50})
	if out := p.Overlay(src, types.Circle{X: 100, Y: 100, R: 50}); out.Bounds() != src.Bounds() {
		t.Errorf("Overlay changed bounds to %v", out.Bounds())
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected version %s, got %s", Version, GetVersion())
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
