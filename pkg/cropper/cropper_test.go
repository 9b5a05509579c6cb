package cropper

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/plate-processor/pkg/types"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// createTestImage creates an opaque image with a pattern in every pixel
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	return img
}

type fixedLocator struct {
	circle types.Circle
	ok     bool
}

func (f fixedLocator) Locate(image.Image) (types.Circle, bool) {
	return f.circle, f.ok
}

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}
	if c.locator == nil {
		t.Error("Expected a default locator")
	}
}

func TestCropBoxContainment(t *testing.T) {
	const w, h = 300, 200
	bounds := image.Rect(0, 0, w, h)

	for x := -50; x <= w+50; x += 25 {
		for y := -50; y <= h+50; y += 25 {
			for _, r := range []int{1, 10, 80, 150, 400} {
				circle := types.Circle{X: x, Y: y, R: r}
				box := CropBox(bounds, circle)
				if box.Empty() {
					continue
				}
				if box.Min.X < 0 || box.Min.Y < 0 || box.Max.X > w || box.Max.Y > h {
					t.Fatalf("Box %v for %v escapes image bounds", box, circle)
				}
				if box.Dx() > 2*r || box.Dy() > 2*r {
					t.Fatalf("Box %v for %v is larger than 2r", box, circle)
				}
			}
		}
	}
}

func TestCropInsideImage(t *testing.T) {
	img := createTestImage(200, 200)
	cropped := Crop(img, types.Circle{X: 100, Y: 80, R: 50})

	if cropped.Bounds().Dx() != 100 || cropped.Bounds().Dy() != 100 {
		t.Fatalf("Expected 100x100 crop, got %v", cropped.Bounds())
	}

	// Pixel (0,0) of the crop is (50,30) of the source
	got := cropped.NRGBAAt(0, 0)
	if got.R != 50 || got.G != 30 {
		t.Errorf("Expected source pixel (50,30), got %v", got)
	}
}

func TestCropClippedAtEdge(t *testing.T) {
	img := createTestImage(200, 150)
	cropped := Crop(img, types.Circle{X: 20, Y: 140, R: 60})

	b := cropped.Bounds()
	if b.Dx() != 80 || b.Dy() != 70 {
		t.Errorf("Expected clipped 80x70 crop, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestMaskInscribedCircle(t *testing.T) {
	for _, size := range [][2]int{{100, 100}, {80, 70}, {101, 57}, {1, 1}} {
		w, h := size[0], size[1]
		masked := Mask(createTestImage(w, h))

		r := MaskRadius(masked.Bounds())
		if r != min(w, h)/2 {
			t.Errorf("%dx%d: expected mask radius %d, got %d", w, h, min(w, h)/2, r)
		}

		cx, cy := w/2, h/2
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := masked.NRGBAAt(x, y)
				dx, dy := x-cx, y-cy
				outside := dx*dx+dy*dy > r*r
				if outside && (p.R != 0 || p.G != 0 || p.B != 0 || p.A != 0) {
					t.Fatalf("%dx%d: pixel (%d,%d) outside the circle is %v", w, h, x, y, p)
				}
				if !outside && p.A != 255 {
					t.Fatalf("%dx%d: pixel (%d,%d) inside the circle was masked", w, h, x, y)
				}
			}
		}
	}
}

func TestMaskDoesNotModifyInput(t *testing.T) {
	src := createTestImage(50, 50)
	Mask(src)

	if _, _, _, a := src.At(0, 0).RGBA(); a == 0 {
		t.Error("Mask should not modify the source image")
	}
}

func TestCropPlateNoCircle(t *testing.T) {
	c := NewWithLocator(fixedLocator{ok: false})

	_, err := c.CropPlate(createTestImage(100, 100))
	if !errors.Is(err, vision.ErrNoCircle) {
		t.Errorf("Expected ErrNoCircle, got %v", err)
	}
}

func TestCropPlate(t *testing.T) {
	circle := types.Circle{X: 60, Y: 50, R: 40}
	c := NewWithLocator(fixedLocator{circle: circle, ok: true})

	result, err := c.CropPlate(createTestImage(120, 100))
	if err != nil {
		t.Fatalf("CropPlate failed: %v", err)
	}
	if result.Circle != circle {
		t.Errorf("Expected circle %v, got %v", circle, result.Circle)
	}
	if result.Box != image.Rect(20, 10, 100, 90) {
		t.Errorf("Unexpected crop box %v", result.Box)
	}
	if result.MaskRadius != 40 {
		t.Errorf("Expected mask radius 40, got %d", result.MaskRadius)
	}
}

func TestCropAndMaskOutsideImage(t *testing.T) {
	_, err := CropAndMask(createTestImage(50, 50), types.Circle{X: 500, Y: 500, R: 10})
	if err == nil {
		t.Error("Expected an error for a circle outside the image")
	}
}

func BenchmarkMask(b *testing.B) {
	img := createTestImage(1024, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Mask(img)
	}
}
