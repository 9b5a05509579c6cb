package cropper

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-processor/pkg/types"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// PlateCropper crops a photograph to the detected plate and blanks everything outside it
type PlateCropper struct {
	locator vision.Locator
}

// CropResult contains the result of a crop-and-mask operation
type CropResult struct {
	Image      *image.NRGBA
	Circle     types.Circle
	Box        image.Rectangle
	MaskRadius int
}

// New creates a new PlateCropper backed by the default detector
func New() *PlateCropper {
	return &PlateCropper{locator: vision.New()}
}

// NewWithLocator creates a PlateCropper that finds plates with locator
func NewWithLocator(locator vision.Locator) *PlateCropper {
	return &PlateCropper{locator: locator}
}

// SetLocator allows setting a custom plate locator
func (c *PlateCropper) SetLocator(locator vision.Locator) {
	c.locator = locator
}

// CropPlate locates the plate, crops to its bounding box and masks to the inscribed circle.
// It returns vision.ErrNoCircle when no plate is found.
func (c *PlateCropper) CropPlate(img image.Image) (CropResult, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return CropResult{}, fmt.Errorf("invalid image dimensions")
	}

	circle, ok := c.locator.Locate(img)
	if !ok {
		return CropResult{}, vision.ErrNoCircle
	}

	return CropAndMask(img, circle)
}

// CropAndMask crops img to circle's bounding box and masks the result
func CropAndMask(img image.Image, circle types.Circle) (CropResult, error) {
	box := CropBox(img.Bounds(), circle)
	if box.Empty() {
		return CropResult{}, fmt.Errorf("circle %v lies outside the image", circle)
	}

	masked := Mask(imaging.Crop(img, box))
	return CropResult{
		Image:      masked,
		Circle:     circle,
		Box:        box,
		MaskRadius: MaskRadius(masked.Bounds()),
	}, nil
}

// CropBox returns the circle's bounding square [x-r, x+r) x [y-r, y+r) clamped to bounds
func CropBox(bounds image.Rectangle, circle types.Circle) image.Rectangle {
	return circle.Bounds().Intersect(bounds)
}

// Crop returns a copy of the clamped bounding box of circle
func Crop(img image.Image, circle types.Circle) *image.NRGBA {
	return imaging.Crop(img, CropBox(img.Bounds(), circle))
}

// MaskRadius is the radius of the circle inscribed in bounds
func MaskRadius(bounds image.Rectangle) int {
	return min(bounds.Dx(), bounds.Dy()) / 2
}

// Mask returns a copy of img with every channel zeroed outside the inscribed circle.
// The radius is recomputed from the image so a crop clipped at the frame edge keeps the mask inside it.
func Mask(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	cx, cy := w/2, h/2
	r := MaskRadius(dst.Rect)
	r2 := r * r

	for y := 0; y < h; y++ {
		dy := y - cy
		i := y * dst.Stride
		for x := 0; x < w; x++ {
			dx := x - cx
			if dx*dx+dy*dy > r2 {
				dst.Pix[i+0] = 0
				dst.Pix[i+1] = 0
				dst.Pix[i+2] = 0
				dst.Pix[i+3] = 0
			}
			i += 4
		}
	}
	return dst
}
