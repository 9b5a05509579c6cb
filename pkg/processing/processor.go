package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-processor/pkg/types"
)

// DefaultStripRatio is the share of the image height read as a label strip at the top and bottom
const DefaultStripRatio = 0.12

// Processor handles the pixel work around OCR and debugging
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Binarize converts img to grayscale and applies a global Otsu threshold (text black on white)
func (p *Processor) Binarize(img image.Image) *image.Gray {
	gray := imaging.Grayscale(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := y * gray.Stride
		di := y * out.Stride
		for x := 0; x < w; x++ {
			out.Pix[di+x] = gray.Pix[si+x*4]
		}
	}

	t := OtsuThreshold(out)
	for i, v := range out.Pix {
		if v > t {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// OtsuThreshold returns the level that maximizes between-class variance
func OtsuThreshold(g *image.Gray) uint8 {
	var hist [256]float64
	for _, v := range g.Pix {
		hist[v]++
	}
	total := float64(len(g.Pix))
	if total == 0 {
		return 0
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * c
	}

	var sumB, wB, best float64
	var threshold uint8
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * hist[i]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}

// LabelStrips returns the top and bottom ratio*height rows of img
func (p *Processor) LabelStrips(img image.Image, ratio float64) (image.Image, image.Image, error) {
	if ratio <= 0 || ratio > 0.5 {
		return nil, nil, fmt.Errorf("strip ratio %.3f out of range (0, 0.5]", ratio)
	}
	bounds := img.Bounds()
	delta := int(float64(bounds.Dy()) * ratio)
	if delta < 1 {
		return nil, nil, fmt.Errorf("image height %d too small for label strips", bounds.Dy())
	}

	top := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+delta))
	bottom := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Max.Y-delta, bounds.Max.X, bounds.Max.Y))
	return top, bottom, nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CreateDebugOverlay draws the detected circle, its crop box and its center onto a copy of img
func (p *Processor) CreateDebugOverlay(img image.Image, circle types.Circle) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}  // plate boundary
	gold := color.NRGBA{255, 204, 0, 255} // crop box
	red := color.NRGBA{255, 0, 0, 255}    // plate center
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	drawCircle(nrgba, circle, green, stroke)

	box := circle.Bounds().Intersect(nrgba.Bounds())
	for s := 0; s < stroke; s++ {
		drawHLine(nrgba, box.Min.Y+s, box.Min.X, box.Max.X, gold)
		drawHLine(nrgba, box.Max.Y-1-s, box.Min.X, box.Max.X, gold)
		drawVLine(nrgba, box.Min.X+s, box.Min.Y, box.Max.Y, gold)
		drawVLine(nrgba, box.Max.X-1-s, box.Min.Y, box.Max.Y, gold)
	}

	drawHLine(nrgba, circle.Y, circle.X-cross, circle.X+cross, red)
	drawVLine(nrgba, circle.X, circle.Y-cross, circle.Y+cross, red)

	return nrgba
}

func drawCircle(img *image.NRGBA, c types.Circle, col color.NRGBA, stroke int) {
	inner := float64(c.R - stroke)
	outer := float64(c.R)
	box := c.Bounds().Intersect(img.Bounds())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			d := math.Hypot(float64(x-c.X), float64(y-c.Y))
			if d >= inner && d <= outer {
				img.SetNRGBA(x, y, col)
			}
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
