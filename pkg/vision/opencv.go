//go:build gocv

package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/menta2k/plate-processor/pkg/types"
)

// OpenCVDetector runs cv::HoughCircles through gocv. Build with -tags gocv.
type OpenCVDetector struct {
	config DetectionConfig
}

// NewOpenCV creates an OpenCV-backed detector with the same parameters as PlateDetector
func NewOpenCV(config DetectionConfig) *OpenCVDetector {
	return &OpenCVDetector{config: config}
}

// Detect returns the first circle reported by OpenCV
func (d *OpenCVDetector) Detect(img image.Image) (types.Circle, bool) {
	return d.detect(img, d.config)
}

// Locate applies the fast path when FastFactor is in (0, 1)
func (d *OpenCVDetector) Locate(img image.Image) (types.Circle, bool) {
	f := d.config.FastFactor
	if f <= 0 || f >= 1 {
		return d.detect(img, d.config)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return types.Circle{}, false
	}
	defer mat.Close()

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(mat, &small, image.Point{}, f, f, gocv.InterpolationLanczos4)
	smallImg, err := small.ToImage()
	if err != nil {
		return types.Circle{}, false
	}

	c, ok := d.detect(smallImg, d.config.scaled(f))
	if !ok {
		return types.Circle{}, false
	}
	return c.Scale(1 / f), true
}

func (d *OpenCVDetector) detect(img image.Image, cfg DetectionConfig) (types.Circle, bool) {
	if cfg.DP <= 0 || cfg.MinDist <= 0 || cfg.Param1 <= 0 || cfg.Param2 <= 0 {
		return types.Circle{}, false
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return types.Circle{}, false
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray); err != nil {
		return types.Circle{}, false
	}
	if cfg.Equalize {
		gocv.EqualizeHist(gray, &gray)
	}
	if cfg.BlurSigma > 0 {
		gocv.GaussianBlur(gray, &gray, image.Pt(9, 9), cfg.BlurSigma, cfg.BlurSigma, gocv.BorderDefault)
	}

	circles := gocv.NewMat()
	defer circles.Close()
	gocv.HoughCirclesWithParams(gray, &circles, gocv.HoughGradient,
		cfg.DP, cfg.MinDist, cfg.Param1, cfg.Param2, cfg.MinRadius, cfg.MaxRadius)
	if circles.Empty() || circles.Cols() == 0 {
		return types.Circle{}, false
	}

	v := circles.GetVecfAt(0, 0)
	c := types.Circle{
		X: int(math.Round(float64(v[0]))),
		Y: int(math.Round(float64(v[1]))),
		R: int(math.Round(float64(v[2]))),
	}
	return c, c.Valid()
}
