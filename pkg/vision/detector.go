// Package vision locates the circular plate in a photograph with a Hough gradient search.
// Building with -tags gocv adds OpenCVDetector, the same contract over cv::HoughCircles.
package vision

import (
	"errors"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-processor/pkg/types"
)

// ErrNoCircle reports that no plate boundary was found. It is an expected outcome, not a fault.
var ErrNoCircle = errors.New("no circular plate detected")

// maxCandidates bounds how many accumulator peaks DetectAll examines
const maxCandidates = 100

// Locator finds the plate circle in full-resolution image coordinates
type Locator interface {
	Locate(img image.Image) (types.Circle, bool)
}

// PlateDetector finds the circular plate boundary in a photograph using a Hough gradient search
type PlateDetector struct {
	config DetectionConfig
}

// DetectionConfig holds the tunable parameters of the circle search.
//
// DP is the inverse accumulator resolution (1 = one cell per pixel). MinDist is the minimum distance
// between accepted centers. Param1 is the upper Canny threshold (the lower is Param1/2) and Param2
// the accumulator vote threshold. MaxRadius <= 0 means the larger image side.
type DetectionConfig struct {
	DP        float64
	MinDist   float64
	Param1    float64
	Param2    float64
	MinRadius int
	MaxRadius int

	Equalize   bool
	BlurSigma  float64
	FastFactor float64
}

// DefaultConfig returns generic parameters; real datasets should tune radii and MinDist
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		DP:        1,
		MinDist:   100,
		Param1:    100,
		Param2:    30,
		MinRadius: 0,
		MaxRadius: 0,
		Equalize:  true,
		BlurSigma: 2,
	}
}

// New creates a new PlateDetector with default configuration
func New() *PlateDetector {
	return &PlateDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new PlateDetector with custom configuration
func NewWithConfig(config DetectionConfig) *PlateDetector {
	return &PlateDetector{config: config}
}

// Config returns the detector configuration
func (d *PlateDetector) Config() DetectionConfig {
	return d.config
}

// Detect returns the highest-voted circle, or false when none passes the thresholds
func (d *PlateDetector) Detect(img image.Image) (types.Circle, bool) {
	circles := search(img, d.config, 1)
	if len(circles) == 0 {
		return types.Circle{}, false
	}
	return circles[0], true
}

// DetectAll returns every accepted circle ordered by decreasing votes
func (d *PlateDetector) DetectAll(img image.Image) []types.Circle {
	return search(img, d.config, maxCandidates)
}

// DetectFast detects on a copy downscaled by factor and maps the result back to full resolution
func (d *PlateDetector) DetectFast(img image.Image, factor float64) (types.Circle, bool) {
	if factor <= 0 || factor >= 1 {
		return d.Detect(img)
	}

	bounds := img.Bounds()
	w := int(float64(bounds.Dx()) * factor)
	h := int(float64(bounds.Dy()) * factor)
	if w < 3 || h < 3 {
		return types.Circle{}, false
	}

	small := imaging.Resize(img, w, h, imaging.Lanczos)
	circles := search(small, d.config.scaled(factor), 1)
	if len(circles) == 0 {
		return types.Circle{}, false
	}
	return circles[0].Scale(1 / factor), true
}

// Locate runs the fast path when FastFactor is in (0, 1) and the full-resolution search otherwise
func (d *PlateDetector) Locate(img image.Image) (types.Circle, bool) {
	if d.config.FastFactor > 0 && d.config.FastFactor < 1 {
		return d.DetectFast(img, d.config.FastFactor)
	}
	return d.Detect(img)
}

func (c DetectionConfig) scaled(factor float64) DetectionConfig {
	s := c
	s.MinDist = c.MinDist * factor
	s.MinRadius = int(math.Round(float64(c.MinRadius) * factor))
	if c.MaxRadius > 0 {
		s.MaxRadius = int(math.Max(1, math.Round(float64(c.MaxRadius)*factor)))
	}
	return s
}

func search(img image.Image, cfg DetectionConfig, limit int) []types.Circle {
	if cfg.DP <= 0 || cfg.MinDist <= 0 || cfg.Param1 <= 0 || cfg.Param2 <= 0 {
		return nil
	}

	gray := intensity(img, cfg.Equalize, cfg.BlurSigma)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w < 3 || h < 3 {
		return nil
	}

	minR := cfg.MinRadius
	if minR < 0 {
		minR = 0
	}
	maxR := cfg.MaxRadius
	if maxR <= 0 {
		maxR = max(w, h)
	}
	if maxR < minR {
		return nil
	}

	edges := findEdges(gray, cfg.Param1)
	if len(edges) == 0 {
		return nil
	}

	// accumulator cells are never finer than a pixel
	acc := vote(edges, w, h, math.Max(cfg.DP, 1), minR, maxR)
	peaks := acc.peaks(cfg.Param2)

	minDist2 := cfg.MinDist * cfg.MinDist
	var circles []types.Circle
	var centers [][2]float64
	for n, p := range peaks {
		if n >= maxCandidates || (limit > 0 && len(circles) >= limit) {
			break
		}

		cx, cy := acc.centroid(p.idx)

		tooClose := false
		for _, c := range centers {
			dx, dy := c[0]-cx, c[1]-cy
			if dx*dx+dy*dy < minDist2 {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}

		r, ok := estimateRadius(edges, cx, cy, minR, maxR, cfg.Param2)
		if !ok {
			continue
		}

		circle := types.Circle{X: int(math.Round(cx)), Y: int(math.Round(cy)), R: int(math.Round(r))}
		if !circle.Valid() {
			continue
		}
		centers = append(centers, [2]float64{cx, cy})
		circles = append(circles, circle)
	}

	return circles
}

// intensity converts to grayscale, optionally equalizes and smooths
func intensity(img image.Image, equalize bool, sigma float64) *image.Gray {
	gray := toGray(imaging.Grayscale(img))
	if equalize {
		equalizeHist(gray)
	}
	if sigma > 0 {
		gray = toGray(imaging.Blur(gray, sigma))
	}
	return gray
}

func toGray(src *image.NRGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := y * src.Stride
		di := y * dst.Stride
		for x := 0; x < w; x++ {
			dst.Pix[di+x] = src.Pix[si+x*4]
		}
	}
	return dst
}

func equalizeHist(g *image.Gray) {
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	total := len(g.Pix)

	first := 0
	for first < 255 && hist[first] == 0 {
		first++
	}
	if hist[first] == total {
		return
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		v := math.Round(float64(sum) * scale)
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}
	for i, v := range g.Pix {
		g.Pix[i] = lut[v]
	}
}

type edgePoint struct {
	x, y   int
	gx, gy float64
}

const (
	tan22 = 0.4142135623730951
	tan67 = 2.414213562373095
)

// findEdges runs Sobel + Canny with hysteresis thresholds high and high/2
func findEdges(g *image.Gray, high float64) []edgePoint {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	n := w * h
	gx := make([]int32, n)
	gy := make([]int32, n)
	mag := make([]int32, n)

	at := func(x, y int) int32 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return int32(g.Pix[y*g.Stride+x])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a00, a01, a02 := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			a10, a12 := at(x-1, y), at(x+1, y)
			a20, a21, a22 := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			sx := (a02 + 2*a12 + a22) - (a00 + 2*a10 + a20)
			sy := (a20 + 2*a21 + a22) - (a00 + 2*a01 + a02)
			i := y*w + x
			gx[i], gy[i] = sx, sy
			mag[i] = abs32(sx) + abs32(sy)
		}
	}

	// Non-maximum suppression along the quantized gradient direction
	low := high / 2
	state := make([]uint8, n)
	var stack []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if float64(m) <= low {
				continue
			}
			ax, ay := float64(abs32(gx[i])), float64(abs32(gy[i]))

			var n1, n2 int32
			switch {
			case ay <= ax*tan22:
				n1, n2 = mag[i-1], mag[i+1]
			case ay >= ax*tan67:
				n1, n2 = mag[i-w], mag[i+w]
			case (gx[i] > 0) == (gy[i] > 0):
				n1, n2 = mag[i-w-1], mag[i+w+1]
			default:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			}
			if m <= n1 || m < n2 {
				continue
			}
			if float64(m) > high {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	// Hysteresis: weak edges survive only when connected to a strong one
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, off := range [8]int{-w - 1, -w, -w + 1, -1, 1, w - 1, w, w + 1} {
			j := i + off
			if state[j] == 1 {
				state[j] = 2
				stack = append(stack, j)
			}
		}
	}

	var edges []edgePoint
	for i, s := range state {
		if s == 2 {
			edges = append(edges, edgePoint{x: i % w, y: i / w, gx: float64(gx[i]), gy: float64(gy[i])})
		}
	}
	return edges
}

type accumulator struct {
	w, h  int
	dp    float64
	cells []int32
}

type peak struct {
	idx   int
	votes int32
}

// vote casts one vote per radius along both gradient directions of every edge point
func vote(edges []edgePoint, w, h int, dp float64, minR, maxR int) *accumulator {
	aw := int(math.Floor(float64(w-1)/dp+0.5)) + 1
	ah := int(math.Floor(float64(h-1)/dp+0.5)) + 1
	acc := &accumulator{w: aw, h: ah, dp: dp, cells: make([]int32, aw*ah)}

	for _, e := range edges {
		m := math.Hypot(e.gx, e.gy)
		if m == 0 {
			continue
		}
		ux, uy := e.gx/m, e.gy/m
		for _, sign := range [2]float64{1, -1} {
			for r := minR; r <= maxR; r++ {
				cx := float64(e.x) + sign*ux*float64(r)
				cy := float64(e.y) + sign*uy*float64(r)
				ax := int(math.Floor(cx/dp + 0.5))
				ay := int(math.Floor(cy/dp + 0.5))
				if ax < 0 || ay < 0 || ax >= aw || ay >= ah {
					break
				}
				acc.cells[ay*aw+ax]++
			}
		}
	}
	return acc
}

// peaks returns interior local maxima above threshold, strongest first
func (a *accumulator) peaks(threshold float64) []peak {
	var out []peak
	for y := 1; y < a.h-1; y++ {
		for x := 1; x < a.w-1; x++ {
			i := y*a.w + x
			v := a.cells[i]
			if float64(v) > threshold &&
				v > a.cells[i-1] && v >= a.cells[i+1] &&
				v > a.cells[i-a.w] && v >= a.cells[i+a.w] {
				out = append(out, peak{idx: i, votes: v})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].votes > out[j].votes
	})
	return out
}

// centroid refines a peak to sub-cell precision and returns it in pixel coordinates
func (a *accumulator) centroid(idx int) (float64, float64) {
	ax, ay := idx%a.w, idx/a.w
	var sx, sy, sw float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v := float64(a.cells[(ay+dy)*a.w+ax+dx])
			sx += v * float64(ax+dx)
			sy += v * float64(ay+dy)
			sw += v
		}
	}
	return sx / sw * a.dp, sy / sw * a.dp
}

// estimateRadius picks the best-supported edge distance around (cx, cy)
func estimateRadius(edges []edgePoint, cx, cy float64, minR, maxR int, threshold float64) (float64, bool) {
	hist := make([]int, maxR+2)
	for _, e := range edges {
		d := math.Hypot(float64(e.x)-cx, float64(e.y)-cy)
		if d < float64(minR) || d > float64(maxR) {
			continue
		}
		hist[int(d+0.5)]++
	}

	best, bestR := 0, -1
	for r := max(minR, 1); r <= maxR; r++ {
		support := hist[r-1] + hist[r] + hist[r+1]
		if support > best {
			best, bestR = support, r
		}
	}
	if bestR < 0 || float64(best) <= threshold {
		return 0, false
	}

	var sum float64
	count := 0
	for _, e := range edges {
		d := math.Hypot(float64(e.x)-cx, float64(e.y)-cy)
		if math.Abs(d-float64(bestR)) <= 1.5 {
			sum += d
			count++
		}
	}
	if count == 0 {
		return float64(bestR), true
	}
	return sum / float64(count), true
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
