package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/plate-processor/pkg/types"
)

// createPlateImage draws bright discs on a dark background
func createPlateImage(width, height int, plates ...types.Circle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{20, 20, 20, 255}
			for _, p := range plates {
				dx, dy := x-p.X, y-p.Y
				if dx*dx+dy*dy <= p.R*p.R {
					c = color.RGBA{230, 220, 200, 255}
					break
				}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func testConfig() DetectionConfig {
	return DetectionConfig{
		DP:        1,
		MinDist:   50,
		Param1:    100,
		Param2:    30,
		MinRadius: 20,
		MaxRadius: 100,
		Equalize:  true,
		BlurSigma: 2,
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func assertNear(t *testing.T, name string, got, want, tol int) {
	t.Helper()
	if absInt(got-want) > tol {
		t.Errorf("%s: expected %d±%d, got %d", name, want, tol, got)
	}
}

func TestNew(t *testing.T) {
	detector := New()
	if detector == nil {
		t.Fatal("New() returned nil")
	}

	if detector.config.DP != 1 {
		t.Errorf("Expected dp 1, got %f", detector.config.DP)
	}
	if !detector.config.Equalize {
		t.Error("Expected histogram equalization on by default")
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MinRadius = 300

	detector := NewWithConfig(cfg)
	if detector.Config().MinRadius != 300 {
		t.Errorf("Expected min radius 300, got %d", detector.Config().MinRadius)
	}
}

func TestDetectSinglePlate(t *testing.T) {
	want := types.Circle{X: 100, Y: 90, R: 60}
	img := createPlateImage(200, 200, want)

	got, ok := NewWithConfig(testConfig()).Detect(img)
	if !ok {
		t.Fatal("Expected a circle to be detected")
	}

	assertNear(t, "x", got.X, want.X, 2)
	assertNear(t, "y", got.Y, want.Y, 2)
	assertNear(t, "r", got.R, want.R, 3)
}

func TestDetectNoPlate(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{uint8(x / 2), uint8(y / 2), 64, 255})
		}
	}

	if c, ok := NewWithConfig(testConfig()).Detect(img); ok {
		t.Errorf("Expected no detection on a gradient, got %v", c)
	}

	uniform := createPlateImage(120, 120)
	if c, ok := NewWithConfig(testConfig()).Detect(uniform); ok {
		t.Errorf("Expected no detection on a uniform image, got %v", c)
	}
}

func TestDetectOutOfRangeParameters(t *testing.T) {
	img := createPlateImage(200, 200, types.Circle{X: 100, Y: 100, R: 60})

	tests := []struct {
		name   string
		mutate func(*DetectionConfig)
	}{
		{"radius range excludes plate", func(c *DetectionConfig) { c.MinRadius, c.MaxRadius = 80, 95 }},
		{"inverted radius range", func(c *DetectionConfig) { c.MinRadius, c.MaxRadius = 90, 30 }},
		{"zero dp", func(c *DetectionConfig) { c.DP = 0 }},
		{"negative min dist", func(c *DetectionConfig) { c.MinDist = -1 }},
		{"huge vote threshold", func(c *DetectionConfig) { c.Param2 = 1e6 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if c, ok := NewWithConfig(cfg).Detect(img); ok {
				t.Errorf("Expected no detection, got %v", c)
			}
		})
	}
}

func TestDetectSubPixelDP(t *testing.T) {
	want := types.Circle{X: 500, Y: 480, R: 120}
	img := createPlateImage(1000, 1000, want)

	cfg := DetectionConfig{DP: 0.02, MinDist: 100, Param1: 100, Param2: 30, MinRadius: 80, MaxRadius: 160, Equalize: true, BlurSigma: 2}
	got, ok := NewWithConfig(cfg).Detect(img)

	cfg.DP = 1
	ref, refOK := NewWithConfig(cfg).Detect(img)
	if ok != refOK || got != ref {
		t.Errorf("dp below 1 should behave like dp 1: got %v/%v, want %v/%v", got, ok, ref, refOK)
	}
}

func TestDetectAllRespectsMinDist(t *testing.T) {
	a := types.Circle{X: 60, Y: 60, R: 40}
	b := types.Circle{X: 180, Y: 60, R: 40}
	img := createPlateImage(240, 120, a, b)

	cfg := testConfig()
	circles := NewWithConfig(cfg).DetectAll(img)
	if len(circles) < 2 {
		t.Fatalf("Expected at least 2 circles, got %d", len(circles))
	}
	for _, want := range []types.Circle{a, b} {
		found := false
		for _, c := range circles {
			if absInt(c.X-want.X) <= 3 && absInt(c.Y-want.Y) <= 3 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected a circle near %v in %v", want, circles)
		}
	}

	cfg.MinDist = 1000
	circles = NewWithConfig(cfg).DetectAll(img)
	if len(circles) != 1 {
		t.Errorf("Expected 1 circle with a large min dist, got %d", len(circles))
	}
}

func TestDetectFastMatchesFullResolution(t *testing.T) {
	want := types.Circle{X: 200, Y: 180, R: 120}
	img := createPlateImage(400, 400, want)

	cfg := testConfig()
	cfg.MinRadius, cfg.MaxRadius, cfg.MinDist = 40, 200, 100
	cfg.Param2 = 15
	detector := NewWithConfig(cfg)

	full, ok := detector.Detect(img)
	if !ok {
		t.Fatal("Expected full-resolution detection")
	}

	factor := 0.25
	fast, ok := detector.DetectFast(img, factor)
	if !ok {
		t.Fatal("Expected fast-path detection")
	}

	tol := int(2/factor) + 2
	assertNear(t, "x", fast.X, full.X, tol)
	assertNear(t, "y", fast.Y, full.Y, tol)
	assertNear(t, "r", fast.R, full.R, tol)
}

func TestLocateUsesFastFactor(t *testing.T) {
	want := types.Circle{X: 200, Y: 200, R: 120}
	img := createPlateImage(400, 400, want)

	cfg := testConfig()
	cfg.MinRadius, cfg.MaxRadius, cfg.MinDist = 40, 200, 100
	cfg.FastFactor = 0.5
	cfg.Param2 = 20

	got, ok := NewWithConfig(cfg).Locate(img)
	if !ok {
		t.Fatal("Expected Locate to find the plate")
	}
	assertNear(t, "x", got.X, want.X, 6)
	assertNear(t, "y", got.Y, want.Y, 6)
	assertNear(t, "r", got.R, want.R, 6)
}

func TestEqualizeHist(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(g.Pix, []uint8{100, 100, 110, 120})

	equalizeHist(g)

	if g.Pix[0] != 0 || g.Pix[3] != 255 {
		t.Errorf("Expected stretched range 0..255, got %v", g.Pix)
	}
	if !(g.Pix[2] > g.Pix[1]) {
		t.Errorf("Expected monotonic mapping, got %v", g.Pix)
	}
}

func TestScaledConfig(t *testing.T) {
	cfg := testConfig()
	s := cfg.scaled(0.25)

	if s.MinRadius != 5 || s.MaxRadius != 25 {
		t.Errorf("Expected radii 5..25, got %d..%d", s.MinRadius, s.MaxRadius)
	}
	if s.MinDist != 12.5 {
		t.Errorf("Expected min dist 12.5, got %f", s.MinDist)
	}
	if s.Param1 != cfg.Param1 || s.Param2 != cfg.Param2 {
		t.Error("Thresholds should not be scaled")
	}
}

func BenchmarkDetect(b *testing.B) {
	img := createPlateImage(400, 400, types.Circle{X: 200, Y: 200, R: 150})
	detector := NewWithConfig(testConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.Detect(img)
	}
}

func BenchmarkDetectFast(b *testing.B) {
	img := createPlateImage(800, 800, types.Circle{X: 400, Y: 400, R: 300})
	cfg := testConfig()
	cfg.MinRadius, cfg.MaxRadius, cfg.MinDist = 100, 400, 200
	detector := NewWithConfig(cfg)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.DetectFast(img, 0.25)
	}
}
