package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Workers.Count = 3
	cfg.Detection.MinRadius = 400
	cfg.Detection.MaxRadius = 900
	cfg.Rename.CSV = "rename_matrix.csv"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Workers.Count != 3 || loaded.Detection.MaxRadius != 900 || loaded.Rename.CSV != "rename_matrix.csv" {
		t.Errorf("Round trip lost values: %+v", loaded)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[detection]\nmin_radius = 250\nmax_radius = 600\n\n[ocr]\nbackend = \"none\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Detection.MinRadius != 250 || cfg.OCR.Backend != "none" {
		t.Errorf("File values not applied: %+v", cfg.Detection)
	}
	if cfg.Detection.Param2 != 30 || cfg.OCR.Language != "eng" || cfg.Paths.RawDir != "raw_pictures" {
		t.Errorf("Defaults should survive a partial file: %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[detection]\nmin_raduis = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "min_raduis") {
		t.Errorf("Expected an unknown key error, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.CroppedDir != "cropped_pictures" {
		t.Errorf("Expected defaults, got %+v", cfg.Paths)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative workers":  func(c *Config) { c.Workers.Count = -1 },
		"zero dp":           func(c *Config) { c.Detection.DP = 0 },
		"sub-pixel dp":      func(c *Config) { c.Detection.DP = 0.02 },
		"inverted radii":    func(c *Config) { c.Detection.MinRadius, c.Detection.MaxRadius = 500, 100 },
		"fast factor":       func(c *Config) { c.Detection.FastFactor = 1.5 },
		"detector backend":  func(c *Config) { c.Detection.Backend = "yolo" },
		"ocr backend":       func(c *Config) { c.OCR.Backend = "easyocr" },
		"model required":    func(c *Config) { c.OCR.Backend, c.OCR.Model = "ollama", "" },
		"strip ratio":       func(c *Config) { c.OCR.StripRatio = 0.9 },
		"no formats":        func(c *Config) { c.Output.Formats = nil },
		"same directories":  func(c *Config) { c.Paths.RenamedDir = c.Paths.CroppedDir },
		"empty raw dir":     func(c *Config) { c.Paths.RawDir = " " },
		"log format":        func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestPipelineConfig(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/data/plates"
	cfg.Paths.CroppedDir = "/elsewhere/cropped"
	cfg.Output.Debug = true

	p := cfg.PipelineConfig()
	if p.ConvertedDir != filepath.Join("/data/plates", "converted_pictures") {
		t.Errorf("Relative dirs should join the data dir, got %s", p.ConvertedDir)
	}
	if p.CroppedDir != "/elsewhere/cropped" {
		t.Errorf("Absolute dirs should be kept, got %s", p.CroppedDir)
	}
	if p.DebugDir == "" || p.LabelDir != filepath.Join("/data/plates", ".plate-processor", "labels") {
		t.Errorf("Unexpected derived dirs %+v", p)
	}
	if p.Detection.Param2 != cfg.Detection.Param2 || p.OCR.PSM != 6 {
		t.Errorf("Sections not carried over: %+v", p)
	}
}

func TestFormatsNormalized(t *testing.T) {
	cfg := Default()
	cfg.Output.Formats = []string{".JPG", " png "}
	got := cfg.Formats()
	if len(got) != 2 || got[0] != "jpg" || got[1] != "png" {
		t.Errorf("Unexpected formats %v", got)
	}
}

func TestGetConfigPath(t *testing.T) {
	if !strings.HasSuffix(GetConfigPath(), filepath.Join("plate-processor", "config.toml")) {
		t.Errorf("Unexpected config path %s", GetConfigPath())
	}
}
