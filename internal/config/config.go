package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/menta2k/plate-processor/pkg/analyzer"
	"github.com/menta2k/plate-processor/pkg/label"
	"github.com/menta2k/plate-processor/pkg/ocr"
	"github.com/menta2k/plate-processor/pkg/pipeline"
	"github.com/menta2k/plate-processor/pkg/processing"
	"github.com/menta2k/plate-processor/pkg/vision"
)

// Config holds the application configuration
type Config struct {
	Paths     PathsConfig     `toml:"paths"`
	Workers   WorkersConfig   `toml:"workers"`
	Detection DetectionConfig `toml:"detection"`
	OCR       OCRConfig       `toml:"ocr"`
	Output    OutputConfig    `toml:"output"`
	Logging   LoggingConfig   `toml:"logging"`
	Rename    RenameConfig    `toml:"rename"`
}

// PathsConfig holds the stage directories. Relative paths are taken from DataDir.
type PathsConfig struct {
	DataDir      string `toml:"data_dir"`
	RawDir       string `toml:"raw_dir"`
	ConvertedDir string `toml:"converted_dir"`
	RenamedDir   string `toml:"renamed_dir"`
	CroppedDir   string `toml:"cropped_dir"`
	DebugDir     string `toml:"debug_dir"`
	FigureDir    string `toml:"figure_dir"`
	WorkDir      string `toml:"work_dir"`
}

// WorkersConfig sizes the worker pool; zero means one worker per CPU
type WorkersConfig struct {
	Count int `toml:"count"`
}

// DetectionConfig holds the circle search parameters
type DetectionConfig struct {
	DP         float64 `toml:"dp"`
	MinDist    float64 `toml:"min_dist"`
	Param1     float64 `toml:"param1"`
	Param2     float64 `toml:"param2"`
	MinRadius  int     `toml:"min_radius"`
	MaxRadius  int     `toml:"max_radius"`
	Equalize   bool    `toml:"equalize"`
	BlurSigma  float64 `toml:"blur_sigma"`
	FastFactor float64 `toml:"fast_factor"`
	Backend    string  `toml:"backend"`
}

// OCRConfig selects the text engine used when the rename table misses
type OCRConfig struct {
	Backend    string  `toml:"backend"`
	Binary     string  `toml:"binary"`
	URL        string  `toml:"url"`
	Model      string  `toml:"model"`
	Language   string  `toml:"language"`
	PSM        int     `toml:"psm"`
	StripRatio float64 `toml:"strip_ratio"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Formats []string `toml:"formats"`
	Debug   bool     `toml:"debug"`
	Report  string   `toml:"report"`
}

// LoggingConfig selects level and format (console, json or auto)
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// RenameConfig points at the old_name,new_name table
type RenameConfig struct {
	CSV string `toml:"csv"`
}

// Default returns a configuration with default values
func Default() *Config {
	det := vision.DefaultConfig()
	return &Config{
		Paths: PathsConfig{
			DataDir:      ".",
			RawDir:       "raw_pictures",
			ConvertedDir: "converted_pictures",
			RenamedDir:   "renamed_pictures",
			CroppedDir:   "cropped_pictures",
			DebugDir:     "debug_pictures",
			FigureDir:    "figures",
			WorkDir:      ".plate-processor",
		},
		Detection: DetectionConfig{
			DP:         det.DP,
			MinDist:    det.MinDist,
			Param1:     det.Param1,
			Param2:     det.Param2,
			MinRadius:  det.MinRadius,
			MaxRadius:  det.MaxRadius,
			Equalize:   det.Equalize,
			BlurSigma:  det.BlurSigma,
			FastFactor: 0,
			Backend:    "hough",
		},
		OCR: OCRConfig{
			Backend:    "tesseract",
			Binary:     "tesseract",
			URL:        "http://localhost:11434",
			Model:      "llava",
			Language:   ocr.DefaultLanguage,
			PSM:        ocr.DefaultPSM,
			StripRatio: processing.DefaultStripRatio,
		},
		Output: OutputConfig{
			Formats: append([]string(nil), analyzer.DefaultFormats...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadFromFile loads configuration from a TOML file on top of the defaults.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func LoadFromFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	config := Default()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("failed to parse config file: %s", strict.String())
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename when it exists and returns the defaults otherwise
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = GetConfigPath()
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return LoadFromFile(filename)
}

// SaveToFile saves configuration to a TOML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.RawDir) == "" {
		return fmt.Errorf("paths.raw_dir is required")
	}
	for name, dir := range map[string]string{
		"paths.converted_dir": c.Paths.ConvertedDir,
		"paths.renamed_dir":   c.Paths.RenamedDir,
		"paths.cropped_dir":   c.Paths.CroppedDir,
		"paths.work_dir":      c.Paths.WorkDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if c.Paths.ConvertedDir == c.Paths.RenamedDir || c.Paths.RenamedDir == c.Paths.CroppedDir ||
		c.Paths.ConvertedDir == c.Paths.CroppedDir {
		return fmt.Errorf("paths: converted, renamed and cropped directories must differ")
	}

	if c.Workers.Count < 0 {
		return fmt.Errorf("workers.count must not be negative")
	}

	d := c.Detection
	if d.MinDist <= 0 || d.Param1 <= 0 || d.Param2 <= 0 {
		return fmt.Errorf("detection: min_dist, param1 and param2 must be positive")
	}
	if d.DP < 1 {
		return fmt.Errorf("detection.dp must be at least 1")
	}
	if d.MinRadius < 0 || d.MaxRadius < 0 {
		return fmt.Errorf("detection: radii must not be negative")
	}
	if d.MaxRadius > 0 && d.MaxRadius < d.MinRadius {
		return fmt.Errorf("detection.max_radius must be at least min_radius")
	}
	if d.BlurSigma < 0 {
		return fmt.Errorf("detection.blur_sigma must not be negative")
	}
	if d.FastFactor < 0 || d.FastFactor >= 1 {
		return fmt.Errorf("detection.fast_factor must be 0 (off) or between 0 and 1")
	}
	switch d.Backend {
	case "", "hough", "opencv":
	default:
		return fmt.Errorf("detection.backend must be hough or opencv")
	}

	switch strings.ToLower(c.OCR.Backend) {
	case "tesseract", "none":
	case "ollama", "llamacpp":
		if c.OCR.Model == "" {
			return fmt.Errorf("ocr.model is required for the %s backend", c.OCR.Backend)
		}
	default:
		return fmt.Errorf("ocr.backend must be tesseract, ollama, llamacpp or none")
	}
	if c.OCR.StripRatio <= 0 || c.OCR.StripRatio > 0.5 {
		return fmt.Errorf("ocr.strip_ratio must be in (0, 0.5]")
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		return fmt.Errorf("ocr.psm must be between 0 and 13")
	}

	if len(c.Output.Formats) == 0 {
		return fmt.Errorf("output.formats cannot be empty")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json")
	}

	return nil
}

// Path resolves p against the data directory
func (c *Config) Path(p string) string {
	if p == "" {
		return ""
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Paths.DataDir), p)
}

// Formats returns the input whitelist, lowercase and without dots
func (c *Config) Formats() []string {
	out := make([]string, 0, len(c.Output.Formats))
	for _, f := range c.Output.Formats {
		out = append(out, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), ".")))
	}
	return out
}

// VisionConfig converts the detection section
func (c *Config) VisionConfig() vision.DetectionConfig {
	d := c.Detection
	return vision.DetectionConfig{
		DP:         d.DP,
		MinDist:    d.MinDist,
		Param1:     d.Param1,
		Param2:     d.Param2,
		MinRadius:  d.MinRadius,
		MaxRadius:  d.MaxRadius,
		Equalize:   d.Equalize,
		BlurSigma:  d.BlurSigma,
		FastFactor: d.FastFactor,
	}
}

// EngineOptions converts the ocr section for ocr.New
func (c *Config) EngineOptions() ocr.Options {
	return ocr.Options{
		Backend: c.OCR.Backend,
		Binary:  c.OCR.Binary,
		URL:     c.OCR.URL,
		Model:   c.OCR.Model,
	}
}

// PipelineConfig resolves everything a batch needs
func (c *Config) PipelineConfig() pipeline.Config {
	work := c.Path(c.Paths.WorkDir)
	cfg := pipeline.Config{
		ConvertedDir: c.Path(c.Paths.ConvertedDir),
		RenamedDir:   c.Path(c.Paths.RenamedDir),
		CroppedDir:   c.Path(c.Paths.CroppedDir),
		LabelDir:     filepath.Join(work, "labels"),
		LockDir:      filepath.Join(work, "locks"),
		Workers:      c.Workers.Count,
		OCR: label.Options{
			Language:   c.OCR.Language,
			PSM:        c.OCR.PSM,
			StripRatio: c.OCR.StripRatio,
		},
		Detection: c.VisionConfig(),
	}
	if c.Output.Debug {
		cfg.DebugDir = c.Path(c.Paths.DebugDir)
	}
	return cfg
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.toml"
	}
	return filepath.Join(home, ".config", "plate-processor", "config.toml")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
