// Package ocr delegates text extraction from label strips to an external engine.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/plate-processor/pkg/llamacpp"
	"github.com/menta2k/plate-processor/pkg/ollama"
)

const (
	DefaultLanguage = "eng"
	// DefaultPSM assumes a single uniform block of text
	DefaultPSM = 6
)

// Engine extracts text from an image region. Implementations must be safe for concurrent use.
type Engine interface {
	ExtractText(ctx context.Context, img image.Image, language string, psm int) (string, error)
}

// Options selects and configures an engine
type Options struct {
	Backend string // tesseract, ollama, llamacpp or none
	Binary  string // tesseract executable
	URL     string // model server
	Model   string
}

// New builds the engine named by opts.Backend
func New(opts Options) (Engine, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "tesseract":
		return NewTesseract(opts.Binary), nil
	case "ollama":
		c, err := ollama.NewClient(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("ollama backend: %w", err)
		}
		return NewVision(c, opts.Model), nil
	case "llamacpp":
		c, err := llamacpp.NewClient(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("llamacpp backend: %w", err)
		}
		return NewVision(c, opts.Model), nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown ocr backend %q", opts.Backend)
	}
}

// Nop never reads anything, so every rename-table miss ends in an empty label
type Nop struct{}

func (Nop) ExtractText(context.Context, image.Image, string, int) (string, error) {
	return "", nil
}
