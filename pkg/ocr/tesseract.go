package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Tesseract runs the tesseract command line tool on a temporary PNG
type Tesseract struct {
	binary string
}

// NewTesseract uses binary, or "tesseract" from PATH when empty
func NewTesseract(binary string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{binary: binary}
}

// Available reports whether the executable can be found
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

func (t *Tesseract) ExtractText(ctx context.Context, img image.Image, language string, psm int) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}
	if psm <= 0 {
		psm = DefaultPSM
	}

	f, err := os.CreateTemp("", "plate-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode ocr input: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, f.Name(), "stdout", "-l", language, "--psm", strconv.Itoa(psm))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
