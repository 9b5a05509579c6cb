package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/plate-processor/pkg/client"
	"github.com/menta2k/plate-processor/pkg/processing"
)

// LabelPrompt asks a vision model to transcribe, not describe
const LabelPrompt = `Transcribe the printed text in this image exactly as written.
Language: %s.
Reply with the text only. No quotes, no explanation. Reply with an empty message if there is no text.`

// Vision reads text with a multimodal model
type Vision struct {
	client    client.VisionClient
	model     string
	processor *processing.Processor
}

// NewVision creates an engine backed by a vision model client
func NewVision(c client.VisionClient, model string) *Vision {
	return &Vision{client: c, model: model, processor: processing.NewProcessor()}
}

// ExtractText ignores psm; page segmentation is a tesseract notion
func (v *Vision) ExtractText(ctx context.Context, img image.Image, language string, _ int) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}

	payload, err := v.processor.PrepareImageForModel(img, "jpg", 1024, 90)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	reply, err := v.client.SimpleQuery(ctx, v.model, fmt.Sprintf(LabelPrompt, language), payload)
	if err != nil {
		return "", err
	}
	return cleanReply(reply), nil
}

// cleanReply strips the code fences and quoting that models like to add
func cleanReply(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`\"'")
	return strings.TrimSpace(raw)
}
