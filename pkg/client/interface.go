package client

import (
	"context"
)

// VisionClient answers a free-text prompt about a base64-encoded image
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
