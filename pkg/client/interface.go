package client

import (
	"context"
	"image"

	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Detector produces labeled, scored boxes for a single image. Detections
// scoring below minConfidence are dropped by the implementation.
type Detector interface {
	Detect(ctx context.Context, img image.Image, minConfidence float64) ([]types.Detection, error)
}

// VisionClient is a chat-style vision model backend
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	QueryJSON(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
