package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/helmet-inspector/pkg/client"
	"github.com/menta2k/helmet-inspector/pkg/processing"
	"github.com/menta2k/helmet-inspector/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for head and helmet boxes
const DefaultPrompt = `You are an object detector for construction-site safety.

Find every human HEAD and every safety HELMET (hard hat) in the image.

Return JSON only:
{
  "detections": [
    {"label": "head", "confidence": 0.0, "box": {"x1": 0.0, "y1": 0.0, "x2": 0.0, "y2": 0.0}},
    {"label": "helmet", "confidence": 0.0, "box": {"x1": 0.0, "y1": 0.0, "x2": 0.0, "y2": 0.0}}
  ]
}

HARD RULES
- label is exactly "head" or "helmet".
- A head wearing a helmet produces BOTH a head box and a helmet box.
- All coordinates are normalized to [0,1] (NOT pixels), x1 < x2 and y1 < y2.
- confidence is your certainty in [0,1].
- If nothing is found, return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ErrNoResponse is returned when the model answers with an empty message
var ErrNoResponse = errors.New("empty response from vision model")

// DefaultModel is used when Config.Model is empty
const DefaultModel = "qwen2.5vl:7b"

// Config holds the model and payload settings for the detector
type Config struct {
	Model       string
	Prompt      string
	SendFormat  string
	SendSize    int
	SendQuality int
}

// Detector finds heads and helmets using a vision model
type Detector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient, config Config) *Detector {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.SendFormat == "" {
		config.SendFormat = "jpg"
	}
	if config.SendQuality <= 0 {
		config.SendQuality = 85
	}
	return &Detector{
		client:    client,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Detect sends the image to the model and returns detections in pixel
// coordinates of img, keeping only those scoring at least minConfidence.
func (d *Detector) Detect(ctx context.Context, img image.Image, minConfidence float64) ([]types.Detection, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.SendFormat, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	raw, err := d.client.QueryJSON(ctx, d.config.Model, d.config.Prompt, imgB64)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoResponse
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	dets := make([]types.Detection, 0, len(resp.Detections))
	for _, nd := range resp.Detections {
		dets = append(dets, types.Detection{
			Label:      strings.ToLower(strings.TrimSpace(nd.Label)),
			Confidence: clamp(nd.Confidence, 0, 1),
			Box:        toPixels(nd.Box, b.Dx(), b.Dy()),
		})
	}
	return ScoreFilter(minConfidence)(dets), nil
}

// Probe checks that the model can actually see the image with a simple prompt
func (d *Detector) Probe(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.config.SendFormat, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return "", fmt.Errorf("prepare image: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imgB64)
}

// Filter modifies a detection list
type Filter func([]types.Detection) []types.Detection

// ScoreFilter returns a filter dropping detections below a confidence
func ScoreFilter(conf float64) Filter {
	return func(in []types.Detection) []types.Detection {
		out := make([]types.Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// toPixels scales a normalized box to image pixels. Boxes that already look
// like pixel coordinates are clamped to the image instead.
func toPixels(b types.Box, imgW, imgH int) types.Box {
	fw, fh := float64(imgW), float64(imgH)
	if b.X1 > 1 || b.Y1 > 1 || b.X2 > 1 || b.Y2 > 1 {
		return types.Box{
			X1: clamp(b.X1, 0, fw),
			Y1: clamp(b.Y1, 0, fh),
			X2: clamp(b.X2, 0, fw),
			Y2: clamp(b.Y2, 0, fh),
		}
	}
	return types.Box{
		X1: clamp(b.X1, 0, 1) * fw,
		Y1: clamp(b.Y1, 0, 1) * fh,
		X2: clamp(b.X2, 0, 1) * fw,
		Y2: clamp(b.Y2, 0, 1) * fh,
	}
}
