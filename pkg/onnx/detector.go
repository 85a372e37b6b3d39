//go:build gocv

package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Config holds the network settings
type Config struct {
	ModelPath string
	// InputSize is the square network input, 640 for stock exports
	InputSize int
	// Labels maps class index to label
	Labels       []string
	NMSThreshold float64
}

// Detector implements client.Detector on an ONNX network
type Detector struct {
	mu     sync.Mutex
	net    gocv.Net
	config Config
}

// NewDetector loads the network from config.ModelPath
func NewDetector(config Config) (*Detector, error) {
	if config.InputSize <= 0 {
		config.InputSize = 640
	}
	if config.NMSThreshold <= 0 {
		config.NMSThreshold = 0.45
	}
	if len(config.Labels) == 0 {
		config.Labels = []string{types.LabelHead, types.LabelHelmet}
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load ONNX model %s", config.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set target: %w", err)
	}
	return &Detector{net: net, config: config}, nil
}

// Close releases the network
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Detect runs one forward pass. The image is resized to the square input
// without letterboxing and boxes are scaled back per axis.
func (d *Detector) Detect(ctx context.Context, img image.Image, minConfidence float64) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	w, h := mat.Cols(), mat.Rows()
	scaleX := float64(w) / float64(size)
	scaleY := float64(h) / float64(size)
	cands := DecodeOutput(data, dims[1], dims[2], float32(minConfidence), scaleX, scaleY)
	if len(cands) == 0 {
		return nil, nil
	}

	rects := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		rects[i] = c.Box.Rect()
		scores[i] = c.Score
	}
	keep := gocv.NMSBoxes(rects, scores, float32(minConfidence), float32(d.config.NMSThreshold))

	dets := make([]types.Detection, 0, len(keep))
	for _, idx := range keep {
		c := cands[idx]
		if c.Class >= len(d.config.Labels) {
			continue
		}
		dets = append(dets, types.Detection{
			Label:      strings.ToLower(d.config.Labels[c.Class]),
			Confidence: float64(c.Score),
			Box:        ClampBox(c.Box, w, h),
		})
	}
	return dets, nil
}
