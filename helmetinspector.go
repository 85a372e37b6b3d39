// Package helmetinspector checks still images for workers without helmets.
//
// A Detector finds heads and helmets, the association step decides which heads
// are covered by a helmet, and the renderer draws the verdict onto a copy of
// the image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		helmetinspector "github.com/menta2k/helmet-inspector"
//		"github.com/menta2k/helmet-inspector/pkg/detection"
//		"github.com/menta2k/helmet-inspector/pkg/ollama"
//	)
//
//	func main() {
//		vc, err := ollama.NewClient("http://localhost:11434")
//		if err != nil {
//			log.Fatal(err)
//		}
//		inspector := helmetinspector.New(detection.NewDetector(vc, detection.Config{}))
//
//		out, res, err := inspector.InspectFile(context.Background(), "site.jpg", "out")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("%s: %d without helmet, %d with helmet", out,
//			len(res.Classified.Unprotected), len(res.Classified.Protected))
//	}
//
// The package consists of these components:
//
//  1. Detection (pkg/detection, pkg/onnx): turn an image into labeled boxes
//  2. Association (pkg/association): match heads to helmets
//  3. Render (pkg/render): draw boxes and confidence labels
//  4. Batch and orchestrator (pkg/batch, pkg/orchestrator): run the pipeline
//     over a directory or a remote folder
//
// The CLI in cmd/helmet-inspector wires everything together from a config file.
package helmetinspector

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/helmet-inspector/internal/utils"
	"github.com/menta2k/helmet-inspector/pkg/association"
	"github.com/menta2k/helmet-inspector/pkg/batch"
	"github.com/menta2k/helmet-inspector/pkg/client"
	"github.com/menta2k/helmet-inspector/pkg/processing"
	"github.com/menta2k/helmet-inspector/pkg/render"
	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Version of the helmet inspector
const Version = "0.3.0"

// Inspector runs detection, association and rendering on single images
type Inspector struct {
	detector      client.Detector
	associator    *association.Associator
	renderer      *render.Renderer
	images        *processing.Processor
	minConfidence float64
}

// InspectionResult holds everything produced for one image
type InspectionResult struct {
	Detections []types.Detection
	Classified types.ClassifiedResult
	Annotated  *image.NRGBA
}

// New creates an Inspector with default matching and drawing settings
func New(detector client.Detector) *Inspector {
	return &Inspector{
		detector:      detector,
		associator:    association.New(),
		renderer:      render.New(),
		images:        processing.NewProcessor(),
		minConfidence: batch.DefaultMinConfidence,
	}
}

// NewWithConfig creates an Inspector with custom settings
func NewWithConfig(detector client.Detector, assocConfig association.Config, style render.Style, minConfidence float64) (*Inspector, error) {
	assoc, err := association.NewWithConfig(assocConfig)
	if err != nil {
		return nil, err
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("min confidence must be between 0 and 1, got %v", minConfidence)
	}
	return &Inspector{
		detector:      detector,
		associator:    assoc,
		renderer:      render.NewWithStyle(style),
		images:        processing.NewProcessor(),
		minConfidence: minConfidence,
	}, nil
}

// Inspect classifies the people in img and returns an annotated copy
func (in *Inspector) Inspect(ctx context.Context, img image.Image) (InspectionResult, error) {
	dets, err := in.detector.Detect(ctx, img, in.minConfidence)
	if err != nil {
		return InspectionResult{}, fmt.Errorf("%w: %w", batch.ErrDetection, err)
	}
	res := in.associator.Associate(dets)
	return InspectionResult{
		Detections: dets,
		Classified: res,
		Annotated:  in.renderer.Render(img, res),
	}, nil
}

// InspectFile inspects the image at inputPath and writes processed_<name>
// into outputDir. It returns the output path.
func (in *Inspector) InspectFile(ctx context.Context, inputPath, outputDir string) (string, InspectionResult, error) {
	img, err := in.images.LoadImage(inputPath)
	if err != nil {
		return "", InspectionResult{}, fmt.Errorf("%w: %w", batch.ErrDecode, err)
	}
	res, err := in.Inspect(ctx, img)
	if err != nil {
		return "", InspectionResult{}, err
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		return "", res, fmt.Errorf("failed to create output directory: %w", err)
	}
	out := utils.OutputFilename(inputPath, outputDir)
	if err := in.images.SaveImage(res.Annotated, out); err != nil {
		return "", res, err
	}
	return out, res, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
