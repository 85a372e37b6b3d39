// Package batch runs the detect, associate, render and write pipeline over
// every eligible image in a directory, one file at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menta2k/helmet-inspector/internal/utils"
	"github.com/menta2k/helmet-inspector/pkg/association"
	"github.com/menta2k/helmet-inspector/pkg/client"
	"github.com/menta2k/helmet-inspector/pkg/processing"
	"github.com/menta2k/helmet-inspector/pkg/render"
	"github.com/menta2k/helmet-inspector/pkg/types"
)

// DefaultMinConfidence is the detector score threshold used for every image
const DefaultMinConfidence = 0.25

var (
	// ErrDecode marks an input that could not be decoded. Such files are skipped.
	ErrDecode = errors.New("decode failed")
	// ErrDetection marks a detector failure. It aborts the batch.
	ErrDetection = errors.New("detection failed")
)

// Config holds the optional collaborators of a Processor. Zero values are
// replaced with defaults.
type Config struct {
	// MinConfidence of 0 means DefaultMinConfidence
	MinConfidence float64
	Associator    *association.Associator
	Renderer      *render.Renderer
	Images        *processing.Processor
}

// Processor applies the pipeline to directories of images
type Processor struct {
	detector      client.Detector
	associator    *association.Associator
	renderer      *render.Renderer
	images        *processing.Processor
	logger        *zap.SugaredLogger
	minConfidence float64
}

// Report summarizes one ProcessDir call
type Report struct {
	// Processed lists the source paths that produced an output, in order
	Processed []string
	// Outputs lists the written output paths, parallel to Processed
	Outputs []string
	// Skipped lists source paths that failed to decode
	Skipped     []string
	Protected   int
	Unprotected int
}

// NewProcessor creates a batch processor around detector
func NewProcessor(detector client.Detector, logger *zap.SugaredLogger, config Config) *Processor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if config.MinConfidence == 0 {
		config.MinConfidence = DefaultMinConfidence
	}
	if config.Associator == nil {
		config.Associator = association.New()
	}
	if config.Renderer == nil {
		config.Renderer = render.New()
	}
	if config.Images == nil {
		config.Images = processing.NewProcessor()
	}
	return &Processor{
		detector:      detector,
		associator:    config.Associator,
		renderer:      config.Renderer,
		images:        config.Images,
		logger:        logger,
		minConfidence: config.MinConfidence,
	}
}

// ProcessDir processes every eligible image directly inside srcDir and writes
// processed_<name> files into dstDir. The file list is taken before any output
// is written, so srcDir and dstDir may be the same directory.
//
// Decode failures are logged and skipped. A detector failure stops the batch
// and is returned wrapped in ErrDetection together with the partial report.
func (p *Processor) ProcessDir(ctx context.Context, srcDir, dstDir string) (*Report, error) {
	files, err := utils.ListImageFiles(srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", srcDir, err)
	}
	if err := utils.EnsureDir(dstDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	p.logger.Infow("processing directory", "source", srcDir, "destination", dstDir, "files", len(files))

	report := &Report{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		out := utils.OutputFilename(path, dstDir)
		res, err := p.ProcessFile(ctx, path, out)
		if errors.Is(err, ErrDecode) {
			p.logger.Warnw("skipping file", "file", path, "error", err)
			report.Skipped = append(report.Skipped, path)
			continue
		}
		if err != nil {
			return report, err
		}

		report.Processed = append(report.Processed, path)
		report.Outputs = append(report.Outputs, out)
		report.Protected += len(res.Protected)
		report.Unprotected += len(res.Unprotected)
		p.logger.Infow("wrote result", "path", out,
			"protected", len(res.Protected), "unprotected", len(res.Unprotected))
	}

	return report, nil
}

// ProcessFile runs the pipeline on a single image and writes the annotated
// copy to out.
func (p *Processor) ProcessFile(ctx context.Context, path, out string) (types.ClassifiedResult, error) {
	img, err := p.images.LoadImage(path)
	if err != nil {
		return types.ClassifiedResult{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	dets, err := p.detector.Detect(ctx, img, p.minConfidence)
	if err != nil {
		return types.ClassifiedResult{}, fmt.Errorf("%w: %s: %w", ErrDetection, filepath.Base(path), err)
	}
	for _, d := range dets {
		p.logger.Debugw("detected", "file", filepath.Base(path), "label", d.Label,
			"confidence", d.Confidence, "box", []float64{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2})
	}

	res := p.associator.Associate(dets)
	if len(res.Rejected) > 0 {
		p.logger.Debugw("rejected malformed boxes", "file", filepath.Base(path), "count", len(res.Rejected))
	}

	annotated := p.renderer.Render(img, res)
	if err := p.images.SaveImage(annotated, out); err != nil {
		return res, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return res, nil
}
