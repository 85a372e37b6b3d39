package main

import (
	"context"
	"fmt"
	"image"
	"io"

	"go.uber.org/zap"

	"github.com/menta2k/helmet-inspector/internal/config"
	"github.com/menta2k/helmet-inspector/pkg/association"
	"github.com/menta2k/helmet-inspector/pkg/batch"
	"github.com/menta2k/helmet-inspector/pkg/client"
	"github.com/menta2k/helmet-inspector/pkg/detection"
	"github.com/menta2k/helmet-inspector/pkg/llamacpp"
	"github.com/menta2k/helmet-inspector/pkg/ollama"
	"github.com/menta2k/helmet-inspector/pkg/processing"
	"github.com/menta2k/helmet-inspector/pkg/storage"
	"github.com/menta2k/helmet-inspector/pkg/storage/gdrive"
	"github.com/menta2k/helmet-inspector/pkg/storage/localfs"
)

// prober is implemented by detectors that can describe an image in free text
type prober interface {
	Probe(ctx context.Context, img image.Image) (string, error)
}

func buildDetector(cfg config.DetectorConfig) (client.Detector, func(), error) {
	var vc client.VisionClient
	var err error

	switch cfg.Backend {
	case "ollama":
		vc, err = ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
	case "llamacpp":
		vc, err = llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
	case "onnx":
		return newONNXDetector(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown detector backend: %s (use ollama, llamacpp or onnx)", cfg.Backend)
	}

	det := detection.NewDetector(vc, detection.Config{
		Model:       cfg.Model,
		SendFormat:  cfg.SendFormat,
		SendSize:    cfg.SendSize,
		SendQuality: cfg.SendQuality,
	})
	return det, func() {}, nil
}

func buildProcessor(cfg *config.Config, logger *zap.SugaredLogger) (*batch.Processor, func(), error) {
	assoc, err := association.NewWithConfig(association.Config{
		OverlapThreshold: cfg.Association.OverlapThreshold,
		Mode:             association.Mode(cfg.Association.Mode),
	})
	if err != nil {
		return nil, nil, err
	}
	det, closeDetector, err := buildDetector(cfg.Detector)
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("detector ready", "backend", cfg.Detector.Backend, "model", cfg.Detector.Model)

	p := batch.NewProcessor(det, logger, batch.Config{
		MinConfidence: cfg.Detector.ConfidenceThreshold,
		Associator:    assoc,
		Images:        processing.NewProcessorWithQuality(cfg.Output.JPEGQuality),
	})
	return p, closeDetector, nil
}

func buildConnector(cfg *config.Config, logger *zap.SugaredLogger, in io.Reader, out io.Writer) (storage.Connector, error) {
	switch cfg.Remote.Backend {
	case "fs":
		return localfs.Connector(cfg.Remote.FSRoot), nil
	case "gdrive":
		var consent gdrive.ConsentFunc
		if cfg.Remote.Interactive {
			consent = gdrive.StdinConsent(in, out)
		}
		auth, err := gdrive.NewAuthenticator(cfg.Remote.CredentialsFile, cfg.Remote.TokenFile, consent, logger)
		if err != nil {
			return nil, err
		}
		return gdrive.NewConnector(auth), nil
	}
	return nil, fmt.Errorf("unknown remote backend: %s", cfg.Remote.Backend)
}
