//go:build gocv

package main

import (
	"github.com/menta2k/helmet-inspector/internal/config"
	"github.com/menta2k/helmet-inspector/pkg/client"
	"github.com/menta2k/helmet-inspector/pkg/onnx"
)

func newONNXDetector(cfg config.DetectorConfig) (client.Detector, func(), error) {
	det, err := onnx.NewDetector(onnx.Config{
		ModelPath:    cfg.ONNXModel,
		InputSize:    cfg.InputSize,
		Labels:       cfg.Labels,
		NMSThreshold: cfg.NMSThreshold,
	})
	if err != nil {
		return nil, nil, err
	}
	return det, func() { det.Close() }, nil
}
