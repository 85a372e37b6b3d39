//go:build !gocv

package main

import (
	"errors"

	"github.com/menta2k/helmet-inspector/internal/config"
	"github.com/menta2k/helmet-inspector/pkg/client"
)

func newONNXDetector(cfg config.DetectorConfig) (client.Detector, func(), error) {
	return nil, nil, errors.New("onnx backend unavailable: rebuild with -tags gocv")
}
