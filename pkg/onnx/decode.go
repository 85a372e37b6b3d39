// Package onnx runs a YOLOv8-style ONNX export in process through the OpenCV
// DNN module. The network itself is only built with the gocv build tag; the
// output decoding below is plain Go.
package onnx

import (
	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Candidate is one decoded anchor before non-maximum suppression
type Candidate struct {
	Class int
	Score float32
	Box   types.Box
}

// DecodeOutput reads a [1, 4+nc, N] output tensor laid out attribute-major:
// rows 0..3 hold cx, cy, w, h in input pixels, the remaining rows hold one
// score per class. Anchors whose best class scores below minScore are dropped.
// Boxes are scaled by scaleX and scaleY into source image pixels.
func DecodeOutput(data []float32, numAttrs, numAnchors int, minScore float32, scaleX, scaleY float64) []Candidate {
	if numAttrs < 5 || len(data) < numAttrs*numAnchors {
		return nil
	}

	var out []Candidate
	for i := 0; i < numAnchors; i++ {
		best, class := float32(0), -1
		for c := 4; c < numAttrs; c++ {
			if s := data[c*numAnchors+i]; s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < minScore {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[numAnchors+i])
		w := float64(data[2*numAnchors+i])
		h := float64(data[3*numAnchors+i])
		out = append(out, Candidate{
			Class: class,
			Score: best,
			Box: types.Box{
				X1: (cx - w/2) * scaleX,
				Y1: (cy - h/2) * scaleY,
				X2: (cx + w/2) * scaleX,
				Y2: (cy + h/2) * scaleY,
			},
		})
	}
	return out
}

// ClampBox limits b to a width x height image
func ClampBox(b types.Box, width, height int) types.Box {
	clamp := func(v, hi float64) float64 {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}
	return types.Box{
		X1: clamp(b.X1, float64(width)),
		Y1: clamp(b.Y1, float64(height)),
		X2: clamp(b.X2, float64(width)),
		Y2: clamp(b.Y2, float64(height)),
	}
}
