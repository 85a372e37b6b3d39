// Package association classifies head detections as protected or unprotected
// by matching them against helmet detections from the same image.
//
// A head is protected when some helmet box overlaps it by more than the
// configured threshold. The overlap is measured relative to the helmet's own
// area, so a helmet lying mostly inside a loosely cropped head box still
// counts. Helmets are scanned in input order and the first helmet above the
// threshold wins; confidence plays no part in matching.
package association

import (
	"fmt"
	"strings"

	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Mode selects how the intersection area is normalized
type Mode string

const (
	// HelmetArea divides the intersection by the helmet box area
	HelmetArea Mode = "helmet"
	// IoU divides the intersection by the union of both boxes
	IoU Mode = "iou"
)

// DefaultOverlapThreshold is the exclusive lower bound for a match
const DefaultOverlapThreshold = 0.30

// Config holds configuration for the associator
type Config struct {
	OverlapThreshold float64
	Mode             Mode
}

// Associator matches heads to helmets
type Associator struct {
	config Config
}

// New creates an Associator with the default threshold and helmet-area normalization
func New() *Associator {
	return &Associator{
		config: Config{
			OverlapThreshold: DefaultOverlapThreshold,
			Mode:             HelmetArea,
		},
	}
}

// NewWithConfig creates an Associator with custom configuration
func NewWithConfig(config Config) (*Associator, error) {
	if config.Mode == "" {
		config.Mode = HelmetArea
	}
	if config.Mode != HelmetArea && config.Mode != IoU {
		return nil, fmt.Errorf("unknown overlap mode %q", config.Mode)
	}
	if config.OverlapThreshold < 0 || config.OverlapThreshold >= 1 {
		return nil, fmt.Errorf("overlap threshold must be in [0,1), got %v", config.OverlapThreshold)
	}
	return &Associator{config: config}, nil
}

// Config returns the active configuration
func (a *Associator) Config() Config {
	return a.config
}

// Associate partitions detections into unprotected and protected persons.
// Labels other than head and helmet are ignored. Head or helmet detections
// with a malformed box are reported in Rejected and take no part in matching.
// Both output lists keep the relative input order of the heads.
func (a *Associator) Associate(detections []types.Detection) types.ClassifiedResult {
	var heads []types.PersonCandidate
	var helmets []types.HelmetCandidate
	var result types.ClassifiedResult

	for _, d := range detections {
		label := strings.ToLower(strings.TrimSpace(d.Label))
		if label != types.LabelHead && label != types.LabelHelmet {
			continue
		}
		if !d.Box.Valid() {
			result.Rejected = append(result.Rejected, d)
			continue
		}
		if label == types.LabelHead {
			heads = append(heads, types.PersonCandidate{Box: d.Box, Confidence: d.Confidence, Status: types.Unprotected})
		} else {
			helmets = append(helmets, types.HelmetCandidate{Box: d.Box, Confidence: d.Confidence})
		}
	}

	result.Unprotected = make([]types.PersonCandidate, 0, len(heads))
	result.Protected = make([]types.PersonCandidate, 0, len(heads))

	for _, head := range heads {
		for _, helmet := range helmets {
			if OverlapRatio(head.Box, helmet.Box, a.config.Mode) > a.config.OverlapThreshold {
				head.Status = types.Protected
				break
			}
		}
		if head.Status == types.Protected {
			result.Protected = append(result.Protected, head)
		} else {
			result.Unprotected = append(result.Unprotected, head)
		}
	}

	return result
}

// OverlapRatio returns the normalized intersection of a head and a helmet box.
// It is 0 when the boxes do not overlap with positive width and height.
func OverlapRatio(head, helmet types.Box, mode Mode) float64 {
	inter := head.Intersect(helmet)
	if !inter.Valid() {
		return 0
	}
	area := inter.Area()

	switch mode {
	case IoU:
		union := head.Area() + helmet.Area() - area
		if union <= 0 {
			return 0
		}
		return area / union
	default:
		helmetArea := helmet.Area()
		if helmetArea <= 0 {
			return 0
		}
		return area / helmetArea
	}
}
