package types

import (
	"image"
	"math"
)

// Detection labels understood by the associator
const (
	LabelHead   = "head"
	LabelHelmet = "helmet"
)

// Box represents an axis-aligned bounding box in pixel coordinates
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Area returns the box area, or 0 for a degenerate box
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Valid reports whether x1<x2 and y1<y2 and no coordinate is NaN or infinite
func (b Box) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Intersect returns the intersection rectangle of two boxes. The result may
// be degenerate, callers check Valid before using its area.
func (b Box) Intersect(o Box) Box {
	return Box{
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
		X2: math.Min(b.X2, o.X2),
		Y2: math.Min(b.Y2, o.Y2),
	}
}

// Rect converts the box to integer pixel bounds
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(math.Round(b.X1)), int(math.Round(b.Y1)), int(math.Round(b.X2)), int(math.Round(b.Y2)))
}

// Detection is a single labeled, scored box produced by a detector
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Status is the helmet classification of a detected head
type Status int

const (
	Unprotected Status = iota
	Protected
)

func (s Status) String() string {
	if s == Protected {
		return "protected"
	}
	return "unprotected"
}

// PersonCandidate is a head detection awaiting or holding a classification
type PersonCandidate struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Status     Status  `json:"status"`
}

// HelmetCandidate is a helmet detection used during matching
type HelmetCandidate struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// ClassifiedResult is the outcome of associating one image's detections
type ClassifiedResult struct {
	Unprotected []PersonCandidate `json:"unprotected"`
	Protected   []PersonCandidate `json:"protected"`
	// Rejected holds head/helmet detections whose box was malformed
	Rejected []Detection `json:"rejected,omitempty"`
}

// Total returns the number of classified heads
func (r ClassifiedResult) Total() int {
	return len(r.Unprotected) + len(r.Protected)
}
