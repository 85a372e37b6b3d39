package detection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Response is the JSON document the vision model is asked to return
type Response struct {
	Detections []types.Detection `json:"detections"`
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseResponse parses a model answer into detections. A bare JSON array of
// detections is accepted as well as the documented object form.
func ParseResponse(raw string) (*Response, error) {
	raw = SanitizeModelJSON(raw)

	var resp Response
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &resp.Detections); err != nil {
			return nil, fmt.Errorf("parse detections: %w", err)
		}
		return &resp, nil
	}
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("parse detections: no JSON found in model response")
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse detections: %w", err)
	}
	return &resp, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...} or [...]
	obj := strings.Index(raw, "{")
	arr := strings.Index(raw, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		if end := strings.LastIndex(raw, "]"); end > arr {
			raw = raw[arr : end+1]
		}
	} else if obj >= 0 {
		if end := strings.LastIndex(raw, "}"); end > obj {
			raw = raw[obj : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
