// Package inference turns a camera frame into a structured analysis:
// crowd count, normalized person positions and alert descriptors.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/drishti/backend/models"
	"github.com/samber/lo"
)

// ErrNoOutput means the backend answered without a structured result
var ErrNoOutput = errors.New("inference: no structured output")

// Analyzer analyzes a single JPEG frame
type Analyzer interface {
	AnalyzeFrame(ctx context.Context, jpeg []byte) (*models.FrameAnalysis, error)
}

// rawAnalysis accepts fractional counts, which models sometimes return
type rawAnalysis struct {
	CrowdCount      float64                  `json:"crowdCount"`
	PeoplePositions []models.Position        `json:"peoplePositions"`
	NewAlerts       []models.AlertDescriptor `json:"newAlerts"`
}

// Decode parses a backend answer. Empty bodies and JSON null yield ErrNoOutput.
func Decode(body []byte) (*models.FrameAnalysis, error) {
	body = stripFence(bytes.TrimSpace(body))
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, ErrNoOutput
	}

	var raw rawAnalysis
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("inference: decode result: %w", err)
	}

	return Normalize(&models.FrameAnalysis{
		CrowdCount:      int(math.Round(raw.CrowdCount)),
		PeoplePositions: raw.PeoplePositions,
		NewAlerts:       raw.NewAlerts,
	}), nil
}

// Normalize clamps counts and positions into range and drops descriptors
// whose type or severity is unknown.
func Normalize(a *models.FrameAnalysis) *models.FrameAnalysis {
	if a == nil {
		return models.EmptyAnalysis()
	}
	out := &models.FrameAnalysis{
		CrowdCount: a.CrowdCount,
		PeoplePositions: lo.Map(a.PeoplePositions, func(p models.Position, _ int) models.Position {
			return models.Position{X: clamp01(p.X), Y: clamp01(p.Y)}
		}),
		NewAlerts: lo.Filter(a.NewAlerts, func(d models.AlertDescriptor, _ int) bool {
			if !d.Type.Valid() || !d.Severity.Valid() {
				log.Printf("⚠️ Dropping alert with unknown type/severity: %q/%q", d.Type, d.Severity)
				return false
			}
			return true
		}),
	}
	if out.CrowdCount < 0 {
		out.CrowdCount = 0
	}
	if out.PeoplePositions == nil {
		out.PeoplePositions = []models.Position{}
	}
	if out.NewAlerts == nil {
		out.NewAlerts = []models.AlertDescriptor{}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// stripFence removes a ```json ... ``` wrapper
func stripFence(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = bytes.TrimPrefix(b, []byte("```"))
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
	return bytes.TrimSpace(b)
}

// decodeOrEmpty converts ErrNoOutput into the zero result
func decodeOrEmpty(body []byte) (*models.FrameAnalysis, error) {
	result, err := Decode(body)
	if errors.Is(err, ErrNoOutput) {
		return models.EmptyAnalysis(), nil
	}
	return result, err
}
