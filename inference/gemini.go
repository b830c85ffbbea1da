package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/drishti/backend/gemini"
	"github.com/drishti/backend/models"
	"github.com/samber/lo"
)

const framePrompt = `You are an AI security expert analyzing a live camera feed for the Drishti AI Security Platform.
Analyze the provided image frame and return a structured report with high accuracy.

1. Count the people: estimate the number of individuals visible in the frame as 'crowdCount'.
2. Positions: for each person, return 'peoplePositions' with 'x' and 'y' normalized between 0 and 1 (top-left is 0,0; bottom-right is 1,1).
3. Incidents: check for the incidents below. For each one detected, add an alert to 'newAlerts'. If nothing is wrong, return an empty 'newAlerts' array.

Behavioral triggers:
%s`

var triggerConditions = map[models.IncidentType]string{
	models.IncidentSuspicious:         "loitering in a sensitive area, intentionally obscuring the face, or abandoning a package or bag",
	models.IncidentCrowdSurge:         "a sudden, rapid increase in crowd density in a confined area",
	models.IncidentUnauthorizedAccess: "a person entering a restricted zone without authorization",
	models.IncidentTheft:              "an individual taking an item without payment or from another person",
	models.IncidentEmergency:          "fire, smoke, a medical emergency such as a person collapsing, or a visible physical altercation",
}

// FramePrompt is the instruction sent with every frame
func FramePrompt() string {
	var sb strings.Builder
	for _, t := range models.IncidentTypes {
		fmt.Fprintf(&sb, "- %s (typical severity: %s): %s.\n", t, models.TypicalSeverity[t], triggerConditions[t])
	}
	return fmt.Sprintf(framePrompt, sb.String())
}

// FrameSchema restricts the structured output to the known enums
func FrameSchema() *gemini.Schema {
	return &gemini.Schema{
		Type: "OBJECT",
		Properties: map[string]*gemini.Schema{
			"crowdCount": {Type: "INTEGER", Description: "Estimated number of people in the frame."},
			"peoplePositions": {
				Type: "ARRAY",
				Items: &gemini.Schema{
					Type: "OBJECT",
					Properties: map[string]*gemini.Schema{
						"x": {Type: "NUMBER"},
						"y": {Type: "NUMBER"},
					},
					Required: []string{"x", "y"},
				},
			},
			"newAlerts": {
				Type: "ARRAY",
				Items: &gemini.Schema{
					Type: "OBJECT",
					Properties: map[string]*gemini.Schema{
						"type": {
							Type: "STRING",
							Enum: lo.Map(models.IncidentTypes, func(t models.IncidentType, _ int) string { return string(t) }),
						},
						"description": {Type: "STRING", Description: "A concise description of the alert."},
						"severity": {
							Type: "STRING",
							Enum: lo.Map(models.Severities, func(s models.Severity, _ int) string { return string(s) }),
						},
					},
					Required: []string{"type", "description", "severity"},
				},
			},
		},
		Required: []string{"crowdCount", "peoplePositions", "newAlerts"},
	}
}

// GeminiAnalyzer analyzes frames with a hosted multimodal model
type GeminiAnalyzer struct {
	client *gemini.Client
	model  string
}

func NewGeminiAnalyzer(client *gemini.Client, model string) *GeminiAnalyzer {
	return &GeminiAnalyzer{client: client, model: model}
}

func (a *GeminiAnalyzer) AnalyzeFrame(ctx context.Context, jpeg []byte) (*models.FrameAnalysis, error) {
	resp, err := a.client.GenerateContent(ctx, a.model, &gemini.Request{
		Contents: []gemini.Content{{
			Role: "user",
			Parts: []gemini.Part{
				gemini.TextPart(FramePrompt()),
				gemini.BlobPart("image/jpeg", jpeg),
			},
		}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   FrameSchema(),
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeOrEmpty([]byte(resp.Text()))
}
