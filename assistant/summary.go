package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/drishti/backend/gemini"
)

// SummarizeIncident describes what a camera frame shows for an incident.
// frame is a data URI (data:<mime>;base64,<payload>).
func (a *Assistant) SummarizeIncident(ctx context.Context, frame, incidentType, location string) (string, error) {
	media, err := gemini.DataURIPart(frame)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`You are a security expert summarizing real-time incidents from camera streams.

Given the following camera stream, incident type, and location, generate a concise summary of the incident.

Incident Type: %s
Location: %s
Camera Stream:`, incidentType, location)

	resp, err := a.client.GenerateContent(ctx, a.model, &gemini.Request{
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{gemini.TextPart(prompt), media}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema: &gemini.Schema{
				Type: "object",
				Properties: map[string]*gemini.Schema{
					"summary": {Type: "string", Description: "A concise summary of the incident."},
				},
				Required: []string{"summary"},
			},
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return "", fmt.Errorf("decode incident summary: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", gemini.ErrNoCandidate
	}
	return out.Summary, nil
}
