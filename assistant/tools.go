package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/drishti/backend/gemini"
	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/samber/lo"
)

// Source is the read-only data the tools answer from
type Source interface {
	ListCameras(ctx context.Context, eventID string) ([]models.Camera, error)
	ListIncidents(ctx context.Context, eventID string, q store.IncidentQuery) ([]models.Incident, error)
	ListCommanders(ctx context.Context, eventID string) ([]models.Commander, error)
	ListAnalysisResults(ctx context.Context, eventID string) (map[string]models.FrameAnalysis, error)
	CrowdHistory(ctx context.Context, eventID string, minutes int) ([]models.CrowdAnalyticsPoint, error)
}

const (
	toolSystemStatus = "getSystemStatus"
	toolRoster       = "getCommanderRoster"
	toolIncidents    = "getIncidents"
	toolCameras      = "getCameras"
	toolBottlenecks  = "predictSystemBottlenecks"
)

const (
	bottleneckIncidentLimit = 50
	bottleneckHistoryLimit  = 100
	bottleneckHistoryWindow = 24 * 60
)

// noPrediction answers a bottleneck question the model left empty
const noPrediction = "No specific bottlenecks could be predicted at this time."

// SystemStatus is the overview returned by getSystemStatus
type SystemStatus struct {
	OnlineCameras   int `json:"onlineCameras"`
	TotalCameras    int `json:"totalCameras"`
	ActiveIncidents int `json:"activeIncidents"`
	TotalIncidents  int `json:"totalIncidents"`
}

type commanderEntry struct {
	Name             string `json:"name"`
	ContactNumber    string `json:"contactNumber"`
	AssignedCameraID string `json:"assignedCameraId"`
}

type incidentEntry struct {
	Type        models.IncidentType   `json:"type"`
	Severity    models.Severity       `json:"severity"`
	Status      models.IncidentStatus `json:"status"`
	Description string                `json:"description"`
	CameraName  string                `json:"cameraName"`
}

type cameraEntry struct {
	Name     string              `json:"name"`
	Location string              `json:"location"`
	Status   models.CameraStatus `json:"status"`
}

// Tools are the function declarations offered to the model. The event id
// is bound server side, so no tool takes one.
func Tools() []gemini.Tool {
	statuses := []string{
		string(models.StatusActive),
		string(models.StatusUnderInvestigation),
		string(models.StatusResolved),
	}
	return []gemini.Tool{{FunctionDeclarations: []gemini.FunctionDeclaration{
		{
			Name:        toolSystemStatus,
			Description: "Returns the current status of the security system, including camera counts and active incidents. Call this whenever the user asks for a general overview or summary of the system.",
		},
		{
			Name:        toolRoster,
			Description: "Returns the list of all configured response commanders. Call this when the user asks about commanders, who is on duty, or for a roster.",
		},
		{
			Name:        toolIncidents,
			Description: "Returns a list of security incidents, optionally filtered by status.",
			Parameters: &gemini.Schema{
				Type: "object",
				Properties: map[string]*gemini.Schema{
					"status": {Type: "string", Description: "The status to filter incidents by.", Enum: statuses},
				},
			},
		},
		{
			Name:        toolCameras,
			Description: "Returns a list of all cameras in the system with their details.",
		},
		{
			Name:        toolBottlenecks,
			Description: "Analyzes historical and real-time data to predict future bottlenecks or determine whether the current situation is a bottleneck. Use when asked for predictions, forecasts, potential future problems, or to analyze the current state.",
			Parameters: &gemini.Schema{
				Type: "object",
				Properties: map[string]*gemini.Schema{
					"timeframeMinutes": {Type: "number", Description: "The timeframe in minutes to predict bottlenecks for."},
				},
			},
		},
	}}}
}

// callTool runs one tool for the event and returns its JSON-able output
func (a *Assistant) callTool(ctx context.Context, eventID string, call gemini.FunctionCall) (interface{}, error) {
	switch call.Name {
	case toolSystemStatus:
		return a.systemStatus(ctx, eventID)

	case toolRoster:
		commanders, err := a.src.ListCommanders(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"commanders": lo.Map(commanders, func(c models.Commander, _ int) commanderEntry {
				return commanderEntry{Name: c.Name, ContactNumber: c.ContactNumber, AssignedCameraID: c.AssignedCameraID}
			}),
		}, nil

	case toolIncidents:
		status, _ := call.Args["status"].(string)
		incidents, err := a.src.ListIncidents(ctx, eventID, store.IncidentQuery{Status: models.IncidentStatus(status)})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"incidents": lo.Map(incidents, func(i models.Incident, _ int) incidentEntry {
				return incidentEntry{
					Type:        i.Type,
					Severity:    i.Severity,
					Status:      i.Status,
					Description: i.Description,
					CameraName:  i.CameraSnapshot().Name,
				}
			}),
		}, nil

	case toolCameras:
		cams, err := a.src.ListCameras(ctx, eventID)
		if err != nil {
			return nil, err
		}
		entries := lo.Map(cams, func(c models.Camera, _ int) cameraEntry {
			return cameraEntry{Name: c.Name, Location: c.Location, Status: c.Status}
		})
		webcam := models.WebcamCamera(eventID)
		entries = append(entries, cameraEntry{Name: webcam.Name, Location: webcam.Location, Status: webcam.Status})
		return map[string]interface{}{"cameras": entries}, nil

	case toolBottlenecks:
		minutes := 0
		if v, ok := call.Args["timeframeMinutes"].(float64); ok && v > 0 {
			minutes = int(v)
		}
		prediction, err := a.predictBottlenecks(ctx, eventID, minutes)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"prediction": prediction}, nil
	}
	return nil, fmt.Errorf("unknown tool %q", call.Name)
}

func (a *Assistant) systemStatus(ctx context.Context, eventID string) (SystemStatus, error) {
	cams, err := a.src.ListCameras(ctx, eventID)
	if err != nil {
		return SystemStatus{}, err
	}
	incidents, err := a.src.ListIncidents(ctx, eventID, store.IncidentQuery{})
	if err != nil {
		return SystemStatus{}, err
	}
	return SystemStatus{
		OnlineCameras:   lo.CountBy(cams, func(c models.Camera) bool { return c.Status == models.CameraOnline }) + 1,
		TotalCameras:    len(cams) + 1,
		ActiveIncidents: lo.CountBy(incidents, func(i models.Incident) bool { return i.Status == models.StatusActive }),
		TotalIncidents:  len(incidents),
	}, nil
}

// predictBottlenecks asks the model for a prediction grounded on the recent
// incidents, the crowd history and the live crowd count.
func (a *Assistant) predictBottlenecks(ctx context.Context, eventID string, minutes int) (string, error) {
	status, err := a.systemStatus(ctx, eventID)
	if err != nil {
		return "", err
	}
	incidents, err := a.src.ListIncidents(ctx, eventID, store.IncidentQuery{Limit: bottleneckIncidentLimit})
	if err != nil {
		return "", err
	}
	history, err := a.src.CrowdHistory(ctx, eventID, bottleneckHistoryWindow)
	if err != nil {
		return "", err
	}
	results, err := a.src.ListAnalysisResults(ctx, eventID)
	if err != nil {
		return "", err
	}

	type incidentRow struct {
		Type     models.IncidentType `json:"type"`
		Location string              `json:"location"`
		Severity models.Severity     `json:"severity"`
		Time     time.Time           `json:"time"`
	}
	type historyRow struct {
		Count int    `json:"count"`
		Time  string `json:"time"`
	}

	incidentRows := lo.Map(incidents, func(i models.Incident, _ int) incidentRow {
		return incidentRow{Type: i.Type, Location: i.CameraSnapshot().Location, Severity: i.Severity, Time: i.Timestamp}
	})
	historyRows := lo.Map(history, func(p models.CrowdAnalyticsPoint, _ int) historyRow {
		return historyRow{Count: p.Count, Time: p.Timestamp.Format("2006-01-02 15:04")}
	})
	if len(historyRows) > bottleneckHistoryLimit {
		historyRows = historyRows[len(historyRows)-bottleneckHistoryLimit:]
	}
	crowd := lo.SumBy(lo.Values(results), func(r models.FrameAnalysis) int { return r.CrowdCount })

	incidentJSON, _ := json.MarshalIndent(incidentRows, "", "  ")
	historyJSON, _ := json.MarshalIndent(historyRows, "", "  ")

	prompt := fmt.Sprintf(`As a senior security analyst, review the following data to generate a security prediction for event %s.

**Real-time Data:**
- Active Incidents: %d
- Current Live Crowd Count: %d

**Historical Data:**
- Recent Incidents: %s
- Recent Crowd Data: %s
`, eventID, status.ActiveIncidents, crowd, incidentJSON, historyJSON)

	if minutes > 0 {
		prompt += fmt.Sprintf("\nBased on all this data, provide a concise prediction about potential security bottlenecks specifically within the **next %d minutes**.", minutes)
	} else {
		prompt += "\nBased on all this data, first, state whether the **current situation** constitutes a security bottleneck. Second, provide a concise, general prediction about potential future security bottlenecks. Focus on identifying patterns in time, location, or incident type."
	}

	resp, err := a.client.GenerateContent(ctx, a.model, &gemini.Request{
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{gemini.TextPart(prompt)}}},
	})
	if err != nil {
		return "", err
	}
	if text := resp.Text(); text != "" {
		return text, nil
	}
	return noPrediction, nil
}
