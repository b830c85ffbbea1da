package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/drishti/backend/models"
)

const snapshotTimeout = 5 * time.Second

// Snapshot renders the current state behind a subject, so late subscribers
// do not wait for the next write. Subjects carry the event id as a token;
// ids containing subject separators therefore have no snapshot.
func (s *Store) Snapshot(subject string) ([]byte, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != "drishti" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if parts[1] == "iot" {
		status, err := s.GetIoTStatus(ctx, parts[2], "")
		if err != nil {
			return nil, false
		}
		return encode(models.IoTStatus{Scope: parts[2], Status: status})
	}

	eventID := parts[1]
	var (
		v   interface{}
		err error
	)
	switch parts[2] {
	case "analysis":
		v, err = s.ListAnalysisResults(ctx, eventID)
	case "detections":
		if len(parts) != 4 {
			return nil, false
		}
		v, err = s.ListDetectionPoints(ctx, eventID, parts[3])
	case "incidents":
		v, err = s.ListIncidents(ctx, eventID, IncidentQuery{Limit: broadcastLimit})
	case "alerts":
		v, err = s.ListAlerts(ctx, eventID, broadcastLimit)
	case "cameras":
		v, err = s.ListCameras(ctx, eventID)
	case "commanders":
		v, err = s.ListCommanders(ctx, eventID)
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return encode(v)
}

func encode(v interface{}) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return data, true
}
