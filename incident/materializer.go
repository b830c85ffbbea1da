// Package incident turns alert descriptors from frame analysis into persisted
// incidents and alerts, and handles manual emergency triggers.
package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/drishti/backend/export"
	"github.com/drishti/backend/iot"
	"github.com/drishti/backend/metrics"
	"github.com/drishti/backend/models"
	"github.com/drishti/backend/storage"
	"github.com/drishti/backend/store"
	"github.com/google/uuid"
)

// Store is the persistence the materializer writes to
type Store interface {
	GetCamera(ctx context.Context, id string) (*models.Camera, error)
	AddIncident(ctx context.Context, incident *models.Incident) (string, error)
	AddAlert(ctx context.Context, alert *models.Alert) error
	UpdateIncidentStatus(ctx context.Context, id string, status models.IncidentStatus) (*models.Incident, error)
	CommanderForCamera(ctx context.Context, eventID, cameraID string) (*models.Commander, error)
	SetIoTStatus(ctx context.Context, scope, cameraID string, status models.EmergencyType) error
}

// Notification is the user-facing message announced for every new alert
type Notification struct {
	ID          string          `json:"id"`
	EventID     string          `json:"eventId"`
	IncidentID  string          `json:"incidentId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    models.Severity `json:"severity"`
	CameraID    string          `json:"cameraId"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Materializer creates incidents and their alerts
type Materializer struct {
	store   Store
	pub     store.Publisher
	metrics *metrics.Metrics

	objects  storage.ObjectStore
	exporter export.IncidentExporter
	signaler iot.Signaler

	now func() time.Time
}

// New creates a materializer. pub and m may be nil.
func New(s Store, pub store.Publisher, m *metrics.Metrics) *Materializer {
	return &Materializer{
		store:   s,
		pub:     pub,
		metrics: m,
		now:     time.Now,
	}
}

// SetObjectStore enables frame snapshot uploads
func (m *Materializer) SetObjectStore(objects storage.ObjectStore) {
	m.objects = objects
}

// SetExporter enables incident export
func (m *Materializer) SetExporter(exporter export.IncidentExporter) {
	m.exporter = exporter
}

// SetSignaler enables hardware emergency signals
func (m *Materializer) SetSignaler(signaler iot.Signaler) {
	m.signaler = signaler
}

// SetClock replaces the time source
func (m *Materializer) SetClock(now func() time.Time) {
	m.now = now
}

// ResolveCamera returns the camera info copied into incidents. Unknown
// cameras fall back to a placeholder so an incident is never dropped.
func (m *Materializer) ResolveCamera(ctx context.Context, eventID, cameraID string) models.Camera {
	if cameraID == models.WebcamID {
		return models.WebcamCamera(eventID)
	}
	cam, err := m.store.GetCamera(ctx, cameraID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("⚠️ Failed to load camera %s: %v", cameraID, err)
		}
		return models.Camera{ID: cameraID, Name: "Unknown Camera", Location: "Unknown"}
	}
	return *cam
}

// Materialize creates one incident and one alert for every descriptor.
// snapshot is the analyzed frame; it is uploaded once and linked from every
// incident of the batch. Descriptors are never merged.
func (m *Materializer) Materialize(ctx context.Context, eventID, cameraID string, alerts []models.AlertDescriptor, snapshot []byte) ([]models.Incident, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	cam := m.ResolveCamera(ctx, eventID, cameraID)
	snapshotURL := m.uploadSnapshot(ctx, eventID, cam.ID, snapshot)

	created := make([]models.Incident, 0, len(alerts))
	for _, desc := range alerts {
		incident := models.Incident{
			EventID:     eventID,
			Type:        desc.Type,
			Severity:    desc.Severity,
			Status:      models.StatusActive,
			Camera:      models.NewJSONB(cam),
			Description: desc.Description,
			SnapshotURL: snapshotURL,
		}
		if _, err := m.store.AddIncident(ctx, &incident); err != nil {
			return created, err
		}
		m.count(func(mm *metrics.Metrics) { mm.IncidentsCreated.Add(1) })

		alert := models.Alert{
			ID:         m.alertID(),
			EventID:    eventID,
			IncidentID: incident.ID,
			Message:    desc.Description,
			Severity:   desc.Severity,
			Timestamp:  m.now(),
		}
		if err := m.store.AddAlert(ctx, &alert); err != nil {
			return created, err
		}

		m.notify(Notification{
			ID:          alert.ID,
			EventID:     eventID,
			IncidentID:  incident.ID,
			Title:       fmt.Sprintf("New Alert: %s", desc.Type),
			Description: desc.Description,
			Severity:    desc.Severity,
			CameraID:    cam.ID,
			Timestamp:   alert.Timestamp,
		})
		m.export(&incident)
		created = append(created, incident)
	}
	return created, nil
}

// UpdateStatus sets any valid status, reopening included
func (m *Materializer) UpdateStatus(ctx context.Context, id string, status models.IncidentStatus) (*models.Incident, error) {
	return m.store.UpdateIncidentStatus(ctx, id, status)
}

// TriggerEmergency records an emergency signal. The global command always
// follows the latest trigger. When cameraID names a camera, an Emergency
// incident and its alert are created as well; the returned incident is nil
// otherwise.
func (m *Materializer) TriggerEmergency(ctx context.Context, eventID, cameraID string, emergency models.EmergencyType) (*models.Incident, error) {
	if !emergency.Valid() {
		return nil, store.ErrInvalidStatus
	}
	if cameraID == "" {
		cameraID = "global"
	}

	if err := m.store.SetIoTStatus(ctx, models.GlobalIoTScope, "", emergency); err != nil {
		return nil, err
	}
	if err := m.store.SetIoTStatus(ctx, eventID, cameraID, emergency); err != nil {
		return nil, err
	}
	m.count(func(mm *metrics.Metrics) { mm.EmergencySignals.Add(1) })

	if m.signaler != nil {
		if err := m.signaler.Signal(models.GlobalIoTScope, "", emergency); err != nil {
			log.Printf("⚠️ Failed to signal global emergency over MQTT: %v", err)
		}
		if err := m.signaler.Signal(eventID, cameraID, emergency); err != nil {
			log.Printf("⚠️ Failed to signal emergency for %s over MQTT: %v", cameraID, err)
		}
	}

	if emergency == models.EmergencyNone || cameraID == "global" {
		log.Printf("🚨 Emergency status for event %s set to %s", eventID, emergency)
		return nil, nil
	}

	cam := m.ResolveCamera(ctx, eventID, cameraID)
	label := emergency.Label()

	incident := models.Incident{
		EventID:     eventID,
		Type:        models.IncidentEmergency,
		Severity:    models.SeverityCritical,
		Status:      models.StatusActive,
		Camera:      models.NewJSONB(cam),
		Description: fmt.Sprintf("Manual %s signal triggered for %s.", label, cam.Name),
	}
	if _, err := m.store.AddIncident(ctx, &incident); err != nil {
		return nil, err
	}
	m.count(func(mm *metrics.Metrics) { mm.IncidentsCreated.Add(1) })

	commanderName := "the assigned commander"
	if c, err := m.store.CommanderForCamera(ctx, eventID, cameraID); err == nil {
		commanderName = c.Name
	}

	alert := models.Alert{
		ID:         m.alertID(),
		EventID:    eventID,
		IncidentID: incident.ID,
		Message:    fmt.Sprintf("%s alert for %s. Notifying %s.", label, cam.Name, commanderName),
		Severity:   models.SeverityCritical,
		Timestamp:  m.now(),
	}
	if err := m.store.AddAlert(ctx, &alert); err != nil {
		return &incident, err
	}

	m.notify(Notification{
		ID:          alert.ID,
		EventID:     eventID,
		IncidentID:  incident.ID,
		Title:       fmt.Sprintf("%s Signal Activated!", label),
		Description: fmt.Sprintf("Alert also sent to %s for response at %s.", commanderName, cam.Name),
		Severity:    models.SeverityCritical,
		CameraID:    cam.ID,
		Timestamp:   alert.Timestamp,
	})
	m.export(&incident)
	return &incident, nil
}

func (m *Materializer) uploadSnapshot(ctx context.Context, eventID, cameraID string, snapshot []byte) *string {
	if m.objects == nil || len(snapshot) == 0 {
		return nil
	}
	key := storage.SnapshotKey(eventID, cameraID, m.now())
	url, err := m.objects.Put(ctx, key, bytes.NewReader(snapshot), int64(len(snapshot)), "image/jpeg")
	if err != nil {
		m.count(func(mm *metrics.Metrics) { mm.SnapshotErrors.Add(1) })
		log.Printf("⚠️ Failed to upload incident snapshot for %s: %v", cameraID, err)
		return nil
	}
	m.count(func(mm *metrics.Metrics) { mm.SnapshotUploads.Add(1) })
	return &url
}

func (m *Materializer) notify(n Notification) {
	log.Printf("🚨 %s [%s] %s", n.Title, n.Severity, n.Description)
	m.count(func(mm *metrics.Metrics) { mm.NotificationsSent.Add(1) })
	if m.pub == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	if err := m.pub.Publish(store.NotificationsSubject(n.EventID), data); err != nil {
		log.Printf("⚠️ Failed to publish notification: %v", err)
	}
}

func (m *Materializer) export(incident *models.Incident) {
	if m.exporter == nil {
		return
	}
	if err := m.exporter.ExportIncident(incident); err != nil {
		m.count(func(mm *metrics.Metrics) { mm.ExportErrors.Add(1) })
		log.Printf("⚠️ Failed to export incident %s: %v", incident.ID, err)
	}
}

func (m *Materializer) count(fn func(*metrics.Metrics)) {
	if m.metrics != nil {
		fn(m.metrics)
	}
}

func (m *Materializer) alertID() string {
	return fmt.Sprintf("alert-%d-%s", m.now().UnixMilli(), uuid.NewString()[:8])
}
