package store

import (
	"context"
	"fmt"

	"github.com/drishti/backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IncidentQuery filters ListIncidents
type IncidentQuery struct {
	Limit  int
	Status models.IncidentStatus
}

// broadcastLimit bounds the incident list pushed to subscribers
const broadcastLimit = 50

// AddIncident inserts an incident with a server timestamp and returns its id
func (s *Store) AddIncident(ctx context.Context, incident *models.Incident) (string, error) {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.Status == "" {
		incident.Status = models.StatusActive
	}
	incident.Timestamp = s.now()

	if err := s.db.WithContext(ctx).Create(incident).Error; err != nil {
		return "", fmt.Errorf("add incident: %w", err)
	}
	s.publishIncidents(ctx, incident.EventID)
	return incident.ID, nil
}

// ListIncidents returns incidents of the scope, newest first
func (s *Store) ListIncidents(ctx context.Context, eventID string, q IncidentQuery) ([]models.Incident, error) {
	query := s.db.WithContext(ctx).Where("event_id = ?", eventID)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var incidents []models.Incident
	if err := query.Order("timestamp DESC").Find(&incidents).Error; err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

// GetIncident loads one incident
func (s *Store) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	var incident models.Incident
	if err := s.db.WithContext(ctx).First(&incident, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &incident, nil
}

// UpdateIncidentStatus sets the status; any valid status may follow any other
func (s *Store) UpdateIncidentStatus(ctx context.Context, id string, status models.IncidentStatus) (*models.Incident, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	var incident models.Incident
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&incident, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if incident.Status == status {
			return nil
		}
		incident.Status = status
		return tx.Model(&models.Incident{}).Where("id = ?", id).Update("status", status).Error
	})
	if err != nil {
		return nil, err
	}

	s.publishIncidents(ctx, incident.EventID)
	return &incident, nil
}

func (s *Store) publishIncidents(ctx context.Context, eventID string) {
	if s.pub == nil {
		return
	}
	incidents, err := s.ListIncidents(ctx, eventID, IncidentQuery{Limit: broadcastLimit})
	if err != nil {
		return
	}
	s.publish(IncidentsSubject(eventID), incidents)
}

// AddAlert inserts an alert for an existing incident
func (s *Store) AddAlert(ctx context.Context, alert *models.Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now()
	}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("add alert: %w", err)
	}
	s.publishAlerts(ctx, alert.EventID)
	return nil
}

// ListAlerts returns alerts of the scope, newest first
func (s *Store) ListAlerts(ctx context.Context, eventID string, limit int) ([]models.Alert, error) {
	query := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var alerts []models.Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as seen by the given user
func (s *Store) AcknowledgeAlert(ctx context.Context, id, by string) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}

	updates := map[string]interface{}{"acknowledged": true}
	if by != "" {
		updates["acknowledged_by"] = by
		alert.AcknowledgedBy = &by
	}
	if err := s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	alert.Acknowledged = true

	s.publishAlerts(ctx, alert.EventID)
	return &alert, nil
}

func (s *Store) publishAlerts(ctx context.Context, eventID string) {
	if s.pub == nil {
		return
	}
	alerts, err := s.ListAlerts(ctx, eventID, broadcastLimit)
	if err != nil {
		return
	}
	s.publish(AlertsSubject(eventID), alerts)
}
