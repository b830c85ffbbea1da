package store

import (
	"context"
	"fmt"

	"github.com/drishti/backend/models"
	"gorm.io/gorm/clause"
)

// SetIoTStatus records the emergency signal of one scope and camera.
// The global command uses scope models.GlobalIoTScope and an empty camera id.
func (s *Store) SetIoTStatus(ctx context.Context, scope, cameraID string, status models.EmergencyType) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	row := models.IoTStatus{
		Scope:     scope,
		CameraID:  cameraID,
		Status:    status,
		UpdatedAt: s.now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "camera_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set iot status: %w", err)
	}
	s.publish(IoTSubject(scope), row)
	return nil
}

// GetIoTStatus returns the current signal, None when nothing was set
func (s *Store) GetIoTStatus(ctx context.Context, scope, cameraID string) (models.EmergencyType, error) {
	var row models.IoTStatus
	err := s.db.WithContext(ctx).Where("scope = ? AND camera_id = ?", scope, cameraID).First(&row).Error
	if err != nil {
		if notFound(err) == ErrNotFound {
			return models.EmergencyNone, nil
		}
		return models.EmergencyNone, fmt.Errorf("get iot status: %w", err)
	}
	if row.Status == "" {
		return models.EmergencyNone, nil
	}
	return row.Status, nil
}
