package store

import (
	"context"
	"fmt"

	"github.com/drishti/backend/models"
)

// AddCamera registers a camera. Ids default to cam-<unix ms>.
func (s *Store) AddCamera(ctx context.Context, cam *models.Camera) error {
	now := s.now()
	if cam.ID == "" {
		cam.ID = fmt.Sprintf("cam-%d", now.UnixMilli())
	}
	if cam.Status == "" {
		cam.Status = models.CameraOnline
	}
	if !cam.Status.Valid() {
		return ErrInvalidStatus
	}
	cam.LastSeen = now

	if err := s.db.WithContext(ctx).Create(cam).Error; err != nil {
		return fmt.Errorf("add camera: %w", err)
	}
	s.publishCameras(ctx, cam.EventID)
	return nil
}

// ListCameras returns the registered cameras of the scope, oldest first.
// The local webcam is not included.
func (s *Store) ListCameras(ctx context.Context, eventID string) ([]models.Camera, error) {
	var cams []models.Camera
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at ASC").Find(&cams).Error; err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	return cams, nil
}

// GetCamera loads one camera
func (s *Store) GetCamera(ctx context.Context, id string) (*models.Camera, error) {
	var cam models.Camera
	if err := s.db.WithContext(ctx).First(&cam, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &cam, nil
}

// UpdateCamera saves editable camera fields
func (s *Store) UpdateCamera(ctx context.Context, cam *models.Camera) error {
	if !cam.Status.Valid() {
		return ErrInvalidStatus
	}
	res := s.db.WithContext(ctx).Model(&models.Camera{}).Where("id = ?", cam.ID).Updates(map[string]interface{}{
		"name":         cam.Name,
		"location":     cam.Location,
		"status":       cam.Status,
		"zone":         cam.Zone,
		"coord_lat":    cam.Coordinates.Lat,
		"coord_lng":    cam.Coordinates.Lng,
		"stream_url":   cam.StreamURL,
		"stream_image": cam.StreamImage,
	})
	if res.Error != nil {
		return fmt.Errorf("update camera: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.publishCameras(ctx, cam.EventID)
	return nil
}

// UpdateCameraStatus sets the status and refreshes the last-seen time
func (s *Store) UpdateCameraStatus(ctx context.Context, id string, status models.CameraStatus) (*models.Camera, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	cam, err := s.GetCamera(ctx, id)
	if err != nil {
		return nil, err
	}
	cam.Status = status
	cam.LastSeen = s.now()
	err = s.db.WithContext(ctx).Model(&models.Camera{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "last_seen": cam.LastSeen}).Error
	if err != nil {
		return nil, fmt.Errorf("update camera status: %w", err)
	}
	s.publishCameras(ctx, cam.EventID)
	return cam, nil
}

// DeleteCamera removes a camera. Incidents keep their camera snapshot.
func (s *Store) DeleteCamera(ctx context.Context, id string) error {
	cam, err := s.GetCamera(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Camera{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	s.publishCameras(ctx, cam.EventID)
	return nil
}

func (s *Store) publishCameras(ctx context.Context, eventID string) {
	if s.pub == nil {
		return
	}
	cams, err := s.ListCameras(ctx, eventID)
	if err != nil {
		return
	}
	s.publish(CamerasSubject(eventID), cams)
}
