package store

import (
	"context"
	"fmt"
	"time"

	"github.com/drishti/backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveAnalysisResult upserts the latest result of a camera. Last write wins.
func (s *Store) SaveAnalysisResult(ctx context.Context, eventID, cameraID string, result *models.FrameAnalysis) error {
	if result == nil {
		result = models.EmptyAnalysis()
	}
	row := models.AnalysisResult{
		ID:              models.AnalysisResultID(eventID, cameraID),
		EventID:         eventID,
		CameraID:        cameraID,
		CrowdCount:      result.CrowdCount,
		PeoplePositions: models.NewJSONB(nonNilPositions(result.PeoplePositions)),
		NewAlerts:       models.NewJSONB(nonNilAlerts(result.NewAlerts)),
		UpdatedAt:       s.now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save analysis result for %s: %w", cameraID, err)
	}

	if results, err := s.ListAnalysisResults(ctx, eventID); err == nil {
		s.publish(AnalysisSubject(eventID), results)
	}
	return nil
}

// ListAnalysisResults returns the latest result of every camera in the scope
func (s *Store) ListAnalysisResults(ctx context.Context, eventID string) (map[string]models.FrameAnalysis, error) {
	var rows []models.AnalysisResult
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list analysis results: %w", err)
	}
	results := make(map[string]models.FrameAnalysis, len(rows))
	for _, row := range rows {
		results[row.CameraID] = row.Analysis()
	}
	return results, nil
}

// UpdateDetectionPoints prunes the camera's points older than the retention
// window and then inserts the new positions stamped with the current time.
func (s *Store) UpdateDetectionPoints(ctx context.Context, eventID, cameraID string, positions []models.Position) error {
	now := s.now()
	cutoff := now.Add(-DetectionRetention)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ? AND camera_id = ? AND timestamp < ?", eventID, cameraID, cutoff).
			Delete(&models.CrowdDetection{}).Error; err != nil {
			return fmt.Errorf("prune detections: %w", err)
		}
		if len(positions) == 0 {
			return nil
		}
		points := make([]models.CrowdDetection, 0, len(positions))
		for _, p := range positions {
			points = append(points, models.CrowdDetection{
				ID:        uuid.NewString(),
				EventID:   eventID,
				CameraID:  cameraID,
				X:         p.X,
				Y:         p.Y,
				Timestamp: now,
			})
		}
		if err := tx.CreateInBatches(points, 200).Error; err != nil {
			return fmt.Errorf("insert detections: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if points, err := s.ListDetectionPoints(ctx, eventID, cameraID); err == nil {
		s.publish(DetectionsSubject(eventID, cameraID), points)
	}
	return nil
}

// ListDetectionPoints returns the stored points of one camera, oldest first
func (s *Store) ListDetectionPoints(ctx context.Context, eventID, cameraID string) ([]models.CrowdDetection, error) {
	var points []models.CrowdDetection
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND camera_id = ?", eventID, cameraID).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	return points, nil
}

// ResetAnalysis deletes every analysis result, detection point, crowd history
// row, incident and alert of the scope in one transaction. Every camera that
// had detection points gets an empty list so live heatmaps clear.
func (s *Store) ResetAnalysis(ctx context.Context, eventID string) error {
	var cameraIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CrowdDetection{}).
			Where("event_id = ?", eventID).
			Distinct().
			Pluck("camera_id", &cameraIDs).Error; err != nil {
			return fmt.Errorf("reset detections: %w", err)
		}
		for _, model := range []interface{}{
			&models.AnalysisResult{},
			&models.CrowdAnalyticsPoint{},
			&models.Alert{},
			&models.Incident{},
			&models.CrowdDetection{},
		} {
			if err := tx.Where("event_id = ?", eventID).Delete(model).Error; err != nil {
				return fmt.Errorf("reset %T: %w", model, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(AnalysisSubject(eventID), map[string]models.FrameAnalysis{})
	s.publish(IncidentsSubject(eventID), []models.Incident{})
	s.publish(AlertsSubject(eventID), []models.Alert{})
	for _, id := range cameraIDs {
		s.publish(DetectionsSubject(eventID, id), []models.CrowdDetection{})
	}
	return nil
}

// LogCrowdCount appends one point to the crowd trend history
func (s *Store) LogCrowdCount(ctx context.Context, eventID string, count int) error {
	point := models.CrowdAnalyticsPoint{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Count:     count,
		Timestamp: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&point).Error; err != nil {
		return fmt.Errorf("log crowd count: %w", err)
	}
	return nil
}

// LatestCrowdCount returns the last logged count of the scope, if any
func (s *Store) LatestCrowdCount(ctx context.Context, eventID string) (int, bool, error) {
	var point models.CrowdAnalyticsPoint
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("timestamp DESC").First(&point).Error
	if err != nil {
		if notFound(err) == ErrNotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("latest crowd count: %w", err)
	}
	return point.Count, true, nil
}

// CrowdHistory returns the points of the last minutes, oldest first.
// minutes <= 0 means the default window of 15 minutes.
func (s *Store) CrowdHistory(ctx context.Context, eventID string, minutes int) ([]models.CrowdAnalyticsPoint, error) {
	if minutes <= 0 {
		minutes = 15
	}
	since := s.now().Add(-time.Duration(minutes) * time.Minute)

	var points []models.CrowdAnalyticsPoint
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND timestamp >= ?", eventID, since).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("crowd history: %w", err)
	}
	return points, nil
}

func nonNilPositions(p []models.Position) []models.Position {
	if p == nil {
		return []models.Position{}
	}
	return p
}

func nonNilAlerts(a []models.AlertDescriptor) []models.AlertDescriptor {
	if a == nil {
		return []models.AlertDescriptor{}
	}
	return a
}
