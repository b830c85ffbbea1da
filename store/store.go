// Package store persists the monitoring state of every event scope and
// announces each change on the realtime bus.
package store

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DetectionRetention is how long detection points survive for a camera
const DetectionRetention = 10 * time.Second

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidStatus     = errors.New("invalid status")
)

// Publisher is the realtime bus the store announces changes on
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Store wraps the database for one deployment
type Store struct {
	db  *gorm.DB
	pub Publisher
	now func() time.Time
}

// New creates a store. pub may be nil when nobody listens for changes.
func New(db *gorm.DB, pub Publisher) *Store {
	return &Store{db: db, pub: pub, now: time.Now}
}

// DB exposes the underlying connection for maintenance tools
func (s *Store) DB() *gorm.DB {
	return s.db
}

// SetClock replaces the time source
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) publish(subject string, v interface{}) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("⚠️ Failed to encode %s update: %v", subject, err)
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		log.Printf("⚠️ Failed to publish %s: %v", subject, err)
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Subject names. One subject services a whole event scope.
func AnalysisSubject(eventID string) string {
	return "drishti." + token(eventID) + ".analysis"
}

func DetectionsSubject(eventID, cameraID string) string {
	return "drishti." + token(eventID) + ".detections." + token(cameraID)
}

func IncidentsSubject(eventID string) string {
	return "drishti." + token(eventID) + ".incidents"
}

func AlertsSubject(eventID string) string {
	return "drishti." + token(eventID) + ".alerts"
}

func CamerasSubject(eventID string) string {
	return "drishti." + token(eventID) + ".cameras"
}

func CommandersSubject(eventID string) string {
	return "drishti." + token(eventID) + ".commanders"
}

func StatsSubject(eventID string) string {
	return "drishti." + token(eventID) + ".stats"
}

func NotificationsSubject(eventID string) string {
	return "drishti." + token(eventID) + ".notifications"
}

func IoTSubject(scope string) string {
	return "drishti.iot." + token(scope)
}

// token makes an id safe to use as one NATS subject token
func token(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
}
