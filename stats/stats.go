// Package stats derives the dashboard summary of an event and keeps the
// crowd history series up to date.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/samber/lo"
)

// Summary is the aggregate view shown on the dashboard
type Summary struct {
	EventID         string    `json:"eventId"`
	TotalCrowd      int       `json:"totalCrowd"`
	OnlineCameras   int       `json:"onlineCameras"`
	TotalCameras    int       `json:"totalCameras"`
	ActiveIncidents int       `json:"activeIncidents"`
	TotalIncidents  int       `json:"totalIncidents"`
	ComputedAt      time.Time `json:"computedAt"`
}

// Compute sums the latest crowd counts of every camera, the webcam included.
// Camera totals count the webcam, which is never stored, as one online camera.
func Compute(results map[string]models.FrameAnalysis, cameras []models.Camera, incidents []models.Incident) Summary {
	total := lo.SumBy(lo.Values(results), func(r models.FrameAnalysis) int {
		return r.CrowdCount
	})
	stored := lo.Reject(cameras, func(c models.Camera, _ int) bool { return c.ID == models.WebcamID })

	return Summary{
		TotalCrowd: total,
		OnlineCameras: lo.CountBy(stored, func(c models.Camera) bool {
			return c.Status == models.CameraOnline
		}) + 1,
		TotalCameras: len(stored) + 1,
		ActiveIncidents: lo.CountBy(incidents, func(i models.Incident) bool {
			return i.Status == models.StatusActive
		}),
		TotalIncidents: len(incidents),
	}
}

// Source is the read side the tracker needs
type Source interface {
	ListAnalysisResults(ctx context.Context, eventID string) (map[string]models.FrameAnalysis, error)
	ListCameras(ctx context.Context, eventID string) ([]models.Camera, error)
	ListIncidents(ctx context.Context, eventID string, q store.IncidentQuery) ([]models.Incident, error)
	LatestCrowdCount(ctx context.Context, eventID string) (int, bool, error)
	LogCrowdCount(ctx context.Context, eventID string, count int) error
}

// Tracker recomputes summaries and appends crowd history points
type Tracker struct {
	src Source
	pub store.Publisher
	now func() time.Time

	mu         sync.Mutex
	events     map[string]*sync.Mutex
	lastLogged map[string]int
	latest     map[string]Summary
}

func NewTracker(src Source, pub store.Publisher) *Tracker {
	return &Tracker{
		src:        src,
		pub:        pub,
		now:        time.Now,
		events:     make(map[string]*sync.Mutex),
		lastLogged: make(map[string]int),
		latest:     make(map[string]Summary),
	}
}

// lockEvent serializes refreshes of one event; other events proceed
func (t *Tracker) lockEvent(eventID string) func() {
	t.mu.Lock()
	m, ok := t.events[eventID]
	if !ok {
		m = &sync.Mutex{}
		t.events[eventID] = m
	}
	t.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Refresh recomputes the summary of an event after an analysis cycle. A
// history point is logged when the total is positive and differs from the
// last logged value.
func (t *Tracker) Refresh(ctx context.Context, eventID string) (Summary, error) {
	return t.refresh(ctx, eventID, true)
}

// Recompute rebuilds and publishes the summary without touching the crowd
// history, for reads and operator changes.
func (t *Tracker) Recompute(ctx context.Context, eventID string) (Summary, error) {
	return t.refresh(ctx, eventID, false)
}

func (t *Tracker) refresh(ctx context.Context, eventID string, logHistory bool) (Summary, error) {
	unlock := t.lockEvent(eventID)
	defer unlock()

	results, err := t.src.ListAnalysisResults(ctx, eventID)
	if err != nil {
		return Summary{}, fmt.Errorf("refresh stats: %w", err)
	}
	cameras, err := t.src.ListCameras(ctx, eventID)
	if err != nil {
		return Summary{}, fmt.Errorf("refresh stats: %w", err)
	}
	incidents, err := t.src.ListIncidents(ctx, eventID, store.IncidentQuery{})
	if err != nil {
		return Summary{}, fmt.Errorf("refresh stats: %w", err)
	}

	summary := Compute(results, cameras, incidents)
	summary.EventID = eventID
	summary.ComputedAt = t.now()

	if logHistory {
		if err := t.logHistory(ctx, eventID, summary.TotalCrowd); err != nil {
			log.Printf("⚠️ Failed to log crowd history for %s: %v", eventID, err)
		}
	}

	t.mu.Lock()
	t.latest[eventID] = summary
	t.mu.Unlock()

	if t.pub != nil {
		if data, err := json.Marshal(summary); err == nil {
			if err := t.pub.Publish(store.StatsSubject(eventID), data); err != nil {
				log.Printf("⚠️ Failed to publish stats for %s: %v", eventID, err)
			}
		}
	}
	return summary, nil
}

// logHistory runs under the event lock, so the read of the last logged
// value and the append cannot interleave with another refresh.
func (t *Tracker) logHistory(ctx context.Context, eventID string, total int) error {
	t.mu.Lock()
	last, seeded := t.lastLogged[eventID]
	t.mu.Unlock()

	if !seeded {
		count, ok, err := t.src.LatestCrowdCount(ctx, eventID)
		if err != nil {
			return err
		}
		last = -1
		if ok {
			last = count
		}
	}

	if total <= 0 || total == last {
		t.remember(eventID, last)
		return nil
	}
	if err := t.src.LogCrowdCount(ctx, eventID, total); err != nil {
		return err
	}
	t.remember(eventID, total)
	return nil
}

func (t *Tracker) remember(eventID string, count int) {
	t.mu.Lock()
	t.lastLogged[eventID] = count
	t.mu.Unlock()
}

// Forget drops the cached history state of an event, after a reset
func (t *Tracker) Forget(eventID string) {
	unlock := t.lockEvent(eventID)
	defer unlock()
	t.mu.Lock()
	delete(t.lastLogged, eventID)
	delete(t.latest, eventID)
	t.mu.Unlock()
}

// Latest returns the last computed summary, if any
func (t *Tracker) Latest(eventID string) (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.latest[eventID]
	return s, ok
}

// Snapshot serves the last summary to late live subscribers
func (t *Tracker) Snapshot(subject string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for eventID, s := range t.latest {
		if store.StatsSubject(eventID) == subject {
			data, err := json.Marshal(s)
			return data, err == nil
		}
	}
	return nil, false
}
