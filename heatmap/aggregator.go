package heatmap

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/drishti/backend/models"
)

// PointSource loads the persisted detection points of a camera
type PointSource interface {
	ListDetectionPoints(ctx context.Context, eventID, cameraID string) ([]models.CrowdDetection, error)
}

type rendered struct {
	cameraID    string
	fingerprint string
	png         []byte
}

// Aggregator renders the heatmap of the selected camera of each event
type Aggregator struct {
	points PointSource
	opts   Options

	mu       sync.Mutex
	selected map[string]string
	cache    map[string]rendered
}

func NewAggregator(points PointSource, opts Options) *Aggregator {
	return &Aggregator{
		points:   points,
		opts:     opts,
		selected: make(map[string]string),
		cache:    make(map[string]rendered),
	}
}

// Select switches the camera shown for an event and drops the old render
func (a *Aggregator) Select(eventID, cameraID string) {
	if cameraID == "" {
		cameraID = models.WebcamID
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selected[eventID] = cameraID
	delete(a.cache, eventID)
}

// Selected returns the camera shown for an event, the webcam by default
func (a *Aggregator) Selected(eventID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedLocked(eventID)
}

// RenderPNG renders the selected camera's points as PNG. Unchanged point
// sets are served from the last render.
func (a *Aggregator) RenderPNG(ctx context.Context, eventID string) ([]byte, error) {
	cameraID := a.Selected(eventID)

	detections, err := a.points.ListDetectionPoints(ctx, eventID, cameraID)
	if err != nil {
		return nil, fmt.Errorf("load detection points: %w", err)
	}
	fp := fingerprint(detections)

	a.mu.Lock()
	if c, ok := a.cache[eventID]; ok && c.cameraID == cameraID && c.fingerprint == fp {
		a.mu.Unlock()
		return c.png, nil
	}
	a.mu.Unlock()

	points := make([]Point, len(detections))
	for i, d := range detections {
		points[i] = Point{X: d.X, Y: d.Y}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Render(points, a.opts)); err != nil {
		return nil, fmt.Errorf("encode heatmap: %w", err)
	}

	a.mu.Lock()
	// A concurrent Select wins over this render
	if a.selectedLocked(eventID) == cameraID {
		a.cache[eventID] = rendered{cameraID: cameraID, fingerprint: fp, png: buf.Bytes()}
	}
	a.mu.Unlock()
	return buf.Bytes(), nil
}

func (a *Aggregator) selectedLocked(eventID string) string {
	if id, ok := a.selected[eventID]; ok {
		return id
	}
	return models.WebcamID
}

func fingerprint(ds []models.CrowdDetection) string {
	if len(ds) == 0 {
		return "0"
	}
	var latest time.Time
	for _, d := range ds {
		if d.Timestamp.After(latest) {
			latest = d.Timestamp
		}
	}
	return fmt.Sprintf("%d:%s:%d", len(ds), ds[0].ID, latest.UnixNano())
}
