package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/drishti/backend/decoder"
	"github.com/drishti/backend/incident"
	"github.com/drishti/backend/inference"
	"github.com/drishti/backend/metrics"
	"github.com/drishti/backend/models"
	"github.com/drishti/backend/sampler"
	"github.com/drishti/backend/stats"
	"github.com/drishti/backend/store"
)

// Pipeline is what happens to every sampled frame: inference, result
// persistence, detection points, incidents and the dashboard summary.
type Pipeline struct {
	analyzer     inference.Analyzer
	store        *store.Store
	materializer *incident.Materializer
	tracker      *stats.Tracker
	metrics      *metrics.Metrics
}

func NewPipeline(analyzer inference.Analyzer, st *store.Store, mat *incident.Materializer, tracker *stats.Tracker, m *metrics.Metrics) *Pipeline {
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		analyzer:     analyzer,
		store:        st,
		materializer: mat,
		tracker:      tracker,
		metrics:      m,
	}
}

// Dispatcher binds the pipeline to one event scope
func (p *Pipeline) Dispatcher(eventID string) sampler.Dispatcher {
	return func(ctx context.Context, job sampler.Job) error {
		return p.Process(ctx, eventID, job)
	}
}

// Process analyzes one frame. Results of a job whose sampler was stopped
// while the call was in flight are dropped.
func (p *Pipeline) Process(ctx context.Context, eventID string, job sampler.Job) error {
	p.metrics.FramesDispatched.Add(1)
	p.metrics.InferenceCalls.Add(1)

	start := time.Now()
	result, err := p.analyzer.AnalyzeFrame(ctx, job.Frame)
	p.metrics.UpdateInferenceLatency(time.Since(start))
	if err != nil {
		p.metrics.InferenceErrors.Add(1)
		return fmt.Errorf("analyze frame from %s: %w", job.CameraID, err)
	}
	if result == nil {
		result = models.EmptyAnalysis()
	}

	if !job.Live() {
		log.Printf("⏹️ Discarding result for %s, analysis was stopped", job.CameraID)
		return nil
	}

	if err := p.store.SaveAnalysisResult(ctx, eventID, job.CameraID, result); err != nil {
		p.metrics.StoreErrors.Add(1)
		return err
	}
	p.metrics.ResultsStored.Add(1)

	// Losing one cycle of heatmap points must not lose its alerts
	if err := p.store.UpdateDetectionPoints(ctx, eventID, job.CameraID, result.PeoplePositions); err != nil {
		p.metrics.StoreErrors.Add(1)
		log.Printf("⚠️ Failed to update detections for %s: %v", job.CameraID, err)
	}

	if p.materializer != nil && len(result.NewAlerts) > 0 {
		if _, err := p.materializer.Materialize(ctx, eventID, job.CameraID, result.NewAlerts, job.Frame); err != nil {
			p.metrics.StoreErrors.Add(1)
			return err
		}
	}

	if p.tracker != nil {
		if _, err := p.tracker.Refresh(ctx, eventID); err != nil {
			log.Printf("⚠️ Failed to refresh stats for %s: %v", eventID, err)
		}
	}
	return nil
}

// FFmpegFactory opens stored cameras through ffmpeg
func FFmpegFactory(ffmpegPath string, fps int) sampler.SourceFactory {
	return func(ctx context.Context, cam models.Camera) (sampler.Source, error) {
		src, err := decoder.NewFFmpegSource(ctx, decoder.Config{
			CameraID:   cam.ID,
			URL:        cam.StreamURL,
			FFmpegPath: ffmpegPath,
			FPS:        fps,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

type monitoredEvent struct {
	sampler *sampler.Sampler
	cancel  context.CancelFunc
}

// Monitor owns one sampler per event scope
type Monitor struct {
	ctx      context.Context
	store    *store.Store
	pipeline *Pipeline
	tracker  *stats.Tracker
	cfg      sampler.Config
	factory  sampler.SourceFactory
	metrics  *metrics.Metrics

	mu     sync.Mutex
	events map[string]*monitoredEvent
}

// NewMonitor creates a monitor. Samplers live until ctx is cancelled or
// Close is called. factory may be nil, then only the webcam is analyzed.
func NewMonitor(ctx context.Context, st *store.Store, pipeline *Pipeline, tracker *stats.Tracker, cfg sampler.Config, factory sampler.SourceFactory, m *metrics.Metrics) *Monitor {
	if m == nil {
		m = metrics.New()
	}
	return &Monitor{
		ctx:      ctx,
		store:    st,
		pipeline: pipeline,
		tracker:  tracker,
		cfg:      cfg,
		factory:  factory,
		metrics:  m,
		events:   make(map[string]*monitoredEvent),
	}
}

// Sampler returns the sampler of an event, creating it on first use
func (m *Monitor) Sampler(ctx context.Context, eventID string) (*sampler.Sampler, error) {
	m.mu.Lock()
	ev, ok := m.events[eventID]
	if ok {
		m.mu.Unlock()
		return ev.sampler, nil
	}

	s := sampler.New(m.cfg, m.pipeline.Dispatcher(eventID), m.factory)
	s.OnError = func(cameraID string, err error) {
		log.Printf("⚠️ Analysis failed for %s/%s: %v", eventID, cameraID, err)
	}
	s.OnCaptureError = func(cameraID string, err error) {
		m.metrics.CaptureErrors.Add(1)
		m.metrics.FramesSkipped.Add(1)
	}
	s.OnStatus = func(cameraID string, status models.CameraStatus, reason string) {
		m.cameraStatusChanged(eventID, cameraID, status, reason)
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	ev = &monitoredEvent{sampler: s, cancel: cancel}
	m.events[eventID] = ev
	m.mu.Unlock()

	go s.Run(runCtx)
	log.Printf("📡 Sampler started for event %s", eventID)

	if err := m.SyncCameras(ctx, eventID); err != nil {
		return s, err
	}
	return s, nil
}

func (m *Monitor) lookup(eventID string) (*sampler.Sampler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return nil, false
	}
	return ev.sampler, true
}

// cameraStatusChanged persists status changes the sampler detected
func (m *Monitor) cameraStatusChanged(eventID, cameraID string, status models.CameraStatus, reason string) {
	if cameraID == models.WebcamID {
		return
	}
	log.Printf("📹 Camera %s/%s is now %s (%s)", eventID, cameraID, status, reason)
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()
	if _, err := m.store.UpdateCameraStatus(ctx, cameraID, status); err != nil {
		log.Printf("⚠️ Failed to persist status of camera %s: %v", cameraID, err)
	}
}

// SyncCameras reloads the camera list of a monitored event
func (m *Monitor) SyncCameras(ctx context.Context, eventID string) error {
	s, ok := m.lookup(eventID)
	if !ok {
		return nil
	}
	cams, err := m.store.ListCameras(ctx, eventID)
	if err != nil {
		return err
	}
	s.Sync(m.ctx, cams)
	return nil
}

// SetCameraStatus applies a manual status change. Setting a camera back to
// Online also clears the stream error that put it in Alert.
func (m *Monitor) SetCameraStatus(ctx context.Context, cameraID string, status models.CameraStatus) (*models.Camera, error) {
	cam, err := m.store.UpdateCameraStatus(ctx, cameraID, status)
	if err != nil {
		return nil, err
	}
	if s, ok := m.lookup(cam.EventID); ok {
		if status == models.CameraOnline {
			s.ClearError(cameraID)
		}
		s.SetStatus(cameraID, status)
	}
	return cam, nil
}

// Start turns analysis on for an event
func (m *Monitor) Start(ctx context.Context, eventID string) error {
	s, err := m.Sampler(ctx, eventID)
	if err != nil {
		return err
	}
	s.SetRunning(true)
	return nil
}

// Stop turns analysis off. In-flight results are discarded.
func (m *Monitor) Stop(eventID string) {
	if s, ok := m.lookup(eventID); ok {
		s.SetRunning(false)
	}
}

// Running reports whether analysis is on for an event
func (m *Monitor) Running(eventID string) bool {
	s, ok := m.lookup(eventID)
	return ok && s.Running()
}

// PushWebcamFrame stores the latest frame captured by the operator's webcam
func (m *Monitor) PushWebcamFrame(ctx context.Context, eventID string, jpeg []byte) error {
	s, err := m.Sampler(ctx, eventID)
	if err != nil {
		return err
	}
	s.Webcam().Push(jpeg)
	return nil
}

// SetWebcamPaused pauses the webcam; paused feeds are not analyzed
func (m *Monitor) SetWebcamPaused(ctx context.Context, eventID string, paused bool) error {
	s, err := m.Sampler(ctx, eventID)
	if err != nil {
		return err
	}
	s.Webcam().SetPaused(paused)
	return nil
}

// Reset deletes every persisted analysis record of the event and publishes
// the zeroed summary
func (m *Monitor) Reset(ctx context.Context, eventID string) error {
	if err := m.store.ResetAnalysis(ctx, eventID); err != nil {
		return err
	}
	if m.tracker != nil {
		m.tracker.Forget(eventID)
		if _, err := m.tracker.Recompute(ctx, eventID); err != nil {
			log.Printf("⚠️ Failed to refresh stats after reset: %v", err)
		}
	}
	log.Printf("🧹 Analysis data reset for event %s", eventID)
	return nil
}

// Status returns the sampler state of an event
func (m *Monitor) Status(eventID string) (sampler.Stats, bool) {
	s, ok := m.lookup(eventID)
	if !ok {
		return sampler.Stats{}, false
	}
	return s.Stats(), true
}

// RunningCount is the number of events with analysis on
func (m *Monitor) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.sampler.Running() {
			n++
		}
	}
	return n
}

// Close stops every sampler and releases its frame sources
func (m *Monitor) Close() {
	m.mu.Lock()
	events := m.events
	m.events = make(map[string]*monitoredEvent)
	m.mu.Unlock()

	for id, ev := range events {
		ev.cancel()
		ev.sampler.Close()
		ev.sampler.Wait()
		log.Printf("📡 Sampler stopped for event %s", id)
	}
}
