// Package sampler periodically captures frames from every registered camera
// of one event and hands them to a dispatcher, at most one call in flight
// per camera.
package sampler

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drishti/backend/models"
)

const (
	DefaultTick     = 100 * time.Millisecond
	DefaultInterval = 2 * time.Second
)

// Job is one captured frame on its way to analysis
type Job struct {
	CameraID   string
	Frame      []byte
	CapturedAt time.Time
	live       func() bool
}

// Live reports whether the sampler that produced the job is still running.
// Results of jobs that are no longer live are discarded.
func (j Job) Live() bool {
	if j.live == nil {
		return true
	}
	return j.live()
}

// Dispatcher analyzes one job. It runs on its own goroutine.
type Dispatcher func(ctx context.Context, job Job) error

// SourceFactory opens the frame source of a stored camera
type SourceFactory func(ctx context.Context, cam models.Camera) (Source, error)

// Config holds sampler timing
type Config struct {
	Tick     time.Duration
	Interval time.Duration
	MaxWidth int
}

type entry struct {
	cameraID     string
	streamURL    string
	source       Source
	lastAnalyzed time.Time
	inFlight     bool
	status       models.CameraStatus
	errMsg       string
	sourceErr    bool
}

// CameraState is the externally visible state of one entry
type CameraState struct {
	CameraID     string              `json:"cameraId"`
	Status       models.CameraStatus `json:"status"`
	InFlight     bool                `json:"inFlight"`
	LastAnalyzed *time.Time          `json:"lastAnalyzed,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Stats is a point-in-time view of the sampler
type Stats struct {
	Running    bool          `json:"running"`
	Cameras    []CameraState `json:"cameras"`
	Dispatched uint64        `json:"dispatched"`
	Skipped    uint64        `json:"skipped"`
	Errors     uint64        `json:"errors"`
}

// Sampler is the per-event frame scheduler
type Sampler struct {
	cfg      Config
	dispatch Dispatcher
	factory  SourceFactory

	// OnError receives dispatch errors; OnStatus receives camera status
	// changes caused by stream failures and recoveries.
	OnError  func(cameraID string, err error)
	OnStatus func(cameraID string, status models.CameraStatus, reason string)
	// OnCaptureError receives frames that could not be captured or encoded
	OnCaptureError func(cameraID string, err error)

	now func() time.Time

	mu         sync.Mutex
	entries    map[string]*entry
	running    bool
	generation uint64
	webcam     *PushSource

	wg         sync.WaitGroup
	dispatched atomic.Uint64
	skipped    atomic.Uint64
	errors     atomic.Uint64
}

// New creates a sampler with the webcam entry registered
func New(cfg Config, dispatch Dispatcher, factory SourceFactory) *Sampler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	webcam := NewPushSource()
	return &Sampler{
		cfg:      cfg,
		dispatch: dispatch,
		factory:  factory,
		now:      time.Now,
		webcam:   webcam,
		entries: map[string]*entry{
			models.WebcamID: {
				cameraID: models.WebcamID,
				source:   webcam,
				status:   models.CameraOnline,
			},
		},
	}
}

// SetClock replaces the time source
func (s *Sampler) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Webcam returns the push source of the local webcam
func (s *Sampler) Webcam() *PushSource {
	return s.webcam
}

// Sync makes the registered cameras follow the stored camera list.
// The webcam is never removed.
func (s *Sampler) Sync(ctx context.Context, cameras []models.Camera) {
	wanted := make(map[string]models.Camera, len(cameras))
	for _, cam := range cameras {
		if cam.ID == models.WebcamID {
			continue
		}
		wanted[cam.ID] = cam
	}

	var toClose []Source
	var toOpen []models.Camera

	s.mu.Lock()
	for id, e := range s.entries {
		if id == models.WebcamID {
			continue
		}
		cam, ok := wanted[id]
		if !ok {
			if e.source != nil {
				toClose = append(toClose, e.source)
			}
			delete(s.entries, id)
			log.Printf("📹 Camera %s removed from sampler", id)
			continue
		}
		if cam.StreamURL != e.streamURL || (e.source == nil && s.factory != nil) {
			// Replaced stream or failed open: start over with a fresh source
			if e.source != nil {
				toClose = append(toClose, e.source)
			}
			delete(s.entries, id)
			toOpen = append(toOpen, cam)
			continue
		}
		e.status = cam.Status
	}
	for id, cam := range wanted {
		if _, ok := s.entries[id]; !ok && !containsCamera(toOpen, id) {
			toOpen = append(toOpen, cam)
		}
	}
	s.mu.Unlock()

	for _, src := range toClose {
		src.Close()
	}

	for _, cam := range toOpen {
		e := &entry{
			cameraID:  cam.ID,
			streamURL: cam.StreamURL,
			status:    cam.Status,
		}
		if s.factory != nil {
			src, err := s.factory(ctx, cam)
			if err != nil {
				e.errMsg = err.Error()
				log.Printf("⚠️ No frame source for camera %s: %v", cam.ID, err)
			} else {
				e.source = src
			}
		}
		s.mu.Lock()
		s.entries[cam.ID] = e
		s.mu.Unlock()
		log.Printf("📹 Camera %s registered with sampler", cam.ID)
	}
}

func containsCamera(cams []models.Camera, id string) bool {
	for _, c := range cams {
		if c.ID == id {
			return true
		}
	}
	return false
}

// SetStatus records a status change made outside the sampler
func (s *Sampler) SetStatus(cameraID string, status models.CameraStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[cameraID]; ok {
		e.status = status
	}
}

// ClearError forgets the persistent error of a camera
func (s *Sampler) ClearError(cameraID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[cameraID]; ok {
		e.errMsg = ""
		e.sourceErr = false
	}
}

// SetRunning toggles analysis. Stopping invalidates in-flight jobs.
func (s *Sampler) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == running {
		return
	}
	s.running = running
	if !running {
		s.generation++
	}
	log.Printf("🔍 Analysis running=%v", running)
}

func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run drives the scheduler until ctx is cancelled
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

type statusChange struct {
	cameraID string
	status   models.CameraStatus
	reason   string
}

// Tick runs one scheduling pass over all cameras
func (s *Sampler) Tick(ctx context.Context) {
	var changes []statusChange

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	now := s.now()
	gen := s.generation

	for _, e := range s.entries {
		if e.source == nil {
			continue
		}

		if err := e.source.Err(); err != nil {
			if !e.sourceErr {
				e.sourceErr = true
				e.errMsg = err.Error()
				e.status = models.CameraAlert
				changes = append(changes, statusChange{e.cameraID, models.CameraAlert, err.Error()})
			}
			continue
		}
		if e.sourceErr {
			// Stream recovered
			e.sourceErr = false
			e.errMsg = ""
			e.status = models.CameraOnline
			changes = append(changes, statusChange{e.cameraID, models.CameraOnline, "stream recovered"})
		}

		if e.status == models.CameraAlert || e.errMsg != "" || e.inFlight || e.source.Paused() {
			continue
		}
		if now.Sub(e.lastAnalyzed) <= s.cfg.Interval {
			continue
		}
		if !e.source.Ready() {
			s.skipped.Add(1)
			continue
		}

		e.inFlight = true
		e.lastAnalyzed = now
		s.wg.Add(1)
		go s.run(ctx, e, gen, now)
	}
	s.mu.Unlock()

	if s.OnStatus != nil {
		for _, c := range changes {
			s.OnStatus(c.cameraID, c.status, c.reason)
		}
	}
}

func (s *Sampler) run(ctx context.Context, e *entry, gen uint64, now time.Time) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		e.inFlight = false
		s.mu.Unlock()
	}()

	frame, err := e.source.Snapshot()
	if err == nil {
		frame, err = Downscale(frame, s.cfg.MaxWidth)
	}
	if err != nil {
		s.skipped.Add(1)
		if s.OnCaptureError != nil {
			s.OnCaptureError(e.cameraID, err)
		}
		return
	}

	s.dispatched.Add(1)
	job := Job{
		CameraID:   e.cameraID,
		Frame:      frame,
		CapturedAt: now,
		live: func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.running && s.generation == gen
		},
	}
	if err := s.dispatch(ctx, job); err != nil {
		s.errors.Add(1)
		if s.OnError != nil {
			s.OnError(e.cameraID, err)
		} else {
			log.Printf("⚠️ Analysis of %s failed: %v", e.cameraID, err)
		}
	}
}

// Wait blocks until all dispatched jobs returned
func (s *Sampler) Wait() {
	s.wg.Wait()
}

// Close stops analysis and releases every frame source
func (s *Sampler) Close() {
	s.SetRunning(false)
	s.mu.Lock()
	sources := make([]Source, 0, len(s.entries))
	for _, e := range s.entries {
		if e.source != nil {
			sources = append(sources, e.source)
		}
	}
	s.mu.Unlock()
	for _, src := range sources {
		src.Close()
	}
}

// Stats returns the scheduler state, cameras sorted by id
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Running: s.running,
		Cameras: make([]CameraState, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		cs := CameraState{
			CameraID: e.cameraID,
			Status:   e.status,
			InFlight: e.inFlight,
			Error:    e.errMsg,
		}
		if !e.lastAnalyzed.IsZero() {
			t := e.lastAnalyzed
			cs.LastAnalyzed = &t
		}
		st.Cameras = append(st.Cameras, cs)
	}
	s.mu.Unlock()

	sort.Slice(st.Cameras, func(i, j int) bool { return st.Cameras[i].CameraID < st.Cameras[j].CameraID })
	st.Dispatched = s.dispatched.Load()
	st.Skipped = s.skipped.Load()
	st.Errors = s.errors.Load()
	return st
}
