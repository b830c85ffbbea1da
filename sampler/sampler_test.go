package sampler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/drishti/backend/models"
)

type fakeSource struct {
	mu     sync.Mutex
	ready  bool
	paused bool
	err    error
	closed bool
}

func (f *fakeSource) Ready() bool  { f.mu.Lock(); defer f.mu.Unlock(); return f.ready }
func (f *fakeSource) Paused() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.paused }
func (f *fakeSource) Err() error   { f.mu.Lock(); defer f.mu.Unlock(); return f.err }
func (f *fakeSource) Snapshot() ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}
func (f *fakeSource) Close() error { f.mu.Lock(); defer f.mu.Unlock(); f.closed = true; return nil }

func (f *fakeSource) setErr(err error) { f.mu.Lock(); f.err = err; f.mu.Unlock() }

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	jobs  []Job
	block chan struct{}
}

func (r *recorder) dispatch(ctx context.Context, job Job) error {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[job.CameraID]++
	r.jobs = append(r.jobs, job)
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	return nil
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.t }
func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestSampler(t *testing.T, rec *recorder, sources map[string]*fakeSource) (*Sampler, *clock) {
	t.Helper()
	factory := func(ctx context.Context, cam models.Camera) (Source, error) {
		src, ok := sources[cam.ID]
		if !ok {
			return nil, errors.New("no stream")
		}
		return src, nil
	}
	s := New(Config{Tick: time.Millisecond, Interval: 2 * time.Second}, rec.dispatch, factory)
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s.SetClock(c.now)
	return s, c
}

func cam(id string, status models.CameraStatus) models.Camera {
	return models.Camera{ID: id, Status: status, StreamURL: "rtsp://" + id}
}

func TestNoDispatchWhileStopped(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{ready: true}
	s, c := newTestSampler(t, rec, map[string]*fakeSource{"cam-1": src})
	s.Sync(context.Background(), []models.Camera{cam("cam-1", models.CameraOnline)})

	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
		c.advance(3 * time.Second)
	}
	s.Wait()
	if n := rec.count("cam-1"); n != 0 {
		t.Fatalf("dispatched %d times while stopped", n)
	}
}

func TestThrottlePerCamera(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{ready: true}
	s, c := newTestSampler(t, rec, map[string]*fakeSource{"cam-1": src})
	s.Sync(context.Background(), []models.Camera{cam("cam-1", models.CameraOnline)})
	s.SetRunning(true)
	ctx := context.Background()

	step := func(d time.Duration) {
		c.advance(d)
		s.Tick(ctx)
		s.Wait()
	}

	step(0)
	step(time.Second)
	step(time.Second) // exactly the interval: not yet due
	if n := rec.count("cam-1"); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	step(time.Millisecond)
	if n := rec.count("cam-1"); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestNoOverlappingCallsPerCamera(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	src := &fakeSource{ready: true}
	s, c := newTestSampler(t, rec, map[string]*fakeSource{"cam-1": src})
	s.Sync(context.Background(), []models.Camera{cam("cam-1", models.CameraOnline)})
	s.SetRunning(true)
	ctx := context.Background()

	s.Tick(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for rec.count("cam-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		c.advance(5 * time.Second)
		s.Tick(ctx)
	}
	if n := rec.count("cam-1"); n != 1 {
		t.Fatalf("calls while in flight = %d, want 1", n)
	}

	close(rec.block)
	s.Wait()

	c.advance(5 * time.Second)
	s.Tick(ctx)
	s.Wait()
	if n := rec.count("cam-1"); n != 2 {
		t.Fatalf("calls after completion = %d, want 2", n)
	}
}

func TestAlertCameraExcludedUntilOnline(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{ready: true}
	s, c := newTestSampler(t, rec, map[string]*fakeSource{"cam-1": src})
	s.Sync(context.Background(), []models.Camera{cam("cam-1", models.CameraAlert)})
	s.SetRunning(true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Tick(ctx)
		c.advance(3 * time.Second)
	}
	s.Wait()
	if n := rec.count("cam-1"); n != 0 {
		t.Fatalf("alert camera dispatched %d times", n)
	}

	s.SetStatus("cam-1", models.CameraOnline)
	s.Tick(ctx)
	s.Wait()
	if n := rec.count("cam-1"); n != 1 {
		t.Fatalf("online camera calls = %d, want 1", n)
	}
}

func TestStreamErrorMarksAlertUntilRecovery(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{ready: true, err: errors.New("connection refused")}
	s, c := newTestSampler(t, rec, map[string]*fakeSource{"cam-1": src})

	var mu sync.Mutex
	var changes []models.CameraStatus
	s.OnStatus = func(id string, status models.CameraStatus, reason string) {
		mu.Lock()
		changes = append(changes, status)
		mu.Unlock()
	}

	s.Sync(context.Background(), []models.Camera{cam("cam-1", models.CameraOnline)})
	s.SetRunning(true)
	ctx := context.Background()

	s.Tick(ctx)
	c.advance(3 * time.Second)
	s.Tick(ctx)
	s.Wait()
	if n := rec.count("cam-1"); n != 0 {
		t.Fatalf("failing stream dispatched %d times", n)
	}
	if st := s.Stats(); st.Cameras[0].Error != "connection refused" {
		t.Fatalf("error not kept: %+v", st.Cameras)
	}

	src.setErr(nil)
	s.Tick(ctx)
	s.Wait()
	if n := rec.count("cam-1"); n != 1 {
		t.Fatalf("recovered stream calls = %d, want 1", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || changes[0] != models.CameraAlert || changes[1] != models.CameraOnline {
		t.Fatalf("status changes = %v", changes)
	}
}

func TestStoppedJobsAreNotLive(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	s, _ := newTestSampler(t, rec, nil)
	s.Webcam().Push([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	s.SetRunning(true)
	s.Tick(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for rec.count(models.WebcamID) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	rec.mu.Lock()
	job := rec.jobs[0]
	rec.mu.Unlock()

	if !job.Live() {
		t.Fatal("job should be live while running")
	}
	s.SetRunning(false)
	s.SetRunning(true)
	if job.Live() {
		t.Fatal("job from a previous run must not be live")
	}
	close(rec.block)
	s.Wait()
}

func TestPausedWebcamIsSkipped(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSampler(t, rec, nil)
	s.Webcam().Push([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	s.Webcam().SetPaused(true)
	s.SetRunning(true)
	s.Tick(context.Background())
	s.Wait()
	if n := rec.count(models.WebcamID); n != 0 {
		t.Fatalf("paused webcam dispatched %d times", n)
	}
}

func TestSyncFollowsCameraList(t *testing.T) {
	rec := &recorder{}
	a := &fakeSource{ready: true}
	b := &fakeSource{ready: true}
	s, _ := newTestSampler(t, rec, map[string]*fakeSource{"cam-a": a, "cam-b": b})
	ctx := context.Background()

	s.Sync(ctx, []models.Camera{cam("cam-a", models.CameraOnline), cam("cam-b", models.CameraOnline)})
	if n := len(s.Stats().Cameras); n != 3 {
		t.Fatalf("cameras = %d, want 3 including webcam", n)
	}

	s.Sync(ctx, []models.Camera{cam("cam-b", models.CameraOffline)})
	st := s.Stats()
	if len(st.Cameras) != 2 {
		t.Fatalf("cameras after removal = %+v", st.Cameras)
	}
	if !a.closed {
		t.Fatal("removed camera source should be closed")
	}
	if st.Cameras[0].CameraID != "cam-b" || st.Cameras[0].Status != models.CameraOffline {
		t.Fatalf("status not synced: %+v", st.Cameras[0])
	}
	if st.Cameras[1].CameraID != models.WebcamID {
		t.Fatalf("webcam must stay registered: %+v", st.Cameras)
	}
}

func TestDownscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		img.Set(x, 100, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}

	small, err := Downscale(buf.Bytes(), 100)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(small))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Fatalf("size = %dx%d", cfg.Width, cfg.Height)
	}

	same, err := Downscale(buf.Bytes(), 1280)
	if err != nil || !bytes.Equal(same, buf.Bytes()) {
		t.Fatal("narrow frames should pass through")
	}
}
