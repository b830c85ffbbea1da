package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drishti/backend/database"
	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
)

func TestCompute(t *testing.T) {
	results := map[string]models.FrameAnalysis{
		models.WebcamID: {CrowdCount: 4},
		"cam-a":         {CrowdCount: 10},
		"cam-b":         {CrowdCount: 0},
	}
	cameras := []models.Camera{
		{ID: "cam-a", Status: models.CameraOnline},
		{ID: "cam-b", Status: models.CameraAlert},
		{ID: "cam-c", Status: models.CameraOffline},
	}
	incidents := []models.Incident{
		{Status: models.StatusActive},
		{Status: models.StatusActive},
		{Status: models.StatusResolved},
	}

	got := Compute(results, cameras, incidents)
	if got.TotalCrowd != 14 {
		t.Errorf("total crowd = %d, want 14", got.TotalCrowd)
	}
	if got.OnlineCameras != 2 || got.TotalCameras != 4 {
		t.Errorf("cameras = %d/%d, want 2/4", got.OnlineCameras, got.TotalCameras)
	}
	if got.ActiveIncidents != 2 || got.TotalIncidents != 3 {
		t.Errorf("incidents = %d/%d", got.ActiveIncidents, got.TotalIncidents)
	}
}

func TestComputeEmpty(t *testing.T) {
	got := Compute(nil, nil, nil)
	if got.TotalCrowd != 0 || got.OnlineCameras != 1 || got.TotalCameras != 1 {
		t.Fatalf("got %+v", got)
	}
}

type publisher struct{ subjects []string }

func (p *publisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

func TestTrackerLogsChangesOnly(t *testing.T) {
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st := store.New(db, nil)
	pub := &publisher{}
	tr := NewTracker(st, pub)
	ctx := context.Background()

	save := func(cam string, n int) {
		t.Helper()
		if err := st.SaveAnalysisResult(ctx, "ev1", cam, &models.FrameAnalysis{CrowdCount: n}); err != nil {
			t.Fatalf("save: %v", err)
		}
		if _, err := tr.Refresh(ctx, "ev1"); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}

	save(models.WebcamID, 0) // zero is never logged
	save(models.WebcamID, 3)
	save("cam-a", 0) // total unchanged
	save("cam-a", 2)
	save("cam-a", 2)

	history, err := st.CrowdHistory(ctx, "ev1", 15)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Count != 3 || history[1].Count != 5 {
		t.Fatalf("history = %+v", history)
	}

	summary, ok := tr.Latest("ev1")
	if !ok || summary.TotalCrowd != 5 {
		t.Fatalf("latest = %+v", summary)
	}
	if len(pub.subjects) != 5 || pub.subjects[0] != store.StatsSubject("ev1") {
		t.Fatalf("published = %v", pub.subjects)
	}
	if _, ok := tr.Snapshot(store.StatsSubject("ev1")); !ok {
		t.Fatal("expected stats snapshot")
	}

	// A fresh tracker seeds from the stored history and does not repeat it
	tr2 := NewTracker(st, nil)
	if _, err := tr2.Refresh(ctx, "ev1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	history, _ = st.CrowdHistory(ctx, "ev1", 15)
	if len(history) != 2 {
		t.Fatalf("seeded tracker re-logged: %+v", history)
	}
}

// stallingSource holds every history lookup until all concurrent callers
// have arrived or a short wait expires.
type stallingSource struct {
	total   int
	callers int32

	arrived atomic.Int32
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	logged []int
}

func (s *stallingSource) ListAnalysisResults(ctx context.Context, eventID string) (map[string]models.FrameAnalysis, error) {
	return map[string]models.FrameAnalysis{models.WebcamID: {CrowdCount: s.total}}, nil
}

func (s *stallingSource) ListCameras(ctx context.Context, eventID string) ([]models.Camera, error) {
	return nil, nil
}

func (s *stallingSource) ListIncidents(ctx context.Context, eventID string, q store.IncidentQuery) ([]models.Incident, error) {
	return nil, nil
}

func (s *stallingSource) LatestCrowdCount(ctx context.Context, eventID string) (int, bool, error) {
	if s.arrived.Add(1) == s.callers {
		s.once.Do(func() { close(s.release) })
	}
	select {
	case <-s.release:
	case <-time.After(50 * time.Millisecond):
	}
	return 0, false, nil
}

func (s *stallingSource) LogCrowdCount(ctx context.Context, eventID string, count int) error {
	s.mu.Lock()
	s.logged = append(s.logged, count)
	s.mu.Unlock()
	return nil
}

func TestTrackerConcurrentRefreshLogsOnce(t *testing.T) {
	const workers = 8
	src := &stallingSource{total: 7, callers: workers, release: make(chan struct{})}
	tr := NewTracker(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.Refresh(context.Background(), "ev1"); err != nil {
				t.Errorf("refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(src.logged) != 1 || src.logged[0] != 7 {
		t.Fatalf("logged = %v, want [7]", src.logged)
	}
	if n := src.arrived.Load(); n != 1 {
		t.Fatalf("history looked up %d times, want 1", n)
	}
}

func TestTrackerRecomputeSkipsHistory(t *testing.T) {
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st := store.New(db, nil)
	pub := &publisher{}
	tr := NewTracker(st, pub)
	ctx := context.Background()

	if err := st.SaveAnalysisResult(ctx, "ev1", models.WebcamID, &models.FrameAnalysis{CrowdCount: 6}); err != nil {
		t.Fatalf("save: %v", err)
	}
	summary, err := tr.Recompute(ctx, "ev1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if summary.TotalCrowd != 6 {
		t.Fatalf("summary = %+v", summary)
	}
	if history, _ := st.CrowdHistory(ctx, "ev1", 15); len(history) != 0 {
		t.Fatalf("recompute logged history: %+v", history)
	}
	if len(pub.subjects) != 1 {
		t.Fatalf("published = %v", pub.subjects)
	}

	// The next analysis cycle still logs the unchanged total once
	if _, err := tr.Refresh(ctx, "ev1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if history, _ := st.CrowdHistory(ctx, "ev1", 15); len(history) != 1 || history[0].Count != 6 {
		t.Fatalf("history = %+v", history)
	}
}
