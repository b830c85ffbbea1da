package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drishti/backend/database"
	"github.com/drishti/backend/models"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][][]byte)
	}
	p.msgs[subject] = append(p.msgs[subject], data)
	return nil
}

func (p *recordingPublisher) last(t *testing.T, subject string, out interface{}) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.msgs[subject]
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %s", subject)
	}
	if err := json.Unmarshal(msgs[len(msgs)-1], out); err != nil {
		t.Fatalf("decode %s: %v", subject, err)
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *recordingPublisher, *fakeClock) {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	pub := &recordingPublisher{}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := New(db, pub)
	s.SetClock(clock.now)
	return s, pub, clock
}

func TestSaveAnalysisResultUpserts(t *testing.T) {
	s, pub, _ := newTestStore(t)
	ctx := context.Background()

	first := &models.FrameAnalysis{CrowdCount: 3, PeoplePositions: []models.Position{{X: 0.1, Y: 0.2}}}
	if err := s.SaveAnalysisResult(ctx, "ev1", "cam-a", first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := &models.FrameAnalysis{CrowdCount: 7}
	if err := s.SaveAnalysisResult(ctx, "ev1", "cam-a", second); err != nil {
		t.Fatalf("save again: %v", err)
	}
	if err := s.SaveAnalysisResult(ctx, "ev1", "cam-b", nil); err != nil {
		t.Fatalf("save nil: %v", err)
	}

	results, err := s.ListAnalysisResults(ctx, "ev1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one row per camera, got %d", len(results))
	}
	if results["cam-a"].CrowdCount != 7 || len(results["cam-a"].PeoplePositions) != 0 {
		t.Fatalf("last write should win, got %+v", results["cam-a"])
	}
	zero := results["cam-b"]
	if zero.CrowdCount != 0 || zero.PeoplePositions == nil || zero.NewAlerts == nil {
		t.Fatalf("nil result should store the zero result, got %+v", zero)
	}

	var pushed map[string]models.FrameAnalysis
	pub.last(t, AnalysisSubject("ev1"), &pushed)
	if len(pushed) != 2 {
		t.Fatalf("scope update should carry every camera, got %d", len(pushed))
	}
}

func TestUpdateDetectionPointsPrunesOldPoints(t *testing.T) {
	s, pub, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateDetectionPoints(ctx, "ev1", "cam-a", []models.Position{{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.2}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDetectionPoints(ctx, "ev1", "cam-b", []models.Position{{X: 0.9, Y: 0.9}}); err != nil {
		t.Fatal(err)
	}

	clock.advance(6 * time.Second)
	if err := s.UpdateDetectionPoints(ctx, "ev1", "cam-a", []models.Position{{X: 0.3, Y: 0.3}}); err != nil {
		t.Fatal(err)
	}
	points, _ := s.ListDetectionPoints(ctx, "ev1", "cam-a")
	if len(points) != 3 {
		t.Fatalf("points within the window must be kept, got %d", len(points))
	}

	clock.advance(6 * time.Second)
	if err := s.UpdateDetectionPoints(ctx, "ev1", "cam-a", []models.Position{{X: 0.4, Y: 0.4}}); err != nil {
		t.Fatal(err)
	}
	points, _ = s.ListDetectionPoints(ctx, "ev1", "cam-a")
	if len(points) != 2 {
		t.Fatalf("expected the 12s old points pruned, got %d", len(points))
	}
	cutoff := clock.now().Add(-DetectionRetention)
	for _, p := range points {
		if p.Timestamp.Before(cutoff) {
			t.Fatalf("point older than retention survived: %v", p.Timestamp)
		}
	}

	other, _ := s.ListDetectionPoints(ctx, "ev1", "cam-b")
	if len(other) != 1 {
		t.Fatalf("pruning one camera must not touch another, got %d", len(other))
	}

	var pushed []models.CrowdDetection
	pub.last(t, DetectionsSubject("ev1", "cam-a"), &pushed)
	if len(pushed) != 2 {
		t.Fatalf("published point set = %d", len(pushed))
	}
}

func TestResetAnalysisClearsScope(t *testing.T) {
	s, pub, _ := newTestStore(t)
	ctx := context.Background()

	for _, cam := range []string{"cam-a", "cam-b", models.WebcamID} {
		if err := s.SaveAnalysisResult(ctx, "ev1", cam, &models.FrameAnalysis{CrowdCount: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateDetectionPoints(ctx, "ev1", "cam-a", make([]models.Position, 5)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		id, err := s.AddIncident(ctx, &models.Incident{EventID: "ev1", Type: models.IncidentTheft, Severity: models.SeverityHigh})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.AddAlert(ctx, &models.Alert{ID: "alert-" + id, EventID: "ev1", IncidentID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.LogCrowdCount(ctx, "ev1", 3); err != nil {
		t.Fatal(err)
	}
	// another scope must survive
	if err := s.SaveAnalysisResult(ctx, "ev2", "cam-a", &models.FrameAnalysis{CrowdCount: 9}); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetAnalysis(ctx, "ev1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	results, _ := s.ListAnalysisResults(ctx, "ev1")
	points, _ := s.ListDetectionPoints(ctx, "ev1", "cam-a")
	incidents, _ := s.ListIncidents(ctx, "ev1", IncidentQuery{})
	alerts, _ := s.ListAlerts(ctx, "ev1", 0)
	history, _ := s.CrowdHistory(ctx, "ev1", 60)
	if len(results)+len(points)+len(incidents)+len(alerts)+len(history) != 0 {
		t.Fatalf("reset left data: results=%d points=%d incidents=%d alerts=%d history=%d",
			len(results), len(points), len(incidents), len(alerts), len(history))
	}
	kept, _ := s.ListAnalysisResults(ctx, "ev2")
	if kept["cam-a"].CrowdCount != 9 {
		t.Fatal("reset touched another event")
	}

	var live []models.CrowdDetection
	pub.last(t, DetectionsSubject("ev1", "cam-a"), &live)
	if live == nil || len(live) != 0 {
		t.Fatalf("detections after reset = %+v, want empty list", live)
	}
	if n := len(pub.msgs[DetectionsSubject("ev1", "cam-b")]); n != 0 {
		t.Fatalf("cam-b had no detections but got %d messages", n)
	}
}

func TestIncidentLifecycle(t *testing.T) {
	s, pub, clock := newTestStore(t)
	ctx := context.Background()

	first, err := s.AddIncident(ctx, &models.Incident{EventID: "ev1", Type: models.IncidentCrowdSurge, Severity: models.SeverityHigh})
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Second)
	second, err := s.AddIncident(ctx, &models.Incident{EventID: "ev1", Type: models.IncidentTheft, Severity: models.SeverityHigh})
	if err != nil {
		t.Fatal(err)
	}

	list, _ := s.ListIncidents(ctx, "ev1", IncidentQuery{})
	if len(list) != 2 || list[0].ID != second || list[0].Status != models.StatusActive {
		t.Fatalf("expected newest first with Active status, got %+v", list)
	}
	limited, _ := s.ListIncidents(ctx, "ev1", IncidentQuery{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}

	if _, err := s.UpdateIncidentStatus(ctx, first, models.StatusUnderInvestigation); err != nil {
		t.Fatalf("Active -> Under Investigation: %v", err)
	}
	if _, err := s.UpdateIncidentStatus(ctx, first, models.StatusResolved); err != nil {
		t.Fatalf("Under Investigation -> Resolved: %v", err)
	}
	reopened, err := s.UpdateIncidentStatus(ctx, first, models.StatusActive)
	if err != nil || reopened.Status != models.StatusActive {
		t.Fatalf("Resolved -> Active: %+v %v", reopened, err)
	}
	if _, err := s.UpdateIncidentStatus(ctx, first, models.StatusResolved); err != nil {
		t.Fatalf("Active -> Resolved: %v", err)
	}
	if _, err := s.UpdateIncidentStatus(ctx, "missing", models.StatusResolved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing incident: %v", err)
	}

	active, _ := s.ListIncidents(ctx, "ev1", IncidentQuery{Status: models.StatusActive})
	if len(active) != 1 || active[0].ID != second {
		t.Fatalf("status filter = %+v", active)
	}

	var pushed []models.Incident
	pub.last(t, IncidentsSubject("ev1"), &pushed)
	if len(pushed) != 2 {
		t.Fatalf("published incidents = %d", len(pushed))
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	id, _ := s.AddIncident(ctx, &models.Incident{EventID: "ev1", Type: models.IncidentEmergency, Severity: models.SeverityCritical})
	if err := s.AddAlert(ctx, &models.Alert{ID: "alert-1", EventID: "ev1", IncidentID: id, Message: "m"}); err != nil {
		t.Fatal(err)
	}
	alert, err := s.AcknowledgeAlert(ctx, "alert-1", "officer@example.com")
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !alert.Acknowledged || alert.AcknowledgedBy == nil {
		t.Fatalf("ack result = %+v", alert)
	}
	alerts, _ := s.ListAlerts(ctx, "ev1", 0)
	if !alerts[0].Acknowledged || *alerts[0].AcknowledgedBy != "officer@example.com" {
		t.Fatalf("stored alert = %+v", alerts[0])
	}
}

func TestCrowdHistoryWindow(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if _, ok, _ := s.LatestCrowdCount(ctx, "ev1"); ok {
		t.Fatal("no history expected yet")
	}
	s.LogCrowdCount(ctx, "ev1", 4)
	clock.advance(20 * time.Minute)
	s.LogCrowdCount(ctx, "ev1", 5)
	clock.advance(time.Minute)
	s.LogCrowdCount(ctx, "ev1", 6)

	history, err := s.CrowdHistory(ctx, "ev1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Count != 5 || history[1].Count != 6 {
		t.Fatalf("default 15 minute window, ascending: %+v", history)
	}
	latest, ok, _ := s.LatestCrowdCount(ctx, "ev1")
	if !ok || latest != 6 {
		t.Fatalf("latest = %d, %v", latest, ok)
	}
}

func TestCamerasAndIoTStatus(t *testing.T) {
	s, pub, _ := newTestStore(t)
	ctx := context.Background()

	cam := &models.Camera{EventID: "ev1", Name: "Gate 1", Location: "North"}
	if err := s.AddCamera(ctx, cam); err != nil {
		t.Fatal(err)
	}
	if cam.ID == "" || cam.Status != models.CameraOnline {
		t.Fatalf("camera defaults = %+v", cam)
	}
	if _, err := s.UpdateCameraStatus(ctx, cam.ID, models.CameraAlert); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateCameraStatus(ctx, cam.ID, "Broken"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("invalid status: %v", err)
	}
	var cams []models.Camera
	pub.last(t, CamerasSubject("ev1"), &cams)
	if len(cams) != 1 || cams[0].Status != models.CameraAlert {
		t.Fatalf("published cameras = %+v", cams)
	}

	status, err := s.GetIoTStatus(ctx, models.GlobalIoTScope, "")
	if err != nil || status != models.EmergencyNone {
		t.Fatalf("default status = %q, %v", status, err)
	}
	s.SetIoTStatus(ctx, models.GlobalIoTScope, "", models.EmergencyFire)
	s.SetIoTStatus(ctx, models.GlobalIoTScope, "", models.EmergencyPolice)
	status, _ = s.GetIoTStatus(ctx, models.GlobalIoTScope, "")
	if status != models.EmergencyPolice {
		t.Fatalf("status = %q", status)
	}

	if err := s.DeleteCamera(ctx, cam.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCamera(ctx, cam.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted camera lookup: %v", err)
	}
}

func TestUsersAndCommanders(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Name: "Zed", Email: "Zed@Example.com"}
	if err := s.AddUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if u.Role != models.RoleOperator || u.Avatar != models.AvatarURL("zed@example.com") {
		t.Fatalf("user defaults = %+v", u)
	}
	if err := s.AddUser(ctx, &models.User{Name: "Again", Email: "zed@example.com"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate email: %v", err)
	}
	s.AddUser(ctx, &models.User{Name: "Amy", Email: "amy@example.com", Role: models.RoleAdmin})
	users, _ := s.ListUsers(ctx)
	if len(users) != 2 || users[0].Name != "Amy" {
		t.Fatalf("users ordered by name: %+v", users)
	}

	c := &models.Commander{EventID: "ev1", Name: "Rao", ContactNumber: "100", AssignedCameraID: "cam-1"}
	if err := s.AddCommander(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, err := s.CommanderForCamera(ctx, "ev1", "cam-1")
	if err != nil || got.Name != "Rao" {
		t.Fatalf("commander for camera = %+v, %v", got, err)
	}
	if err := s.DeleteCommander(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CommanderForCamera(ctx, "ev1", "cam-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
}

func TestSubjectTokens(t *testing.T) {
	if got := DetectionsSubject("ev.1", "cam a"); got != "drishti.ev_1.detections.cam_a" {
		t.Fatalf("subject = %s", got)
	}
}

func TestSnapshotMatchesPublishedState(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAnalysisResult(ctx, "ev1", "cam-a", &models.FrameAnalysis{CrowdCount: 4}); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, ok := s.Snapshot(AnalysisSubject("ev1"))
	if !ok {
		t.Fatal("expected analysis snapshot")
	}
	var results map[string]models.FrameAnalysis
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if results["cam-a"].CrowdCount != 4 {
		t.Fatalf("snapshot = %s", data)
	}

	data, ok = s.Snapshot(IncidentsSubject("ev1"))
	if !ok || string(data) != "[]" {
		t.Fatalf("empty incidents snapshot = %s (%v)", data, ok)
	}

	if _, ok := s.Snapshot(StatsSubject("ev1")); ok {
		t.Fatal("stats are not served from the store")
	}
	if _, ok := s.Snapshot("other.ev1.analysis"); ok {
		t.Fatal("foreign subject should have no snapshot")
	}

	data, ok = s.Snapshot(IoTSubject(models.GlobalIoTScope))
	if !ok {
		t.Fatal("expected iot snapshot")
	}
	var row models.IoTStatus
	json.Unmarshal(data, &row)
	if row.Status != models.EmergencyNone {
		t.Fatalf("iot snapshot = %s", data)
	}
}
