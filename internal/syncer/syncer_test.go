package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poer2023/uptime-sync/internal/config"
	"github.com/poer2023/uptime-sync/internal/kuma"
	"github.com/poer2023/uptime-sync/internal/models"
)

type fakeSource struct {
	healthy  bool
	monitors []kuma.Monitor
	// heartbeats keyed by upstream monitor id
	heartbeats map[string][]kuma.Heartbeat
	// fetchErr marks monitors whose heartbeat fetch fails
	fetchErr map[string]bool
}

func (f *fakeSource) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeSource) ListMonitors(ctx context.Context) ([]kuma.Monitor, error) {
	return f.monitors, nil
}

func (f *fakeSource) ListHeartbeats(ctx context.Context, kumaID string, limit int) ([]kuma.Heartbeat, error) {
	if f.fetchErr[kumaID] {
		return nil, errors.New("upstream exploded")
	}
	beats := f.heartbeats[kumaID]
	if limit < len(beats) {
		beats = beats[:limit]
	}
	return beats, nil
}

// fakeStore keeps monitors keyed by kuma_id and heartbeats keyed by
// (monitor, timestamp), mimicking the real unique constraints.
type fakeStore struct {
	mu sync.Mutex

	monitors   map[string]*models.Monitor
	nextID     int
	heartbeats map[string]models.Heartbeat

	upsertErr map[string]bool
	insertErr bool

	deleteCutoff time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		monitors:   make(map[string]*models.Monitor),
		heartbeats: make(map[string]models.Heartbeat),
		upsertErr:  make(map[string]bool),
	}
}

func (f *fakeStore) UpsertMonitor(ctx context.Context, m *models.Monitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr[m.KumaID] {
		return errors.New("upsert rejected")
	}
	if existing, ok := f.monitors[m.KumaID]; ok {
		m.ID = existing.ID
		f.monitors[m.KumaID] = m
		return nil
	}
	f.nextID++
	m.ID = f.nextID
	f.monitors[m.KumaID] = m
	return nil
}

func (f *fakeStore) DeactivateMonitorsExcept(ctx context.Context, kumaIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keep := make(map[string]bool, len(kumaIDs))
	for _, id := range kumaIDs {
		keep[id] = true
	}

	var n int64
	for id, m := range f.monitors {
		if m.Active && !keep[id] {
			m.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) InsertHeartbeat(ctx context.Context, hb *models.Heartbeat) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr {
		return false, errors.New("insert rejected")
	}
	key := fmt.Sprintf("%d@%d", hb.MonitorID, hb.Time.UnixNano())
	if _, exists := f.heartbeats[key]; exists {
		return false, nil
	}
	f.heartbeats[key] = *hb
	return true, nil
}

func (f *fakeStore) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCutoff = cutoff
	var n int64
	for key, hb := range f.heartbeats {
		if hb.Time.Before(cutoff) {
			delete(f.heartbeats, key)
			n++
		}
	}
	return n, nil
}

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		HeartbeatLimit: 100,
		RetentionDays:  90,
		Workers:        4,
	}
}

func upstreamMonitor(id string) kuma.Monitor {
	return kuma.Monitor{ID: id, Name: "monitor-" + id, Type: "HTTP", URL: "https://x", Interval: 60, Active: true}
}

func beatAt(ts time.Time, status int) kuma.Heartbeat {
	ping := 120
	return kuma.Heartbeat{Status: status, Time: ts, Ping: &ping}
}

func TestRun_HealthGateAborts(t *testing.T) {
	st := newFakeStore()
	job := NewJob(&fakeSource{healthy: false}, st, testConfig())

	_, err := job.Run(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if len(st.monitors) != 0 || len(st.heartbeats) != 0 {
		t.Error("no writes should happen when the health gate fails")
	}
}

func TestRun_StoresMonitorsAndHeartbeats(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		healthy:  true,
		monitors: []kuma.Monitor{upstreamMonitor("m1"), upstreamMonitor("m2")},
		heartbeats: map[string][]kuma.Heartbeat{
			"m1": {beatAt(now.Add(-time.Minute), models.StatusUp), beatAt(now.Add(-2*time.Minute), models.StatusUp)},
			"m2": {beatAt(now.Add(-time.Minute), models.StatusDown)},
		},
	}
	st := newFakeStore()
	job := NewJob(src, st, testConfig())
	job.now = func() time.Time { return now }

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.MonitorsTotal != 2 || summary.MonitorsSynced != 2 || summary.MonitorsFailed != 0 {
		t.Errorf("monitor counts = %d/%d/%d, want 2/2/0",
			summary.MonitorsTotal, summary.MonitorsSynced, summary.MonitorsFailed)
	}
	if summary.HeartbeatsStored != 3 {
		t.Errorf("heartbeats stored = %d, want 3", summary.HeartbeatsStored)
	}
	if summary.HeartbeatsErrors != 0 {
		t.Errorf("heartbeat errors = %d, want 0", summary.HeartbeatsErrors)
	}
	if len(st.heartbeats) != 3 {
		t.Errorf("store holds %d heartbeats, want 3", len(st.heartbeats))
	}
}

func TestRun_Idempotent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		healthy:  true,
		monitors: []kuma.Monitor{upstreamMonitor("m1")},
		heartbeats: map[string][]kuma.Heartbeat{
			"m1": {beatAt(now.Add(-time.Minute), models.StatusUp)},
		},
	}
	st := newFakeStore()
	job := NewJob(src, st, testConfig())
	job.now = func() time.Time { return now }

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(st.monitors) != 1 {
		t.Errorf("monitors = %d, want 1 after two runs", len(st.monitors))
	}
	if len(st.heartbeats) != 1 {
		t.Errorf("heartbeats = %d, want 1 after two runs (duplicates skipped)", len(st.heartbeats))
	}
	// The duplicate is skipped silently: neither stored nor an error.
	if second.HeartbeatsStored != 0 {
		t.Errorf("second run stored = %d, want 0", second.HeartbeatsStored)
	}
	if second.HeartbeatsErrors != 0 {
		t.Errorf("second run errors = %d, want 0", second.HeartbeatsErrors)
	}
}

func TestRun_PartialFailureContainment(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		healthy:  true,
		monitors: []kuma.Monitor{upstreamMonitor("a"), upstreamMonitor("b"), upstreamMonitor("c")},
		heartbeats: map[string][]kuma.Heartbeat{
			"b": {beatAt(now.Add(-time.Minute), models.StatusUp)},
			"c": {beatAt(now.Add(-time.Minute), models.StatusUp)},
		},
		fetchErr: map[string]bool{"a": true},
	}
	st := newFakeStore()
	job := NewJob(src, st, testConfig())
	job.now = func() time.Time { return now }

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run should succeed despite monitor a failing: %v", err)
	}

	if summary.HeartbeatsStored != 2 {
		t.Errorf("stored = %d, want 2 (b and c unaffected by a)", summary.HeartbeatsStored)
	}
	if summary.HeartbeatsErrors != 1 {
		t.Errorf("errors = %d, want 1 (a's fetch failure)", summary.HeartbeatsErrors)
	}
}

func TestRun_UpsertFailureDoesNotBlockOthers(t *testing.T) {
	src := &fakeSource{
		healthy:    true,
		monitors:   []kuma.Monitor{upstreamMonitor("good"), upstreamMonitor("bad")},
		heartbeats: map[string][]kuma.Heartbeat{},
	}
	st := newFakeStore()
	st.upsertErr["bad"] = true
	job := NewJob(src, st, testConfig())

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.MonitorsSynced != 1 || summary.MonitorsFailed != 1 {
		t.Errorf("synced/failed = %d/%d, want 1/1", summary.MonitorsSynced, summary.MonitorsFailed)
	}
}

func TestRun_DeactivatesVanishedMonitors(t *testing.T) {
	st := newFakeStore()
	st.monitors["gone"] = &models.Monitor{ID: 99, KumaID: "gone", Active: true}
	st.nextID = 99

	src := &fakeSource{
		healthy:    true,
		monitors:   []kuma.Monitor{upstreamMonitor("m1")},
		heartbeats: map[string][]kuma.Heartbeat{},
	}
	job := NewJob(src, st, testConfig())

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.MonitorsDeactivated != 1 {
		t.Errorf("deactivated = %d, want 1", summary.MonitorsDeactivated)
	}
	if st.monitors["gone"].Active {
		t.Error("vanished monitor should be deactivated, not deleted")
	}
	if _, ok := st.monitors["gone"]; !ok {
		t.Error("vanished monitor must still exist")
	}
}

func TestRun_RetentionCutoffIsExclusive(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -90)

	st := newFakeStore()
	st.heartbeats["old"] = models.Heartbeat{MonitorID: 1, Time: cutoff.Add(-time.Second)}
	st.heartbeats["boundary"] = models.Heartbeat{MonitorID: 1, Time: cutoff}
	st.heartbeats["fresh"] = models.Heartbeat{MonitorID: 1, Time: now.Add(-time.Hour)}

	src := &fakeSource{healthy: true, heartbeats: map[string][]kuma.Heartbeat{}}
	job := NewJob(src, st, testConfig())
	job.now = func() time.Time { return now }

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.HeartbeatsDeleted != 1 {
		t.Errorf("deleted = %d, want 1", summary.HeartbeatsDeleted)
	}
	if _, ok := st.heartbeats["old"]; ok {
		t.Error("heartbeat older than the horizon should be gone")
	}
	if _, ok := st.heartbeats["boundary"]; !ok {
		t.Error("heartbeat exactly at the horizon survives (exclusive bound)")
	}
	if _, ok := st.heartbeats["fresh"]; !ok {
		t.Error("recent heartbeat should survive")
	}
}

func TestRun_DropsNegativePing(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	bad := -5
	src := &fakeSource{
		healthy:  true,
		monitors: []kuma.Monitor{upstreamMonitor("m1")},
		heartbeats: map[string][]kuma.Heartbeat{
			"m1": {{Status: models.StatusUp, Time: now.Add(-time.Minute), Ping: &bad}},
		},
	}
	st := newFakeStore()
	job := NewJob(src, st, testConfig())
	job.now = func() time.Time { return now }

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, hb := range st.heartbeats {
		if hb.Ping != nil {
			t.Errorf("negative ping should be stored as unknown, got %d", *hb.Ping)
		}
	}
}
