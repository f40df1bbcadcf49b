// Package syncer runs one complete synchronization pass against the
// upstream monitoring source: connectivity gate, monitor upserts,
// concurrent heartbeat ingestion, then retention cleanup.
package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/poer2023/uptime-sync/internal/config"
	"github.com/poer2023/uptime-sync/internal/kuma"
	"github.com/poer2023/uptime-sync/internal/models"
)

// ErrSourceUnavailable is returned when the upstream health gate fails.
// Nothing has been written when this error is returned.
var ErrSourceUnavailable = errors.New("monitoring source is unavailable")

// Source is the upstream monitoring API the job pulls from.
type Source interface {
	HealthCheck(ctx context.Context) bool
	ListMonitors(ctx context.Context) ([]kuma.Monitor, error)
	ListHeartbeats(ctx context.Context, kumaID string, limit int) ([]kuma.Heartbeat, error)
}

// Store is the durable side of the pipeline the job writes through.
type Store interface {
	UpsertMonitor(ctx context.Context, m *models.Monitor) error
	DeactivateMonitorsExcept(ctx context.Context, kumaIDs []string) (int64, error)
	InsertHeartbeat(ctx context.Context, hb *models.Heartbeat) (bool, error)
	DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Summary is the structured outcome of one sync run. Recoverable failures
// degrade the counters instead of aborting the run.
type Summary struct {
	MonitorsTotal       int   `json:"monitorsTotal"`
	MonitorsSynced      int   `json:"monitorsSynced"`
	MonitorsFailed      int   `json:"monitorsFailed"`
	MonitorsDeactivated int64 `json:"monitorsDeactivated"`
	HeartbeatsStored    int   `json:"heartbeatsStored"`
	HeartbeatsErrors    int   `json:"heartbeatsErrors"`
	HeartbeatsDeleted   int64 `json:"heartbeatsDeleted"`

	Duration time.Duration `json:"-"`
}

// Job drives one sync pass. It holds no run state of its own, so
// concurrent invocations are safe: upserts are keyed on kuma_id and
// duplicate heartbeat inserts are skipped by the store.
type Job struct {
	source Source
	store  Store
	cfg    config.SyncConfig

	// now is swappable for tests
	now func() time.Time
}

// NewJob creates a new sync job
func NewJob(source Source, store Store, cfg config.SyncConfig) *Job {
	return &Job{
		source: source,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run executes one complete sync pass. The initial connectivity check is
// the only fatal step; everything after it is captured in the summary.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	start := j.now()

	if !j.source.HealthCheck(ctx) {
		return nil, ErrSourceUnavailable
	}

	upstream, err := j.source.ListMonitors(ctx)
	if err != nil {
		log.Printf("Sync: failed to list upstream monitors: %v", err)
		return nil, ErrSourceUnavailable
	}

	summary := &Summary{MonitorsTotal: len(upstream)}

	// Upsert each monitor independently; one failure does not block others.
	synced := make([]models.Monitor, 0, len(upstream))
	seen := make([]string, 0, len(upstream))
	for _, um := range upstream {
		seen = append(seen, um.ID)

		m := models.Monitor{
			KumaID:      um.ID,
			Name:        um.Name,
			Type:        um.Type,
			URL:         um.URL,
			Interval:    um.Interval,
			Active:      um.Active,
			Description: um.Description,
			UpdatedAt:   j.now().UTC(),
		}
		if err := j.store.UpsertMonitor(ctx, &m); err != nil {
			log.Printf("Sync: upsert failed for monitor %s: %v", um.ID, err)
			summary.MonitorsFailed++
			continue
		}
		summary.MonitorsSynced++
		synced = append(synced, m)
	}

	// The upstream list is authoritative: monitors it no longer reports
	// are deactivated, never deleted.
	deactivated, err := j.store.DeactivateMonitorsExcept(ctx, seen)
	if err != nil {
		log.Printf("Sync: failed to deactivate missing monitors: %v", err)
	}
	summary.MonitorsDeactivated = deactivated

	j.ingestHeartbeats(ctx, synced, summary)

	// Exclusive bound: a heartbeat exactly at the horizon survives.
	cutoff := j.now().UTC().AddDate(0, 0, -j.cfg.RetentionDays)
	deleted, err := j.store.DeleteHeartbeatsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("Sync: retention cleanup failed: %v", err)
	}
	summary.HeartbeatsDeleted = deleted

	summary.Duration = j.now().Sub(start)
	log.Printf("Sync: %d/%d monitors synced, %d heartbeats stored, %d errors, %d pruned in %s",
		summary.MonitorsSynced, summary.MonitorsTotal, summary.HeartbeatsStored,
		summary.HeartbeatsErrors, summary.HeartbeatsDeleted, summary.Duration.Round(time.Millisecond))

	return summary, nil
}

// ingestHeartbeats fetches and stores recent heartbeats for each monitor
// under a bounded worker pool, collecting every outcome: a failing monitor
// only bumps the error counter, it never cancels its siblings.
func (j *Job) ingestHeartbeats(ctx context.Context, monitors []models.Monitor, summary *Summary) {
	workers := j.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(monitors) {
		workers = len(monitors)
	}
	if workers == 0 {
		return
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan models.Monitor)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				stored, errs := j.ingestMonitor(ctx, m)
				mu.Lock()
				summary.HeartbeatsStored += stored
				summary.HeartbeatsErrors += errs
				mu.Unlock()
			}
		}()
	}

	for _, m := range monitors {
		jobs <- m
	}
	close(jobs)
	wg.Wait()
}

// ingestMonitor pulls one monitor's recent heartbeats and appends them.
// Duplicate samples are skipped silently and counted as neither stored
// nor failed.
func (j *Job) ingestMonitor(ctx context.Context, m models.Monitor) (stored, errs int) {
	beats, err := j.source.ListHeartbeats(ctx, m.KumaID, j.cfg.HeartbeatLimit)
	if err != nil {
		log.Printf("Sync: failed to fetch heartbeats for monitor %s: %v", m.KumaID, err)
		return 0, 1
	}

	for _, b := range beats {
		hb := models.Heartbeat{
			MonitorID:  m.ID,
			Status:     b.Status,
			Ping:       b.Ping,
			StatusCode: b.StatusCode,
			Message:    b.Msg,
			Time:       b.Time,
		}
		// Negative response times are garbage from the wire; store unknown.
		if hb.Ping != nil && *hb.Ping < 0 {
			hb.Ping = nil
		}

		wrote, err := j.store.InsertHeartbeat(ctx, &hb)
		if err != nil {
			errs++
			continue
		}
		if wrote {
			stored++
		}
	}

	return stored, errs
}
