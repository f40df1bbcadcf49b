package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/poer2023/uptime-sync/internal/cache"
	"github.com/poer2023/uptime-sync/internal/syncer"
)

// runTimeout bounds one scheduled sync pass; a hung upstream must not
// wedge the scheduler.
const runTimeout = 4 * time.Minute

// Scheduler triggers the sync job on a fixed interval, standing in for an
// external cron hitting the trigger endpoint.
type Scheduler struct {
	cron  *cron.Cron
	job   *syncer.Job
	cache *cache.Cache
	spec  string
}

// NewScheduler creates a new job scheduler
func NewScheduler(job *syncer.Job, c *cache.Cache, spec string) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		job:   job,
		cache: c,
		spec:  spec,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.runSync)
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Job scheduler started (sync schedule: %s)", s.spec)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Job scheduler stopped")
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	_, err := s.job.Run(ctx)
	if errors.Is(err, syncer.ErrSourceUnavailable) {
		log.Println("Scheduled sync skipped: monitoring source is unavailable")
		return
	}
	if err != nil {
		log.Printf("Scheduled sync failed: %v", err)
		return
	}

	// Fresh heartbeats just landed; let reads recompute.
	s.cache.InvalidateAll()
}
