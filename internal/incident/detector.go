// Package incident derives discrete incident records from the raw
// heartbeat stream. Incidents are recomputed on every read and never
// persisted; the heartbeat table stays the single source of truth.
package incident

import (
	"context"
	"time"

	"github.com/poer2023/uptime-sync/internal/models"
	"github.com/poer2023/uptime-sync/internal/store"
)

// GapThreshold is the largest gap between consecutive DOWN samples that
// still counts as the same incident.
const GapThreshold = 30 * time.Minute

// Result-count bounds for the read endpoint.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// resolveLimit bounds how many of the most recent incidents get the
// resolution lookup, each of which costs one indexed query.
const resolveLimit = 10

// Store is the slice of the data layer the detector reads from.
type Store interface {
	RecentDownHeartbeats(ctx context.Context, limit int) ([]store.DownHeartbeat, error)
	FirstHeartbeatAfter(ctx context.Context, monitorID int, after time.Time) (*models.Heartbeat, error)
}

// Incident is a contiguous run of DOWN heartbeats for one monitor.
// EndTime is nil while the incident is ongoing.
type Incident struct {
	MonitorID       int        `json:"monitorId"`
	MonitorName     string     `json:"monitorName"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	Samples         int        `json:"samples"`
	Resolved        bool       `json:"resolved"`

	// lastSeen is the most recent DOWN sample in the group, the anchor
	// for the resolution lookup.
	lastSeen time.Time
}

// Detector groups DOWN heartbeats into incidents.
type Detector struct {
	store Store
}

// NewDetector creates a new incident detector
func NewDetector(s Store) *Detector {
	return &Detector{store: s}
}

// Recent returns grouped incidents derived from the most recent DOWN
// heartbeats. limit bounds the heartbeats scanned and is clamped to
// [1, MaxLimit]; zero or negative falls back to DefaultLimit.
func (d *Detector) Recent(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	beats, err := d.store.RecentDownHeartbeats(ctx, limit)
	if err != nil {
		return nil, err
	}

	incidents := group(beats)

	// Resolve only the most recent groups to bound cost.
	n := len(incidents)
	if n > resolveLimit {
		n = resolveLimit
	}
	for i := 0; i < n; i++ {
		if err := d.resolve(ctx, &incidents[i]); err != nil {
			return nil, err
		}
	}

	return incidents, nil
}

// group walks DOWN samples ordered newest-first and folds consecutive
// samples of the same monitor into one incident, starting a new one when
// the monitor changes or the gap exceeds GapThreshold. Incidents never
// merge across a monitor boundary, however close the timestamps.
func group(beats []store.DownHeartbeat) []Incident {
	var incidents []Incident
	var cur *Incident

	for _, b := range beats {
		if cur == nil || cur.MonitorID != b.MonitorID || cur.StartTime.Sub(b.Time) > GapThreshold {
			incidents = append(incidents, Incident{
				MonitorID:   b.MonitorID,
				MonitorName: b.MonitorName,
				StartTime:   b.Time,
				Samples:     1,
				lastSeen:    b.Time,
			})
			cur = &incidents[len(incidents)-1]
			continue
		}

		// Walking backwards in time, so each fold moves the start earlier.
		cur.StartTime = b.Time
		cur.Samples++
		cur.DurationMinutes = int(cur.lastSeen.Sub(cur.StartTime).Minutes())
	}

	return incidents
}

// resolve looks up the first heartbeat after the incident's last DOWN
// sample. An UP sample closes the incident at that timestamp; a missing or
// DOWN sample leaves it ongoing.
func (d *Detector) resolve(ctx context.Context, inc *Incident) error {
	next, err := d.store.FirstHeartbeatAfter(ctx, inc.MonitorID, inc.lastSeen)
	if err != nil {
		return err
	}
	if next == nil || next.Status != models.StatusUp {
		return nil
	}

	end := next.Time
	inc.EndTime = &end
	inc.Resolved = true
	inc.DurationMinutes = int(end.Sub(inc.StartTime).Minutes())
	return nil
}
