// Package stats computes rolling-window availability statistics from the
// heartbeat stream on read. Nothing here is persisted; callers front this
// with the read cache.
package stats

import (
	"context"
	"math"
	"time"

	"github.com/poer2023/uptime-sync/internal/models"
)

// Window sizes for uptime percentages.
const (
	Window24h = 24 * time.Hour
	Window30d = 30 * 24 * time.Hour
)

// HeartbeatReader is the slice of the store the aggregator reads from.
type HeartbeatReader interface {
	ListActiveMonitors(ctx context.Context) ([]models.Monitor, error)
	WindowCounts(ctx context.Context, monitorID int, since time.Time) (up, total int64, err error)
	AveragePing(ctx context.Context, monitorID int, since time.Time) (*float64, error)
	LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error)
}

// MonitorStats is the per-monitor row on the status page.
type MonitorStats struct {
	MonitorID        int      `json:"monitorId"`
	MonitorName      string   `json:"monitorName"`
	Uptime24h        float64  `json:"uptime24h"`
	Uptime30d        float64  `json:"uptime30d"`
	AvgResponseTime  *float64 `json:"avgResponseTime"`
	CurrentStatus    string   `json:"currentStatus"`
	LastResponseTime *int     `json:"lastResponseTime"`
}

// Overall aggregates across monitors. Uptime figures are the unweighted
// mean of the per-monitor percentages; dashboards depend on exactly this
// number, so it is not sample-weighted.
type Overall struct {
	Uptime24h     float64 `json:"uptime24h"`
	Uptime30d     float64 `json:"uptime30d"`
	MonitorsUp    int     `json:"monitorsUp"`
	MonitorsDown  int     `json:"monitorsDown"`
	MonitorsTotal int     `json:"monitorsTotal"`
}

// StatusPage is the full read-endpoint payload.
type StatusPage struct {
	Monitors []MonitorStats `json:"monitors"`
	Overall  Overall        `json:"overall"`
}

// Aggregator computes uptime and latency statistics for active monitors.
type Aggregator struct {
	store HeartbeatReader

	// now is swappable for tests
	now func() time.Time
}

// New creates a new aggregator
func New(store HeartbeatReader) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// StatusPage computes stats for every active monitor plus the aggregate
// block. Storage errors propagate; there is no partial result.
func (a *Aggregator) StatusPage(ctx context.Context) (*StatusPage, error) {
	monitors, err := a.store.ListActiveMonitors(ctx)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	page := &StatusPage{Monitors: make([]MonitorStats, 0, len(monitors))}

	var sum24, sum30 float64
	for _, m := range monitors {
		ms, err := a.monitorStats(ctx, m, now)
		if err != nil {
			return nil, err
		}

		sum24 += ms.Uptime24h
		sum30 += ms.Uptime30d
		switch ms.CurrentStatus {
		case "UP":
			page.Overall.MonitorsUp++
		case "DOWN":
			page.Overall.MonitorsDown++
		}

		page.Monitors = append(page.Monitors, *ms)
	}

	page.Overall.MonitorsTotal = len(monitors)
	if len(monitors) > 0 {
		page.Overall.Uptime24h = round2(sum24 / float64(len(monitors)))
		page.Overall.Uptime30d = round2(sum30 / float64(len(monitors)))
	}

	return page, nil
}

func (a *Aggregator) monitorStats(ctx context.Context, m models.Monitor, now time.Time) (*MonitorStats, error) {
	up24, total24, err := a.store.WindowCounts(ctx, m.ID, now.Add(-Window24h))
	if err != nil {
		return nil, err
	}
	up30, total30, err := a.store.WindowCounts(ctx, m.ID, now.Add(-Window30d))
	if err != nil {
		return nil, err
	}

	avg, err := a.store.AveragePing(ctx, m.ID, now.Add(-Window24h))
	if err != nil {
		return nil, err
	}
	if avg != nil {
		rounded := round2(*avg)
		avg = &rounded
	}

	ms := &MonitorStats{
		MonitorID:       m.ID,
		MonitorName:     m.Name,
		Uptime24h:       uptimePercent(up24, total24),
		Uptime30d:       uptimePercent(up30, total30),
		AvgResponseTime: avg,
		CurrentStatus:   models.StatusName(models.StatusPending),
	}

	latest, err := a.store.LatestHeartbeat(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		ms.CurrentStatus = models.StatusName(latest.Status)
		ms.LastResponseTime = latest.Ping
	}

	return ms, nil
}

// uptimePercent returns up/total as a percentage rounded to two decimals.
// A window with no heartbeats is 0, not an error.
func uptimePercent(up, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(up) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
