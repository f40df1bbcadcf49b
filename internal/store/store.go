// Package store is the data-access layer over the monitors and heartbeats
// tables. Every method is an independent atomic unit; no operation spans
// multiple monitors in one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/poer2023/uptime-sync/internal/models"
)

// Store wraps the GORM connection with the queries the pipeline needs.
type Store struct {
	db *gorm.DB
}

// New creates a new store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertMonitor creates or updates a monitor keyed on its external kuma_id.
// Mutable fields are overwritten on conflict; created_at is preserved.
// The monitor's internal ID is populated on return.
func (s *Store) UpsertMonitor(ctx context.Context, m *models.Monitor) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kuma_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "type", "url", "interval", "active", "description", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert monitor %s: %w", m.KumaID, err)
	}

	// The conflict path does not always report the row ID back.
	if m.ID == 0 {
		var existing models.Monitor
		if err := s.db.WithContext(ctx).Where("kuma_id = ?", m.KumaID).First(&existing).Error; err != nil {
			return fmt.Errorf("failed to load monitor %s after upsert: %w", m.KumaID, err)
		}
		m.ID = existing.ID
	}

	return nil
}

// DeactivateMonitorsExcept flips Active off for every monitor whose kuma_id
// is not in the given set. The sync path never hard-deletes monitors.
func (s *Store) DeactivateMonitorsExcept(ctx context.Context, kumaIDs []string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Monitor{}).Where("active = ?", true)
	if len(kumaIDs) > 0 {
		q = q.Where("kuma_id NOT IN ?", kumaIDs)
	}

	result := q.Updates(map[string]interface{}{
		"active":     false,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate missing monitors: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// ListActiveMonitors returns all active monitors ordered by name.
func (s *Store) ListActiveMonitors(ctx context.Context) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&monitors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active monitors: %w", err)
	}
	return monitors, nil
}

// InsertHeartbeat appends one heartbeat row. A duplicate (monitor_id, time)
// pair is skipped silently; the bool reports whether a row was written.
func (s *Store) InsertHeartbeat(ctx context.Context, hb *models.Heartbeat) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "monitor_id"}, {Name: "time"}},
		DoNothing: true,
	}).Create(hb)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert heartbeat for monitor %d: %w", hb.MonitorID, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// DeleteHeartbeatsBefore bulk-deletes heartbeats strictly older than the
// cutoff. A row timestamped exactly at the cutoff survives.
func (s *Store) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("time < ?", cutoff).
		Delete(&models.Heartbeat{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old heartbeats: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// LatestHeartbeat returns the most recent heartbeat for a monitor,
// or nil when the monitor has none.
func (s *Store) LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error) {
	var hb models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("time DESC").
		First(&hb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest heartbeat for monitor %d: %w", monitorID, err)
	}
	return &hb, nil
}

// WindowCounts returns the up and total heartbeat counts for a monitor
// since the given time.
func (s *Store) WindowCounts(ctx context.Context, monitorID int, since time.Time) (up, total int64, err error) {
	var counts struct {
		Up    int64
		Total int64
	}
	err = s.db.WithContext(ctx).Model(&models.Heartbeat{}).
		Select("COALESCE(SUM(CASE WHEN status = 1 THEN 1 ELSE 0 END), 0) AS up, COUNT(*) AS total").
		Where("monitor_id = ? AND time >= ?", monitorID, since).
		Scan(&counts).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count heartbeats for monitor %d: %w", monitorID, err)
	}
	return counts.Up, counts.Total, nil
}

// AveragePing returns the mean of the positive response times recorded for
// a monitor since the given time, or nil when none exist. Zero and
// "unknown" are distinct: a window with no usable samples yields nil.
func (s *Store) AveragePing(ctx context.Context, monitorID int, since time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.WithContext(ctx).Model(&models.Heartbeat{}).
		Select("AVG(ping)").
		Where("monitor_id = ? AND time >= ? AND ping IS NOT NULL AND ping > 0", monitorID, since).
		Scan(&avg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to average ping for monitor %d: %w", monitorID, err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// DownHeartbeat is one failing sample joined with its monitor's name,
// the raw material for incident grouping.
type DownHeartbeat struct {
	MonitorID   int       `json:"monitor_id"`
	MonitorName string    `json:"monitor_name"`
	Time        time.Time `json:"time"`
}

// RecentDownHeartbeats returns the most recent DOWN samples across all
// monitors, newest first, bounded by limit.
func (s *Store) RecentDownHeartbeats(ctx context.Context, limit int) ([]DownHeartbeat, error) {
	var rows []DownHeartbeat
	err := s.db.WithContext(ctx).Table("heartbeats").
		Select("heartbeats.monitor_id, monitors.name AS monitor_name, heartbeats.time").
		Joins("JOIN monitors ON monitors.id = heartbeats.monitor_id").
		Where("heartbeats.status = ?", models.StatusDown).
		Order("heartbeats.time DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list down heartbeats: %w", err)
	}
	return rows, nil
}

// FirstHeartbeatAfter returns the earliest heartbeat for a monitor with a
// timestamp strictly after the given time, or nil when none exists.
func (s *Store) FirstHeartbeatAfter(ctx context.Context, monitorID int, after time.Time) (*models.Heartbeat, error) {
	var hb models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND time > ?", monitorID, after).
		Order("time ASC").
		First(&hb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load heartbeat after %s for monitor %d: %w", after, monitorID, err)
	}
	return &hb, nil
}
