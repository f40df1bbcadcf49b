package models

import "time"

// Heartbeat status values, matching the upstream wire format.
const (
	StatusDown    = 0
	StatusUp      = 1
	StatusPending = 2
)

// StatusName returns the display name for a heartbeat status.
func StatusName(status int) string {
	switch status {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	default:
		return "PENDING"
	}
}

// Heartbeat is one observed status sample for a monitor. Time carries the
// monitoring source's clock, not the ingestion clock. Rows are append-only:
// inserted by the sync job, bulk-deleted by retention cleanup, never
// updated. The unique index on (monitor_id, time) is what lets duplicate
// samples from overlapping sync runs be skipped instead of double-counted.
type Heartbeat struct {
	ID         int       `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID  int       `json:"monitor_id" gorm:"not null;uniqueIndex:idx_monitor_time"`
	Status     int       `json:"status" gorm:"not null"` // 0=down, 1=up, 2=pending
	Ping       *int      `json:"ping"`                   // milliseconds, nil when unknown
	StatusCode *int      `json:"status_code"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time" gorm:"not null;uniqueIndex:idx_monitor_time;index:idx_time"`

	// Relationship (optional, for eager loading)
	Monitor Monitor `json:"-" gorm:"foreignKey:MonitorID"`
}

// TableName specifies the table name for Heartbeat
func (Heartbeat) TableName() string {
	return "heartbeats"
}
