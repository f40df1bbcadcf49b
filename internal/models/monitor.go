package models

import "time"

// Monitor represents one watched target mirrored from the upstream
// monitoring source. Rows are created and updated exclusively by the sync
// job, keyed on KumaID; the sync path never hard-deletes a monitor, it
// only flips Active off when the target vanishes upstream.
type Monitor struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	KumaID      string    `json:"kuma_id" gorm:"column:kuma_id;uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"not null"`
	Type        string    `json:"type" gorm:"not null"` // HTTP, TCP, PING, DNS, keyword
	URL         string    `json:"url"`
	Interval    int       `json:"interval" gorm:"default:60"` // seconds
	Active      bool      `json:"active" gorm:"default:true;index"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationship (optional, for eager loading)
	Heartbeats []Heartbeat `json:"-" gorm:"foreignKey:MonitorID"`
}

// TableName specifies the table name for Monitor
func (Monitor) TableName() string {
	return "monitors"
}
