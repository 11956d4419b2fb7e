package model

import "time"

// RequestEvent is one classified request. Rows are append-only; only the
// retention job or an explicit wipe removes them.
type RequestEvent struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text;not null"`
	IP         string    `json:"ip" gorm:"not null;size:45;index:idx_ip_occurred,priority:1"`
	UserAgent  string    `json:"user_agent" gorm:"not null;size:500"`
	OccurredAt time.Time `json:"occurred_at" gorm:"not null;index;index:idx_ip_occurred,priority:2;index:idx_status_occurred,priority:2"`
	Count      int       `json:"count" gorm:"not null;default:1"`
	Status     string    `json:"status" gorm:"not null;size:20;index:idx_status_occurred,priority:1"`
}

func (RequestEvent) TableName() string {
	return "request_events"
}

// SystemState is a single persisted timestamp keyed by name. Used for the
// notifier cooldown and the retention last-check marker.
type SystemState struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64;not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (SystemState) TableName() string {
	return "system_state"
}
