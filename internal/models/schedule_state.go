package models

import "time"

// ScheduleState records the last tick a named schedule fired for.
type ScheduleState struct {
	Name        string    `gorm:"primaryKey;size:100"`
	LastFiredAt time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}
