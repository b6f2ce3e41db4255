package models

import "time"

// Category represents a game category (e.g., "Action", "RPG").
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" validate:"required,min=1,max=50"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
