package models

import "time"

// Editor represents a video game publisher.
type Editor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" validate:"required,min=1,max=50"`
	Country   string    `gorm:"size:255;not null" json:"country" validate:"required"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
