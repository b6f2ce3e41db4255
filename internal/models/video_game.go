package models

import (
	"time"

	"gorm.io/gorm"
)

// VideoGame represents a game in the catalog.
// A game owns its references to an editor and its categories; the inverse
// direction is always answered with an id-based query.
type VideoGame struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Title       string      `gorm:"size:255;not null" json:"title"`
	ReleaseDate time.Time   `gorm:"not null;index" json:"releaseDate"`
	EditorID    uint        `gorm:"not null;index" json:"-"`
	Editor      *Editor     `gorm:"foreignKey:EditorID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"editor,omitempty"`
	Categories  []*Category `gorm:"many2many:video_game_category;constraint:OnDelete:CASCADE;" json:"categories"`
	CoverImage  string      `gorm:"size:255" json:"coverImage,omitempty"`
	CreatedAt   time.Time   `json:"-"`
	UpdatedAt   time.Time   `json:"-"`
}

// BeforeSave stores release dates in UTC so range queries compare like with like.
func (g *VideoGame) BeforeSave(_ *gorm.DB) error {
	g.ReleaseDate = g.ReleaseDate.UTC()
	return nil
}

// CategoryIDs returns the ids of the game's categories.
func (g *VideoGame) CategoryIDs() []uint {
	ids := make([]uint, 0, len(g.Categories))
	for _, c := range g.Categories {
		if c != nil {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
