package catalog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
)

// DefaultHorizonDays is the look-ahead window of the weekly digest.
const DefaultHorizonDays = 7

// VideoGameDraft is the input for creating a video game.
type VideoGameDraft struct {
	Title       string    `json:"title" validate:"required,min=1,max=50"`
	ReleaseDate time.Time `json:"releaseDate" validate:"required"`
	EditorID    uint      `json:"editor" validate:"required"`
	CategoryIDs []uint    `json:"categories" validate:"required,min=1"`
	CoverImage  string    `json:"coverImage"`
}

// VideoGamePatch is a partial update. Nil fields are left unchanged; a
// non-nil CategoryIDs replaces the whole category set.
type VideoGamePatch struct {
	Title       *string
	ReleaseDate *time.Time
	EditorID    *uint
	CategoryIDs []uint
}

func preloadGame(db *gorm.DB) *gorm.DB {
	return db.Preload("Editor").Preload("Categories", func(db *gorm.DB) *gorm.DB {
		return db.Order("categories.id")
	})
}

// ListVideoGames returns one page of games with their editor and categories.
func (s *Store) ListVideoGames(ctx context.Context, page, limit int) ([]models.VideoGame, error) {
	return ListPage[models.VideoGame](ctx, preloadGame(s.db), page, limit)
}

// GetVideoGame loads a game with its relations.
func (s *Store) GetVideoGame(ctx context.Context, id uint) (*models.VideoGame, error) {
	var game models.VideoGame
	if err := preloadGame(s.withContext(ctx)).First(&game, id).Error; err != nil {
		return nil, notFoundOr(err, "video game", id)
	}
	return &game, nil
}

// resolveRefs loads the editor and categories referenced by id, failing with
// NotFound on the first missing one.
func resolveRefs(tx *gorm.DB, editorID uint, categoryIDs []uint) (*models.Editor, []*models.Category, error) {
	var editor models.Editor
	if err := tx.First(&editor, editorID).Error; err != nil {
		return nil, nil, notFoundOr(err, "editor", editorID)
	}

	ids := uniqueIDs(categoryIDs)
	var found []*models.Category
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Order("id").Find(&found).Error; err != nil {
			return nil, nil, err
		}
	}
	byID := make(map[uint]*models.Category, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	categories := make([]*models.Category, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, nil, apperror.NotFound("category", id)
		}
		categories = append(categories, c)
	}
	return &editor, categories, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// CreateVideoGame validates the draft, resolves its references and persists
// the game with its category links.
func (s *Store) CreateVideoGame(ctx context.Context, draft VideoGameDraft) (*models.VideoGame, error) {
	if err := s.check(draft); err != nil {
		return nil, err
	}

	var game models.VideoGame
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		editor, categories, err := resolveRefs(tx, draft.EditorID, draft.CategoryIDs)
		if err != nil {
			return err
		}
		game = models.VideoGame{
			Title:       draft.Title,
			ReleaseDate: draft.ReleaseDate,
			EditorID:    editor.ID,
			Editor:      editor,
			Categories:  categories,
			CoverImage:  draft.CoverImage,
		}
		return tx.Omit("Editor", "Categories.*").Create(&game).Error
	})
	if err != nil {
		return nil, translate(err, "video game")
	}
	return s.GetVideoGame(ctx, game.ID)
}

// UpdateVideoGame applies a partial update. The merged state is validated as
// a whole before anything is written.
func (s *Store) UpdateVideoGame(ctx context.Context, id uint, patch VideoGamePatch) (*models.VideoGame, error) {
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var game models.VideoGame
		if err := tx.Preload("Categories").First(&game, id).Error; err != nil {
			return notFoundOr(err, "video game", id)
		}

		draft := VideoGameDraft{
			Title:       game.Title,
			ReleaseDate: game.ReleaseDate,
			EditorID:    game.EditorID,
			CategoryIDs: game.CategoryIDs(),
		}
		if patch.Title != nil {
			draft.Title = *patch.Title
		}
		if patch.ReleaseDate != nil {
			draft.ReleaseDate = *patch.ReleaseDate
		}
		if patch.EditorID != nil {
			draft.EditorID = *patch.EditorID
		}
		if patch.CategoryIDs != nil {
			draft.CategoryIDs = patch.CategoryIDs
		}
		if err := s.check(draft); err != nil {
			return err
		}

		editor, categories, err := resolveRefs(tx, draft.EditorID, draft.CategoryIDs)
		if err != nil {
			return err
		}

		game.Title = draft.Title
		game.ReleaseDate = draft.ReleaseDate
		game.EditorID = editor.ID
		if err := tx.Omit("Editor", "Categories").Save(&game).Error; err != nil {
			return err
		}
		if patch.CategoryIDs != nil {
			if err := tx.Model(&game).Association("Categories").Replace(categories); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "video game")
	}
	return s.GetVideoGame(ctx, id)
}

// SetCoverImage records the stored cover file name and returns the previous one.
func (s *Store) SetCoverImage(ctx context.Context, id uint, name string) (string, error) {
	var game models.VideoGame
	if err := s.withContext(ctx).First(&game, id).Error; err != nil {
		return "", notFoundOr(err, "video game", id)
	}
	previous := game.CoverImage
	if err := s.withContext(ctx).Model(&game).Update("cover_image", name).Error; err != nil {
		return "", translate(err, "video game")
	}
	return previous, nil
}

// DeleteVideoGame removes a game and its category links. Editors and
// categories are left untouched.
func (s *Store) DeleteVideoGame(ctx context.Context, id uint) (*models.VideoGame, error) {
	var game models.VideoGame
	if err := s.withContext(ctx).First(&game, id).Error; err != nil {
		return nil, notFoundOr(err, "video game", id)
	}
	if err := s.withContext(ctx).Select("Categories").Delete(&game).Error; err != nil {
		return nil, translate(err, "video game")
	}
	return &game, nil
}

// GamesByEditor lists the games published by an editor, oldest release first.
func (s *Store) GamesByEditor(ctx context.Context, editorID uint) ([]models.VideoGame, error) {
	if _, err := s.GetEditor(ctx, editorID); err != nil {
		return nil, err
	}
	games := []models.VideoGame{}
	err := preloadGame(s.withContext(ctx)).
		Where("editor_id = ?", editorID).
		Order("release_date ASC").Order("id ASC").
		Find(&games).Error
	return games, err
}

// GamesByCategory lists the games linked to a category, oldest release first.
func (s *Store) GamesByCategory(ctx context.Context, categoryID uint) ([]models.VideoGame, error) {
	if _, err := s.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	games := []models.VideoGame{}
	err := preloadGame(s.withContext(ctx)).
		Joins("JOIN video_game_category vgc ON vgc.video_game_id = video_games.id").
		Where("vgc.category_id = ?", categoryID).
		Order("video_games.release_date ASC").Order("video_games.id ASC").
		Find(&games).Error
	return games, err
}

// FindUpcomingReleases returns the games released between asOf's midnight and
// 23:59:59 on the day horizonDays later, both inclusive, in asOf's location.
// Results are ordered by release date.
func (s *Store) FindUpcomingReleases(ctx context.Context, asOf time.Time, horizonDays int) ([]models.VideoGame, error) {
	if horizonDays < 0 {
		return nil, apperror.Validation("invalid horizon", map[string]string{"horizonDays": "must be >= 0"})
	}
	start, end := releaseWindow(asOf, horizonDays)

	games := []models.VideoGame{}
	err := preloadGame(s.withContext(ctx)).
		Where("release_date >= ? AND release_date < ?", start.UTC(), end.UTC()).
		Order("release_date ASC").Order("id ASC").
		Find(&games).Error
	if err != nil {
		return nil, err
	}
	return games, nil
}

// releaseWindow returns [start, end) where end is the midnight after the last
// included day.
func releaseWindow(asOf time.Time, horizonDays int) (time.Time, time.Time) {
	y, m, d := asOf.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, asOf.Location())
	return start, start.AddDate(0, 0, horizonDays+1)
}
