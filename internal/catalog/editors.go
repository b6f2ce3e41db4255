package catalog

import (
	"context"
	"fmt"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
)

// EditorPatch is a partial editor update.
type EditorPatch struct {
	Name    *string
	Country *string
}

func (s *Store) ListEditors(ctx context.Context, page, limit int) ([]models.Editor, error) {
	return ListPage[models.Editor](ctx, s.db, page, limit)
}

func (s *Store) GetEditor(ctx context.Context, id uint) (*models.Editor, error) {
	var editor models.Editor
	if err := s.withContext(ctx).First(&editor, id).Error; err != nil {
		return nil, notFoundOr(err, "editor", id)
	}
	return &editor, nil
}

func (s *Store) CreateEditor(ctx context.Context, name, country string) (*models.Editor, error) {
	editor := models.Editor{Name: name, Country: country}
	if err := s.check(editor); err != nil {
		return nil, err
	}
	if err := s.withContext(ctx).Create(&editor).Error; err != nil {
		return nil, translate(err, "editor")
	}
	return &editor, nil
}

func (s *Store) UpdateEditor(ctx context.Context, id uint, patch EditorPatch) (*models.Editor, error) {
	editor, err := s.GetEditor(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		editor.Name = *patch.Name
	}
	if patch.Country != nil {
		editor.Country = *patch.Country
	}
	if err := s.check(editor); err != nil {
		return nil, err
	}
	if err := s.withContext(ctx).Save(editor).Error; err != nil {
		return nil, translate(err, "editor")
	}
	return editor, nil
}

// DeleteEditor removes an editor that no game references. Games are never
// deleted on an editor's behalf.
func (s *Store) DeleteEditor(ctx context.Context, id uint) error {
	editor, err := s.GetEditor(ctx, id)
	if err != nil {
		return err
	}

	var games int64
	if err := s.withContext(ctx).Model(&models.VideoGame{}).Where("editor_id = ?", id).Count(&games).Error; err != nil {
		return fmt.Errorf("count games of editor %d: %w", id, err)
	}
	if games > 0 {
		return apperror.Constraint(fmt.Sprintf("editor %d is still referenced by %d video game(s)", id, games), nil)
	}

	if err := s.withContext(ctx).Delete(editor).Error; err != nil {
		return translate(err, "editor")
	}
	return nil
}
