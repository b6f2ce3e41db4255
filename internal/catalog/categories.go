package catalog

import (
	"context"

	"gorm.io/gorm"

	"gamecatalog/backend/internal/models"
)

func (s *Store) ListCategories(ctx context.Context, page, limit int) ([]models.Category, error) {
	return ListPage[models.Category](ctx, s.db, page, limit)
}

func (s *Store) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := s.withContext(ctx).First(&category, id).Error; err != nil {
		return nil, notFoundOr(err, "category", id)
	}
	return &category, nil
}

func (s *Store) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	category := models.Category{Name: name}
	if err := s.check(category); err != nil {
		return nil, err
	}
	if err := s.withContext(ctx).Create(&category).Error; err != nil {
		return nil, translate(err, "category")
	}
	return &category, nil
}

func (s *Store) RenameCategory(ctx context.Context, id uint, name string) (*models.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	category.Name = name
	if err := s.check(category); err != nil {
		return nil, err
	}
	if err := s.withContext(ctx).Save(category).Error; err != nil {
		return nil, translate(err, "category")
	}
	return category, nil
}

// DeleteCategory removes a category and its game links; the games stay.
func (s *Store) DeleteCategory(ctx context.Context, id uint) error {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	err = s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM video_game_category WHERE category_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(category).Error
	})
	return translate(err, "category")
}
