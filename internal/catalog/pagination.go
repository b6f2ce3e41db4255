package catalog

import (
	"context"

	"gorm.io/gorm"

	"gamecatalog/backend/pkg/apperror"
)

// ListPage returns at most limit rows of T starting at offset (page-1)*limit,
// ordered by primary key. Pages past the end yield an empty slice.
func ListPage[T any](ctx context.Context, db *gorm.DB, page, limit int) ([]T, error) {
	if page < 1 || limit < 1 {
		return nil, apperror.Validation("invalid pagination", map[string]string{
			"page":  "must be >= 1",
			"limit": "must be >= 1",
		})
	}

	results := make([]T, 0, limit)
	offset := (page - 1) * limit
	if err := db.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of rows of T.
func Count[T any](ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(new(T)).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
