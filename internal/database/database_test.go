package database

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamecatalog/backend/internal/models"
)

func TestOpenMigrates(t *testing.T) {
	db, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, model := range []any{&models.VideoGame{}, &models.Editor{}, &models.Category{}, &models.User{}, &models.ScheduleState{}} {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasTable("video_game_category"))
}
