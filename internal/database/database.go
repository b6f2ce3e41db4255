package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gamecatalog/backend/internal/catalog"
)

// gormWriter routes GORM's logger through zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}

// Open connects with dialector and runs migrations.
func Open(dialector gorm.Dialector, log zerolog.Logger) (*gorm.DB, error) {
	log = log.With().Str("component", "database").Logger()

	// Configure GORM logger
	customLogger := logger.New(
		gormWriter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         customLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("database connection established")

	if err := catalog.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Msg("database migrated successfully")

	return db, nil
}

// Connect opens the PostgreSQL database at dsn.
func Connect(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	return Open(postgres.Open(dsn), log)
}
