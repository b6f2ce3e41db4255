// Package app wires the catalog, the digest job and the scheduler from
// configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/config"
	"gamecatalog/backend/internal/database"
	"gamecatalog/backend/internal/digest"
	"gamecatalog/backend/internal/metrics"
	"gamecatalog/backend/internal/notifier"
	"gamecatalog/backend/internal/scheduler"
	"gamecatalog/backend/internal/storage"
)

// App holds the long-lived collaborators.
type App struct {
	Config   *config.Config
	Location *time.Location
	DB       *gorm.DB
	Store    *catalog.Store
	Notifier notifier.Notifier
	Job      *digest.Job
	Markers  scheduler.MarkerStore

	logger  zerolog.Logger
	closers []func() error
}

// New connects to PostgreSQL and builds the App.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	return NewWithDB(ctx, cfg, db, logger)
}

// NewWithDB builds the App over an already migrated database.
func NewWithDB(ctx context.Context, cfg *config.Config, db *gorm.DB, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		DB:       db,
		Store:    catalog.New(db),
		logger:   logger,
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	a.Notifier = a.newNotifier()
	a.Job = digest.NewJob(a.Store, a.Notifier, digest.Config{
		HorizonDays: cfg.DigestHorizonDays,
		Subject:     cfg.DigestSubject,
		DateFormat:  cfg.DigestDateFormat,
		Location:    loc,
		SendTimeout: cfg.DigestSendTimeout,
		MaxDuration: cfg.DigestMaxDuration,
	}, clock.WallClock, logger)
	a.Job.AddObserver(metrics.DigestObserver{})

	markers, err := a.newMarkerStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Markers = markers
	return a, nil
}

func (a *App) newNotifier() notifier.Notifier {
	cfg := a.Config
	if cfg.SMTPHost == "" {
		a.logger.Warn().Msg("SMTP_HOST not set, digest emails are only logged")
		return notifier.NewLogMailer(a.logger)
	}
	return notifier.NewSMTPMailer(notifier.SMTPConfig{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		User:          cfg.SMTPUser,
		Password:      cfg.SMTPPassword,
		From:          cfg.SMTPFrom,
		FromName:      cfg.SMTPFromName,
		UseTLS:        cfg.SMTPTLS,
		RatePerSecond: cfg.MailRatePerSecond,
	}, a.logger)
}

func (a *App) newMarkerStore(ctx context.Context) (scheduler.MarkerStore, error) {
	if !strings.EqualFold(a.Config.ScheduleStore, "redis") {
		return scheduler.NewGormMarkerStore(a.DB), nil
	}

	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info().Str("addr", opts.Addr).Msg("schedule markers stored in redis")
	return scheduler.NewRedisMarkerStore(client), nil
}

// Trigger builds the weekly digest trigger. A nil clk uses the wall clock.
func (a *App) Trigger(clk clock.Clock) (*scheduler.Trigger, error) {
	return scheduler.New(scheduler.Config{
		Name:         "digest",
		Spec:         a.Config.DigestCron,
		Location:     a.Location,
		MisfireGrace: a.Config.SchedulerMisfireGrace,
		Store:        a.Markers,
		Clock:        clk,
		Logger:       a.logger,
	}, func(ctx context.Context) error {
		_, err := a.Job.Run(ctx)
		return err
	})
}

// OpenCovers opens the cover bucket and closes it with the App.
func (a *App) OpenCovers(ctx context.Context) (*storage.Covers, error) {
	covers, err := storage.OpenCovers(ctx, a.Config.CoversBucketURL, a.Config.MaxCoverBytes)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, covers.Close)
	return covers, nil
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
