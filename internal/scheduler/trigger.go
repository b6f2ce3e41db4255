// Package scheduler fires a job on a cron schedule, remembering the last
// tick it fired for across restarts.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultSpec         = "0 9 * * MON"
	DefaultMisfireGrace = 5 * time.Minute
)

// RunFunc is the job fired on every tick.
type RunFunc func(ctx context.Context) error

// Config configures a Trigger.
type Config struct {
	// Name keys the persisted marker.
	Name string
	// Spec is a standard five-field cron expression.
	Spec     string
	Location *time.Location
	// MisfireGrace is how late a wake-up may be before its tick is skipped.
	MisfireGrace time.Duration
	Store        MarkerStore
	Clock        clock.Clock
	Logger       zerolog.Logger
}

// Trigger runs a RunFunc at each cron tick. Ticks missed while the process
// was down, or woken up for later than MisfireGrace, are skipped.
type Trigger struct {
	name     string
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	grace    time.Duration
	store    MarkerStore
	clock    clock.Clock
	logger   zerolog.Logger
	run      RunFunc

	mu   sync.RWMutex
	next time.Time
}

// New parses cfg.Spec and returns a Trigger for run.
func New(cfg Config, run RunFunc) (*Trigger, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Name == "" {
		cfg.Name = "digest"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = DefaultMisfireGrace
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("scheduler %s: marker store is required", cfg.Name)
	}
	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cfg.Spec, err)
	}
	return &Trigger{
		name:     cfg.Name,
		spec:     cfg.Spec,
		schedule: schedule,
		loc:      cfg.Location,
		grace:    cfg.MisfireGrace,
		store:    cfg.Store,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With().Str("component", "scheduler").Str("schedule", cfg.Name).Logger(),
		run:      run,
	}, nil
}

// NextAfter returns the first tick strictly after t, in the trigger's location.
func (t *Trigger) NextAfter(after time.Time) time.Time {
	return t.schedule.Next(after.In(t.loc))
}

// Next returns the planned tick, or the zero time before Serve has started.
func (t *Trigger) Next() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.next
}

// String identifies the trigger to the supervisor.
func (t *Trigger) String() string {
	return "scheduler-" + t.name
}

// Serve implements suture.Service. It returns ctx.Err() on shutdown.
func (t *Trigger) Serve(ctx context.Context) error {
	last, err := t.store.LastFired(ctx, t.name)
	if err != nil {
		return err
	}
	from := t.clock.Now()
	if last.After(from) {
		from = last
	}
	next := t.NextAfter(from)

	t.logger.Info().Str("cron", t.spec).Time("last_fired", last).Time("next", next).Msg("scheduler started")

	for {
		t.setNext(next)
		timer := t.clock.NewTimer(next.Sub(t.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-timer.Chan():
		}

		now := t.clock.Now()
		if now.Before(next) {
			continue
		}
		t.fire(ctx, next, now)

		from := t.clock.Now()
		if next.After(from) {
			from = next
		}
		next = t.NextAfter(from)
	}
}

func (t *Trigger) fire(ctx context.Context, tick, now time.Time) {
	log := t.logger.With().Time("tick", tick).Logger()

	if late := now.Sub(tick); late > t.grace {
		log.Warn().Dur("late", late).Msg("tick missed, skipping")
		return
	}

	claimed, err := t.store.Claim(ctx, t.name, tick)
	if err != nil {
		log.Error().Err(err).Msg("failed to claim tick")
		return
	}
	if !claimed {
		log.Info().Msg("tick already fired, skipping")
		return
	}

	log.Info().Msg("tick fired")
	if err := t.run(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled run failed")
	}
}

func (t *Trigger) setNext(next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = next
}
