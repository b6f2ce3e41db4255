// Package digest sends the weekly email listing upcoming video game releases
// to every newsletter subscriber.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/internal/notifier"
)

// ErrAlreadyRunning is returned by Run while another run is in flight.
var ErrAlreadyRunning = errors.New("digest run already in progress")

const (
	DefaultSubject    = "Games coming out in the next 7 days"
	DefaultHeading    = "Games coming out this week:"
	DefaultDateFormat = "02/01/2006"
)

// Catalog is the read side the job needs.
type Catalog interface {
	FindUpcomingReleases(ctx context.Context, asOf time.Time, horizonDays int) ([]models.VideoGame, error)
	FindSubscribedUsers(ctx context.Context) ([]models.User, error)
}

// Config holds digest settings.
type Config struct {
	HorizonDays int
	Subject     string
	Heading     string
	// DateFormat is a Go time layout.
	DateFormat string
	Location   *time.Location
	// SendTimeout bounds each individual send.
	SendTimeout time.Duration
	// MaxDuration bounds the whole run; zero means unbounded.
	MaxDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Heading == "" {
		c.Heading = DefaultHeading
	}
	if c.DateFormat == "" {
		c.DateFormat = DefaultDateFormat
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// Job runs the digest. It is safe for concurrent use; overlapping runs are
// rejected with ErrAlreadyRunning.
type Job struct {
	catalog  Catalog
	notifier notifier.Notifier
	cfg      Config
	clock    clock.Clock
	logger   zerolog.Logger

	running atomic.Bool
	state   atomic.Int32

	mu        sync.RWMutex
	observers []Observer
}

// NewJob creates a Job. A nil clk uses the wall clock.
func NewJob(cat Catalog, n notifier.Notifier, cfg Config, clk clock.Clock, logger zerolog.Logger) *Job {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Job{
		catalog:  cat,
		notifier: n,
		cfg:      cfg.withDefaults(),
		clock:    clk,
		logger:   logger.With().Str("component", "digest").Logger(),
	}
}

// AddObserver registers o for events of subsequent runs.
func (j *Job) AddObserver(o Observer) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.observers = append(j.observers, o)
}

// State reports the phase of the current or last run.
func (j *Job) State() State {
	return State(j.state.Load())
}

// Running reports whether a run is in flight.
func (j *Job) Running() bool {
	return j.running.Load()
}

// Config returns the effective settings.
func (j *Job) Config() Config {
	return j.cfg
}

// Preview returns the games the next run would list, without sending.
func (j *Job) Preview(ctx context.Context) ([]models.VideoGame, error) {
	return j.catalog.FindUpcomingReleases(ctx, j.clock.Now().In(j.cfg.Location), j.cfg.HorizonDays)
}

// Run executes one digest. Per-recipient failures are recorded in the
// report and do not make Run fail. A non-nil error means the run could not
// start, could not fetch or render, or was cancelled; the report is still
// returned in the last two cases.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	if j.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.MaxDuration)
		defer cancel()
	}

	now := j.clock.Now().In(j.cfg.Location)
	report := &Report{StartedAt: now}
	j.emit(Event{Type: EventStarted})
	j.logger.Info().Time("as_of", now).Int("horizon_days", j.cfg.HorizonDays).Msg("digest run started")

	err := j.run(ctx, now, report)

	report.FinishedAt = j.clock.Now().In(j.cfg.Location)
	j.setState(StateDone)
	j.emit(Event{Type: EventFinished, Report: report})

	evt := j.logger.Info()
	if err != nil {
		evt = j.logger.Error().Err(err)
	}
	evt.Str("outcome", string(report.Outcome)).
		Int("games", report.Games).
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration()).
		Msg("digest run finished")

	return report, err
}

func (j *Job) run(ctx context.Context, now time.Time, report *Report) error {
	j.setState(StateFetching)
	games, err := j.catalog.FindUpcomingReleases(ctx, now, j.cfg.HorizonDays)
	if err != nil {
		report.Outcome = OutcomeFailed
		return fmt.Errorf("fetch upcoming releases: %w", err)
	}
	subscribers, err := j.catalog.FindSubscribedUsers(ctx)
	if err != nil {
		report.Outcome = OutcomeFailed
		return fmt.Errorf("fetch subscribers: %w", err)
	}
	report.Games = len(games)

	if len(games) == 0 {
		j.nothingToSend(report, fmt.Sprintf("no games released in the next %d days", j.cfg.HorizonDays))
		return nil
	}
	if len(subscribers) == 0 {
		j.nothingToSend(report, "no newsletter subscribers")
		return nil
	}

	j.setState(StateRendering)
	body, err := Render(j.cfg.Heading, games, j.cfg.DateFormat, j.cfg.Location)
	if err != nil {
		report.Outcome = OutcomeFailed
		return fmt.Errorf("render digest: %w", err)
	}

	j.setState(StateDispatching)
	for _, user := range subscribers {
		if err := ctx.Err(); err != nil {
			report.Outcome = OutcomeAborted
			return fmt.Errorf("dispatch interrupted after %d of %d: %w", report.Attempted, len(subscribers), err)
		}
		j.send(ctx, user.Email, body, report)
	}
	report.Outcome = OutcomeCompleted
	return nil
}

func (j *Job) send(ctx context.Context, to, body string, report *Report) {
	sendCtx, cancel := context.WithTimeout(ctx, j.cfg.SendTimeout)
	defer cancel()

	report.Attempted++
	if err := j.notifier.SendDigest(sendCtx, to, j.cfg.Subject, body); err != nil {
		reason := err.Error()
		var de *notifier.DeliveryError
		if errors.As(err, &de) && de.Err != nil {
			reason = de.Err.Error()
		}
		report.Failed++
		report.Failures = append(report.Failures, Failure{Recipient: to, Reason: reason})
		j.logger.Warn().Str("recipient", to).Err(err).Msg("digest email failed")
		j.emit(Event{Type: EventFailed, Recipient: to, Error: reason})
		return
	}
	report.Succeeded++
	j.logger.Debug().Str("recipient", to).Msg("digest email sent")
	j.emit(Event{Type: EventSent, Recipient: to})
}

func (j *Job) nothingToSend(report *Report, reason string) {
	report.Outcome = OutcomeNothingToSend
	report.Reason = reason
	j.logger.Info().Str("reason", reason).Msg("nothing to send")
	j.emit(Event{Type: EventNothingToSend, Message: reason})
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
}

func (j *Job) emit(e Event) {
	e.Time = j.clock.Now()
	j.mu.RLock()
	observers := j.observers
	j.mu.RUnlock()
	for _, o := range observers {
		o.OnDigestEvent(e)
	}
}
