package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gamecatalog/backend/internal/models"
)

// MarkerStore persists the last tick a schedule fired for, so a restart
// neither repeats nor catches up ticks.
type MarkerStore interface {
	// LastFired returns the zero time when the schedule never fired.
	LastFired(ctx context.Context, name string) (time.Time, error)
	// Claim records tick if it is later than the stored marker and reports
	// whether it did. Only the claimer of a tick runs it.
	Claim(ctx context.Context, name string, tick time.Time) (bool, error)
}

// GormMarkerStore keeps markers in the schedule_states table.
type GormMarkerStore struct {
	db *gorm.DB
}

func NewGormMarkerStore(db *gorm.DB) *GormMarkerStore {
	return &GormMarkerStore{db: db}
}

func (s *GormMarkerStore) LastFired(ctx context.Context, name string) (time.Time, error) {
	var state models.ScheduleState
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load schedule %s: %w", name, err)
	}
	return state.LastFiredAt, nil
}

func (s *GormMarkerStore) Claim(ctx context.Context, name string, tick time.Time) (bool, error) {
	tick = tick.UTC()
	db := s.db.WithContext(ctx)

	created := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ScheduleState{Name: name, LastFiredAt: tick})
	if created.Error != nil {
		return false, fmt.Errorf("claim schedule %s: %w", name, created.Error)
	}
	if created.RowsAffected == 1 {
		return true, nil
	}

	updated := db.Model(&models.ScheduleState{}).
		Where("name = ? AND last_fired_at < ?", name, tick).
		Update("last_fired_at", tick)
	if updated.Error != nil {
		return false, fmt.Errorf("claim schedule %s: %w", name, updated.Error)
	}
	return updated.RowsAffected == 1, nil
}

var claimScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisMarkerStore keeps markers as unix milliseconds under
// schedule:<name>:last_fired.
type RedisMarkerStore struct {
	client redis.UniversalClient
}

func NewRedisMarkerStore(client redis.UniversalClient) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

func markerKey(name string) string {
	return "schedule:" + name + ":last_fired"
}

func (s *RedisMarkerStore) LastFired(ctx context.Context, name string) (time.Time, error) {
	ms, err := s.client.Get(ctx, markerKey(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load schedule %s: %w", name, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (s *RedisMarkerStore) Claim(ctx context.Context, name string, tick time.Time) (bool, error) {
	n, err := claimScript.Run(ctx, s.client, []string{markerKey(name)}, strconv.FormatInt(tick.UnixMilli(), 10)).Int64()
	if err != nil {
		return false, fmt.Errorf("claim schedule %s: %w", name, err)
	}
	return n == 1, nil
}
