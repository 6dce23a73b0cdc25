// Package cache keeps recently read business schedules in Redis so admission
// checks do not hit SQLite on every booking request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotkeeper/internal/schedule"
)

const keyPrefix = "schedule:"

// ScheduleStore is the durable source of schedules.
type ScheduleStore interface {
	LoadSchedule(ctx context.Context, businessID string) (schedule.Schedule, error)
	ReplaceSchedule(ctx context.Context, businessID string, nonStop bool, blocks []schedule.Block) error
}

// ScheduleCache is a read-through cache in front of a ScheduleStore. Redis
// failures are logged and fall back to the store.
type ScheduleCache struct {
	store  ScheduleStore
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	// stale holds businesses whose cached entry could not be dropped after a
	// write. They bypass Redis until a delete succeeds.
	mu    sync.Mutex
	stale map[string]struct{}
}

func NewScheduleCache(store ScheduleStore, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ScheduleCache {
	return &ScheduleCache{
		store:  store,
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "schedule_cache").Logger(),
		stale:  make(map[string]struct{}),
	}
}

func key(businessID string) string { return keyPrefix + businessID }

// LoadSchedule serves from Redis when possible and fills it on a miss.
func (c *ScheduleCache) LoadSchedule(ctx context.Context, businessID string) (schedule.Schedule, error) {
	if s, ok := c.read(ctx, businessID); ok {
		return s, nil
	}
	s, err := c.store.LoadSchedule(ctx, businessID)
	if err != nil {
		return s, err
	}
	c.write(ctx, businessID, s)
	return s, nil
}

// ReplaceSchedule writes through to the store and then drops the cached copy.
// Once the store has committed the write is reported as successful; a failed
// delete is logged and the entry is bypassed until it can be dropped.
func (c *ScheduleCache) ReplaceSchedule(ctx context.Context, businessID string, nonStop bool, blocks []schedule.Block) error {
	if err := c.store.ReplaceSchedule(ctx, businessID, nonStop, blocks); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, businessID); err != nil {
		c.logger.Error().Err(err).Str("business_id", businessID).Msg("Schedule saved but cached copy could not be dropped")
	}
	return nil
}

// Invalidate removes the cached schedule for businessID. On failure the
// business is marked stale and reads skip Redis until a later delete works.
func (c *ScheduleCache) Invalidate(ctx context.Context, businessID string) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, key(businessID)).Err(); err != nil {
		c.mu.Lock()
		c.stale[businessID] = struct{}{}
		c.mu.Unlock()
		return fmt.Errorf("invalidate schedule %s: %w", businessID, err)
	}
	c.mu.Lock()
	delete(c.stale, businessID)
	c.mu.Unlock()
	return nil
}

func (c *ScheduleCache) isStale(businessID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stale[businessID]
	return ok
}

func (c *ScheduleCache) read(ctx context.Context, businessID string) (schedule.Schedule, bool) {
	var s schedule.Schedule
	if c.redis == nil || c.ttl <= 0 {
		return s, false
	}
	if c.isStale(businessID) {
		if err := c.Invalidate(ctx, businessID); err != nil {
			return s, false
		}
	}
	val, err := c.redis.Get(ctx, key(businessID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("business_id", businessID).Msg("Schedule cache read failed")
		return s, false
	}
	if err := json.Unmarshal(val, &s); err != nil {
		c.logger.Warn().Err(err).Str("business_id", businessID).Msg("Dropping undecodable cached schedule")
		return s, false
	}
	return s, true
}

func (c *ScheduleCache) write(ctx context.Context, businessID string, s schedule.Schedule) {
	if c.redis == nil || c.ttl <= 0 || c.isStale(businessID) {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key(businessID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("business_id", businessID).Msg("Schedule cache write failed")
	}
}
