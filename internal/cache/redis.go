// Package cache keeps fast-changing poller state in Redis: the day's schedule
// and how far each game's events have been published.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "diamond:"

	// CursorTTL bounds how long a finished game's cursor lingers.
	CursorTTL = 36 * time.Hour
)

// RedisCache handles caching and fast state storage
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// ScheduleKey is the key holding one date's schedule.
func ScheduleKey(date time.Time) string {
	return keyPrefix + "schedule:" + date.Format("2006-01-02")
}

// CursorKey is the key holding a game's publish cursor.
func CursorKey(gamePk int64) string {
	return keyPrefix + "cursor:" + strconv.FormatInt(gamePk, 10)
}

// GetSchedule returns the cached schedule for date. The bool is false on a
// cache miss.
func (rc *RedisCache) GetSchedule(ctx context.Context, date time.Time) ([]mlb.ScheduledGame, bool, error) {
	raw, err := rc.client.Get(ctx, ScheduleKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached schedule: %w", err)
	}

	var games []mlb.ScheduledGame
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, false, fmt.Errorf("decoding cached schedule: %w", err)
	}
	return games, true, nil
}

// SetSchedule caches the schedule for date.
func (rc *RedisCache) SetSchedule(ctx context.Context, date time.Time, games []mlb.ScheduledGame, ttl time.Duration) error {
	raw, err := json.Marshal(games)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	return rc.client.Set(ctx, ScheduleKey(date), raw, ttl).Err()
}

// PublishCursor returns how many of a game's events have been published.
// A game never published has cursor 0.
func (rc *RedisCache) PublishCursor(ctx context.Context, gamePk int64) (int, error) {
	n, err := rc.client.Get(ctx, CursorKey(gamePk)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cursor for game %d: %w", gamePk, err)
	}
	return n, nil
}

// SetPublishCursor records how many of a game's events have been published.
func (rc *RedisCache) SetPublishCursor(ctx context.Context, gamePk int64, n int) error {
	return rc.client.Set(ctx, CursorKey(gamePk), n, CursorTTL).Err()
}

// Delete removes keys.
func (rc *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return rc.client.Del(ctx, keys...).Err()
}
