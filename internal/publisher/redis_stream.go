// Package publisher pushes newly flattened pitch events to Redis streams.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "pitches.live.mlb"
	defaultMaxLen = 100_000
)

// RedisStreamPublisher appends pitch events to a Redis stream, one entry per
// event.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher on an existing client. An empty
// stream selects DefaultStream.
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		maxLen: defaultMaxLen,
	}
}

// Stream returns the stream name.
func (p *RedisStreamPublisher) Stream() string {
	return p.stream
}

// PublishPitchEvents appends events in order using one pipeline round trip.
// The stream is trimmed approximately to its maximum length.
func (p *RedisStreamPublisher) PublishPitchEvents(ctx context.Context, gamePk int64, events []feed.PitchEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now()
	pipe := p.client.Pipeline()
	for i := range events {
		values, err := entryValues(gamePk, &events[i], now)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: values,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing %d events for game %d: %w", len(events), gamePk, err)
	}
	return nil
}

// entryValues builds the fields of one stream entry.
func entryValues(gamePk int64, e *feed.PitchEvent, now time.Time) (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return map[string]interface{}{
		"game_pk":   strconv.FormatInt(gamePk, 10),
		"play_id":   e.PlayID.Or(""),
		"data":      string(data),
		"timestamp": now.Unix(),
	}, nil
}
