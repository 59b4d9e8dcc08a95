package invalidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "cache-invalidation"

// RedisSink bumps the partition version read by page renderers, drops the
// cached entry and publishes the event for live subscribers.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Invalidate(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, versionKey(ev.Domain))
	if ev.ID != "" {
		pipe.Del(ctx, EntryKey(ev.Domain, ev.ID))
	}
	pipe.Publish(ctx, s.channel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate %s: %w", ev.Domain, err)
	}
	return nil
}

// Version returns the current version of a partition; readers compare it with
// the version their cached view was built at.
func Version(ctx context.Context, client redis.UniversalClient, d Domain) (int64, error) {
	v, err := client.Get(ctx, versionKey(d)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}

func EntryKey(d Domain, id string) string {
	return fmt.Sprintf("cache:%s:%s", d, id)
}

func versionKey(d Domain) string {
	return fmt.Sprintf("cache:%s:version", d)
}
