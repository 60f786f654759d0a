// Package spool holds audit entries that could not be written to the database
// after their mutation had already committed, until they can be replayed.
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"dealdesk/api/internal/deal"
)

const defaultKey = "dealdesk:audit:spool"

// RedisSpool is a FIFO of pending audit entries backed by a Redis list.
type RedisSpool struct {
	client *redis.Client
	key    string
}

// NewRedisSpool connects to Redis and verifies the connection.
func NewRedisSpool(redisURL string) (*RedisSpool, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSpoolWithClient(client), nil
}

func NewRedisSpoolWithClient(client *redis.Client) *RedisSpool {
	return &RedisSpool{client: client, key: defaultKey}
}

func (s *RedisSpool) Push(ctx context.Context, entry deal.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal spooled audit: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("spool audit entry: %w", err)
	}
	return nil
}

func (s *RedisSpool) Len(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("spool length: %w", err)
	}
	return n, nil
}

// Drain hands up to max entries, oldest first, to sink. Each entry is removed
// by value only after sink accepts it, so concurrent drainers never remove an
// entry they did not replay. A crash mid-drain or two drainers reading the same
// entry replay it twice; sinks must tolerate duplicates. Draining stops at the
// first sink error.
func (s *RedisSpool) Drain(ctx context.Context, max int64, sink func(context.Context, deal.AuditEntry) error) (int, error) {
	if max <= 0 {
		max = 100
	}
	raw, err := s.client.LRange(ctx, s.key, 0, max-1).Result()
	if err != nil {
		return 0, fmt.Errorf("read audit spool: %w", err)
	}

	drained := 0
	for _, item := range raw {
		var entry deal.AuditEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			slog.Error("dropping undecodable spooled audit entry", "error", err)
			if _, err := s.remove(ctx, item); err != nil {
				return drained, err
			}
			continue
		}
		if err := sink(ctx, entry); err != nil {
			return drained, fmt.Errorf("replay audit %s: %w", entry.ID, err)
		}
		removed, err := s.remove(ctx, item)
		if err != nil {
			return drained, err
		}
		if removed {
			drained++
		}
	}
	return drained, nil
}

// remove deletes one occurrence of item. It reports false when another
// drainer got there first.
func (s *RedisSpool) remove(ctx context.Context, item string) (bool, error) {
	n, err := s.client.LRem(ctx, s.key, 1, item).Result()
	if err != nil {
		return false, fmt.Errorf("remove spooled audit: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSpool) Close() error {
	return s.client.Close()
}

func (s *RedisSpool) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
