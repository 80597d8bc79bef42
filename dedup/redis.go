// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const markerValue = "true"

// RedisStore keeps markers as Redis keys with a TTL, so expiry is handled
// by the server and markers are shared between workers.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis connects to the Redis server at url and pings it.
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dedup: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dedup: connect to redis: %w", err)
	}

	logrus.WithField("reply", pong).Info("dedup redis connection successful")
	return NewRedisStore(client), nil
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, markerValue, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, markerValue, ttl).Err(); err != nil {
		return fmt.Errorf("dedup: mark %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: consume %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
