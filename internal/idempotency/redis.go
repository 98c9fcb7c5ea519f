package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"equiprent-backend/internal/logger"
)

const defaultPrefix = "equiprent:idempotency:"

// RedisStore keeps commit keys in redis so retries are recognised across
// server instances.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	logger.ExternalServiceCall("redis", "GET", "key", key)
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		logger.ExternalServiceResult("redis", "GET", nil, "key", key, "found", false)
		return "", ErrKeyNotFound
	}
	logger.ExternalServiceResult("redis", "GET", err, "key", key)
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	logger.ExternalServiceCall("redis", "SETNX", "key", key)
	ok, err := s.client.SetNX(ctx, s.prefix+key, value, ttl).Result()
	logger.ExternalServiceResult("redis", "SETNX", err, "key", key, "acquired", ok)
	return ok, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	err := s.client.Set(ctx, s.prefix+key, value, ttl).Err()
	logger.ExternalServiceResult("redis", "SET", err, "key", key)
	return err
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.prefix+key).Err()
	logger.ExternalServiceResult("redis", "DEL", err, "key", key)
	return err
}
