package idempotency

import (
	"context"
	"time"
)

// NoopStore remembers nothing: every key looks new. Used when no redis is configured.
type NoopStore struct{}

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (NoopStore) Get(ctx context.Context, key string) (string, error) {
	return "", ErrKeyNotFound
}

func (NoopStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

func (NoopStore) Del(ctx context.Context, key string) error {
	return nil
}
